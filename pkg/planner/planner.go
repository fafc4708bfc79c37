package planner

import (
	"catlux/pkg/catalog"
	"catlux/pkg/inventory"
	"catlux/pkg/models"
)

// FetchPlan is the ordered list of documents to download in one run
type FetchPlan []models.Record

// IDs returns the document ids in plan order
func (p FetchPlan) IDs() []string {
	ids := make([]string, len(p))
	for i, r := range p {
		ids[i] = r.ID
	}
	return ids
}

// Plan chooses what to download. It is pure: the same inputs always produce
// the same plan.
//
// Records already local are never planned. A solution is planned only when
// its exam is local or planned in the same run. The first quotaRemaining
// eligible records in reference order are kept; a solution whose exam fell
// beyond the cap is dropped and becomes eligible on a later run. In the
// result an exam is immediately followed by its solution when both are
// planned, otherwise reference order is kept.
func Plan(cat *catalog.Catalog, inv inventory.Inventory, quotaRemaining int, policy Policy) FetchPlan {
	if cat == nil || quotaRemaining <= 0 || policy.Kind == SelectNone {
		return FetchPlan{}
	}

	sorted := cat.SortedByReference()
	selected := policy.selected(sorted, inv)

	// Exams that will be fetched if they survive the cap
	examCandidates := make(map[string]bool)
	for i, r := range sorted {
		if selected[i] && r.IsExam() && !inv.IsLocal(r.ID) {
			examCandidates[r.GroupID] = true
		}
	}

	var eligible []models.Record
	for i, r := range sorted {
		if !selected[i] || inv.IsLocal(r.ID) {
			continue
		}
		if !r.IsExam() && !inv.IsLocal(r.GroupID) && !examCandidates[r.GroupID] {
			continue
		}
		eligible = append(eligible, r)
	}

	if len(eligible) > quotaRemaining {
		eligible = eligible[:quotaRemaining]
	}

	plannedExams := make(map[string]bool)
	plannedSolutions := make(map[string]bool)
	for _, r := range eligible {
		if r.IsExam() {
			plannedExams[r.GroupID] = true
		} else {
			plannedSolutions[r.GroupID] = true
		}
	}

	plan := make(FetchPlan, 0, len(eligible))
	solutions := make(map[string]models.Record)
	for _, r := range eligible {
		if !r.IsExam() {
			solutions[r.GroupID] = r
		}
	}

	for _, r := range eligible {
		if r.IsExam() {
			plan = append(plan, r)
			if plannedSolutions[r.GroupID] {
				plan = append(plan, solutions[r.GroupID])
			}
			continue
		}
		switch {
		case plannedExams[r.GroupID]:
			// emitted right after its exam
		case inv.IsLocal(r.GroupID):
			plan = append(plan, r)
		default:
			// exam was cut by the quota
		}
	}

	return plan
}

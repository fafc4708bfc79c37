package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"catlux/pkg/inventory"
	"catlux/pkg/models"
	"catlux/pkg/planner"
)

// Catalog prints records numbered from 1, in the order selections refer to
func (p *Printer) Catalog(records []models.Record, inv inventory.Inventory) {
	for i, r := range records {
		state := highlightStyle.Render("new  ")
		if inv.IsLocal(r.ID) {
			state = dimStyle.Render("local")
		}
		fmt.Fprintf(p.out, "%s %s %-8s %-40s %s\n",
			indexStyle.Render(fmt.Sprintf("%d.", i+1)),
			state,
			r.Kind.String(),
			r.ID,
			dimStyle.Render(describe(r)),
		)
	}
}

// Plan prints the documents about to be fetched
func (p *Printer) Plan(plan planner.FetchPlan, quotaRemaining int) {
	if len(plan) == 0 {
		p.Info("Planned downloads", "none")
		return
	}

	p.Info("Planned downloads", fmt.Sprintf("%d of %d remaining this month", len(plan), quotaRemaining))
	for i, r := range plan {
		fmt.Fprintf(p.out, "%s %-8s %s %s\n",
			indexStyle.Render(fmt.Sprintf("%d.", i+1)),
			r.Kind.String(),
			r.FileName(),
			dimStyle.Render(describe(r)),
		)
	}
}

func describe(r models.Record) string {
	parts := []string{r.Reference.String()}
	if r.Title != "" {
		parts = append(parts, r.Title)
	}
	if r.Category != "" {
		parts = append(parts, r.Category)
	}
	return strings.Join(parts, " · ")
}

// PromptSelection asks which of total listed records to fetch and parses
// the answer. An empty answer selects nothing.
func (p *Printer) PromptSelection(in io.Reader, total int) (planner.Policy, error) {
	fmt.Fprint(p.out, labelStyle.Render("Select documents (e.g. 1,3,5-7 | all | new | none): "))

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return planner.Policy{}, fmt.Errorf("failed to read selection: %w", err)
	}
	return planner.ParsePolicy(line, total)
}

// Confirm asks a yes/no question; anything but y or yes is a no
func (p *Printer) Confirm(in io.Reader, question string) bool {
	fmt.Fprint(p.out, warningStyle.Render(question+" [y/N]: "))

	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "j", "ja":
		return true
	default:
		return false
	}
}

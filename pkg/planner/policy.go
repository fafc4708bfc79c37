package planner

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"catlux/pkg/inventory"
	"catlux/pkg/models"
)

// Selection names how records are picked before quota and pairing apply
type Selection int

const (
	SelectAll Selection = iota
	SelectNone
	SelectOnlyNew
	SelectExplicit
)

func (s Selection) String() string {
	switch s {
	case SelectAll:
		return "all"
	case SelectNone:
		return "none"
	case SelectOnlyNew:
		return "new"
	case SelectExplicit:
		return "explicit"
	default:
		return "unknown"
	}
}

// Policy is a selection plus, for SelectExplicit, zero-based positions in
// the catalog's reference-sorted view
type Policy struct {
	Kind    Selection
	Indices []int
}

func All() Policy     { return Policy{Kind: SelectAll} }
func None() Policy    { return Policy{Kind: SelectNone} }
func OnlyNew() Policy { return Policy{Kind: SelectOnlyNew} }

// Explicit selects the given zero-based positions. Positions outside the
// sorted view are ignored.
func Explicit(indices ...int) Policy {
	return Policy{Kind: SelectExplicit, Indices: indices}
}

func (p Policy) String() string {
	if p.Kind != SelectExplicit {
		return p.Kind.String()
	}
	parts := make([]string, len(p.Indices))
	for i, idx := range p.Indices {
		parts[i] = strconv.Itoa(idx + 1)
	}
	return strings.Join(parts, ",")
}

// selected marks which positions of sorted the policy picks
func (p Policy) selected(sorted []models.Record, inv inventory.Inventory) []bool {
	out := make([]bool, len(sorted))
	switch p.Kind {
	case SelectAll:
		for i := range out {
			out[i] = true
		}
	case SelectOnlyNew:
		for i, r := range sorted {
			out[i] = !inv.IsLocal(r.GroupID)
		}
	case SelectExplicit:
		for _, idx := range p.Indices {
			if idx >= 0 && idx < len(out) {
				out[idx] = true
			}
		}
	}
	return out
}

// ParsePolicy reads a user selection. Accepted forms are "all", "none",
// "new" and one-based lists such as "1,3,5-7" referring to the numbered
// listing of total records.
func ParsePolicy(input string, total int) (Policy, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	switch s {
	case "all", "a", "*":
		return All(), nil
	case "", "none", "n", "0":
		return None(), nil
	case "new":
		return OnlyNew(), nil
	}

	seen := make(map[int]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		lo, hi, err := parseRange(part)
		if err != nil {
			return Policy{}, err
		}
		if lo < 1 || hi > total {
			return Policy{}, fmt.Errorf("selection %q is outside 1-%d", part, total)
		}
		for n := lo; n <= hi; n++ {
			seen[n-1] = true
		}
	}

	if len(seen) == 0 {
		return None(), nil
	}

	indices := make([]int, 0, len(seen))
	for idx := range seen {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return Explicit(indices...), nil
}

func parseRange(part string) (int, int, error) {
	if from, to, ok := strings.Cut(part, "-"); ok {
		lo, err := strconv.Atoi(strings.TrimSpace(from))
		if err != nil {
			return 0, 0, fmt.Errorf("invalid range %q", part)
		}
		hi, err := strconv.Atoi(strings.TrimSpace(to))
		if err != nil {
			return 0, 0, fmt.Errorf("invalid range %q", part)
		}
		if lo > hi {
			return 0, 0, fmt.Errorf("invalid range %q: start after end", part)
		}
		return lo, hi, nil
	}

	n, err := strconv.Atoi(part)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid selection %q", part)
	}
	return n, n, nil
}

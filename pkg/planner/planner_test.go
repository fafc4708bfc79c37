package planner

import (
	"fmt"
	"math/rand"
	"testing"

	"catlux/pkg/catalog"
	"catlux/pkg/inventory"
	"catlux/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func group(id, ref string) models.Descriptor {
	return models.Descriptor{
		ID:             id,
		ReferenceLabel: ref,
		ExamLocator:    "https://www.catlux.de/files/" + id + "?dl=pdf",
	}
}

func buildCatalog(descs ...models.Descriptor) *catalog.Catalog {
	cat := catalog.New()
	cat.Add(descs)
	return cat
}

func TestPlanScenarios(t *testing.T) {
	t.Run("new group plans exam then solution", func(t *testing.T) {
		cat := buildCatalog(group("E1", "#10"))
		plan := Plan(cat, inventory.Inventory{}, 100, All())
		assert.Equal(t, []string{"E1", "E1_solution"}, plan.IDs())
	})

	t.Run("local exam plans only the solution", func(t *testing.T) {
		cat := buildCatalog(group("E1", "#10"))
		inv := inventory.Inventory{"E1": true, "E1_solution": false}
		plan := Plan(cat, inv, 100, All())
		assert.Equal(t, []string{"E1_solution"}, plan.IDs())
	})

	t.Run("quota of one takes the lowest exam and defers its solution", func(t *testing.T) {
		cat := buildCatalog(group("E2", "#20"), group("E1", "#10"))
		plan := Plan(cat, inventory.Inventory{}, 1, All())
		assert.Equal(t, []string{"E1"}, plan.IDs())
	})

	t.Run("cap between groups drops the trailing exam's solution", func(t *testing.T) {
		cat := buildCatalog(group("A", "#1"), group("B", "#2"))
		plan := Plan(cat, inventory.Inventory{}, 3, All())
		assert.Equal(t, []string{"A", "A_solution", "B"}, plan.IDs())
	})

	t.Run("everything local plans nothing", func(t *testing.T) {
		cat := buildCatalog(group("A", "#1"))
		plan := Plan(cat, inventory.Inventory{"A": true, "A_solution": true}, 10, All())
		assert.Empty(t, plan)
	})
}

func TestPlanEdgeCases(t *testing.T) {
	cat := buildCatalog(group("A", "#1"), group("B", "#2"))

	assert.Empty(t, Plan(cat, inventory.Inventory{}, 0, All()))
	assert.Empty(t, Plan(cat, inventory.Inventory{}, -3, All()))
	assert.Empty(t, Plan(catalog.New(), inventory.Inventory{}, 100, All()))
	assert.Empty(t, Plan(nil, nil, 100, All()))
	assert.Empty(t, Plan(cat, inventory.Inventory{}, 100, None()))
	assert.NotNil(t, Plan(cat, inventory.Inventory{}, 0, All()))
}

func TestPlanOnlyNew(t *testing.T) {
	cat := buildCatalog(group("A", "#1"), group("B", "#2"))
	inv := inventory.Inventory{"A": true}

	plan := Plan(cat, inv, 100, OnlyNew())
	assert.Equal(t, []string{"B", "B_solution"}, plan.IDs())

	// With All the missing solution of a local exam is picked up too.
	plan = Plan(cat, inv, 100, All())
	assert.Equal(t, []string{"A_solution", "B", "B_solution"}, plan.IDs())
}

func TestPlanExplicit(t *testing.T) {
	// Sorted view: 0 A, 1 A_solution, 2 B, 3 B_solution, 4 C, 5 C_solution
	cat := buildCatalog(group("C", "#3"), group("A", "#1"), group("B", "#2"))

	t.Run("picks by sorted position", func(t *testing.T) {
		plan := Plan(cat, inventory.Inventory{}, 100, Explicit(4, 0))
		assert.Equal(t, []string{"A", "C"}, plan.IDs())
	})

	t.Run("solution without its exam is excluded", func(t *testing.T) {
		plan := Plan(cat, inventory.Inventory{}, 100, Explicit(3))
		assert.Empty(t, plan)
	})

	t.Run("solution with local exam is allowed", func(t *testing.T) {
		plan := Plan(cat, inventory.Inventory{"B": true}, 100, Explicit(3))
		assert.Equal(t, []string{"B_solution"}, plan.IDs())
	})

	t.Run("exam and solution together", func(t *testing.T) {
		plan := Plan(cat, inventory.Inventory{}, 100, Explicit(5, 4))
		assert.Equal(t, []string{"C", "C_solution"}, plan.IDs())
	})

	t.Run("out of range positions are ignored", func(t *testing.T) {
		plan := Plan(cat, inventory.Inventory{}, 100, Explicit(-1, 99, 2))
		assert.Equal(t, []string{"B"}, plan.IDs())
	})
}

func TestPlanMissingReferencesLast(t *testing.T) {
	cat := buildCatalog(group("X", "ohne Nummer"), group("Y", "#5"))
	plan := Plan(cat, inventory.Inventory{}, 3, All())
	assert.Equal(t, []string{"Y", "Y_solution", "X"}, plan.IDs())
}

func TestPlanInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	policies := []Policy{All(), OnlyNew(), None()}

	for iter := 0; iter < 300; iter++ {
		var descs []models.Descriptor
		groups := rng.Intn(8)
		for g := 0; g < groups; g++ {
			ref := ""
			if rng.Intn(4) > 0 {
				ref = fmt.Sprintf("#%d", rng.Intn(5))
			}
			descs = append(descs, group(fmt.Sprintf("G%d", g), ref))
		}
		cat := buildCatalog(descs...)

		inv := inventory.Inventory{}
		for _, r := range cat.Records() {
			inv[r.ID] = rng.Intn(3) == 0
		}

		quota := rng.Intn(10)
		policy := policies[rng.Intn(len(policies))]
		if rng.Intn(4) == 0 {
			var idx []int
			for i := 0; i < cat.Len(); i++ {
				if rng.Intn(2) == 0 {
					idx = append(idx, i)
				}
			}
			policy = Explicit(idx...)
		}

		plan := Plan(cat, inv, quota, policy)
		again := Plan(cat, inv, quota, policy)
		require.Equal(t, plan, again, "plan must be deterministic")

		assert.LessOrEqual(t, len(plan), quota)
		if quota == 0 {
			assert.Empty(t, plan)
		}

		seen := map[models.Key]bool{}
		position := map[string]int{}
		for i, r := range plan {
			assert.False(t, seen[r.Key()], "duplicate %s", r.ID)
			seen[r.Key()] = true
			assert.False(t, inv.IsLocal(r.ID), "local record %s planned", r.ID)
			if r.IsExam() {
				position[r.GroupID] = i
				continue
			}
			examPos, planned := position[r.GroupID]
			assert.True(t, inv.IsLocal(r.GroupID) || planned, "orphan solution %s", r.ID)
			if planned {
				assert.Equal(t, i-1, examPos, "solution %s not right after its exam", r.ID)
			}
		}
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		input   string
		want    Policy
		wantErr bool
	}{
		{"all", All(), false},
		{" ALL ", All(), false},
		{"none", None(), false},
		{"", None(), false},
		{"new", OnlyNew(), false},
		{"1,3,5-7", Explicit(0, 2, 4, 5, 6), false},
		{"3, 1, 3", Explicit(0, 2), false},
		{"10", Explicit(9), false},
		{"11", Policy{}, true},
		{"0-2", Policy{}, true},
		{"4-2", Policy{}, true},
		{"x", Policy{}, true},
		{"1-x", Policy{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePolicy(tt.input, 10)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPolicyString(t *testing.T) {
	assert.Equal(t, "all", All().String())
	assert.Equal(t, "new", OnlyNew().String())
	assert.Equal(t, "1,3", Explicit(0, 2).String())
}

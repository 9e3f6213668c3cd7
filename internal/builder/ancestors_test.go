package builder

import (
	"testing"

	"github.com/veloxcart/catalog-cache/pkg/db/models"
)

func parentOf(id int64) *int64 { return &id }

func TestChainWalksToRoot(t *testing.T) {
	lineage := newAncestry([]models.Category{
		{ID: 1, CategoryTypeID: 1},
		{ID: 2, CategoryTypeID: 1, ParentID: parentOf(1)},
		{ID: 3, CategoryTypeID: 1, ParentID: parentOf(2)},
	})

	chain := lineage.chain(3)
	if len(chain) != 3 {
		t.Fatalf("expected 3 categories, got %v", chain)
	}
	seen := map[int64]bool{}
	for _, id := range chain {
		seen[id] = true
	}
	if !seen[1] || !seen[2] || !seen[3] {
		t.Fatalf("expected closure {1,2,3}, got %v", chain)
	}
}

func TestChainUnknownCategory(t *testing.T) {
	lineage := newAncestry(nil)
	if chain := lineage.chain(42); chain != nil {
		t.Fatalf("expected nil for unknown category, got %v", chain)
	}
}

func TestChainSurvivesCycles(t *testing.T) {
	lineage := newAncestry([]models.Category{
		{ID: 1, CategoryTypeID: 1, ParentID: parentOf(2)},
		{ID: 2, CategoryTypeID: 1, ParentID: parentOf(1)},
	})

	chain := lineage.chain(1)
	if len(chain) != 2 {
		t.Fatalf("expected cycle to terminate with both nodes, got %v", chain)
	}
}

package builder

import "github.com/veloxcart/catalog-cache/pkg/db/models"

// ancestry answers "which categories does this category roll up into",
// memoizing each distinct chain so the walk happens once per category.
type ancestry struct {
	parents map[int64]*int64
	memo    map[int64][]int64
}

func newAncestry(categories []models.Category) *ancestry {
	parents := make(map[int64]*int64, len(categories))
	for _, category := range categories {
		parents[category.ID] = category.ParentID
	}
	return &ancestry{parents: parents, memo: map[int64][]int64{}}
}

// chain returns the category itself followed by every ancestor up to
// the root. Unknown categories yield an empty chain; a corrupt parent
// cycle terminates at the first revisit.
func (a *ancestry) chain(categoryID int64) []int64 {
	if cached, ok := a.memo[categoryID]; ok {
		return cached
	}
	if _, known := a.parents[categoryID]; !known {
		a.memo[categoryID] = nil
		return nil
	}

	chain := []int64{categoryID}
	visited := map[int64]struct{}{categoryID: {}}
	current := a.parents[categoryID]
	for current != nil {
		id := *current
		if _, seen := visited[id]; seen {
			break
		}
		if cached, ok := a.memo[id]; ok {
			chain = append(chain, cached...)
			break
		}
		chain = append(chain, id)
		visited[id] = struct{}{}
		current = a.parents[id]
	}

	a.memo[categoryID] = chain
	return chain
}

package pricingctx

import (
	"sort"
	"strconv"
	"strings"
)

// Context is one resolved combination of visibility lists and price
// lists. Both sides are ordered by list priority ascending, which also
// fixes the scan order of the layered resolution.
type Context struct {
	VisibilityListIDs []int64
	PriceListIDs      []int64
}

// Key serializes the context as a stable string, e.g. "1,2-4,7".
func (c Context) Key() string {
	return joinIDs(c.VisibilityListIDs) + "-" + joinIDs(c.PriceListIDs)
}

// Empty reports whether either side of the context is missing; such a
// context can never resolve a price and produces no cache rows.
func (c Context) Empty() bool {
	return len(c.VisibilityListIDs) == 0 || len(c.PriceListIDs) == 0
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// Set is the full output of a resolution run: every distinct context
// plus the union of list ids the builder must load data for.
type Set struct {
	byKey map[string]Context

	VisibilityListIDs []int64
	PriceListIDs      []int64
}

func newSet() *Set {
	return &Set{byKey: map[string]Context{}}
}

func (s *Set) add(c Context) {
	if c.Empty() {
		return
	}
	key := c.Key()
	if _, exists := s.byKey[key]; exists {
		return
	}
	s.byKey[key] = c
	s.VisibilityListIDs = mergeIDs(s.VisibilityListIDs, c.VisibilityListIDs)
	s.PriceListIDs = mergeIDs(s.PriceListIDs, c.PriceListIDs)
}

// Len returns the number of distinct contexts.
func (s *Set) Len() int {
	return len(s.byKey)
}

// Keys returns the context keys in sorted order.
func (s *Set) Keys() []string {
	keys := make([]string, 0, len(s.byKey))
	for key := range s.byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the context stored under key.
func (s *Set) Get(key string) (Context, bool) {
	c, ok := s.byKey[key]
	return c, ok
}

// Indexes assigns a compact 1-based index to every context in sorted
// key order. The index is the first half of the price/visibility
// table's composite key.
func (s *Set) Indexes() map[string]int {
	indexes := make(map[string]int, len(s.byKey))
	for i, key := range s.Keys() {
		indexes[key] = i + 1
	}
	return indexes
}

func mergeIDs(existing, extra []int64) []int64 {
	seen := make(map[int64]struct{}, len(existing))
	for _, id := range existing {
		seen[id] = struct{}{}
	}
	for _, id := range extra {
		if _, ok := seen[id]; !ok {
			existing = append(existing, id)
			seen[id] = struct{}{}
		}
	}
	sort.Slice(existing, func(i, j int) bool { return existing[i] < existing[j] })
	return existing
}

package query

import (
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/veloxcart/catalog-cache/pkg/enums"
	"gorm.io/gorm"
)

// FilterExpression contributes a bespoke SQL fragment for one named
// filter. The generation selects which cache tables the fragment may
// reference.
type FilterExpression func(db *gorm.DB, gen int, value any) *gorm.DB

// OrderExpression contributes a bespoke ORDER BY for one named sort key.
type OrderExpression func(db *gorm.DB, gen int, direction enums.SortDirection) *gorm.DB

// DynamicRule evaluates one in-memory filter against a streamed row.
// Dynamic rules cannot be pushed into SQL because facet counting needs
// their per-row outcome with the rule removed.
type DynamicRule interface {
	Matches(row Row, value any) (bool, error)
}

// Registry holds the filter, sort, and dynamic-rule capabilities the
// engine accepts. Registration typically happens once at startup, but
// the maps tolerate concurrent registration from plugins loaded later.
type Registry struct {
	filterColumns  *xsync.MapOf[string, struct{}]
	filterExprs    *xsync.MapOf[string, FilterExpression]
	orderColumns   *xsync.MapOf[string, struct{}]
	orderExprs     *xsync.MapOf[string, OrderExpression]
	dynamicColumns *xsync.MapOf[string, struct{}]
	dynamicRules   *xsync.MapOf[string, DynamicRule]
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		filterColumns:  xsync.NewMapOf[string, struct{}](),
		filterExprs:    xsync.NewMapOf[string, FilterExpression](),
		orderColumns:   xsync.NewMapOf[string, struct{}](),
		orderExprs:     xsync.NewMapOf[string, OrderExpression](),
		dynamicColumns: xsync.NewMapOf[string, struct{}](),
		dynamicRules:   xsync.NewMapOf[string, DynamicRule](),
	}
}

// AddAllowedFilterColumn permits plain equality/IN filtering on a main
// table column.
func (r *Registry) AddAllowedFilterColumn(column string) {
	r.filterColumns.Store(column, struct{}{})
}

// AddFilterExpression registers a named SQL filter fragment.
func (r *Registry) AddFilterExpression(name string, expr FilterExpression) {
	r.filterExprs.Store(name, expr)
}

// AddAllowedOrderColumn permits plain ORDER BY on a main table column.
func (r *Registry) AddAllowedOrderColumn(column string) {
	r.orderColumns.Store(column, struct{}{})
}

// AddOrderExpression registers a named ORDER BY fragment.
func (r *Registry) AddOrderExpression(name string, expr OrderExpression) {
	r.orderExprs.Store(name, expr)
}

// AddAllowedDynamicFilterColumn permits a dynamic filter name. The name
// also needs a rule via AddFilterDynamicExpression before the engine
// accepts it.
func (r *Registry) AddAllowedDynamicFilterColumn(column string) {
	r.dynamicColumns.Store(column, struct{}{})
}

// AddFilterDynamicExpression registers the in-memory rule behind a
// dynamic filter name.
func (r *Registry) AddFilterDynamicExpression(column string, rule DynamicRule) {
	r.dynamicRules.Store(column, rule)
}

func (r *Registry) filterColumnAllowed(column string) bool {
	_, ok := r.filterColumns.Load(column)
	return ok
}

func (r *Registry) filterExpression(name string) (FilterExpression, bool) {
	return r.filterExprs.Load(name)
}

func (r *Registry) orderColumnAllowed(column string) bool {
	_, ok := r.orderColumns.Load(column)
	return ok
}

func (r *Registry) orderExpression(name string) (OrderExpression, bool) {
	return r.orderExprs.Load(name)
}

func (r *Registry) dynamicRule(column string) (DynamicRule, bool) {
	if _, allowed := r.dynamicColumns.Load(column); !allowed {
		return nil, false
	}
	return r.dynamicRules.Load(column)
}

package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/shopspring/decimal"
	"github.com/veloxcart/catalog-cache/internal/builder"
	"github.com/veloxcart/catalog-cache/internal/generation"
	"github.com/veloxcart/catalog-cache/pkg/enums"
	pkgerrors "github.com/veloxcart/catalog-cache/pkg/errors"
	"github.com/veloxcart/catalog-cache/pkg/logger"
	"github.com/veloxcart/catalog-cache/pkg/metrics"
	"gorm.io/gorm"
)

// Filter is one requested filter. Column resolves against the
// registry: a dynamic rule, then a named expression, then a plain
// allowed column, in that order.
type Filter struct {
	Column string
	Value  any
}

// Sort names an order key and direction.
type Sort struct {
	Column    string
	Direction enums.SortDirection
}

// PriceBounds are running min/max of the candidate set with the price
// range filters removed, so a UI can render the still-selectable range.
type PriceBounds struct {
	PriceMin    decimal.Decimal
	PriceMax    decimal.Decimal
	PriceVatMin decimal.Decimal
	PriceVatMax decimal.Decimal
}

// Result is the ordered, unpaged outcome of one query. Pagination and
// entity hydration are the caller's concern.
type Result struct {
	ProductIDs []int64
	Total      int

	// FacetCounts maps each requested dynamic filter to the result
	// count with that one filter removed and all others applied.
	FacetCounts map[string]uint64

	// PriceBounds is nil when no candidate row survived the
	// non-price dynamic filters.
	PriceBounds *PriceBounds
}

// Params configures the query engine.
type Params struct {
	DB          *gorm.DB
	Logger      *logger.Logger
	Generations *generation.Store
	Registry    *Registry
	Metrics     *metrics.CacheMetrics
}

// Engine answers catalog queries against the currently serving
// generation. Pushdown-capable filters and the sort become SQL; dynamic
// filters run in one streaming pass that also produces facet counts
// and price bounds.
type Engine struct {
	db          *gorm.DB
	logg        *logger.Logger
	generations *generation.Store
	registry    *Registry
	metrics     *metrics.CacheMetrics
}

// New builds an Engine.
func New(params Params) (*Engine, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Generations == nil {
		return nil, fmt.Errorf("generation store required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("registry required")
	}
	return &Engine{
		db:          params.DB,
		logg:        params.Logger,
		generations: params.Generations,
		registry:    params.Registry,
		metrics:     params.Metrics,
	}, nil
}

type dynamicFilter struct {
	column string
	rule   DynamicRule
	value  any
}

func (f dynamicFilter) priceBound() bool {
	_, ok := f.rule.(interface{ PriceBound() })
	return ok
}

// Query runs one catalog query scoped to a pricing context key.
// Contexts the serving generation never materialized yield an empty
// result rather than an error: an empty context entitles the customer
// to nothing.
func (e *Engine) Query(ctx context.Context, contextKey string, filters []Filter, sort Sort) (*Result, error) {
	started := time.Now()
	defer func() {
		e.metrics.ObserveQuery(time.Since(started))
	}()

	gen, err := e.generations.Ready(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading serving generation")
	}
	if gen == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeCacheUnavailable, "no cache generation is ready")
	}

	contextIndex, found, err := e.contextIndex(ctx, gen, contextKey)
	if err != nil {
		return nil, err
	}
	if !found {
		e.logg.Debug(e.logg.WithField(ctx, "context_key", contextKey), "context not materialized, returning empty result")
		return emptyResult(filters, e.registry), nil
	}

	pushdown, dynamic, err := e.splitFilters(filters)
	if err != nil {
		return nil, err
	}

	tx, err := e.buildSQL(ctx, gen, contextIndex, pushdown, sort)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Rows()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "executing catalog query")
	}
	defer rows.Close()

	return e.stream(rows, dynamic)
}

func emptyResult(filters []Filter, registry *Registry) *Result {
	counts := make(map[string]uint64)
	for _, filter := range filters {
		if _, ok := registry.dynamicRule(filter.Column); ok {
			counts[filter.Column] = 0
		}
	}
	return &Result{ProductIDs: []int64{}, FacetCounts: counts}
}

func (e *Engine) contextIndex(ctx context.Context, gen int, key string) (int, bool, error) {
	var index int
	err := e.db.WithContext(ctx).
		Table(builder.ContextTable(gen)).
		Select("context_index").
		Where("context_key = ?", key).
		Take(&index).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolving context index")
	}
	return index, true, nil
}

// splitFilters resolves every requested filter against the registry,
// failing fast on names nothing registered.
func (e *Engine) splitFilters(filters []Filter) ([]Filter, []dynamicFilter, error) {
	var pushdown []Filter
	var dynamic []dynamicFilter
	for _, filter := range filters {
		if rule, ok := e.registry.dynamicRule(filter.Column); ok {
			dynamic = append(dynamic, dynamicFilter{column: filter.Column, rule: rule, value: filter.Value})
			continue
		}
		if _, ok := e.registry.filterExpression(filter.Column); ok {
			pushdown = append(pushdown, filter)
			continue
		}
		if e.registry.filterColumnAllowed(filter.Column) {
			pushdown = append(pushdown, filter)
			continue
		}
		return nil, nil, pkgerrors.New(pkgerrors.CodeInvalidFilter, fmt.Sprintf("filter %q is not registered", filter.Column))
	}
	return pushdown, dynamic, nil
}

func (e *Engine) buildSQL(ctx context.Context, gen, contextIndex int, pushdown []Filter, sort Sort) (*gorm.DB, error) {
	tx := e.db.WithContext(ctx).
		Table(builder.ProductTable(gen)+" AS m").
		Select("m.product_id, m.producer_id, m.display_amount_id, m.display_delivery_id, m.is_sold, m.attribute_value_ids, pv.price, pv.price_vat").
		Joins(
			"JOIN "+builder.PriceVisibilityTable(gen)+" AS pv ON pv.product_id = m.product_id AND pv.context_index = ?",
			contextIndex,
		).
		Where("pv.hidden = ?", false)

	for _, filter := range pushdown {
		if expr, ok := e.registry.filterExpression(filter.Column); ok {
			tx = expr(tx, gen, filter.Value)
			continue
		}
		tx = applyColumnFilter(tx, filter)
	}

	tx, err := e.applySort(tx, gen, sort)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func applyColumnFilter(tx *gorm.DB, filter Filter) *gorm.DB {
	column := "m." + filter.Column
	switch value := filter.Value.(type) {
	case nil:
		return tx.Where(column + " IS NULL")
	case []any:
		return tx.Where(column+" IN ?", value)
	case []int64:
		return tx.Where(column+" IN ?", value)
	case []string:
		return tx.Where(column+" IN ?", value)
	default:
		return tx.Where(column+" = ?", value)
	}
}

func (e *Engine) applySort(tx *gorm.DB, gen int, sort Sort) (*gorm.DB, error) {
	direction := sort.Direction
	if direction == "" {
		direction = enums.SortAsc
	}
	if !direction.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidFilter, fmt.Sprintf("invalid sort direction %q", sort.Direction))
	}
	if sort.Column == "" {
		return tx.Order("m.product_id ASC"), nil
	}
	if expr, ok := e.registry.orderExpression(sort.Column); ok {
		return expr(tx, gen, direction).Order("m.product_id ASC"), nil
	}
	if e.registry.orderColumnAllowed(sort.Column) {
		return tx.Order("m." + sort.Column + " " + direction.SQL()).Order("m.product_id ASC"), nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeInvalidFilter, fmt.Sprintf("sort key %q is not registered", sort.Column))
}

// stream is the single reduction pass over the SQL candidates: it
// evaluates every dynamic rule per row into bitmaps, then derives the
// result set, remove-one facet counts, and price bounds from bitmap
// intersections.
func (e *Engine) stream(rows *sql.Rows, dynamic []dynamicFilter) (*Result, error) {
	matched := make([]*roaring.Bitmap, len(dynamic))
	for i := range matched {
		matched[i] = roaring.New()
	}

	var productIDs []int64
	var prices []decimal.Decimal
	var priceVats []decimal.Decimal

	var ordinal uint32
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scanning catalog row")
		}
		for i, filter := range dynamic {
			ok, err := filter.rule.Matches(row, filter.value)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidFilter, err, "evaluating filter "+filter.column)
			}
			if ok {
				matched[i].Add(ordinal)
			}
		}
		productIDs = append(productIDs, row.ProductID)
		prices = append(prices, row.Price)
		priceVats = append(priceVats, row.PriceVat)
		ordinal++
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "streaming catalog rows")
	}

	all := roaring.New()
	if ordinal > 0 {
		all.AddRange(0, uint64(ordinal))
	}

	result := &Result{
		FacetCounts: make(map[string]uint64, len(dynamic)),
	}

	final := intersect(all, matched, -1)
	result.Total = int(final.GetCardinality())
	result.ProductIDs = make([]int64, 0, result.Total)
	final.Iterate(func(position uint32) bool {
		result.ProductIDs = append(result.ProductIDs, productIDs[position])
		return true
	})

	for i, filter := range dynamic {
		result.FacetCounts[filter.column] = intersect(all, matched, i).GetCardinality()
	}

	result.PriceBounds = priceBounds(all, matched, dynamic, prices, priceVats)
	return result, nil
}

// intersect ANDs the base with every matched bitmap except the one at
// skip (-1 skips none).
func intersect(base *roaring.Bitmap, matched []*roaring.Bitmap, skip int) *roaring.Bitmap {
	out := base.Clone()
	for i, bitmap := range matched {
		if i == skip {
			continue
		}
		out.And(bitmap)
	}
	return out
}

func priceBounds(
	base *roaring.Bitmap,
	matched []*roaring.Bitmap,
	dynamic []dynamicFilter,
	prices, priceVats []decimal.Decimal,
) *PriceBounds {
	scope := base.Clone()
	for i, filter := range dynamic {
		if filter.priceBound() {
			continue
		}
		scope.And(matched[i])
	}
	if scope.IsEmpty() {
		return nil
	}

	var bounds PriceBounds
	first := true
	scope.Iterate(func(position uint32) bool {
		price, priceVat := prices[position], priceVats[position]
		if first {
			bounds = PriceBounds{PriceMin: price, PriceMax: price, PriceVatMin: priceVat, PriceVatMax: priceVat}
			first = false
			return true
		}
		if price.LessThan(bounds.PriceMin) {
			bounds.PriceMin = price
		}
		if price.GreaterThan(bounds.PriceMax) {
			bounds.PriceMax = price
		}
		if priceVat.LessThan(bounds.PriceVatMin) {
			bounds.PriceVatMin = priceVat
		}
		if priceVat.GreaterThan(bounds.PriceVatMax) {
			bounds.PriceVatMax = priceVat
		}
		return true
	})
	return &bounds
}

func scanRow(rows *sql.Rows) (Row, error) {
	var row Row
	var producerID, displayAmountID, displayDeliveryID sql.NullInt64
	var attributeValueIDs sql.NullString
	err := rows.Scan(
		&row.ProductID,
		&producerID,
		&displayAmountID,
		&displayDeliveryID,
		&row.IsSold,
		&attributeValueIDs,
		&row.Price,
		&row.PriceVat,
	)
	if err != nil {
		return Row{}, err
	}
	if producerID.Valid {
		row.ProducerID = &producerID.Int64
	}
	if displayAmountID.Valid {
		row.DisplayAmountID = &displayAmountID.Int64
	}
	if displayDeliveryID.Valid {
		row.DisplayDeliveryID = &displayDeliveryID.Int64
	}
	row.AttributeValueIDs = attributeValueIDs.String
	return row, nil
}

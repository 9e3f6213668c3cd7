package query

import (
	"context"
	"io"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/veloxcart/catalog-cache/internal/builder"
	"github.com/veloxcart/catalog-cache/internal/generation"
	"github.com/veloxcart/catalog-cache/pkg/db/models"
	"github.com/veloxcart/catalog-cache/pkg/enums"
	pkgerrors "github.com/veloxcart/catalog-cache/pkg/errors"
	"github.com/veloxcart/catalog-cache/pkg/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type seededRow struct {
	productID         int64
	producerID        *int64
	isSold            bool
	attributeValueIDs string
	price             string
	priceVat          string
	hidden            bool
}

func id(v int64) *int64 { return &v }

func newTestEngine(t *testing.T, rows []seededRow) (*Engine, *Registry, *gorm.DB) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.Generation{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	store, err := generation.NewStore(conn, logg, 0)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	if err := store.EnsureSlots(ctx); err != nil {
		t.Fatalf("ensure slots: %v", err)
	}
	gen, err := store.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ddl := []string{
		"CREATE TABLE " + builder.ProductTable(gen) + " (product_id INTEGER PRIMARY KEY, producer_id INTEGER, display_amount_id INTEGER, is_sold BOOLEAN NOT NULL, display_delivery_id INTEGER, attribute_value_ids TEXT NOT NULL, name TEXT NOT NULL, code TEXT NOT NULL, sub_code TEXT, external_code TEXT, ean TEXT)",
		"CREATE TABLE " + builder.PriceVisibilityTable(gen) + " (context_index INTEGER NOT NULL, product_id INTEGER NOT NULL, price NUMERIC NOT NULL, price_vat NUMERIC NOT NULL, price_before NUMERIC, price_vat_before NUMERIC, price_list_id INTEGER NOT NULL, hidden BOOLEAN NOT NULL, hidden_in_menu BOOLEAN NOT NULL, priority INTEGER NOT NULL, unavailable BOOLEAN NOT NULL, recommended BOOLEAN NOT NULL, PRIMARY KEY (context_index, product_id))",
		"CREATE TABLE " + builder.CategoryTable(gen) + " (category_id INTEGER NOT NULL, product_id INTEGER NOT NULL, PRIMARY KEY (category_id, product_id))",
		"CREATE TABLE " + builder.ContextTable(gen) + " (context_index INTEGER PRIMARY KEY, context_key TEXT NOT NULL UNIQUE)",
	}
	for _, stmt := range ddl {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("ddl: %v", err)
		}
	}

	if err := conn.Table(builder.ContextTable(gen)).
		Create(map[string]any{"context_index": 1, "context_key": "1-1"}).Error; err != nil {
		t.Fatalf("seed context: %v", err)
	}
	for _, row := range rows {
		product := map[string]any{
			"product_id":          row.productID,
			"is_sold":             row.isSold,
			"attribute_value_ids": row.attributeValueIDs,
			"name":                "product",
			"code":                "code",
		}
		if row.producerID != nil {
			product["producer_id"] = *row.producerID
		}
		if err := conn.Table(builder.ProductTable(gen)).Create(product).Error; err != nil {
			t.Fatalf("seed product: %v", err)
		}
		pv := map[string]any{
			"context_index":  1,
			"product_id":     row.productID,
			"price":          row.price,
			"price_vat":      row.priceVat,
			"price_list_id":  1,
			"hidden":         row.hidden,
			"hidden_in_menu": false,
			"priority":       0,
			"unavailable":    false,
			"recommended":    false,
		}
		if err := conn.Table(builder.PriceVisibilityTable(gen)).Create(pv).Error; err != nil {
			t.Fatalf("seed price row: %v", err)
		}
	}

	if err := store.Promote(ctx, gen); err != nil {
		t.Fatalf("promote: %v", err)
	}

	registry := NewRegistry()
	registry.AddAllowedFilterColumn("code")
	registry.AddAllowedOrderColumn("name")
	registry.AddAllowedDynamicFilterColumn("attributes")
	registry.AddFilterDynamicExpression("attributes", AttributeRule{})
	registry.AddAllowedDynamicFilterColumn("price")
	registry.AddFilterDynamicExpression("price", PriceRangeRule{})
	registry.AddAllowedDynamicFilterColumn("producer")
	registry.AddFilterDynamicExpression("producer", MembershipRule{Field: func(r Row) *int64 { return r.ProducerID }})

	engine, err := New(Params{DB: conn, Logger: logg, Generations: store, Registry: registry})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine, registry, conn
}

func dec(t *testing.T, value string) *decimal.Decimal {
	t.Helper()
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", value, err)
	}
	return &parsed
}

func TestQueryRequiresReadyGeneration(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.Generation{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	store, err := generation.NewStore(conn, logg, 0)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.EnsureSlots(context.Background()); err != nil {
		t.Fatalf("ensure slots: %v", err)
	}
	engine, err := New(Params{DB: conn, Logger: logg, Generations: store, Registry: NewRegistry()})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	_, err = engine.Query(context.Background(), "1-1", nil, Sort{})
	if !pkgerrors.Is(err, pkgerrors.CodeCacheUnavailable) {
		t.Fatalf("expected cache unavailable, got %v", err)
	}
}

func TestQueryUnknownContextReturnsEmptyResult(t *testing.T) {
	engine, _, _ := newTestEngine(t, []seededRow{
		{productID: 1, price: "100", priceVat: "121"},
	})

	result, err := engine.Query(context.Background(), "9-9", nil, Sort{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if result.Total != 0 || len(result.ProductIDs) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestQueryRejectsUnregisteredFilter(t *testing.T) {
	engine, _, _ := newTestEngine(t, []seededRow{
		{productID: 1, price: "100", priceVat: "121"},
	})

	_, err := engine.Query(context.Background(), "1-1", []Filter{{Column: "nope", Value: 1}}, Sort{})
	if !pkgerrors.Is(err, pkgerrors.CodeInvalidFilter) {
		t.Fatalf("expected invalid filter, got %v", err)
	}
}

func TestQueryExcludesHiddenRows(t *testing.T) {
	engine, _, _ := newTestEngine(t, []seededRow{
		{productID: 1, price: "100", priceVat: "121"},
		{productID: 2, price: "50", priceVat: "60.50", hidden: true},
	})

	result, err := engine.Query(context.Background(), "1-1", nil, Sort{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if result.Total != 1 || result.ProductIDs[0] != 1 {
		t.Fatalf("expected only product 1, got %+v", result.ProductIDs)
	}
}

func TestAttributeFilterAndMode(t *testing.T) {
	engine, _, _ := newTestEngine(t, []seededRow{
		{productID: 1, attributeValueIDs: "|1|2|3|", price: "100", priceVat: "121"},
		{productID: 2, attributeValueIDs: "|1|3|", price: "100", priceVat: "121"},
	})

	filters := []Filter{{
		Column: "attributes",
		Value: []AttributeFilter{
			{AttributeID: 10, Mode: enums.AttributeModeAnd, ValueIDs: []int64{1, 2}},
		},
	}}
	result, err := engine.Query(context.Background(), "1-1", filters, Sort{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if result.Total != 1 || result.ProductIDs[0] != 1 {
		t.Fatalf("expected only product 1, got %+v", result.ProductIDs)
	}
}

func TestAttributeFilterOrMode(t *testing.T) {
	engine, _, _ := newTestEngine(t, []seededRow{
		{productID: 1, attributeValueIDs: "|1|", price: "100", priceVat: "121"},
		{productID: 2, attributeValueIDs: "|2|", price: "100", priceVat: "121"},
		{productID: 3, attributeValueIDs: "|9|", price: "100", priceVat: "121"},
	})

	filters := []Filter{{
		Column: "attributes",
		Value: []AttributeFilter{
			{AttributeID: 10, Mode: enums.AttributeModeOr, ValueIDs: []int64{1, 2}},
		},
	}}
	result, err := engine.Query(context.Background(), "1-1", filters, Sort{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if result.Total != 2 {
		t.Fatalf("expected two matches, got %+v", result.ProductIDs)
	}
}

func TestFacetCountsUseRemoveOneSemantics(t *testing.T) {
	engine, _, _ := newTestEngine(t, []seededRow{
		{productID: 1, producerID: id(7), price: "100", priceVat: "121"},
		{productID: 2, producerID: id(7), price: "300", priceVat: "363"},
		{productID: 3, producerID: id(8), price: "100", priceVat: "121"},
	})

	filters := []Filter{
		{Column: "producer", Value: []int64{7}},
		{Column: "price", Value: PriceRange{Max: dec(t, "200")}},
	}
	result, err := engine.Query(context.Background(), "1-1", filters, Sort{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if result.Total != 1 || result.ProductIDs[0] != 1 {
		t.Fatalf("expected only product 1, got %+v", result.ProductIDs)
	}

	// Clearing the producer filter leaves products 1 and 3 under the
	// price cap; clearing the price filter leaves producer-7 products
	// 1 and 2.
	if got := result.FacetCounts["producer"]; got != 2 {
		t.Fatalf("producer facet: expected 2, got %d", got)
	}
	if got := result.FacetCounts["price"]; got != 2 {
		t.Fatalf("price facet: expected 2, got %d", got)
	}
}

func TestFacetCountMatchesRequery(t *testing.T) {
	rows := []seededRow{
		{productID: 1, producerID: id(7), price: "100", priceVat: "121"},
		{productID: 2, producerID: id(7), price: "300", priceVat: "363"},
		{productID: 3, producerID: id(8), price: "100", priceVat: "121"},
		{productID: 4, producerID: id(8), price: "400", priceVat: "484"},
	}
	engine, _, _ := newTestEngine(t, rows)

	filters := []Filter{
		{Column: "producer", Value: []int64{7}},
		{Column: "price", Value: PriceRange{Max: dec(t, "200")}},
	}
	withBoth, err := engine.Query(context.Background(), "1-1", filters, Sort{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	withoutProducer, err := engine.Query(context.Background(), "1-1", filters[1:], Sort{})
	if err != nil {
		t.Fatalf("requery: %v", err)
	}
	if uint64(withoutProducer.Total) != withBoth.FacetCounts["producer"] {
		t.Fatalf("facet count %d does not match requery total %d",
			withBoth.FacetCounts["producer"], withoutProducer.Total)
	}
}

func TestPriceBoundsIgnorePriceRangeFilter(t *testing.T) {
	engine, _, _ := newTestEngine(t, []seededRow{
		{productID: 1, producerID: id(7), price: "100", priceVat: "121"},
		{productID: 2, producerID: id(7), price: "300", priceVat: "363"},
		{productID: 3, producerID: id(8), price: "900", priceVat: "1089"},
	})

	filters := []Filter{
		{Column: "producer", Value: []int64{7}},
		{Column: "price", Value: PriceRange{Max: dec(t, "200")}},
	}
	result, err := engine.Query(context.Background(), "1-1", filters, Sort{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if result.PriceBounds == nil {
		t.Fatal("expected price bounds")
	}
	if !result.PriceBounds.PriceMin.Equal(decimal.NewFromInt(100)) ||
		!result.PriceBounds.PriceMax.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected bounds over producer-7 rows, got %+v", result.PriceBounds)
	}
}

func TestQueryPushdownFilterAndCustomExpression(t *testing.T) {
	engine, registry, conn := newTestEngine(t, []seededRow{
		{productID: 1, price: "100", priceVat: "121"},
		{productID: 2, price: "100", priceVat: "121"},
	})

	gen, err := engine.generations.Ready(context.Background())
	if err != nil {
		t.Fatalf("ready: %v", err)
	}
	if err := conn.Table(builder.CategoryTable(gen)).
		Create(map[string]any{"category_id": 5, "product_id": 2}).Error; err != nil {
		t.Fatalf("seed category: %v", err)
	}
	registry.AddFilterExpression("category", func(db *gorm.DB, gen int, value any) *gorm.DB {
		return db.Where(
			"m.product_id IN (SELECT product_id FROM "+builder.CategoryTable(gen)+" WHERE category_id = ?)",
			value,
		)
	})

	result, err := engine.Query(context.Background(), "1-1",
		[]Filter{{Column: "category", Value: 5}}, Sort{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if result.Total != 1 || result.ProductIDs[0] != 2 {
		t.Fatalf("expected only product 2, got %+v", result.ProductIDs)
	}
}

func TestQuerySortDirection(t *testing.T) {
	engine, _, _ := newTestEngine(t, []seededRow{
		{productID: 1, price: "100", priceVat: "121"},
		{productID: 2, price: "100", priceVat: "121"},
	})

	result, err := engine.Query(context.Background(), "1-1", nil,
		Sort{Column: "name", Direction: enums.SortDesc})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(result.ProductIDs) != 2 {
		t.Fatalf("expected two rows, got %+v", result.ProductIDs)
	}

	_, err = engine.Query(context.Background(), "1-1", nil, Sort{Column: "nope"})
	if !pkgerrors.Is(err, pkgerrors.CodeInvalidFilter) {
		t.Fatalf("expected invalid filter for unknown sort key, got %v", err)
	}
}

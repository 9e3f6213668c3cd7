package cache

import (
	"github.com/veloxcart/catalog-cache/internal/builder"
	"github.com/veloxcart/catalog-cache/internal/query"
	"github.com/veloxcart/catalog-cache/pkg/enums"
	"gorm.io/gorm"
)

// registerDefaults installs the filter, sort, and dynamic-rule
// capabilities every deployment gets. Applications register additional
// ones through Service.Registry before serving queries.
func registerDefaults(registry *query.Registry) {
	for _, column := range []string{"code", "sub_code", "external_code", "ean"} {
		registry.AddAllowedFilterColumn(column)
	}

	// Ancestor expansion makes a single equality sufficient for any
	// category depth.
	registry.AddFilterExpression("category", func(db *gorm.DB, gen int, value any) *gorm.DB {
		return db.Where(
			"m.product_id IN (SELECT product_id FROM "+builder.CategoryTable(gen)+" WHERE category_id = ?)",
			value,
		)
	})

	// Slaves of a master product, e.g. accessories and variants.
	registry.AddFilterExpression("related_to", func(db *gorm.DB, gen int, value any) *gorm.DB {
		return db.Where(
			"m.product_id IN (SELECT slave_id FROM "+builder.RelationsTable(gen)+" WHERE master_id = ? AND hidden = ?)",
			value, false,
		)
	})

	for _, column := range []string{"name", "code", "product_id"} {
		registry.AddAllowedOrderColumn(column)
	}
	registry.AddOrderExpression("price", func(db *gorm.DB, gen int, direction enums.SortDirection) *gorm.DB {
		return db.Order("pv.price " + direction.SQL())
	})
	registry.AddOrderExpression("priority", func(db *gorm.DB, gen int, direction enums.SortDirection) *gorm.DB {
		return db.Order("pv.priority " + direction.SQL())
	})

	dynamic := map[string]query.DynamicRule{
		"attributes":       query.AttributeRule{},
		"price":            query.PriceRangeRule{},
		"price_vat":        query.PriceRangeRule{VAT: true},
		"producer":         query.MembershipRule{Field: func(r query.Row) *int64 { return r.ProducerID }},
		"display_amount":   query.MembershipRule{Field: func(r query.Row) *int64 { return r.DisplayAmountID }},
		"display_delivery": query.MembershipRule{Field: func(r query.Row) *int64 { return r.DisplayDeliveryID }},
		"is_sold":          query.SoldRule{},
	}
	for column, rule := range dynamic {
		registry.AddAllowedDynamicFilterColumn(column)
		registry.AddFilterDynamicExpression(column, rule)
	}
}

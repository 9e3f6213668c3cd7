package builder

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"gorm.io/gorm"
)

// Table name stems for the per-generation cache tables. The generation
// id is appended as a suffix, e.g. catalog_products_g1.
const (
	productTableStem         = "catalog_products"
	categoryTableStem        = "catalog_category_products"
	priceVisibilityTableStem = "catalog_price_visibility"
	relationsTableStem       = "catalog_product_relations"
	contextTableStem         = "catalog_contexts"
)

// ProductTable returns the main product table name for a generation.
func ProductTable(gen int) string { return tableName(productTableStem, gen) }

// CategoryTable returns the ancestor-expanded membership table name.
func CategoryTable(gen int) string { return tableName(categoryTableStem, gen) }

// PriceVisibilityTable returns the price/visibility table name.
func PriceVisibilityTable(gen int) string { return tableName(priceVisibilityTableStem, gen) }

// RelationsTable returns the relations table name.
func RelationsTable(gen int) string { return tableName(relationsTableStem, gen) }

// ContextTable returns the context key to index mapping table name.
func ContextTable(gen int) string { return tableName(contextTableStem, gen) }

func tableName(stem string, gen int) string {
	return fmt.Sprintf("%s_g%d", stem, gen)
}

// PrimaryCategoryColumn derives the denormalized primary-category
// column name for a category type code.
func PrimaryCategoryColumn(typeCode string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(typeCode) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return "primary_category_" + b.String()
}

// productColumns returns the ordered column list of the main product
// table, finishing with one primary-category column per category type.
func productColumns(categoryTypeCodes []string) []string {
	cols := []string{
		"product_id",
		"producer_id",
		"display_amount_id",
		"is_sold",
		"display_delivery_id",
		"attribute_value_ids",
		"name",
		"code",
		"sub_code",
		"external_code",
		"ean",
	}
	for _, code := range categoryTypeCodes {
		cols = append(cols, PrimaryCategoryColumn(code))
	}
	return cols
}

var categoryColumns = []string{"category_id", "product_id"}

var priceVisibilityColumns = []string{
	"context_index",
	"product_id",
	"price",
	"price_vat",
	"price_before",
	"price_vat_before",
	"price_list_id",
	"hidden",
	"hidden_in_menu",
	"priority",
	"unavailable",
	"recommended",
}

var relationsColumns = []string{
	"master_id",
	"slave_id",
	"relation_type_id",
	"priority",
	"amount",
	"hidden",
	"systemic",
	"discount_pct",
	"master_pct",
}

var contextColumns = []string{"context_index", "context_key"}

// dropTables removes every cache table of the generation, including
// strays left behind by failed partial builds.
func dropTables(ctx context.Context, db *gorm.DB, gen int) error {
	tables := []string{
		RelationsTable(gen),
		PriceVisibilityTable(gen),
		CategoryTable(gen),
		ContextTable(gen),
		ProductTable(gen),
	}
	for _, table := range tables {
		if err := db.WithContext(ctx).Exec("DROP TABLE IF EXISTS " + table).Error; err != nil {
			return fmt.Errorf("dropping %s: %w", table, err)
		}
	}
	return nil
}

// truncateTables clears the generation's tables in place for diff
// builds, respecting FK ordering.
func truncateTables(ctx context.Context, db *gorm.DB, gen int) error {
	tables := []string{
		RelationsTable(gen),
		PriceVisibilityTable(gen),
		CategoryTable(gen),
		ContextTable(gen),
		ProductTable(gen),
	}
	for _, table := range tables {
		if err := db.WithContext(ctx).Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return nil
}

func tablesExist(ctx context.Context, db *gorm.DB, gen int) bool {
	migrator := db.WithContext(ctx).Migrator()
	for _, table := range []string{
		ProductTable(gen),
		CategoryTable(gen),
		PriceVisibilityTable(gen),
		RelationsTable(gen),
		ContextTable(gen),
	} {
		if !migrator.HasTable(table) {
			return false
		}
	}
	return true
}

// createTables issues the DDL for a generation. Type names stay inside
// the portable subset shared by postgres and sqlite.
func createTables(ctx context.Context, db *gorm.DB, gen int, categoryTypeCodes []string) error {
	products := ProductTable(gen)

	var primaryCols strings.Builder
	for _, code := range categoryTypeCodes {
		primaryCols.WriteString(fmt.Sprintf(",\n\t%s BIGINT", PrimaryCategoryColumn(code)))
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE %s (
	product_id BIGINT PRIMARY KEY,
	producer_id BIGINT,
	display_amount_id BIGINT,
	is_sold BOOLEAN NOT NULL DEFAULT FALSE,
	display_delivery_id BIGINT,
	attribute_value_ids TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL,
	code TEXT NOT NULL,
	sub_code TEXT,
	external_code TEXT,
	ean TEXT%s
)`, products, primaryCols.String()),
		fmt.Sprintf(`CREATE TABLE %s (
	category_id BIGINT NOT NULL,
	product_id BIGINT NOT NULL,
	PRIMARY KEY (category_id, product_id),
	FOREIGN KEY (product_id) REFERENCES %s (product_id) ON DELETE CASCADE
)`, CategoryTable(gen), products),
		fmt.Sprintf(`CREATE TABLE %s (
	context_index INTEGER NOT NULL,
	product_id BIGINT NOT NULL,
	price NUMERIC(12,2) NOT NULL,
	price_vat NUMERIC(12,2) NOT NULL,
	price_before NUMERIC(12,2),
	price_vat_before NUMERIC(12,2),
	price_list_id BIGINT NOT NULL,
	hidden BOOLEAN NOT NULL DEFAULT FALSE,
	hidden_in_menu BOOLEAN NOT NULL DEFAULT FALSE,
	priority INTEGER NOT NULL DEFAULT 0,
	unavailable BOOLEAN NOT NULL DEFAULT FALSE,
	recommended BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (context_index, product_id),
	FOREIGN KEY (product_id) REFERENCES %s (product_id) ON DELETE CASCADE
)`, PriceVisibilityTable(gen), products),
		fmt.Sprintf(`CREATE TABLE %s (
	master_id BIGINT NOT NULL,
	slave_id BIGINT NOT NULL,
	relation_type_id BIGINT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 0,
	amount INTEGER NOT NULL DEFAULT 1,
	hidden BOOLEAN NOT NULL DEFAULT FALSE,
	systemic BOOLEAN NOT NULL DEFAULT FALSE,
	discount_pct NUMERIC(5,2),
	master_pct NUMERIC(5,2),
	FOREIGN KEY (master_id) REFERENCES %s (product_id) ON DELETE CASCADE,
	FOREIGN KEY (slave_id) REFERENCES %s (product_id) ON DELETE CASCADE
)`, RelationsTable(gen), products, products),
		fmt.Sprintf(`CREATE TABLE %s (
	context_index INTEGER PRIMARY KEY,
	context_key TEXT NOT NULL UNIQUE
)`, ContextTable(gen)),
	}

	for _, statement := range statements {
		if err := db.WithContext(ctx).Exec(statement).Error; err != nil {
			return fmt.Errorf("creating cache table: %w", err)
		}
	}
	return nil
}

// createIndexes builds the read-side indexes after the bulk load, so
// loading never pays index maintenance. Errors are aggregated; a build
// with any failed index is a failed build.
func createIndexes(ctx context.Context, db *gorm.DB, gen int, categoryTypeCodes []string) error {
	products := ProductTable(gen)
	conn := db.WithContext(ctx)

	statements := []string{
		fmt.Sprintf("CREATE INDEX idx_%s_producer ON %s (producer_id)", products, products),
		fmt.Sprintf("CREATE INDEX idx_%s_display_amount ON %s (display_amount_id)", products, products),
		fmt.Sprintf("CREATE INDEX idx_%s_display_delivery ON %s (display_delivery_id)", products, products),
		fmt.Sprintf("CREATE INDEX idx_%s_is_sold ON %s (is_sold)", products, products),
		fmt.Sprintf("CREATE INDEX idx_%s_sub_code ON %s (sub_code)", products, products),
		fmt.Sprintf("CREATE INDEX idx_%s_external_code ON %s (external_code)", products, products),
		fmt.Sprintf("CREATE UNIQUE INDEX idx_%s_code ON %s (code)", products, products),
		fmt.Sprintf("CREATE UNIQUE INDEX idx_%s_ean ON %s (ean)", products, products),
		fmt.Sprintf("CREATE INDEX idx_%s_product ON %s (product_id)",
			CategoryTable(gen), CategoryTable(gen)),
		fmt.Sprintf("CREATE INDEX idx_%s_flags ON %s (context_index, hidden, unavailable)",
			PriceVisibilityTable(gen), PriceVisibilityTable(gen)),
		fmt.Sprintf("CREATE INDEX idx_%s_price ON %s (context_index, price)",
			PriceVisibilityTable(gen), PriceVisibilityTable(gen)),
		fmt.Sprintf("CREATE UNIQUE INDEX idx_%s_identity ON %s (master_id, slave_id, amount, discount_pct, master_pct)",
			RelationsTable(gen), RelationsTable(gen)),
		fmt.Sprintf("CREATE INDEX idx_%s_master ON %s (master_id, relation_type_id)",
			RelationsTable(gen), RelationsTable(gen)),
	}
	for _, code := range categoryTypeCodes {
		col := PrimaryCategoryColumn(code)
		statements = append(statements,
			fmt.Sprintf("CREATE INDEX idx_%s_%s ON %s (%s)", products, col, products, col))
	}

	var errs error
	for _, statement := range statements {
		if err := conn.Exec(statement).Error; err != nil {
			errs = multierr.Append(errs, fmt.Errorf("creating index: %w", err))
		}
	}

	if conn.Dialector.Name() == "postgres" {
		fulltext := fmt.Sprintf(
			"CREATE INDEX idx_%s_name_fts ON %s USING gin (to_tsvector('simple', name))",
			products, products)
		if err := conn.Exec(fulltext).Error; err != nil {
			errs = multierr.Append(errs, fmt.Errorf("creating fulltext index: %w", err))
		}
	}

	return errs
}

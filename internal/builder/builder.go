package builder

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/veloxcart/catalog-cache/internal/builder/bulkload"
	"github.com/veloxcart/catalog-cache/internal/generation"
	"github.com/veloxcart/catalog-cache/internal/pricingctx"
	"github.com/veloxcart/catalog-cache/pkg/config"
	"github.com/veloxcart/catalog-cache/pkg/db/models"
	pkgerrors "github.com/veloxcart/catalog-cache/pkg/errors"
	"github.com/veloxcart/catalog-cache/pkg/logger"
	"github.com/veloxcart/catalog-cache/pkg/metrics"
	"gorm.io/gorm"
)

// Params configures the bulk table builder.
type Params struct {
	DB          *gorm.DB
	Logger      *logger.Logger
	Generations *generation.Store
	Resolver    *pricingctx.Resolver
	Metrics     *metrics.CacheMetrics
	Config      config.BuilderConfig
}

// Builder rebuilds one cache generation end to end: DDL, reference
// data, layered price/visibility resolution, denormalized product rows
// with ancestor-expanded category membership, relations, indexes, and
// the final promotion.
type Builder struct {
	db          *gorm.DB
	logg        *logger.Logger
	generations *generation.Store
	resolver    *pricingctx.Resolver
	metrics     *metrics.CacheMetrics
	cfg         config.BuilderConfig
}

// New builds a Builder.
func New(params Params) (*Builder, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Generations == nil {
		return nil, fmt.Errorf("generation store required")
	}
	if params.Resolver == nil {
		return nil, fmt.Errorf("pricing context resolver required")
	}
	if params.Config.ChunkSize <= 0 {
		params.Config.ChunkSize = bulkload.DefaultChunkSize
	}
	return &Builder{
		db:          params.DB,
		logg:        params.Logger,
		generations: params.Generations,
		resolver:    params.Resolver,
		metrics:     params.Metrics,
		cfg:         params.Config,
	}, nil
}

// BuildFull rebuilds the next warmable generation from scratch.
// Safe to invoke repeatedly; a no-op when no generation needs warming.
func (b *Builder) BuildFull(ctx context.Context) error {
	return b.build(ctx, false)
}

// BuildDiff is the lighter-footprint variant: it clears and repopulates
// the target generation's existing tables instead of dropping them.
func (b *Builder) BuildDiff(ctx context.Context) error {
	return b.build(ctx, true)
}

func (b *Builder) build(ctx context.Context, diff bool) error {
	kind := "full"
	if diff {
		kind = "diff"
	}

	gen, err := b.generations.Acquire(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeBuildFailed, err, "acquiring generation")
	}
	if gen == 0 {
		b.logg.Info(ctx, "no generation needs warming")
		return nil
	}

	ctx = b.logg.WithBuildID(ctx, uuid.NewString())
	ctx = b.logg.WithGeneration(ctx, gen)
	b.logg.Info(ctx, "cache build started")

	start := time.Now()
	if err := b.buildGeneration(ctx, gen, diff); err != nil {
		return b.fail(ctx, gen, kind, err)
	}
	if err := b.generations.Promote(ctx, gen); err != nil {
		return b.fail(ctx, gen, kind, fmt.Errorf("promoting: %w", err))
	}

	b.metrics.ObserveBuildPhase("total", time.Since(start))
	b.metrics.IncBuildSuccess(kind)
	b.logg.Info(ctx, "cache build promoted")
	return nil
}

// fail resets the target generation so it is never left warming or
// partially ready; the serving generation keeps serving throughout.
func (b *Builder) fail(ctx context.Context, gen int, kind string, err error) error {
	b.metrics.IncBuildFailure(kind)
	ctx = b.logg.WithField(ctx, "error_chain", pkgerrors.Dump(err))
	b.logg.Error(ctx, "cache build failed, resetting generation", err)
	if resetErr := b.generations.Reset(ctx, gen); resetErr != nil {
		b.logg.Error(ctx, "failed to reset generation after build failure", resetErr)
	}
	return pkgerrors.Wrap(pkgerrors.CodeBuildFailed, err, "building cache generation")
}

func (b *Builder) buildGeneration(ctx context.Context, gen int, diff bool) error {
	set, err := b.resolver.ResolveAll(ctx)
	if err != nil {
		return err
	}

	var categoryTypes []models.CategoryType
	if err := b.db.WithContext(ctx).Order("id").Find(&categoryTypes).Error; err != nil {
		return fmt.Errorf("loading category types: %w", err)
	}
	typeCodes := make([]string, len(categoryTypes))
	for i, categoryType := range categoryTypes {
		typeCodes[i] = categoryType.Code
	}

	reusedTables := diff && tablesExist(ctx, b.db, gen)
	phase := time.Now()
	if reusedTables {
		if err := truncateTables(ctx, b.db, gen); err != nil {
			return err
		}
	} else {
		if err := dropTables(ctx, b.db, gen); err != nil {
			return err
		}
		if err := createTables(ctx, b.db, gen, typeCodes); err != nil {
			return err
		}
	}
	b.metrics.ObserveBuildPhase("schema", time.Since(phase))

	phase = time.Now()
	ref, err := LoadRefData(ctx, b.db, set)
	if err != nil {
		return err
	}
	b.metrics.ObserveBuildPhase("refdata", time.Since(phase))

	phase = time.Now()
	eligible, err := b.buildMainAndCategories(ctx, gen, categoryTypes)
	if err != nil {
		return err
	}
	b.metrics.ObserveBuildPhase("main", time.Since(phase))

	phase = time.Now()
	if err := b.buildPriceVisibility(ctx, gen, set, ref, eligible); err != nil {
		return err
	}
	b.metrics.ObserveBuildPhase("price_visibility", time.Since(phase))

	phase = time.Now()
	if err := b.buildRelations(ctx, gen, eligible); err != nil {
		return err
	}
	b.metrics.ObserveBuildPhase("relations", time.Since(phase))

	if !reusedTables {
		phase = time.Now()
		if err := createIndexes(ctx, b.db, gen, typeCodes); err != nil {
			return err
		}
		b.metrics.ObserveBuildPhase("indexes", time.Since(phase))
	}

	return nil
}

// buildMainAndCategories streams eligible products into the main table
// and expands their category memberships to every ancestor in the same
// pass. It returns the set of materialized product ids.
func (b *Builder) buildMainAndCategories(ctx context.Context, gen int, categoryTypes []models.CategoryType) (map[int64]struct{}, error) {
	var categories []models.Category
	if err := b.db.WithContext(ctx).Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("loading categories: %w", err)
	}
	lineage := newAncestry(categories)
	typeByCategory := make(map[int64]int64, len(categories))
	for _, category := range categories {
		typeByCategory[category.ID] = category.CategoryTypeID
	}

	var productCategories []models.ProductCategory
	if err := b.db.WithContext(ctx).Find(&productCategories).Error; err != nil {
		return nil, fmt.Errorf("loading product categories: %w", err)
	}
	categoriesByProduct := map[int64][]models.ProductCategory{}
	for _, pc := range productCategories {
		categoriesByProduct[pc.ProductID] = append(categoriesByProduct[pc.ProductID], pc)
	}

	var attributeRows []models.ProductAttributeValue
	if err := b.db.WithContext(ctx).Order("attribute_value_id").Find(&attributeRows).Error; err != nil {
		return nil, fmt.Errorf("loading product attribute values: %w", err)
	}
	attributesByProduct := map[int64][]int64{}
	for _, row := range attributeRows {
		attributesByProduct[row.ProductID] = append(attributesByProduct[row.ProductID], row.AttributeValueID)
	}

	var soldAmounts []models.DisplayAmount
	if err := b.db.WithContext(ctx).Where("sold = ?", true).Find(&soldAmounts).Error; err != nil {
		return nil, fmt.Errorf("loading display amounts: %w", err)
	}
	soldByAmount := make(map[int64]struct{}, len(soldAmounts))
	for _, amount := range soldAmounts {
		soldByAmount[amount.ID] = struct{}{}
	}

	productLoader, err := bulkload.New(b.db, ProductTable(gen), productColumns(typeCodesOf(categoryTypes)), b.cfg.ChunkSize, b.metrics)
	if err != nil {
		return nil, err
	}
	categoryLoader, err := bulkload.New(b.db, CategoryTable(gen), categoryColumns, b.cfg.ChunkSize, b.metrics)
	if err != nil {
		return nil, err
	}

	eligible := map[int64]struct{}{}
	now := time.Now().UTC()

	var batch []models.Product
	result := b.db.WithContext(ctx).Model(&models.Product{}).
		Distinct("products.*").
		Joins("JOIN prices ON prices.product_id = products.id").
		Joins("JOIN price_lists ON price_lists.id = prices.price_list_id").
		Where("price_lists.active = ?", true).
		Where("price_lists.valid_from IS NULL OR price_lists.valid_from <= ?", now).
		Where("price_lists.valid_to IS NULL OR price_lists.valid_to >= ?", now).
		FindInBatches(&batch, b.cfg.ChunkSize, func(_ *gorm.DB, _ int) error {
			for _, product := range batch {
				if _, seen := eligible[product.ID]; seen {
					continue
				}
				eligible[product.ID] = struct{}{}

				direct := categoriesByProduct[product.ID]
				row := b.mainRow(product, direct, categoryTypes, typeByCategory, attributesByProduct[product.ID], soldByAmount)
				if err := productLoader.Append(ctx, row...); err != nil {
					return err
				}

				memberships := map[int64]struct{}{}
				for _, pc := range direct {
					for _, categoryID := range lineage.chain(pc.CategoryID) {
						memberships[categoryID] = struct{}{}
					}
				}
				for categoryID := range memberships {
					if err := categoryLoader.Append(ctx, categoryID, product.ID); err != nil {
						return err
					}
				}
			}
			return nil
		})
	if result.Error != nil {
		return nil, fmt.Errorf("streaming eligible products: %w", result.Error)
	}

	if err := productLoader.Flush(ctx); err != nil {
		return nil, err
	}
	if err := categoryLoader.Flush(ctx); err != nil {
		return nil, err
	}

	return eligible, nil
}

func typeCodesOf(categoryTypes []models.CategoryType) []string {
	codes := make([]string, len(categoryTypes))
	for i, categoryType := range categoryTypes {
		codes[i] = categoryType.Code
	}
	return codes
}

// mainRow denormalizes one product into the main table column order.
func (b *Builder) mainRow(
	product models.Product,
	direct []models.ProductCategory,
	categoryTypes []models.CategoryType,
	typeByCategory map[int64]int64,
	attributeValueIDs []int64,
	soldByAmount map[int64]struct{},
) []any {
	isSold := false
	if product.DisplayAmountID != nil {
		_, isSold = soldByAmount[*product.DisplayAmountID]
	}

	row := []any{
		product.ID,
		nullableID(product.ProducerID),
		nullableID(product.DisplayAmountID),
		isSold,
		nullableID(product.DisplayDeliveryID),
		concatAttributeValues(attributeValueIDs),
		product.Name,
		product.Code,
		nullableString(product.SubCode),
		nullableString(product.ExternalCode),
		nullableString(product.EAN),
	}

	primaryByType := map[int64]int64{}
	for _, pc := range direct {
		if !pc.Primary {
			continue
		}
		typeID, ok := typeByCategory[pc.CategoryID]
		if !ok {
			continue
		}
		if _, taken := primaryByType[typeID]; !taken {
			primaryByType[typeID] = pc.CategoryID
		}
	}
	for _, categoryType := range categoryTypes {
		if categoryID, ok := primaryByType[categoryType.ID]; ok {
			row = append(row, categoryID)
		} else {
			row = append(row, nil)
		}
	}
	return row
}

// concatAttributeValues flattens attribute value ids into the
// pipe-delimited membership string stored on the cached product row,
// e.g. "|3|17|42|".
func concatAttributeValues(ids []int64) string {
	if len(ids) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteByte('|')
	for _, id := range ids {
		sb.WriteString(strconv.FormatInt(id, 10))
		sb.WriteByte('|')
	}
	return sb.String()
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func nullableString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func (b *Builder) buildPriceVisibility(ctx context.Context, gen int, set *pricingctx.Set, ref *RefData, eligible map[int64]struct{}) error {
	contextLoader, err := bulkload.New(b.db, ContextTable(gen), contextColumns, b.cfg.ChunkSize, b.metrics)
	if err != nil {
		return err
	}
	rowLoader, err := bulkload.New(b.db, PriceVisibilityTable(gen), priceVisibilityColumns, b.cfg.ChunkSize, b.metrics)
	if err != nil {
		return err
	}

	indexes := set.Indexes()
	for _, key := range set.Keys() {
		pricingContext, _ := set.Get(key)
		index := indexes[key]
		if err := contextLoader.Append(ctx, index, key); err != nil {
			return err
		}

		rows := ResolveContextRows(pricingContext, ref, b.cfg.ShowZeroPrices, eligible)
		sort.Slice(rows, func(i, j int) bool { return rows[i].ProductID < rows[j].ProductID })
		for _, row := range rows {
			err := rowLoader.Append(ctx,
				index,
				row.ProductID,
				row.Price,
				row.PriceVat,
				nullableDecimal(row.PriceBefore),
				nullableDecimal(row.PriceVatBefore),
				row.PriceListID,
				row.Hidden,
				row.HiddenInMenu,
				row.Priority,
				row.Unavailable,
				row.Recommended,
			)
			if err != nil {
				return err
			}
		}
	}

	if err := contextLoader.Flush(ctx); err != nil {
		return err
	}
	return rowLoader.Flush(ctx)
}

func nullableDecimal(value *decimal.Decimal) any {
	if value == nil {
		return nil
	}
	return *value
}

func (b *Builder) buildRelations(ctx context.Context, gen int, eligible map[int64]struct{}) error {
	loader, err := bulkload.New(b.db, RelationsTable(gen), relationsColumns, b.cfg.ChunkSize, b.metrics)
	if err != nil {
		return err
	}

	seen := map[string]struct{}{}
	var batch []models.ProductRelation
	result := b.db.WithContext(ctx).Model(&models.ProductRelation{}).
		FindInBatches(&batch, b.cfg.ChunkSize, func(_ *gorm.DB, _ int) error {
			for _, relation := range batch {
				if _, ok := eligible[relation.MasterID]; !ok {
					continue
				}
				if _, ok := eligible[relation.SlaveID]; !ok {
					continue
				}
				identity := relationIdentity(relation)
				if _, dup := seen[identity]; dup {
					continue
				}
				seen[identity] = struct{}{}

				err := loader.Append(ctx,
					relation.MasterID,
					relation.SlaveID,
					relation.RelationTypeID,
					relation.Priority,
					relation.Amount,
					relation.Hidden,
					relation.Systemic,
					nullableDecimal(relation.DiscountPct),
					nullableDecimal(relation.MasterPct),
				)
				if err != nil {
					return err
				}
			}
			return nil
		})
	if result.Error != nil {
		return fmt.Errorf("streaming relations: %w", result.Error)
	}

	return loader.Flush(ctx)
}

// relationIdentity mirrors the table's uniqueness constraint.
func relationIdentity(relation models.ProductRelation) string {
	return fmt.Sprintf("%d|%d|%d|%s|%s",
		relation.MasterID,
		relation.SlaveID,
		relation.Amount,
		decimalKey(relation.DiscountPct),
		decimalKey(relation.MasterPct),
	)
}

func decimalKey(value *decimal.Decimal) string {
	if value == nil {
		return ""
	}
	return value.String()
}

package updater

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/veloxcart/catalog-cache/internal/builder"
	"github.com/veloxcart/catalog-cache/internal/generation"
	"github.com/veloxcart/catalog-cache/internal/pricingctx"
	"github.com/veloxcart/catalog-cache/pkg/db"
	pkgerrors "github.com/veloxcart/catalog-cache/pkg/errors"
	"github.com/veloxcart/catalog-cache/pkg/logger"
	"github.com/veloxcart/catalog-cache/pkg/metrics"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

// BuildLock reports whether a full rebuild currently holds the cache
// write path.
type BuildLock interface {
	Held(ctx context.Context) (bool, error)
}

// Params configures the incremental updater.
type Params struct {
	DB          *gorm.DB
	Logger      *logger.Logger
	Generations *generation.Store
	Resolver    *pricingctx.Resolver
	BuildLock   BuildLock
	Metrics     *metrics.CacheMetrics

	// ContentionBackoff is the single bounded wait before giving up on
	// a transactional pass.
	ContentionBackoff time.Duration
	ShowZeroPrices    bool
}

// Updater recomputes the price/visibility rows of one customer's
// pricing contexts inside the currently serving generation, without a
// full rebuild.
type Updater struct {
	db          *gorm.DB
	logg        *logger.Logger
	generations *generation.Store
	resolver    *pricingctx.Resolver
	buildLock   BuildLock
	metrics     *metrics.CacheMetrics
	backoff     time.Duration
	showZero    bool
}

// New builds an Updater.
func New(params Params) (*Updater, error) {
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
	if params.ContentionBackoff <= 0 {
		params.ContentionBackoff = 2 * time.Second
	}
	return &Updater{
		db:          params.DB,
		logg:        params.Logger,
		generations: params.Generations,
		resolver:    params.Resolver,
		buildLock:   params.BuildLock,
		metrics:     params.Metrics,
		backoff:     params.ContentionBackoff,
		showZero:    params.ShowZeroPrices,
	}, nil
}

// UpdateCustomer rewrites the price/visibility rows for every context
// the customer participates in. A no-op when no generation serves; the
// next full rebuild picks the change up anyway.
func (u *Updater) UpdateCustomer(ctx context.Context, customerID int64) error {
	gen, err := u.generations.Ready(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading serving generation")
	}
	if gen == 0 {
		u.logg.Info(ctx, "no ready generation, skipping incremental update")
		return nil
	}

	ctx = u.logg.WithCustomerID(ctx, customerID)
	ctx = u.logg.WithGeneration(ctx, gen)

	set, err := u.resolver.ResolveCustomer(ctx, customerID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeConfiguration, err, "resolving customer contexts")
	}
	if set.Len() == 0 {
		u.logg.Info(ctx, "customer resolves to no pricing context, nothing to update")
		return nil
	}

	ref, err := builder.LoadRefData(ctx, u.db, set)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading reference data")
	}

	eligible, err := u.eligibleProducts(ctx, gen)
	if err != nil {
		return err
	}

	apply := func(tx *gorm.DB) error {
		for _, key := range set.Keys() {
			pricingContext, _ := set.Get(key)
			if err := u.rewriteContext(ctx, tx, gen, key, pricingContext, ref, eligible); err != nil {
				return err
			}
		}
		return nil
	}

	if u.transactional(ctx) {
		if err := u.db.WithContext(ctx).Transaction(apply); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "applying incremental update")
		}
		return nil
	}

	// Write path is held by a full build and the bounded wait elapsed.
	// Proceeding without a transaction trades consistency for
	// availability: a concurrent reader may transiently miss rows of
	// the contexts being rewritten. Failed contexts don't stop the
	// remaining ones from being brought up to date.
	u.logg.Warn(ctx, "write path contended, applying incremental update non-transactionally")
	var errs error
	for _, key := range set.Keys() {
		pricingContext, _ := set.Get(key)
		if err := u.rewriteContext(ctx, u.db.WithContext(ctx), gen, key, pricingContext, ref, eligible); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("context %s: %w", key, err))
		}
	}
	if errs != nil {
		return pkgerrors.Wrap(pkgerrors.CodeContention, errs, "applying contended incremental update")
	}
	return nil
}

// transactional waits out the configured backoff exactly once when the
// build lock is held, then reports whether a transaction is safe.
func (u *Updater) transactional(ctx context.Context) bool {
	if u.buildLock == nil {
		return true
	}
	held, err := u.buildLock.Held(ctx)
	if err != nil {
		u.logg.Warn(ctx, "build lock check failed, assuming transactional path")
		return true
	}
	if !held {
		return true
	}

	select {
	case <-ctx.Done():
		return false
	case <-time.After(u.backoff):
	}

	held, err = u.buildLock.Held(ctx)
	if err != nil {
		return true
	}
	return !held
}

func (u *Updater) eligibleProducts(ctx context.Context, gen int) (map[int64]struct{}, error) {
	var ids []int64
	err := u.db.WithContext(ctx).
		Table(builder.ProductTable(gen)).
		Pluck("product_id", &ids).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading cached product ids")
	}
	eligible := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		eligible[id] = struct{}{}
	}
	return eligible, nil
}

// rewriteContext deletes and reinserts every row of one context.
func (u *Updater) rewriteContext(
	ctx context.Context,
	tx *gorm.DB,
	gen int,
	key string,
	pricingContext pricingctx.Context,
	ref *builder.RefData,
	eligible map[int64]struct{},
) error {
	index, err := u.ensureContextIndex(ctx, tx, gen, key)
	if err != nil {
		return err
	}

	table := builder.PriceVisibilityTable(gen)
	if err := tx.Exec("DELETE FROM "+table+" WHERE context_index = ?", index).Error; err != nil {
		return fmt.Errorf("clearing context %s: %w", key, err)
	}

	rows := builder.ResolveContextRows(pricingContext, ref, u.showZero, eligible)
	for _, row := range rows {
		record := map[string]any{
			"context_index":  index,
			"product_id":     row.ProductID,
			"price":          row.Price,
			"price_vat":      row.PriceVat,
			"price_list_id":  row.PriceListID,
			"hidden":         row.Hidden,
			"hidden_in_menu": row.HiddenInMenu,
			"priority":       row.Priority,
			"unavailable":    row.Unavailable,
			"recommended":    row.Recommended,
		}
		if row.PriceBefore != nil {
			record["price_before"] = *row.PriceBefore
		}
		if row.PriceVatBefore != nil {
			record["price_vat_before"] = *row.PriceVatBefore
		}
		if err := tx.Table(table).Create(record).Error; err != nil {
			return fmt.Errorf("reinserting context %s row for product %d: %w", key, row.ProductID, err)
		}
	}

	u.logg.Info(u.logg.WithField(ctx, "context_key", key), "context rewritten")
	return nil
}

// ensureContextIndex returns the context's index in the generation's
// mapping table, allocating the next free index for contexts that did
// not exist at build time.
func (u *Updater) ensureContextIndex(ctx context.Context, tx *gorm.DB, gen int, key string) (int, error) {
	table := builder.ContextTable(gen)

	var index int
	err := tx.Table(table).
		Select("context_index").
		Where("context_key = ?", key).
		Take(&index).Error
	if err == nil {
		return index, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("loading context index for %s: %w", key, err)
	}

	var maxIndex int
	if err := tx.Table(table).Select("COALESCE(MAX(context_index), 0)").Take(&maxIndex).Error; err != nil {
		return 0, fmt.Errorf("allocating context index for %s: %w", key, err)
	}
	index = maxIndex + 1
	record := map[string]any{"context_index": index, "context_key": key}
	if err := tx.Table(table).Create(record).Error; err != nil {
		// a concurrent updater may have registered the key first
		if db.IsUniqueViolation(err, "") {
			var existing int
			readErr := tx.Table(table).
				Select("context_index").
				Where("context_key = ?", key).
				Take(&existing).Error
			if readErr == nil {
				return existing, nil
			}
		}
		return 0, fmt.Errorf("registering context %s: %w", key, err)
	}
	return index, nil
}

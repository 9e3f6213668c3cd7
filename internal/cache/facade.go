package cache

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/veloxcart/catalog-cache/internal/builder"
	"github.com/veloxcart/catalog-cache/internal/pricingctx"
	"github.com/veloxcart/catalog-cache/internal/query"
	"github.com/veloxcart/catalog-cache/internal/updater"
	"github.com/veloxcart/catalog-cache/pkg/enums"
	pkgerrors "github.com/veloxcart/catalog-cache/pkg/errors"
	"github.com/veloxcart/catalog-cache/pkg/logger"
)

// QueryInput is the facade-level query request. The caller supplies the
// raw list ids it resolved for the customer; the facade canonicalizes
// them into a pricing context.
type QueryInput struct {
	Filters           []query.Filter
	SortColumn        string
	SortDirection     enums.SortDirection
	VisibilityListIDs []int64 `validate:"required,min=1,dive,gt=0"`
	PriceListIDs      []int64 `validate:"required,min=1,dive,gt=0"`
}

// Params wires the cache service.
type Params struct {
	Logger   *logger.Logger
	Builder  *builder.Builder
	Updater  *updater.Updater
	Engine   *query.Engine
	Resolver *pricingctx.Resolver
	Registry *query.Registry
}

// Service is the only entry point external collaborators use. It hides
// generation selection and context canonicalization behind four
// operations: full warm, diff warm, per-customer update, and query.
type Service struct {
	logg     *logger.Logger
	builder  *builder.Builder
	updater  *updater.Updater
	engine   *query.Engine
	resolver *pricingctx.Resolver
	registry *query.Registry
	validate *validator.Validate
}

// New builds the cache Service and installs the default filter, sort,
// and dynamic-rule registrations.
func New(params Params) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Builder == nil {
		return nil, fmt.Errorf("builder required")
	}
	if params.Updater == nil {
		return nil, fmt.Errorf("updater required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("query engine required")
	}
	if params.Resolver == nil {
		return nil, fmt.Errorf("pricing context resolver required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("registry required")
	}

	service := &Service{
		logg:     params.Logger,
		builder:  params.Builder,
		updater:  params.Updater,
		engine:   params.Engine,
		resolver: params.Resolver,
		registry: params.Registry,
		validate: validator.New(),
	}
	registerDefaults(params.Registry)
	return service, nil
}

// Registry exposes the registries so embedding applications can add
// their own filter and sort capabilities before serving queries.
func (s *Service) Registry() *query.Registry {
	return s.registry
}

// WarmUpCacheTable rebuilds the non-serving generation from scratch and
// promotes it.
func (s *Service) WarmUpCacheTable(ctx context.Context) error {
	return s.builder.BuildFull(ctx)
}

// WarmUpCacheTableDiff rebuilds like WarmUpCacheTable but reuses the
// target generation's tables when they already exist, skipping the
// drop/create and index steps.
func (s *Service) WarmUpCacheTableDiff(ctx context.Context) error {
	return s.builder.BuildDiff(ctx)
}

// UpdateCustomerVisibilitiesAndPrices patches the serving generation
// in place after one customer's list configuration changed.
func (s *Service) UpdateCustomerVisibilitiesAndPrices(ctx context.Context, customerID int64) error {
	return s.updater.UpdateCustomer(ctx, customerID)
}

// GetProductsFromCacheTable answers a catalog query scoped to the
// caller's pricing context. Callers should treat a CACHE_UNAVAILABLE
// error as "fall back to the live path".
func (s *Service) GetProductsFromCacheTable(ctx context.Context, input QueryInput) (*query.Result, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfiguration, err, "validating query input")
	}

	pricingContext, err := s.resolver.ContextFor(ctx, input.VisibilityListIDs, input.PriceListIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "canonicalizing pricing context")
	}
	if pricingContext.Empty() {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "supplied lists resolve to no pricing context")
	}

	return s.engine.Query(ctx, pricingContext.Key(), input.Filters, query.Sort{
		Column:    input.SortColumn,
		Direction: input.SortDirection,
	})
}

package pricingctx

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/veloxcart/catalog-cache/internal/repo"
	"github.com/veloxcart/catalog-cache/pkg/db/models"
	"github.com/veloxcart/catalog-cache/pkg/logger"
	"gorm.io/gorm"
)

// Resolver enumerates every pricing context in use: one per customer
// group carrying default lists plus one per customer with explicit
// assignments.
type Resolver struct {
	base          repo.Base
	logg          *logger.Logger
	defaultGroups []int64
}

// NewResolver builds a resolver. defaultGroups restricts which customer
// groups contribute default contexts; empty means all groups.
func NewResolver(db *gorm.DB, logg *logger.Logger, defaultGroups []int64) (*Resolver, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Resolver{base: repo.NewBase(db), logg: logg, defaultGroups: defaultGroups}, nil
}

// ResolveAll returns every distinct pricing context currently in use.
func (r *Resolver) ResolveAll(ctx context.Context) (*Set, error) {
	priorities, err := r.loadPriorities(ctx)
	if err != nil {
		return nil, err
	}

	set := newSet()

	groupVis, groupPrice, err := r.loadGroupDefaults(ctx)
	if err != nil {
		return nil, err
	}
	for groupID := range groupVis {
		set.add(Context{
			VisibilityListIDs: priorities.orderVisibility(groupVis[groupID]),
			PriceListIDs:      priorities.orderPrice(groupPrice[groupID]),
		})
	}
	// groups with only price lists assigned still surface here
	for groupID := range groupPrice {
		if _, seen := groupVis[groupID]; !seen {
			set.add(Context{PriceListIDs: priorities.orderPrice(groupPrice[groupID])})
		}
	}

	customerIDs, err := r.customersWithAssignments(ctx)
	if err != nil {
		return nil, err
	}
	for _, customerID := range customerIDs {
		c, err := r.customerContext(ctx, customerID, priorities, groupVis, groupPrice)
		if err != nil {
			return nil, err
		}
		set.add(c)
	}

	return set, nil
}

// ResolveCustomer returns the contexts a single customer participates
// in. Used by the incremental updater to scope its rewrite.
func (r *Resolver) ResolveCustomer(ctx context.Context, customerID int64) (*Set, error) {
	priorities, err := r.loadPriorities(ctx)
	if err != nil {
		return nil, err
	}
	groupVis, groupPrice, err := r.loadGroupDefaults(ctx)
	if err != nil {
		return nil, err
	}

	c, err := r.customerContext(ctx, customerID, priorities, groupVis, groupPrice)
	if err != nil {
		return nil, err
	}

	set := newSet()
	set.add(c)
	return set, nil
}

// ContextFor canonicalizes caller-supplied list ids into the same
// priority-ordered context the builder materializes, so the resulting
// key matches the generation's context table.
func (r *Resolver) ContextFor(ctx context.Context, visibilityLists, priceLists []int64) (Context, error) {
	priorities, err := r.loadPriorities(ctx)
	if err != nil {
		return Context{}, err
	}
	return Context{
		VisibilityListIDs: priorities.orderVisibility(visibilityLists),
		PriceListIDs:      priorities.orderPrice(priceLists),
	}, nil
}

// customerContext builds one customer's effective context: explicit
// primary and favourite assignments unioned, falling back to the
// customer group defaults for any side left unassigned.
func (r *Resolver) customerContext(
	ctx context.Context,
	customerID int64,
	priorities *listPriorities,
	groupVis, groupPrice map[int64][]int64,
) (Context, error) {
	var customer models.Customer
	err := r.base.DB(ctx).First(&customer, "id = ?", customerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Context{}, fmt.Errorf("customer %d not found", customerID)
	}
	if err != nil {
		return Context{}, fmt.Errorf("loading customer %d: %w", customerID, err)
	}

	visIDs, err := r.collectIDs(ctx, &models.CustomerVisibilityList{}, "visibility_list_id", customerID)
	if err != nil {
		return Context{}, err
	}
	favVis, err := r.collectIDs(ctx, &models.CustomerFavouriteVisibilityList{}, "visibility_list_id", customerID)
	if err != nil {
		return Context{}, err
	}
	visIDs = mergeIDs(visIDs, favVis)

	priceIDs, err := r.collectIDs(ctx, &models.CustomerPriceList{}, "price_list_id", customerID)
	if err != nil {
		return Context{}, err
	}
	favPrice, err := r.collectIDs(ctx, &models.CustomerFavouritePriceList{}, "price_list_id", customerID)
	if err != nil {
		return Context{}, err
	}
	priceIDs = mergeIDs(priceIDs, favPrice)

	if customer.CustomerGroupID != nil {
		if len(visIDs) == 0 {
			visIDs = groupVis[*customer.CustomerGroupID]
		}
		if len(priceIDs) == 0 {
			priceIDs = groupPrice[*customer.CustomerGroupID]
		}
	}

	return Context{
		VisibilityListIDs: priorities.orderVisibility(visIDs),
		PriceListIDs:      priorities.orderPrice(priceIDs),
	}, nil
}

func (r *Resolver) collectIDs(ctx context.Context, model any, column string, customerID int64) ([]int64, error) {
	var ids []int64
	err := r.base.DB(ctx).Model(model).
		Where("customer_id = ?", customerID).
		Pluck(column, &ids).Error
	if err != nil {
		return nil, fmt.Errorf("loading customer %d %s assignments: %w", customerID, column, err)
	}
	return ids, nil
}

func (r *Resolver) loadGroupDefaults(ctx context.Context) (map[int64][]int64, map[int64][]int64, error) {
	visQuery := r.base.DB(ctx).Model(&models.CustomerGroupVisibilityList{})
	priceQuery := r.base.DB(ctx).Model(&models.CustomerGroupPriceList{})
	if len(r.defaultGroups) > 0 {
		visQuery = visQuery.Where("customer_group_id IN ?", r.defaultGroups)
		priceQuery = priceQuery.Where("customer_group_id IN ?", r.defaultGroups)
	}

	var visRows []models.CustomerGroupVisibilityList
	if err := visQuery.Find(&visRows).Error; err != nil {
		return nil, nil, fmt.Errorf("loading group visibility defaults: %w", err)
	}
	var priceRows []models.CustomerGroupPriceList
	if err := priceQuery.Find(&priceRows).Error; err != nil {
		return nil, nil, fmt.Errorf("loading group price defaults: %w", err)
	}

	groupVis := map[int64][]int64{}
	for _, row := range visRows {
		groupVis[row.CustomerGroupID] = append(groupVis[row.CustomerGroupID], row.VisibilityListID)
	}
	groupPrice := map[int64][]int64{}
	for _, row := range priceRows {
		groupPrice[row.CustomerGroupID] = append(groupPrice[row.CustomerGroupID], row.PriceListID)
	}
	return groupVis, groupPrice, nil
}

// customersWithAssignments lists customers owning at least one explicit
// list assignment of any kind.
func (r *Resolver) customersWithAssignments(ctx context.Context) ([]int64, error) {
	seen := map[int64]struct{}{}
	for _, source := range []struct {
		model any
		name  string
	}{
		{&models.CustomerVisibilityList{}, "customer visibility"},
		{&models.CustomerPriceList{}, "customer price"},
		{&models.CustomerFavouriteVisibilityList{}, "favourite visibility"},
		{&models.CustomerFavouritePriceList{}, "favourite price"},
	} {
		var ids []int64
		err := r.base.DB(ctx).Model(source.model).
			Distinct("customer_id").
			Pluck("customer_id", &ids).Error
		if err != nil {
			return nil, fmt.Errorf("loading %s assignments: %w", source.name, err)
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}

	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// listPriorities orders list ids by their list's priority ascending,
// ties broken by id, matching the layered resolution scan order.
type listPriorities struct {
	visibility map[int64]int
	price      map[int64]int
}

func (r *Resolver) loadPriorities(ctx context.Context) (*listPriorities, error) {
	var visLists []models.VisibilityList
	if err := r.base.DB(ctx).Find(&visLists).Error; err != nil {
		return nil, fmt.Errorf("loading visibility lists: %w", err)
	}
	var priceLists []models.PriceList
	if err := r.base.DB(ctx).Find(&priceLists).Error; err != nil {
		return nil, fmt.Errorf("loading price lists: %w", err)
	}

	p := &listPriorities{visibility: map[int64]int{}, price: map[int64]int{}}
	for _, list := range visLists {
		p.visibility[list.ID] = list.Priority
	}
	for _, list := range priceLists {
		p.price[list.ID] = list.Priority
	}
	return p, nil
}

func (p *listPriorities) orderVisibility(ids []int64) []int64 {
	return orderByPriority(ids, p.visibility)
}

func (p *listPriorities) orderPrice(ids []int64) []int64 {
	return orderByPriority(ids, p.price)
}

func orderByPriority(ids []int64, priorities map[int64]int) []int64 {
	ordered := make([]int64, 0, len(ids))
	for _, id := range ids {
		// ids pointing at deleted lists are dropped
		if _, ok := priorities[id]; ok {
			ordered = append(ordered, id)
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		if priorities[ordered[i]] != priorities[ordered[j]] {
			return priorities[ordered[i]] < priorities[ordered[j]]
		}
		return ordered[i] < ordered[j]
	})
	return ordered
}

package builder

import (
	"context"
	"fmt"
	"time"

	"github.com/veloxcart/catalog-cache/internal/pricingctx"
	"github.com/veloxcart/catalog-cache/pkg/db/models"
	"gorm.io/gorm"
)

// RefData holds the visibility and price records the layered resolution
// scans, loaded only for the lists some pricing context references and
// indexed by product then list.
type RefData struct {
	visibility map[int64]map[int64]models.VisibilityListItem
	prices     map[int64]map[int64]models.Price
}

func LoadRefData(ctx context.Context, db *gorm.DB, set *pricingctx.Set) (*RefData, error) {
	ref := &RefData{
		visibility: map[int64]map[int64]models.VisibilityListItem{},
		prices:     map[int64]map[int64]models.Price{},
	}

	if len(set.VisibilityListIDs) > 0 {
		var items []models.VisibilityListItem
		err := db.WithContext(ctx).
			Where("visibility_list_id IN ?", set.VisibilityListIDs).
			Find(&items).Error
		if err != nil {
			return nil, fmt.Errorf("loading visibility items: %w", err)
		}
		for _, item := range items {
			byList := ref.visibility[item.ProductID]
			if byList == nil {
				byList = map[int64]models.VisibilityListItem{}
				ref.visibility[item.ProductID] = byList
			}
			byList[item.VisibilityListID] = item
		}
	}

	if len(set.PriceListIDs) > 0 {
		activeListIDs, err := activePriceListIDs(ctx, db, set.PriceListIDs)
		if err != nil {
			return nil, err
		}
		if len(activeListIDs) > 0 {
			var prices []models.Price
			err := db.WithContext(ctx).
				Where("price_list_id IN ?", activeListIDs).
				Find(&prices).Error
			if err != nil {
				return nil, fmt.Errorf("loading prices: %w", err)
			}
			for _, price := range prices {
				byList := ref.prices[price.ProductID]
				if byList == nil {
					byList = map[int64]models.Price{}
					ref.prices[price.ProductID] = byList
				}
				byList[price.PriceListID] = price
			}
		}
	}

	return ref, nil
}

// activePriceListIDs narrows the referenced price lists to the ones
// currently active and date-valid; expired lists never supply prices.
func activePriceListIDs(ctx context.Context, db *gorm.DB, ids []int64) ([]int64, error) {
	now := time.Now().UTC()
	var active []int64
	err := db.WithContext(ctx).Model(&models.PriceList{}).
		Where("id IN ?", ids).
		Where("active = ?", true).
		Where("valid_from IS NULL OR valid_from <= ?", now).
		Where("valid_to IS NULL OR valid_to >= ?", now).
		Pluck("id", &active).Error
	if err != nil {
		return nil, fmt.Errorf("loading active price lists: %w", err)
	}
	return active, nil
}

package builder

import (
	"github.com/shopspring/decimal"
	"github.com/veloxcart/catalog-cache/internal/pricingctx"
	"github.com/veloxcart/catalog-cache/pkg/db/models"
)

// PriceVisibilityRow is one materialized price/visibility row for a
// (context, product) pair.
type PriceVisibilityRow struct {
	ProductID      int64
	Price          decimal.Decimal
	PriceVat       decimal.Decimal
	PriceBefore    *decimal.Decimal
	PriceVatBefore *decimal.Decimal
	PriceListID    int64
	Hidden         bool
	HiddenInMenu   bool
	Priority       int
	Unavailable    bool
	Recommended    bool
}

// ResolveContextRows materializes every row of one pricing context.
// For each product carrying at least one visibility record, the
// context's visibility lists are scanned in priority order; the first
// list that both holds a visibility record and yields a usable price
// from the context's price lists wins. Higher-priority lists shadow
// lower-priority ones; products absent from every list stay invisible
// in the context. When eligible is non-nil, products outside it are
// skipped.
func ResolveContextRows(c pricingctx.Context, ref *RefData, showZeroPrices bool, eligible map[int64]struct{}) []PriceVisibilityRow {
	rows := make([]PriceVisibilityRow, 0, len(ref.visibility))
	for productID := range ref.visibility {
		if eligible != nil {
			if _, ok := eligible[productID]; !ok {
				continue
			}
		}
		if row, ok := resolveProduct(c, ref, productID, showZeroPrices); ok {
			rows = append(rows, row)
		}
	}
	return rows
}

func resolveProduct(c pricingctx.Context, ref *RefData, productID int64, showZeroPrices bool) (PriceVisibilityRow, bool) {
	visByList := ref.visibility[productID]
	if len(visByList) == 0 {
		return PriceVisibilityRow{}, false
	}

	for _, visListID := range c.VisibilityListIDs {
		item, ok := visByList[visListID]
		if !ok {
			continue
		}
		price, ok := firstUsablePrice(c, ref, productID, showZeroPrices)
		if !ok {
			return PriceVisibilityRow{}, false
		}
		return PriceVisibilityRow{
			ProductID:      productID,
			Price:          price.Price,
			PriceVat:       price.PriceVat,
			PriceBefore:    price.PriceBefore,
			PriceVatBefore: price.PriceVatBefore,
			PriceListID:    price.PriceListID,
			Hidden:         item.Hidden,
			HiddenInMenu:   item.HiddenInMenu,
			Priority:       item.Priority,
			Unavailable:    item.Unavailable,
			Recommended:    item.Recommended,
		}, true
	}
	return PriceVisibilityRow{}, false
}

// firstUsablePrice scans the context's price lists in their own
// priority order and returns the first entry with a positive price
// (any price when zero prices are shown).
func firstUsablePrice(c pricingctx.Context, ref *RefData, productID int64, showZeroPrices bool) (models.Price, bool) {
	byList := ref.prices[productID]
	if len(byList) == 0 {
		return models.Price{}, false
	}
	for _, priceListID := range c.PriceListIDs {
		price, ok := byList[priceListID]
		if !ok {
			continue
		}
		if price.Price.IsPositive() || showZeroPrices {
			return price, true
		}
	}
	return models.Price{}, false
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceList carries priced entries for a subset of products. Lower
// Priority values win during layered resolution.
type PriceList struct {
	ID        int64      `gorm:"column:id;primaryKey"`
	Name      string     `gorm:"column:name;not null"`
	Priority  int        `gorm:"column:priority;not null;default:0"`
	Active    bool       `gorm:"column:active;not null;default:true"`
	ValidFrom *time.Time `gorm:"column:valid_from"`
	ValidTo   *time.Time `gorm:"column:valid_to"`
}

func (PriceList) TableName() string { return "price_lists" }

// Price is one priced entry of a product on a price list.
type Price struct {
	PriceListID    int64            `gorm:"column:price_list_id;primaryKey"`
	ProductID      int64            `gorm:"column:product_id;primaryKey"`
	Price          decimal.Decimal  `gorm:"column:price;type:numeric(12,2);not null"`
	PriceVat       decimal.Decimal  `gorm:"column:price_vat;type:numeric(12,2);not null"`
	PriceBefore    *decimal.Decimal `gorm:"column:price_before;type:numeric(12,2)"`
	PriceVatBefore *decimal.Decimal `gorm:"column:price_vat_before;type:numeric(12,2)"`
}

func (Price) TableName() string { return "prices" }

// VisibilityList controls which products a pricing context may see.
// Lower Priority values win during layered resolution.
type VisibilityList struct {
	ID       int64  `gorm:"column:id;primaryKey"`
	Name     string `gorm:"column:name;not null"`
	Priority int    `gorm:"column:priority;not null;default:0"`
}

func (VisibilityList) TableName() string { return "visibility_lists" }

// VisibilityListItem is a product's visibility record on one list.
type VisibilityListItem struct {
	VisibilityListID int64 `gorm:"column:visibility_list_id;primaryKey"`
	ProductID        int64 `gorm:"column:product_id;primaryKey"`
	Hidden           bool  `gorm:"column:hidden;not null;default:false"`
	HiddenInMenu     bool  `gorm:"column:hidden_in_menu;not null;default:false"`
	Priority         int   `gorm:"column:priority;not null;default:0"`
	Unavailable      bool  `gorm:"column:unavailable;not null;default:false"`
	Recommended      bool  `gorm:"column:recommended;not null;default:false"`
}

func (VisibilityListItem) TableName() string { return "visibility_list_items" }

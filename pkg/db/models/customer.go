package models

// CustomerGroup carries the default list assignments customers inherit.
type CustomerGroup struct {
	ID   int64  `gorm:"column:id;primaryKey"`
	Name string `gorm:"column:name;not null"`
}

func (CustomerGroup) TableName() string { return "customer_groups" }

// CustomerGroupVisibilityList is a group's default visibility list.
type CustomerGroupVisibilityList struct {
	CustomerGroupID  int64 `gorm:"column:customer_group_id;primaryKey"`
	VisibilityListID int64 `gorm:"column:visibility_list_id;primaryKey"`
}

func (CustomerGroupVisibilityList) TableName() string { return "customer_group_visibility_lists" }

// CustomerGroupPriceList is a group's default price list.
type CustomerGroupPriceList struct {
	CustomerGroupID int64 `gorm:"column:customer_group_id;primaryKey"`
	PriceListID     int64 `gorm:"column:price_list_id;primaryKey"`
}

func (CustomerGroupPriceList) TableName() string { return "customer_group_price_lists" }

// Customer carries explicit per-customer list assignments overriding the
// group defaults. Only the id and the assignment relations matter here.
type Customer struct {
	ID              int64  `gorm:"column:id;primaryKey"`
	CustomerGroupID *int64 `gorm:"column:customer_group_id"`
}

func (Customer) TableName() string { return "customers" }

// CustomerVisibilityList is an explicit visibility-list assignment.
type CustomerVisibilityList struct {
	CustomerID       int64 `gorm:"column:customer_id;primaryKey"`
	VisibilityListID int64 `gorm:"column:visibility_list_id;primaryKey"`
}

func (CustomerVisibilityList) TableName() string { return "customer_visibility_lists" }

// CustomerPriceList is an explicit price-list assignment.
type CustomerPriceList struct {
	CustomerID  int64 `gorm:"column:customer_id;primaryKey"`
	PriceListID int64 `gorm:"column:price_list_id;primaryKey"`
}

func (CustomerPriceList) TableName() string { return "customer_price_lists" }

// CustomerFavouriteVisibilityList is the independent favourite set of
// visibility lists a customer opted into.
type CustomerFavouriteVisibilityList struct {
	CustomerID       int64 `gorm:"column:customer_id;primaryKey"`
	VisibilityListID int64 `gorm:"column:visibility_list_id;primaryKey"`
}

func (CustomerFavouriteVisibilityList) TableName() string {
	return "customer_favourite_visibility_lists"
}

// CustomerFavouritePriceList is the independent favourite set of price
// lists a customer opted into.
type CustomerFavouritePriceList struct {
	CustomerID  int64 `gorm:"column:customer_id;primaryKey"`
	PriceListID int64 `gorm:"column:price_list_id;primaryKey"`
}

func (CustomerFavouritePriceList) TableName() string { return "customer_favourite_price_lists" }

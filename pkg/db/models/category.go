package models

// CategoryType groups categories into independent trees (navigation,
// landing pages, brand trees, ...). The cache keeps one primary-category
// column per type.
type CategoryType struct {
	ID   int64  `gorm:"column:id;primaryKey"`
	Code string `gorm:"column:code;not null"`
}

func (CategoryType) TableName() string { return "category_types" }

// Category is a node in a category tree. ParentID is nil for roots.
type Category struct {
	ID             int64  `gorm:"column:id;primaryKey"`
	CategoryTypeID int64  `gorm:"column:category_type_id;not null"`
	ParentID       *int64 `gorm:"column:parent_id"`
	Name           string `gorm:"column:name;not null"`
}

func (Category) TableName() string { return "categories" }

// ProductCategory assigns a product to a category. Primary marks the
// category denormalized into the cached product row for its type.
type ProductCategory struct {
	ProductID  int64 `gorm:"column:product_id;primaryKey"`
	CategoryID int64 `gorm:"column:category_id;primaryKey"`
	Primary    bool  `gorm:"column:is_primary;not null;default:false"`
}

func (ProductCategory) TableName() string { return "product_categories" }

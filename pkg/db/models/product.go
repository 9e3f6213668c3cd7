package models

import "time"

// Product is the canonical catalog product row in the transactional schema.
// The cache engine only reads it.
type Product struct {
	ID                int64   `gorm:"column:id;primaryKey"`
	Name              string  `gorm:"column:name;not null"`
	Code              string  `gorm:"column:code;not null"`
	SubCode           *string `gorm:"column:sub_code"`
	ExternalCode      *string `gorm:"column:external_code"`
	EAN               *string `gorm:"column:ean"`
	ProducerID        *int64  `gorm:"column:producer_id"`
	DisplayAmountID   *int64  `gorm:"column:display_amount_id"`
	DisplayDeliveryID *int64  `gorm:"column:display_delivery_id"`

	Categories      []ProductCategory       `gorm:"foreignKey:ProductID"`
	AttributeValues []ProductAttributeValue `gorm:"foreignKey:ProductID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Product) TableName() string { return "products" }

// Producer is a product brand/manufacturer.
type Producer struct {
	ID   int64  `gorm:"column:id;primaryKey"`
	Name string `gorm:"column:name;not null"`
}

func (Producer) TableName() string { return "producers" }

// DisplayAmount describes the stock-amount presentation bucket. The bucket
// marking a product as sold out drives the cached is_sold flag.
type DisplayAmount struct {
	ID   int64  `gorm:"column:id;primaryKey"`
	Name string `gorm:"column:name;not null"`
	Sold bool   `gorm:"column:sold;not null;default:false"`
}

func (DisplayAmount) TableName() string { return "display_amounts" }

// DisplayDelivery describes the delivery-time presentation bucket.
type DisplayDelivery struct {
	ID   int64  `gorm:"column:id;primaryKey"`
	Name string `gorm:"column:name;not null"`
}

func (DisplayDelivery) TableName() string { return "display_deliveries" }

// Attribute is a filterable product property (color, material, ...).
type Attribute struct {
	ID   int64  `gorm:"column:id;primaryKey"`
	Name string `gorm:"column:name;not null"`
}

func (Attribute) TableName() string { return "attributes" }

// AttributeValue is one selectable value of an attribute.
type AttributeValue struct {
	ID          int64  `gorm:"column:id;primaryKey"`
	AttributeID int64  `gorm:"column:attribute_id;not null"`
	Value       string `gorm:"column:value;not null"`
}

func (AttributeValue) TableName() string { return "attribute_values" }

// ProductAttributeValue assigns an attribute value to a product.
type ProductAttributeValue struct {
	ProductID        int64 `gorm:"column:product_id;primaryKey"`
	AttributeValueID int64 `gorm:"column:attribute_value_id;primaryKey"`
}

func (ProductAttributeValue) TableName() string { return "product_attribute_values" }

package models

import "github.com/shopspring/decimal"

// ProductRelation links a master product to a slave product (sets,
// accessories, alternatives) in the transactional schema.
type ProductRelation struct {
	ID             int64            `gorm:"column:id;primaryKey"`
	MasterID       int64            `gorm:"column:master_id;not null"`
	SlaveID        int64            `gorm:"column:slave_id;not null"`
	RelationTypeID int64            `gorm:"column:relation_type_id;not null"`
	Priority       int              `gorm:"column:priority;not null;default:0"`
	Amount         int              `gorm:"column:amount;not null;default:1"`
	Hidden         bool             `gorm:"column:hidden;not null;default:false"`
	Systemic       bool             `gorm:"column:systemic;not null;default:false"`
	DiscountPct    *decimal.Decimal `gorm:"column:discount_pct;type:numeric(5,2)"`
	MasterPct      *decimal.Decimal `gorm:"column:master_pct;type:numeric(5,2)"`
}

func (ProductRelation) TableName() string { return "product_relations" }

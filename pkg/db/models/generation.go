package models

import (
	"time"

	"github.com/veloxcart/catalog-cache/pkg/enums"
)

// Generation is one of the two alternating cache slots. The four cache
// tables of a slot carry its id as a table-name suffix.
type Generation struct {
	ID           int                   `gorm:"column:id;primaryKey"`
	State        enums.GenerationState `gorm:"column:state;not null;default:empty"`
	WarmingSince *time.Time            `gorm:"column:warming_since"`
	ReadyAt      *time.Time            `gorm:"column:ready_at"`
	UpdatedAt    time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (Generation) TableName() string { return "catalog_generations" }

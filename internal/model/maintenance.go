package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaintenanceRecord is one PM action. Records created alongside a failure
// carry the failure's ID.
type MaintenanceRecord struct {
	ID            int64               `gorm:"primaryKey;autoIncrement" json:"id"`
	LineageKey    string              `gorm:"index;size:36;not null" json:"lineage_key"`
	TrolleyID     string              `gorm:"size:64;not null" json:"trolley_id"`
	PerformedDate time.Time           `gorm:"index;not null" json:"performed_date"`
	NextDueDate   time.Time           `gorm:"not null" json:"next_due_date"`
	Technician    string              `gorm:"size:128" json:"technician"`
	Cost          decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"cost"`
	Notes         string              `gorm:"type:text" json:"notes"`
	FailureID     *int64              `gorm:"uniqueIndex" json:"failure_id"`
	CreatedAt     time.Time           `gorm:"not null" json:"created_at"`
}

package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category classifies a failure. The string values are stored and exported
// verbatim.
type Category string

const (
	CategoryHandleBreak Category = "HANDLE_BREAK"
	CategoryWheelIssue  Category = "WHEEL_ISSUE"
	CategoryFrameBend   Category = "FRAME_BEND"
	CategoryOther       Category = "OTHER"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryHandleBreak,
	CategoryWheelIssue,
	CategoryFrameBend,
	CategoryOther,
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryHandleBreak, CategoryWheelIssue, CategoryFrameBend, CategoryOther:
		return true
	}
	return false
}

// ParseCategory accepts a category name in any letter case.
func ParseCategory(raw string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown failure category %q", raw)
	}
	return c, nil
}

// FailureRecord is one damage or failure event.
type FailureRecord struct {
	ID           int64               `gorm:"primaryKey;autoIncrement" json:"id"`
	LineageKey   string              `gorm:"index;size:36;not null" json:"lineage_key"`
	TrolleyID    string              `gorm:"size:64;not null" json:"trolley_id"`
	ReportedDate time.Time           `gorm:"index;not null" json:"reported_date"`
	Category     Category            `gorm:"size:32;not null" json:"category"`
	Technician   string              `gorm:"size:128" json:"technician"`
	RepairCost   decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"repair_cost"`
	Notes        string              `gorm:"type:text" json:"notes"`
	CreatedAt    time.Time           `gorm:"not null" json:"created_at"`
}

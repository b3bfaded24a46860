package model

import "time"

// ScrapRecord marks a lineage as permanently out of service.
type ScrapRecord struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	LineageKey string    `gorm:"uniqueIndex;size:36;not null" json:"lineage_key"`
	TrolleyID  string    `gorm:"size:64;not null" json:"trolley_id"`
	ScrapDate  time.Time `gorm:"index;not null" json:"scrap_date"`
	Reason     string    `gorm:"size:256" json:"reason"`
	RecordedBy string    `gorm:"size:128" json:"recorded_by"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

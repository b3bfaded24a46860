package model

import "time"

// Trolley is one physical trolley lineage. LineageKey never changes; CurrentID
// follows the remap chain.
type Trolley struct {
	LineageKey   string    `gorm:"primaryKey;size:36" json:"lineage_key"`
	CurrentID    string    `gorm:"uniqueIndex;size:64;not null" json:"current_id"`
	RegisteredOn time.Time `gorm:"not null" json:"registered_on"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

// TrolleyAlias maps every identifier ever issued to its lineage.
type TrolleyAlias struct {
	ID         string    `gorm:"primaryKey;size:64" json:"id"`
	LineageKey string    `gorm:"index;size:36;not null" json:"lineage_key"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

// Registry actions, kept verbatim from the paper registry the plant used.
const (
	RegistryActionAdd    = "ADD"
	RegistryActionModify = "MODIFY"
)

// TrolleyRemap is one link of the identifier chain. Registration is stored as
// an ADD entry with an empty OldID.
type TrolleyRemap struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	LineageKey    string    `gorm:"index;size:36;not null" json:"lineage_key"`
	Action        string    `gorm:"size:16;not null" json:"action"`
	OldID         *string   `gorm:"uniqueIndex;size:64" json:"old_id"`
	NewID         string    `gorm:"uniqueIndex;size:64;not null" json:"new_id"`
	EffectiveDate time.Time `gorm:"not null" json:"effective_date"`
	Reason        string    `gorm:"size:256" json:"reason"`
	Note          string    `gorm:"size:512" json:"note"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
}

package model

import "time"

// PushSubscription holds the information for a browser push subscription.
// An empty Trolleys list means the subscriber wants every reminder.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Trolleys []*Trolley `gorm:"many2many:subscription_trolley_mapping;"`
}

package model

import "time"

// PushSubscription holds a care-circle watcher's browser push subscription.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations: monitored users this subscription wants alerts for.
	Users []*User `gorm:"many2many:subscription_user_mapping;"`
}

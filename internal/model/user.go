package model

import "time"

// User is the monitored-user identity owned by the external user directory.
// Only the fields this service reads are mapped.
type User struct {
	ID          int64     `gorm:"primaryKey"`
	DisplayName string    `gorm:"size:256"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

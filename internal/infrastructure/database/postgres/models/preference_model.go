package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationPreferenceModel is one user's switch for one event type.
type NotificationPreferenceModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Username  string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_preference_user_type"`
	EventType string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_preference_user_type"`
	Enabled   bool      `gorm:"not null;default:true"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (NotificationPreferenceModel) TableName() string {
	return "notification_preferences"
}

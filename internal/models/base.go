package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base is embedded by every mutable entity. IDs are UUID strings so records
// can be referenced from QR payloads and webhook bodies without exposing
// sequence numbers.
type Base struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	CreatedAt time.Time      `json:"created_at" gorm:"index"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}

// All lists every model managed by migrations.
func All() []interface{} {
	return []interface{}{
		&OrganizationModel{},
		&OrganizationSettingsModel{},
		&StaffModel{},
		&TableModel{},
		&MenuCategoryModel{},
		&MenuItemModel{},
		&OrderModel{},
		&TableCallModel{},
		&AnalyticsEventModel{},
		&WebhookConfigModel{},
		&WebhookDeliveryModel{},
		&AIConversationModel{},
	}
}

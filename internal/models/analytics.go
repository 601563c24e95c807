package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	EventOrderCreated       = "order_created"
	EventOrderStatusUpdated = "order_status_updated"
	EventAIChatMessage      = "ai_chat_message"
	EventTableCallRequested = "table_call_requested"
)

// AnalyticsEventModel is an append-only, tenant-scoped record. It has no
// update timestamp and no soft delete.
type AnalyticsEventModel struct {
	ID             string            `json:"id"              gorm:"type:char(36);primaryKey"`
	OrganizationID string            `json:"organization_id" gorm:"size:36;index:idx_analytics_org_type,priority:1"`
	EventType      string            `json:"event_type"      gorm:"size:64;index:idx_analytics_org_type,priority:2"`
	EventData      datatypes.JSONMap `json:"event_data"`
	SessionID      string            `json:"session_id,omitempty" gorm:"size:128;index"`
	CreatedAt      time.Time         `json:"created_at"      gorm:"index"`
}

func (AnalyticsEventModel) TableName() string { return "analytics_events" }

func (e *AnalyticsEventModel) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

package models

import "time"

// WebhookConfigModel is one outbound endpoint registered by a tenant.
type WebhookConfigModel struct {
	Base
	OrganizationID string      `json:"organization_id" gorm:"size:36;index"`
	Name           string      `json:"name"            gorm:"size:191"`
	URL            string      `json:"url"             gorm:"not null"`
	Secret         string      `json:"-"               gorm:"column:secret_key;not null"`
	Events         StringArray `json:"events"`
	IsActive       bool        `json:"is_active"       gorm:"index"`
	RetryEnabled   bool        `json:"retry_enabled"`
	MaxRetries     int         `json:"max_retries"`
	TimeoutSeconds int         `json:"timeout_seconds"`
}

func (WebhookConfigModel) TableName() string { return "webhook_configs" }

// WebhookDeliveryModel is the audit trail of one event sent to one config,
// covering every attempt made for it.
type WebhookDeliveryModel struct {
	Base
	WebhookID      string            `json:"webhook_id"      gorm:"size:36;index"`
	OrganizationID string            `json:"organization_id" gorm:"size:36;index"`
	Event          string            `json:"event"           gorm:"size:64"`
	ResourceID     string            `json:"resource_id"     gorm:"size:36"`
	Payload        string            `json:"payload"         gorm:"type:text"`
	Headers        map[string]string `json:"headers"         gorm:"serializer:json;type:text"`
	StatusCode     int               `json:"status_code"`
	Success        bool              `json:"success"`
	Attempts       int               `json:"attempts"`
	Error          string            `json:"error,omitempty" gorm:"type:text"`
	ResponseBody   string            `json:"response_body"   gorm:"type:text"`
	DurationMS     int64             `json:"duration_ms"`
	DeliveredAt    time.Time         `json:"delivered_at"    gorm:"index"`
}

func (WebhookDeliveryModel) TableName() string { return "webhook_deliveries" }

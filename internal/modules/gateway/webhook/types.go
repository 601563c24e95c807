package webhook

import (
	"time"

	"github.com/qrdine/core/internal/models"
)

// EventTest is sent by the test endpoint and never persisted as a domain
// event.
const EventTest = "test"

// CreateWebhookDTO is the request body for registering an endpoint.
type CreateWebhookDTO struct {
	Name           string   `json:"name"`
	URL            string   `json:"url"             binding:"required,url"`
	Events         []string `json:"events"          binding:"required,min=1"`
	Secret         string   `json:"secret"`
	IsActive       *bool    `json:"is_active"`
	RetryEnabled   *bool    `json:"retry_enabled"`
	MaxRetries     *int     `json:"max_retries"     binding:"omitempty,min=0,max=10"`
	TimeoutSeconds *int     `json:"timeout_seconds" binding:"omitempty,min=1,max=60"`
}

// UpdateWebhookDTO is the request body for editing an endpoint. Absent
// fields are left untouched.
type UpdateWebhookDTO struct {
	Name           *string  `json:"name"`
	URL            *string  `json:"url"             binding:"omitempty,url"`
	Events         []string `json:"events"`
	Secret         *string  `json:"secret"`
	IsActive       *bool    `json:"is_active"`
	RetryEnabled   *bool    `json:"retry_enabled"`
	MaxRetries     *int     `json:"max_retries"     binding:"omitempty,min=0,max=10"`
	TimeoutSeconds *int     `json:"timeout_seconds" binding:"omitempty,min=1,max=60"`
}

// webhookResponse is the outbound representation of a config. The secret is
// only revealed once, on creation.
type webhookResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	URL            string    `json:"url"`
	Events         []string  `json:"events"`
	IsActive       bool      `json:"is_active"`
	RetryEnabled   bool      `json:"retry_enabled"`
	MaxRetries     int       `json:"max_retries"`
	TimeoutSeconds int       `json:"timeout_seconds"`
	Secret         string    `json:"secret,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TestResult reports the single attempt made by the test endpoint.
type TestResult struct {
	DeliveryID string `json:"delivery_id"`
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// webhookEventEnum lists the events an endpoint may subscribe to.
var webhookEventEnum = []string{
	"order.created",
	"order.updated",
	"order.completed",
	"order.cancelled",
	EventTest,
}

var acceptedWebhookEvents = func() map[string]struct{} {
	out := make(map[string]struct{}, len(webhookEventEnum))
	for _, event := range webhookEventEnum {
		out[event] = struct{}{}
	}
	return out
}()

func toResponse(w *models.WebhookConfigModel) webhookResponse {
	events := []string(w.Events)
	if events == nil {
		events = []string{}
	}
	return webhookResponse{
		ID:             w.ID,
		Name:           w.Name,
		URL:            w.URL,
		Events:         events,
		IsActive:       w.IsActive,
		RetryEnabled:   w.RetryEnabled,
		MaxRetries:     w.MaxRetries,
		TimeoutSeconds: w.TimeoutSeconds,
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      w.UpdatedAt,
	}
}

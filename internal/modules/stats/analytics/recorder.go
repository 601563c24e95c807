// Package analytics appends and reads the tenant event log.
package analytics

import (
	"context"
	"time"

	"github.com/qrdine/core/internal/models"
	"github.com/qrdine/core/internal/store"
	"go.uber.org/zap"
)

const recordTimeout = 3 * time.Second

// Recorder appends immutable analytics events. Failures are logged and never
// returned, so callers can record inline without affecting their outcome.
type Recorder struct {
	store store.Events
	log   *zap.Logger
}

func NewRecorder(st store.Events, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{store: st, log: log.Named("Analytics")}
}

// Record stores one event. The write is detached from request cancellation.
func (r *Recorder) Record(ctx context.Context, orgID, eventType string, data map[string]interface{}, sessionID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if data == nil {
		data = map[string]interface{}{}
	}
	event := &models.AnalyticsEventModel{
		OrganizationID: orgID,
		EventType:      eventType,
		EventData:      data,
		SessionID:      sessionID,
	}
	if err := r.store.InsertEvent(ctx, event); err != nil {
		r.log.Warn("record analytics event failed",
			zap.String("organization_id", orgID),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}

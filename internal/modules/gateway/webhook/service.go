package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/qrdine/core/internal/models"
	"github.com/qrdine/core/internal/pkg/apperr"
	"github.com/qrdine/core/internal/pkg/pagination"
	"github.com/qrdine/core/internal/pkg/response"
	"go.uber.org/zap"
)

const wildcardEvent = "*"

// Service manages a tenant's webhook endpoints and their delivery log.
type Service struct {
	store      Store
	dispatcher *Dispatcher
	log        *zap.Logger
}

func NewService(st Store, dispatcher *Dispatcher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: st, dispatcher: dispatcher, log: log.Named("WebhookService")}
}

func (s *Service) List(ctx context.Context, orgID string) ([]models.WebhookConfigModel, error) {
	items, err := s.store.ListWebhookConfigs(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.WebhookConfigModel{}
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, orgID, id string) (*models.WebhookConfigModel, error) {
	cfg, err := s.store.GetWebhookConfig(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, apperr.NotFound("webhook")
	}
	return cfg, nil
}

// Create registers an endpoint. A secret is generated when none is given;
// the returned model carries it so the caller can show it once.
func (s *Service) Create(ctx context.Context, orgID string, dto *CreateWebhookDTO) (*models.WebhookConfigModel, error) {
	events, err := normalizeWebhookEvents(dto.Events)
	if err != nil {
		return nil, err
	}

	secret := strings.TrimSpace(dto.Secret)
	if secret == "" {
		if secret, err = generateSecret(); err != nil {
			return nil, err
		}
	}

	cfg := &models.WebhookConfigModel{
		OrganizationID: orgID,
		Name:           strings.TrimSpace(dto.Name),
		URL:            strings.TrimSpace(dto.URL),
		Secret:         secret,
		Events:         events,
		IsActive:       true,
		RetryEnabled:   true,
		MaxRetries:     s.dispatcher.cfg.DefaultMaxRetries,
		TimeoutSeconds: s.dispatcher.cfg.DefaultTimeoutSeconds,
	}
	if dto.IsActive != nil {
		cfg.IsActive = *dto.IsActive
	}
	if dto.RetryEnabled != nil {
		cfg.RetryEnabled = *dto.RetryEnabled
	}
	if dto.MaxRetries != nil {
		cfg.MaxRetries = *dto.MaxRetries
	}
	if dto.TimeoutSeconds != nil {
		cfg.TimeoutSeconds = *dto.TimeoutSeconds
	}

	if err := s.store.CreateWebhookConfig(ctx, cfg); err != nil {
		return nil, err
	}
	s.log.Info("webhook registered",
		zap.String("webhook_id", cfg.ID),
		zap.String("organization_id", orgID),
		zap.Strings("events", events),
	)
	return cfg, nil
}

func (s *Service) Update(ctx context.Context, orgID, id string, dto *UpdateWebhookDTO) (*models.WebhookConfigModel, error) {
	cfg, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if dto.Name != nil {
		updates["name"] = strings.TrimSpace(*dto.Name)
	}
	if dto.URL != nil {
		url := strings.TrimSpace(*dto.URL)
		if url == "" {
			return nil, apperr.Invalid("url", "must not be empty")
		}
		updates["url"] = url
	}
	if dto.Events != nil {
		events, err := normalizeWebhookEvents(dto.Events)
		if err != nil {
			return nil, err
		}
		updates["events"] = models.StringArray(events)
	}
	if dto.Secret != nil {
		secret := strings.TrimSpace(*dto.Secret)
		if secret == "" {
			return nil, apperr.Invalid("secret", "must not be empty")
		}
		updates["secret_key"] = secret
	}
	if dto.IsActive != nil {
		updates["is_active"] = *dto.IsActive
	}
	if dto.RetryEnabled != nil {
		updates["retry_enabled"] = *dto.RetryEnabled
	}
	if dto.MaxRetries != nil {
		updates["max_retries"] = *dto.MaxRetries
	}
	if dto.TimeoutSeconds != nil {
		updates["timeout_seconds"] = *dto.TimeoutSeconds
	}

	if err := s.store.UpdateWebhookConfig(ctx, cfg, updates); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *Service) Delete(ctx context.Context, orgID, id string) error {
	deleted, err := s.store.DeleteWebhookConfig(ctx, orgID, id)
	if err != nil {
		return err
	}
	if !deleted {
		return apperr.NotFound("webhook")
	}
	return nil
}

// Test makes one synchronous signed delivery of a "test" event to the
// endpoint, regardless of its subscriptions or retry settings.
func (s *Service) Test(ctx context.Context, orgID, id string) (*TestResult, error) {
	cfg, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	body, err := buildBody(EventTest, s.dispatcher.now(), nil, map[string]interface{}{
		"webhook_id":      cfg.ID,
		"organization_id": orgID,
		"message":         "This is a test delivery",
	})
	if err != nil {
		return nil, err
	}
	d := s.dispatcher.deliver(ctx, *cfg, EventTest, "", body, false)
	return &TestResult{
		DeliveryID: d.ID,
		Success:    d.Success,
		StatusCode: d.StatusCode,
		DurationMS: d.DurationMS,
		Error:      d.Error,
	}, nil
}

func (s *Service) ListDeliveries(ctx context.Context, orgID, webhookID string, q pagination.Query) ([]models.WebhookDeliveryModel, response.Pagination, error) {
	if webhookID != "" {
		if _, err := s.Get(ctx, orgID, webhookID); err != nil {
			return nil, response.Pagination{}, err
		}
	}
	items, pag, err := s.store.ListDeliveries(ctx, orgID, webhookID, q)
	if err != nil {
		return nil, response.Pagination{}, err
	}
	if items == nil {
		items = []models.WebhookDeliveryModel{}
	}
	return items, pag, nil
}

// Redispatch queues the stored payload of a past delivery again, to the
// same endpoint. The endpoint must still exist and be active.
func (s *Service) Redispatch(ctx context.Context, orgID, deliveryID string) error {
	delivery, err := s.store.GetDelivery(ctx, orgID, deliveryID)
	if err != nil {
		return err
	}
	if delivery == nil {
		return apperr.NotFound("delivery")
	}
	cfg, err := s.Get(ctx, orgID, delivery.WebhookID)
	if err != nil {
		return err
	}
	if !cfg.IsActive {
		return apperr.Invalid("webhook", "is disabled")
	}
	s.dispatcher.enqueue(job{
		orgID:      orgID,
		event:      delivery.Event,
		resourceID: delivery.ResourceID,
		body:       []byte(delivery.Payload),
		cfg:        cfg,
	})
	return nil
}

// PruneDeliveries deletes delivery rows older than retention.
func (s *Service) PruneDeliveries(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := s.dispatcher.now().UTC().Add(-retention)
	n, err := s.store.DeleteDeliveriesBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("webhook deliveries pruned", zap.Int64("deleted", n), zap.Time("before", cutoff))
	}
	return n, nil
}

// normalizeWebhookEvents deduplicates and lowercases events and rejects
// names outside the accepted set. "*" or "all" subscribes to everything.
func normalizeWebhookEvents(events []string) ([]string, error) {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(events))
	for _, event := range events {
		next := strings.ToLower(strings.TrimSpace(event))
		if next == "" {
			continue
		}
		if next == wildcardEvent || next == "all" {
			return []string{wildcardEvent}, nil
		}
		if _, ok := acceptedWebhookEvents[next]; !ok {
			return nil, apperr.Invalid("events", "unknown event "+next)
		}
		if _, ok := seen[next]; ok {
			continue
		}
		seen[next] = struct{}{}
		out = append(out, next)
	}
	if len(out) == 0 {
		return nil, apperr.Invalid("events", "at least one event is required")
	}
	return out, nil
}

func webhookContainsEvent(events []string, event string) bool {
	event = strings.ToLower(strings.TrimSpace(event))
	for _, item := range events {
		next := strings.ToLower(strings.TrimSpace(item))
		if next == wildcardEvent || next == "all" || next == event {
			return true
		}
	}
	return false
}

func generateSecret() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

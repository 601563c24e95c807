package ai

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/qrdine/core/internal/config"
	"github.com/qrdine/core/internal/models"
	"github.com/qrdine/core/internal/pkg/apperr"
	"github.com/qrdine/core/internal/pkg/metrics"
	"github.com/qrdine/core/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var errNoCredential = errors.New("no AI api key configured for the organization or the platform")

// Store is the persistence the chat orchestrator needs.
type Store interface {
	store.Organizations
	store.Menu
	store.Conversations
}

// Recorder appends analytics events and swallows its own failures.
type Recorder interface {
	Record(ctx context.Context, orgID, eventType string, data map[string]interface{}, sessionID string)
}

// Service answers customer questions about one restaurant's menu and keeps
// the conversation per session.
type Service struct {
	store     Store
	completer Completer
	recorder  Recorder
	cfg       config.AIRuntimeConfig
	log       *zap.Logger
	now       func() time.Time
}

func NewService(st Store, completer Completer, recorder Recorder, cfg config.AIRuntimeConfig, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if completer == nil {
		completer = NewProviderCompleter()
	}
	return &Service{
		store:     st,
		completer: completer,
		recorder:  recorder,
		cfg:       cfg,
		log:       log.Named("AIChatService"),
		now:       time.Now,
	}
}

// Respond runs one chat turn. Nothing is persisted when the completion
// fails.
func (s *Service) Respond(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	req.Message = strings.TrimSpace(req.Message)
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.OrganizationID = strings.TrimSpace(req.OrganizationID)
	if err := validate(req); err != nil {
		return nil, err
	}

	org, err := s.store.GetOrganization(ctx, req.OrganizationID)
	if err != nil {
		return nil, err
	}
	if org == nil || !org.IsActive() {
		return nil, apperr.NotFound("organization")
	}

	var (
		settings   *models.OrganizationSettingsModel
		categories []models.MenuCategoryModel
		items      []models.MenuItemModel
		conv       *models.AIConversationModel
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		settings, err = s.store.GetOrganizationSettings(gctx, org.ID)
		return err
	})
	g.Go(func() (err error) {
		categories, err = s.store.ListVisibleCategories(gctx, org.ID)
		return err
	})
	g.Go(func() (err error) {
		items, err = s.store.ListAvailableItems(gctx, org.ID)
		return err
	})
	g.Go(func() (err error) {
		conv, err = s.store.GetConversation(gctx, org.ID, req.SessionID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cred, err := s.resolveCredential(settings)
	if err != nil {
		return nil, apperr.Upstream("resolve AI credential", err)
	}

	var history []models.ConversationMessage
	if conv != nil {
		history = conv.Messages
	}

	personality := ""
	if settings != nil {
		personality = settings.AIPersonality
	}
	completion := CompletionRequest{
		Credential: cred,
		System: buildSystemPrompt(menuContext{
			Organization: org,
			Categories:   categories,
			Items:        items,
			Personality:  personality,
		}),
		History:         tail(history, s.cfg.MaxHistory),
		Message:         req.Message,
		MaxOutputTokens: s.cfg.MaxOutputTokens,
	}

	reply, err := s.complete(ctx, completion)
	if err != nil {
		s.log.Warn("AI completion failed",
			zap.String("organization_id", org.ID),
			zap.String("session_id", req.SessionID),
			zap.String("provider", cred.Provider),
			zap.Error(err),
		)
		return nil, apperr.Upstream("AI completion", err)
	}

	at := s.now().UTC()
	messages := append(append([]models.ConversationMessage(nil), history...),
		models.ConversationMessage{Role: roleUser, Content: req.Message, Timestamp: at},
		models.ConversationMessage{Role: roleAssistant, Content: reply, Timestamp: at},
	)
	next := &models.AIConversationModel{
		OrganizationID: org.ID,
		SessionID:      req.SessionID,
		Messages:       tail(messages, maxStoredMessages),
	}
	if err := s.store.UpsertConversation(ctx, next); err != nil {
		s.log.Error("save conversation failed",
			zap.String("organization_id", org.ID),
			zap.String("session_id", req.SessionID),
			zap.Error(err),
		)
	}

	if s.recorder != nil {
		s.recorder.Record(ctx, org.ID, models.EventAIChatMessage, map[string]interface{}{
			"session_id":     req.SessionID,
			"message_length": utf8.RuneCountInString(req.Message),
		}, req.SessionID)
	}

	return &ChatResponse{Response: reply, SessionID: req.SessionID}, nil
}

func (s *Service) complete(ctx context.Context, req CompletionRequest) (string, error) {
	timeout := s.cfg.Timeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	provider := normalizeProviderType(req.Credential.Provider)
	started := time.Now()
	reply, err := s.completer.Complete(ctx, req)
	metrics.AICompletionDuration.WithLabelValues(provider).Observe(time.Since(started).Seconds())
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("empty response from AI")
	}
	if err != nil {
		metrics.AICompletions.WithLabelValues(provider, "failure").Inc()
		return "", err
	}
	metrics.AICompletions.WithLabelValues(provider, "success").Inc()
	return strings.TrimSpace(reply), nil
}

// resolveCredential prefers the tenant's own key. The tenant's key is an
// OpenAI key unless the tenant also chose a provider.
func (s *Service) resolveCredential(settings *models.OrganizationSettingsModel) (Credential, error) {
	if settings != nil && strings.TrimSpace(settings.OpenAIAPIKey) != "" {
		cred := Credential{
			Provider: ProviderOpenAI,
			APIKey:   strings.TrimSpace(settings.OpenAIAPIKey),
			Model:    strings.TrimSpace(settings.AIModel),
		}
		if p := strings.TrimSpace(settings.AIProvider); p != "" {
			cred.Provider = normalizeProviderType(p)
		}
		return cred, nil
	}
	if key := strings.TrimSpace(s.cfg.APIKey); key != "" {
		cred := Credential{
			Provider: normalizeProviderType(s.cfg.Provider),
			APIKey:   key,
			Endpoint: s.cfg.Endpoint,
			Model:    s.cfg.Model,
		}
		if cred.Provider == "" {
			cred.Provider = ProviderOpenAI
		}
		if settings != nil && strings.TrimSpace(settings.AIModel) != "" && strings.TrimSpace(settings.AIProvider) == "" {
			cred.Model = strings.TrimSpace(settings.AIModel)
		}
		return cred, nil
	}
	return Credential{}, errNoCredential
}

func validate(req ChatRequest) error {
	verr := &apperr.ValidationError{}
	switch n := utf8.RuneCountInString(req.Message); {
	case n == 0:
		verr.Add("message", "is required")
	case n > maxMessageLength:
		verr.Add("message", "must be at most 1000 characters")
	}
	switch {
	case req.SessionID == "":
		verr.Add("session_id", "is required")
	case len(req.SessionID) > maxSessionLength:
		verr.Add("session_id", "is too long")
	}
	if req.OrganizationID == "" {
		verr.Add("organization_id", "is required")
	}
	return verr.OrNil()
}

func tail(messages []models.ConversationMessage, n int) []models.ConversationMessage {
	if n <= 0 || len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}

package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/qrdine/core/internal/config"
	"github.com/qrdine/core/internal/models"
	"github.com/qrdine/core/internal/pkg/apperr"
	"github.com/qrdine/core/internal/store/gormstore"
	"github.com/qrdine/core/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeCompleter struct {
	mu    sync.Mutex
	reqs  []CompletionRequest
	reply string
	err   error
}

func (f *fakeCompleter) Complete(_ context.Context, req CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.reply, f.err
}

type fakeRecorder struct {
	mu     sync.Mutex
	types  []string
	data   []map[string]interface{}
	sessID []string
}

func (f *fakeRecorder) Record(_ context.Context, _, eventType string, data map[string]interface{}, sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types = append(f.types, eventType)
	f.data = append(f.data, data)
	f.sessID = append(f.sessID, sessionID)
}

type fixture struct {
	db        *gorm.DB
	store     *gormstore.Store
	svc       *Service
	completer *fakeCompleter
	recorder  *fakeRecorder
	org       *models.OrganizationModel
}

func newFixture(t *testing.T, cfg config.AIRuntimeConfig) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	org := testutil.SeedOrganization(t, db, "Lantern House")

	mains := &models.MenuCategoryModel{OrganizationID: org.ID, Name: "Mains", Visible: true, DisplayOrder: 1}
	hidden := &models.MenuCategoryModel{OrganizationID: org.ID, Name: "Staff meals", Visible: false}
	require.NoError(t, db.Create(mains).Error)
	require.NoError(t, db.Create(hidden).Error)
	require.NoError(t, db.Create(&models.MenuItemModel{
		OrganizationID: org.ID, CategoryID: mains.ID, Name: "Laksa", Price: 14.5,
		Description: "Spicy coconut noodle soup", Allergens: models.StringArray{"shellfish", "peanuts"}, Available: true,
	}).Error)
	require.NoError(t, db.Create(&models.MenuItemModel{
		OrganizationID: org.ID, CategoryID: mains.ID, Name: "Sold Out Satay", Price: 9, Available: false,
	}).Error)
	require.NoError(t, db.Create(&models.MenuItemModel{
		OrganizationID: org.ID, CategoryID: hidden.ID, Name: "Iced Tea", Price: 3, Available: true,
	}).Error)

	st := gormstore.New(db)
	f := &fixture{
		db:        db,
		store:     st,
		completer: &fakeCompleter{reply: "Try the Laksa!"},
		recorder:  &fakeRecorder{},
		org:       org,
	}
	f.svc = NewService(st, f.completer, f.recorder, cfg, nil)
	return f
}

func platformConfig() config.AIRuntimeConfig {
	return config.AIRuntimeConfig{
		Provider:        "openai",
		APIKey:          "platform-key",
		Model:           "gpt-4o-mini",
		TimeoutSeconds:  5,
		MaxHistory:      20,
		MaxOutputTokens: 256,
	}
}

func TestRespondBuildsContextAndPersists(t *testing.T) {
	f := newFixture(t, platformConfig())
	ctx := context.Background()

	out, err := f.svc.Respond(ctx, ChatRequest{Message: " What is spicy? ", SessionID: "sess-1", OrganizationID: f.org.ID})
	require.NoError(t, err)
	assert.Equal(t, "Try the Laksa!", out.Response)
	assert.Equal(t, "sess-1", out.SessionID)

	require.Len(t, f.completer.reqs, 1)
	req := f.completer.reqs[0]
	assert.Equal(t, "platform-key", req.Credential.APIKey)
	assert.Equal(t, ProviderOpenAI, req.Credential.Provider)
	assert.Equal(t, "What is spicy?", req.Message)
	assert.Empty(t, req.History)
	assert.Equal(t, 256, req.MaxOutputTokens)
	assert.Contains(t, req.System, "Lantern House")
	assert.Contains(t, req.System, "Laksa: 14.50")
	assert.Contains(t, req.System, "allergens: shellfish, peanuts")
	assert.Contains(t, req.System, "Iced Tea")
	assert.NotContains(t, req.System, "Sold Out Satay")
	assert.NotContains(t, req.System, "Staff meals")
	assert.Contains(t, req.System, personalities["friendly"])

	conv, err := f.store.GetConversation(ctx, f.org.ID, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, conv)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, roleUser, conv.Messages[0].Role)
	assert.Equal(t, "What is spicy?", conv.Messages[0].Content)
	assert.Equal(t, roleAssistant, conv.Messages[1].Role)

	assert.Equal(t, []string{models.EventAIChatMessage}, f.recorder.types)
	assert.Equal(t, map[string]interface{}{"session_id": "sess-1", "message_length": 14}, f.recorder.data[0])
	assert.Equal(t, "sess-1", f.recorder.sessID[0])

	f.completer.reply = "It has peanuts."
	_, err = f.svc.Respond(ctx, ChatRequest{Message: "Allergens?", SessionID: "sess-1", OrganizationID: f.org.ID})
	require.NoError(t, err)
	require.Len(t, f.completer.reqs, 2)
	assert.Len(t, f.completer.reqs[1].History, 2)

	conv, err = f.store.GetConversation(ctx, f.org.ID, "sess-1")
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 4)
}

func TestRespondCapsHistory(t *testing.T) {
	cfg := platformConfig()
	cfg.MaxHistory = 2
	f := newFixture(t, cfg)
	ctx := context.Background()

	prior := make([]models.ConversationMessage, 0, 6)
	for i := 0; i < 3; i++ {
		prior = append(prior,
			models.ConversationMessage{Role: roleUser, Content: "q"},
			models.ConversationMessage{Role: roleAssistant, Content: "a"},
		)
	}
	prior[4].Content = "last question"
	require.NoError(t, f.store.UpsertConversation(ctx, &models.AIConversationModel{
		OrganizationID: f.org.ID, SessionID: "sess-2", Messages: prior,
	}))

	_, err := f.svc.Respond(ctx, ChatRequest{Message: "hi", SessionID: "sess-2", OrganizationID: f.org.ID})
	require.NoError(t, err)
	history := f.completer.reqs[0].History
	require.Len(t, history, 2)
	assert.Equal(t, "last question", history[0].Content)

	conv, err := f.store.GetConversation(ctx, f.org.ID, "sess-2")
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 8)
}

func TestRespondPrefersTenantCredential(t *testing.T) {
	f := newFixture(t, platformConfig())
	require.NoError(t, f.db.Create(&models.OrganizationSettingsModel{
		OrganizationID: f.org.ID,
		AIPersonality:  "formal",
		OpenAIAPIKey:   "tenant-key",
		AIModel:        "gpt-4o",
	}).Error)

	_, err := f.svc.Respond(context.Background(), ChatRequest{Message: "hello", SessionID: "s", OrganizationID: f.org.ID})
	require.NoError(t, err)
	req := f.completer.reqs[0]
	assert.Equal(t, "tenant-key", req.Credential.APIKey)
	assert.Equal(t, "gpt-4o", req.Credential.Model)
	assert.Equal(t, ProviderOpenAI, req.Credential.Provider)
	assert.Contains(t, req.System, personalities["formal"])
}

func TestRespondWithoutAnyCredential(t *testing.T) {
	cfg := platformConfig()
	cfg.APIKey = ""
	f := newFixture(t, cfg)

	_, err := f.svc.Respond(context.Background(), ChatRequest{Message: "hello", SessionID: "s", OrganizationID: f.org.ID})
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
	assert.Empty(t, f.completer.reqs)
}

func TestRespondCompletionFailurePersistsNothing(t *testing.T) {
	f := newFixture(t, platformConfig())
	f.completer.err = errors.New("rate limited")
	ctx := context.Background()

	_, err := f.svc.Respond(ctx, ChatRequest{Message: "hello", SessionID: "s", OrganizationID: f.org.ID})
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)

	conv, err := f.store.GetConversation(ctx, f.org.ID, "s")
	require.NoError(t, err)
	assert.Nil(t, conv)
	assert.Empty(t, f.recorder.types)

	f.completer.err = nil
	f.completer.reply = "   "
	_, err = f.svc.Respond(ctx, ChatRequest{Message: "hello", SessionID: "s", OrganizationID: f.org.ID})
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
}

func TestRespondRejectsUnknownOrInactiveTenant(t *testing.T) {
	f := newFixture(t, platformConfig())
	ctx := context.Background()

	_, err := f.svc.Respond(ctx, ChatRequest{Message: "hello", SessionID: "s", OrganizationID: "missing"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, f.db.Model(f.org).Update("status", models.OrganizationSuspended).Error)
	_, err = f.svc.Respond(ctx, ChatRequest{Message: "hello", SessionID: "s", OrganizationID: f.org.ID})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Empty(t, f.completer.reqs)
}

func TestRespondValidation(t *testing.T) {
	f := newFixture(t, platformConfig())

	_, err := f.svc.Respond(context.Background(), ChatRequest{Message: strings.Repeat("a", 1001)})
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := make([]string, 0, len(verr.Fields))
	for _, fe := range verr.Fields {
		fields = append(fields, fe.Field)
	}
	assert.Equal(t, []string{"message", "session_id", "organization_id"}, fields)
}

func TestBuildSystemPromptUnknownPersonality(t *testing.T) {
	prompt := buildSystemPrompt(menuContext{Personality: "pirate"})
	assert.Contains(t, prompt, "the restaurant")
	assert.Contains(t, prompt, "Personality: pirate.")
	assert.Contains(t, prompt, "no items are available")
}

func TestWithTranscript(t *testing.T) {
	assert.Equal(t, "sys", withTranscript("sys", nil))
	got := withTranscript("sys", []models.ConversationMessage{
		{Role: roleUser, Content: "is it vegan?"},
		{Role: roleAssistant, Content: "yes"},
	})
	assert.Contains(t, got, "Customer: is it vegan?\nAssistant: yes\n")
}

func TestNormalizeEndpoints(t *testing.T) {
	assert.Equal(t, "https://api.example.com/v1", normalizeOpenAIBaseURL("https://api.example.com/"))
	assert.Equal(t, "https://api.example.com/v1", normalizeOpenAIBaseURL("https://api.example.com/v1"))
	assert.Equal(t, "", normalizeOpenAIBaseURL(" "))
	assert.Equal(t, "https://api.openai.com", normalizeOpenAICompatibleEndpoint(""))
	assert.Equal(t, "https://gw.example.com/proxy", normalizeOpenAICompatibleEndpoint("https://gw.example.com/proxy/v1/"))
	assert.Equal(t, ProviderOpenAICompatible, normalizeProviderType("OpenAI_Compatible"))
}

func TestProviderCompleterOpenAICompatible(t *testing.T) {
	var got struct {
		Model     string              `json:"model"`
		Messages  []map[string]string `json:"messages"`
		MaxTokens int                 `json:"max_tokens"`
	}
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Laksa is great"}}]}`))
	}))
	defer srv.Close()

	p := NewProviderCompleter()
	reply, err := p.Complete(context.Background(), CompletionRequest{
		Credential: Credential{Provider: "openai-compatible", APIKey: "k", Endpoint: srv.URL + "/v1", Model: "local-model"},
		System:     "sys",
		History:    []models.ConversationMessage{{Role: roleUser, Content: "hi"}, {Role: roleAssistant, Content: "hello"}},
		Message:    "what is good?",
	})
	require.NoError(t, err)
	assert.Equal(t, "Laksa is great", reply)
	assert.Equal(t, "Bearer k", auth)
	assert.Equal(t, "/v1/chat/completions", path)
	assert.Equal(t, "local-model", got.Model)
	assert.Equal(t, 500, got.MaxTokens)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0]["role"])
	assert.Equal(t, "assistant", got.Messages[2]["role"])
	assert.Equal(t, "what is good?", got.Messages[3]["content"])
}

func TestProviderCompleterSurfacesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	p := NewProviderCompleter()
	_, err := p.Complete(context.Background(), CompletionRequest{
		Credential: Credential{Provider: ProviderOpenAICompatible, APIKey: "k", Endpoint: srv.URL},
		Message:    "hi",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slow down")

	_, err = p.Complete(context.Background(), CompletionRequest{Credential: Credential{Provider: ProviderOpenAI}})
	assert.Error(t, err)
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t, platformConfig())
	r := gin.New()
	NewHandler(f.svc, nil).RegisterRoutes(r.Group("/api/v1"))

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/ai-chat", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := post(`{"message":"hi","session_id":"s-1","organization_id":"` + f.org.ID + `"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, ChatResponse{Response: "Try the Laksa!", SessionID: "s-1"}, out)

	assert.Equal(t, http.StatusBadRequest, post(`{"message":`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"message":"","session_id":"s","organization_id":"x"}`).Code)
	assert.Equal(t, http.StatusNotFound, post(`{"message":"hi","session_id":"s","organization_id":"nope"}`).Code)

	f.completer.err = context.DeadlineExceeded
	w = post(`{"message":"hi","session_id":"s-1","organization_id":"` + f.org.ID + `"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), "deadline")
}

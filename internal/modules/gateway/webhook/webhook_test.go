package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qrdine/core/internal/config"
	"github.com/qrdine/core/internal/middleware"
	"github.com/qrdine/core/internal/models"
	"github.com/qrdine/core/internal/pkg/apperr"
	"github.com/qrdine/core/internal/pkg/jwt"
	"github.com/qrdine/core/internal/pkg/pagination"
	"github.com/qrdine/core/internal/store/gormstore"
	"github.com/qrdine/core/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	header http.Header
	body   []byte
}

// receiver records every request and answers with the next status from
// statuses, repeating the last one.
type receiver struct {
	mu       sync.Mutex
	got      []received
	statuses []int
	calls    int32
}

func (r *receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	n := int(atomic.AddInt32(&r.calls, 1))

	r.mu.Lock()
	r.got = append(r.got, received{header: req.Header.Clone(), body: body})
	status := http.StatusOK
	if len(r.statuses) > 0 {
		idx := n - 1
		if idx >= len(r.statuses) {
			idx = len(r.statuses) - 1
		}
		status = r.statuses[idx]
	}
	r.mu.Unlock()

	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"received":true}`))
}

func (r *receiver) requests() []received {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]received(nil), r.got...)
}

func testRuntimeConfig() config.WebhookRuntimeConfig {
	return config.WebhookRuntimeConfig{
		Workers:               2,
		QueueSize:             16,
		DefaultTimeoutSeconds: 2,
		DefaultMaxRetries:     3,
		InitialBackoffMS:      1,
		MaxBackoffMS:          5,
		UserAgent:             "qrdine-test",
	}
}

func newFixture(t *testing.T) (*gormstore.Store, *Dispatcher, *Service) {
	t.Helper()
	st := testutil.NewStore(t)
	d := NewDispatcher(st, testRuntimeConfig(), nil)
	return st, d, NewService(st, d, nil)
}

func registerEndpoint(t *testing.T, svc *Service, orgID, url string, events []string, retry bool, maxRetries int) *models.WebhookConfigModel {
	t.Helper()
	cfg, err := svc.Create(context.Background(), orgID, &CreateWebhookDTO{
		URL:          url,
		Events:       events,
		Secret:       "s3cret",
		RetryEnabled: &retry,
		MaxRetries:   &maxRetries,
	})
	require.NoError(t, err)
	return cfg
}

func drain(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
}

func TestDispatchSignsAndDelivers(t *testing.T) {
	rcv := &receiver{}
	srv := httptest.NewServer(rcv)
	defer srv.Close()

	st, d, svc := newFixture(t)
	cfg := registerEndpoint(t, svc, "org-1", srv.URL, []string{"order.completed"}, false, 0)
	d.Start()

	order := map[string]interface{}{"id": "o-1", "order_number": "ORD-1", "total_amount": 130.0}
	d.Dispatch("org-1", "order.completed", "o-1", order, map[string]interface{}{"previous_status": "ready"})
	drain(t, d)

	reqs := rcv.requests()
	require.Len(t, reqs, 1)
	req := reqs[0]

	assert.Equal(t, "application/json", req.header.Get("Content-Type"))
	assert.Equal(t, "order.completed", req.header.Get("X-Webhook-Event"))
	assert.Equal(t, cfg.ID, req.header.Get("X-Webhook-Id"))
	assert.NotEmpty(t, req.header.Get("X-Webhook-Delivery"))
	assert.NotEmpty(t, req.header.Get("X-Webhook-Timestamp"))
	assert.Equal(t, "qrdine-test", req.header.Get("User-Agent"))

	sig := req.header.Get("X-Webhook-Signature")
	assert.True(t, strings.HasPrefix(sig, "sha256="))
	assert.True(t, Verify("s3cret", req.body, sig))
	assert.False(t, Verify("other", req.body, sig))
	assert.Equal(t, "sha256="+Sign("s3cret", req.body), sig)

	var body struct {
		Event     string                 `json:"event"`
		Timestamp string                 `json:"timestamp"`
		Data      map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(req.body, &body))
	assert.Equal(t, "order.completed", body.Event)
	_, err := time.Parse(time.RFC3339, body.Timestamp)
	assert.NoError(t, err)
	assert.Equal(t, "ORD-1", body.Data["order_number"])
	assert.Equal(t, 130.0, body.Data["total_amount"])
	assert.Equal(t, "ready", body.Data["previous_status"])

	items, _, err := st.ListDeliveries(context.Background(), "org-1", cfg.ID, pagination.New(1, 10))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Success)
	assert.Equal(t, 1, items[0].Attempts)
	assert.Equal(t, http.StatusOK, items[0].StatusCode)
	assert.Equal(t, req.header.Get("X-Webhook-Delivery"), items[0].ID)
	assert.NotContains(t, items[0].Headers, "X-Webhook-Signature")
}

func TestDispatchRetriesUntilSuccess(t *testing.T) {
	rcv := &receiver{statuses: []int{500, 502, 200}}
	srv := httptest.NewServer(rcv)
	defer srv.Close()

	st, d, svc := newFixture(t)
	cfg := registerEndpoint(t, svc, "org-1", srv.URL, []string{"*"}, true, 3)
	d.Start()

	d.Dispatch("org-1", "order.created", "o-1", map[string]interface{}{"id": "o-1"}, nil)
	drain(t, d)

	assert.EqualValues(t, 3, atomic.LoadInt32(&rcv.calls))
	items, _, err := st.ListDeliveries(context.Background(), "org-1", cfg.ID, pagination.New(1, 10))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Success)
	assert.Equal(t, 3, items[0].Attempts)
}

func TestDispatchGivesUpAfterMaxRetries(t *testing.T) {
	rcv := &receiver{statuses: []int{503}}
	srv := httptest.NewServer(rcv)
	defer srv.Close()

	st, d, svc := newFixture(t)
	cfg := registerEndpoint(t, svc, "org-1", srv.URL, []string{"order.created"}, true, 2)
	d.Start()

	d.Dispatch("org-1", "order.created", "o-1", map[string]interface{}{"id": "o-1"}, nil)
	drain(t, d)

	assert.EqualValues(t, 3, atomic.LoadInt32(&rcv.calls))
	items, _, err := st.ListDeliveries(context.Background(), "org-1", cfg.ID, pagination.New(1, 10))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.False(t, items[0].Success)
	assert.Equal(t, 3, items[0].Attempts)
	assert.Equal(t, http.StatusServiceUnavailable, items[0].StatusCode)
	assert.Contains(t, items[0].Error, "503")
}

func TestDispatchWithoutRetryMakesOneAttempt(t *testing.T) {
	rcv := &receiver{statuses: []int{500}}
	srv := httptest.NewServer(rcv)
	defer srv.Close()

	_, d, svc := newFixture(t)
	registerEndpoint(t, svc, "org-1", srv.URL, []string{"order.created"}, false, 5)
	d.Start()

	d.Dispatch("org-1", "order.created", "o-1", map[string]interface{}{"id": "o-1"}, nil)
	drain(t, d)

	assert.EqualValues(t, 1, atomic.LoadInt32(&rcv.calls))
}

func TestDispatchZeroMaxRetriesMakesOneAttempt(t *testing.T) {
	rcv := &receiver{statuses: []int{500}}
	srv := httptest.NewServer(rcv)
	defer srv.Close()

	st, d, svc := newFixture(t)
	cfg := registerEndpoint(t, svc, "org-1", srv.URL, []string{"order.created"}, true, 0)
	require.Equal(t, 0, cfg.MaxRetries)
	d.Start()

	d.Dispatch("org-1", "order.created", "o-1", map[string]interface{}{"id": "o-1"}, nil)
	drain(t, d)

	assert.EqualValues(t, 1, atomic.LoadInt32(&rcv.calls))
	items, _, err := st.ListDeliveries(context.Background(), "org-1", cfg.ID, pagination.New(1, 10))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.False(t, items[0].Success)
	assert.Equal(t, 1, items[0].Attempts)
}

func TestServiceCreateAppliesDefaultMaxRetries(t *testing.T) {
	_, _, svc := newFixture(t)
	cfg, err := svc.Create(context.Background(), "org-1", &CreateWebhookDTO{
		URL:    "http://example.test/hook",
		Events: []string{"*"},
	})
	require.NoError(t, err)
	assert.Equal(t, testRuntimeConfig().DefaultMaxRetries, cfg.MaxRetries)
	assert.True(t, cfg.RetryEnabled)
}

func TestDispatchHonoursSubscriptionsAndTenants(t *testing.T) {
	subscribed := &receiver{}
	other := &receiver{}
	foreign := &receiver{}
	s1 := httptest.NewServer(subscribed)
	s2 := httptest.NewServer(other)
	s3 := httptest.NewServer(foreign)
	defer s1.Close()
	defer s2.Close()
	defer s3.Close()

	_, d, svc := newFixture(t)
	registerEndpoint(t, svc, "org-1", s1.URL, []string{"order.created", "order.updated"}, false, 0)
	registerEndpoint(t, svc, "org-1", s2.URL, []string{"order.cancelled"}, false, 0)
	registerEndpoint(t, svc, "org-2", s3.URL, []string{"all"}, false, 0)

	inactive := false
	_, err := svc.Create(context.Background(), "org-1", &CreateWebhookDTO{URL: s2.URL, Events: []string{"*"}, IsActive: &inactive})
	require.NoError(t, err)

	d.Start()
	d.Dispatch("org-1", "order.created", "o-1", map[string]interface{}{"id": "o-1"}, nil)
	drain(t, d)

	assert.Len(t, subscribed.requests(), 1)
	assert.Empty(t, other.requests())
	assert.Empty(t, foreign.requests())
}

func TestDispatchNeverBlocksTheCaller(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer slow.Close()
	defer close(release)

	_, d, svc := newFixture(t)
	registerEndpoint(t, svc, "org-1", slow.URL, []string{"*"}, false, 0)
	d.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_ = d.Shutdown(ctx)
	}()

	started := time.Now()
	for i := 0; i < 50; i++ {
		d.Dispatch("org-1", "order.updated", "o-1", map[string]interface{}{"id": "o-1"}, nil)
	}
	assert.Less(t, time.Since(started), 500*time.Millisecond)
}

func TestDispatchDropsWhenQueueIsFull(t *testing.T) {
	st := testutil.NewStore(t)
	cfg := testRuntimeConfig()
	cfg.QueueSize = 1
	d := NewDispatcher(st, cfg, nil)

	assert.True(t, d.enqueue(job{orgID: "org-1", event: "order.created"}))
	assert.False(t, d.enqueue(job{orgID: "org-1", event: "order.created"}))

	require.NoError(t, d.Shutdown(context.Background()))
	d.Dispatch("org-1", "order.created", "o-1", nil, nil)
}

func TestDispatchSurvivesUnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	st, d, svc := newFixture(t)
	cfg := registerEndpoint(t, svc, "org-1", url, []string{"*"}, false, 0)
	d.Start()

	d.Dispatch("org-1", "order.created", "o-1", map[string]interface{}{"id": "o-1"}, nil)
	drain(t, d)

	items, _, err := st.ListDeliveries(context.Background(), "org-1", cfg.ID, pagination.New(1, 10))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.False(t, items[0].Success)
	assert.Zero(t, items[0].StatusCode)
	assert.NotEmpty(t, items[0].Error)
}

func TestServiceTestDelivery(t *testing.T) {
	rcv := &receiver{}
	srv := httptest.NewServer(rcv)
	defer srv.Close()

	_, _, svc := newFixture(t)
	cfg := registerEndpoint(t, svc, "org-1", srv.URL, []string{"order.created"}, true, 3)

	result, err := svc.Test(context.Background(), "org-1", cfg.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, http.StatusOK, result.StatusCode)

	reqs := rcv.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, EventTest, reqs[0].header.Get("X-Webhook-Event"))

	_, err = svc.Test(context.Background(), "org-2", cfg.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestServiceRedispatch(t *testing.T) {
	rcv := &receiver{}
	srv := httptest.NewServer(rcv)
	defer srv.Close()

	st, d, svc := newFixture(t)
	cfg := registerEndpoint(t, svc, "org-1", srv.URL, []string{"*"}, false, 0)
	d.Start()
	defer drain(t, d)

	d.Dispatch("org-1", "order.created", "o-1", map[string]interface{}{"id": "o-1"}, nil)
	require.Eventually(t, func() bool {
		items, _, err := st.ListDeliveries(context.Background(), "org-1", cfg.ID, pagination.New(1, 10))
		return err == nil && len(items) == 1
	}, 5*time.Second, 10*time.Millisecond)

	items, _, err := svc.ListDeliveries(context.Background(), "org-1", cfg.ID, pagination.New(1, 10))
	require.NoError(t, err)
	require.NoError(t, svc.Redispatch(context.Background(), "org-1", items[0].ID))
	require.Eventually(t, func() bool { return len(rcv.requests()) == 2 }, 5*time.Second, 10*time.Millisecond)

	reqs := rcv.requests()
	assert.Equal(t, string(reqs[0].body), string(reqs[1].body))
	assert.NotEqual(t, reqs[0].header.Get("X-Webhook-Delivery"), reqs[1].header.Get("X-Webhook-Delivery"))

	assert.ErrorIs(t, svc.Redispatch(context.Background(), "org-2", items[0].ID), apperr.ErrNotFound)

	off := false
	_, err = svc.Update(context.Background(), "org-1", cfg.ID, &UpdateWebhookDTO{IsActive: &off})
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Redispatch(context.Background(), "org-1", items[0].ID), apperr.ErrValidation)
}

func TestServicePruneDeliveries(t *testing.T) {
	rcv := &receiver{}
	srv := httptest.NewServer(rcv)
	defer srv.Close()

	_, d, svc := newFixture(t)
	cfg := registerEndpoint(t, svc, "org-1", srv.URL, []string{"*"}, false, 0)
	_, err := svc.Test(context.Background(), "org-1", cfg.ID)
	require.NoError(t, err)

	retention := 30 * 24 * time.Hour
	n, err := svc.PruneDeliveries(context.Background(), retention)
	require.NoError(t, err)
	assert.Zero(t, n)

	d.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }
	n, err = svc.PruneDeliveries(context.Background(), retention)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = svc.PruneDeliveries(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNormalizeWebhookEvents(t *testing.T) {
	got, err := normalizeWebhookEvents([]string{" Order.Created", "order.created", "order.cancelled"})
	require.NoError(t, err)
	assert.Equal(t, []string{"order.created", "order.cancelled"}, got)

	got, err = normalizeWebhookEvents([]string{"order.created", "ALL"})
	require.NoError(t, err)
	assert.Equal(t, []string{"*"}, got)

	_, err = normalizeWebhookEvents([]string{"post.created"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = normalizeWebhookEvents([]string{" "})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	assert.True(t, webhookContainsEvent([]string{"*"}, "order.updated"))
	assert.True(t, webhookContainsEvent([]string{"order.updated"}, "ORDER.UPDATED"))
	assert.False(t, webhookContainsEvent([]string{"order.created"}, "order.updated"))
}

func TestServiceCreateGeneratesSecret(t *testing.T) {
	_, _, svc := newFixture(t)
	cfg, err := svc.Create(context.Background(), "org-1", &CreateWebhookDTO{URL: "http://example.test/hook", Events: []string{"order.created"}})
	require.NoError(t, err)
	assert.Len(t, cfg.Secret, 40)
	assert.True(t, cfg.IsActive)
	assert.True(t, cfg.RetryEnabled)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 2, cfg.TimeoutSeconds)
}

func TestHandlerScopesToStaffOrganization(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, _, svc := newFixture(t)
	tokens, err := jwt.New("secret", time.Hour)
	require.NoError(t, err)

	r := gin.New()
	NewHandler(svc, nil).RegisterRoutes(r.Group("/api/v1"), middleware.StaffAuth(tokens))

	call := func(method, path, token, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	owner, err := tokens.Sign("staff-1", "org-1", "owner")
	require.NoError(t, err)
	intruder, err := tokens.Sign("staff-2", "org-2", "owner")
	require.NoError(t, err)

	w := call(http.MethodPost, "/api/v1/webhooks", owner, `{"url":"http://example.test/hook","events":["order.created"]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created webhookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.Secret)

	w = call(http.MethodGet, "/api/v1/webhooks", owner, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), created.Secret)
	assert.Contains(t, w.Body.String(), created.ID)

	w = call(http.MethodGet, "/api/v1/webhooks/"+created.ID, intruder, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = call(http.MethodPatch, "/api/v1/webhooks/"+created.ID, owner, `{"events":["bogus"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(http.MethodGet, "/api/v1/webhooks?organization_id=org-2", owner, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = call(http.MethodPost, "/api/v1/webhooks", owner, `{"url":"not a url","events":["order.created"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(http.MethodGet, "/api/v1/webhooks", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = call(http.MethodDelete, "/api/v1/webhooks/"+created.ID, owner, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

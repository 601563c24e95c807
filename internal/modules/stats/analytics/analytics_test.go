package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qrdine/core/internal/middleware"
	"github.com/qrdine/core/internal/models"
	"github.com/qrdine/core/internal/pkg/jwt"
	"github.com/qrdine/core/internal/pkg/pagination"
	"github.com/qrdine/core/internal/pkg/response"
	"github.com/qrdine/core/internal/store"
	"github.com/qrdine/core/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type failingEvents struct{ store.Events }

func (failingEvents) InsertEvent(context.Context, *models.AnalyticsEventModel) error {
	return errors.New("disk full")
}

func TestRecorderSwallowsFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	rec := NewRecorder(failingEvents{}, zap.New(core))

	assert.NotPanics(t, func() {
		rec.Record(context.Background(), "org-1", models.EventOrderCreated, nil, "")
	})
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "record analytics event failed", logs.All()[0].Message)
}

func TestRecorderSurvivesCancelledContext(t *testing.T) {
	st := testutil.NewStore(t)
	rec := NewRecorder(st, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Record(ctx, "org-1", models.EventTableCallRequested, map[string]interface{}{"table_id": "t"}, "s")

	items, pag, err := st.ListEvents(context.Background(), store.EventFilter{OrganizationID: "org-1"}, pagination.New(1, 10))
	require.NoError(t, err)
	assert.EqualValues(t, 1, pag.Total)
	assert.Equal(t, "t", items[0].EventData["table_id"])
	assert.Equal(t, "s", items[0].SessionID)
}

func TestHandlerScopesToStaffOrganization(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := testutil.NewStore(t)
	rec := NewRecorder(st, zap.NewNop())
	ctx := context.Background()
	rec.Record(ctx, "org-1", models.EventOrderCreated, nil, "s1")
	rec.Record(ctx, "org-1", models.EventOrderCreated, nil, "s2")
	rec.Record(ctx, "org-1", models.EventAIChatMessage, nil, "s1")
	rec.Record(ctx, "org-2", models.EventOrderCreated, nil, "s3")

	tokens, err := jwt.New("secret", time.Hour)
	require.NoError(t, err)
	token, err := tokens.Sign("staff-1", "org-1", "manager")
	require.NoError(t, err)

	r := gin.New()
	NewHandler(NewService(st), zap.NewNop()).RegisterRoutes(r.Group("/api/v1"), middleware.StaffAuth(tokens))

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := get("/api/v1/analytics/summary")
	require.Equal(t, http.StatusOK, w.Code)
	var summary Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.EqualValues(t, 3, summary.Total)
	assert.EqualValues(t, 2, summary.Counts[models.EventOrderCreated])

	w = get("/api/v1/analytics/events?event_type=order_created&size=1")
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Data       []models.AnalyticsEventModel `json:"data"`
		Pagination response.Pagination          `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Len(t, page.Data, 1)
	assert.EqualValues(t, 2, page.Pagination.Total)

	assert.Equal(t, http.StatusForbidden, get("/api/v1/analytics/events?organization_id=org-2").Code)
	assert.Equal(t, http.StatusBadRequest, get("/api/v1/analytics/summary?since=yesterday").Code)
	assert.Equal(t, http.StatusOK, get("/api/v1/analytics/summary?since=1h").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/summary", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

package tablecall

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qrdine/core/internal/middleware"
	"github.com/qrdine/core/internal/models"
	"github.com/qrdine/core/internal/pkg/apperr"
	"github.com/qrdine/core/internal/pkg/jwt"
	"github.com/qrdine/core/internal/store/gormstore"
	"github.com/qrdine/core/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	mu    sync.Mutex
	types []string
	data  []map[string]interface{}
}

func (f *fakeRecorder) Record(_ context.Context, _, eventType string, data map[string]interface{}, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types = append(f.types, eventType)
	f.data = append(f.data, data)
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeBroadcaster) BroadcastToOrganization(_, event string, _ interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

type fixture struct {
	svc      *Service
	recorder *fakeRecorder
	hub      *fakeBroadcaster
	org      *models.OrganizationModel
	table    *models.TableModel
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	org := testutil.SeedOrganization(t, db, "Pier 7")
	table := testutil.SeedTable(t, db, org.ID, "12")
	f := &fixture{recorder: &fakeRecorder{}, hub: &fakeBroadcaster{}, org: org, table: table}
	f.svc = NewService(gormstore.New(db), f.recorder, f.hub, nil)
	f.svc.now = func() time.Time { return time.Date(2026, 3, 1, 19, 30, 0, 0, time.UTC) }
	return f
}

func TestCreateDefaultsToServiceCall(t *testing.T) {
	f := newFixture(t)

	call, err := f.svc.Create(context.Background(), &CreateCallDTO{
		OrganizationID: f.org.ID,
		TableID:        f.table.ID,
		CustomerNote:   "  more napkins please ",
	})
	require.NoError(t, err)
	assert.Equal(t, "service", call.CallType)
	assert.Equal(t, models.TableCallPending, call.Status)
	assert.Equal(t, "more napkins please", call.CustomerNote)
	require.NotNil(t, call.Table)
	assert.Equal(t, "12", call.Table.TableNumber)

	assert.Equal(t, []string{models.EventTableCallRequested}, f.recorder.types)
	assert.Equal(t, map[string]interface{}{"table_id": f.table.ID, "call_type": "service"}, f.recorder.data[0])
	assert.Equal(t, []string{RealtimeTableCallCreated}, f.hub.events)
}

func TestCreateRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, &CreateCallDTO{})
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 2)

	_, err = f.svc.Create(ctx, &CreateCallDTO{OrganizationID: f.org.ID, TableID: "missing"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.Create(ctx, &CreateCallDTO{OrganizationID: "other-org", TableID: f.table.ID})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	assert.Empty(t, f.recorder.types)
	assert.Empty(t, f.hub.events)
}

func TestUpdateStatusLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	call, err := f.svc.Create(ctx, &CreateCallDTO{OrganizationID: f.org.ID, TableID: f.table.ID, CallType: "bill"})
	require.NoError(t, err)

	got, err := f.svc.UpdateStatus(ctx, f.org.ID, call.ID, "Acknowledged")
	require.NoError(t, err)
	assert.Equal(t, models.TableCallAcknowledged, got.Status)
	assert.Nil(t, got.ResolvedAt)

	_, err = f.svc.UpdateStatus(ctx, f.org.ID, call.ID, "pending")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	got, err = f.svc.UpdateStatus(ctx, f.org.ID, call.ID, "resolved")
	require.NoError(t, err)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, got.ResolvedAt.Equal(time.Date(2026, 3, 1, 19, 30, 0, 0, time.UTC)))

	_, err = f.svc.UpdateStatus(ctx, f.org.ID, call.ID, "resolved")
	assert.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, "other-org", call.ID, "resolved")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.UpdateStatus(ctx, f.org.ID, call.ID, "done")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	calls, err := f.svc.List(ctx, f.org.ID, "resolved")
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "bill", calls[0].CallType)

	calls, err = f.svc.List(ctx, f.org.ID, "pending")
	require.NoError(t, err)
	assert.Empty(t, calls)
	assert.NotNil(t, calls)

	assert.Equal(t, []string{RealtimeTableCallCreated, RealtimeTableCallUpdated, RealtimeTableCallUpdated}, f.hub.events)
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t)
	tokens, err := jwt.New("secret", time.Hour)
	require.NoError(t, err)
	staff, err := tokens.Sign("staff-1", f.org.ID, "staff")
	require.NoError(t, err)

	r := gin.New()
	NewHandler(f.svc, nil).RegisterRoutes(r.Group("/api/v1"), middleware.StaffAuth(tokens))

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

	w := call(http.MethodPost, "/api/v1/table-calls", "", `{"organization_id":"`+f.org.ID+`","table_id":"`+f.table.ID+`"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Call    models.TableCallModel `json:"call"`
		Message string                `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "Table call request created successfully", created.Message)

	w = call(http.MethodPost, "/api/v1/table-calls", "", `{"table_id":"`+f.table.ID+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(http.MethodGet, "/api/v1/table-calls", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(http.MethodGet, "/api/v1/table-calls?organization_id="+f.org.ID, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Calls []models.TableCallModel `json:"calls"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed.Calls, 1)

	w = call(http.MethodPatch, "/api/v1/table-calls/"+created.Call.ID, "", `{"status":"resolved"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = call(http.MethodPatch, "/api/v1/table-calls/"+created.Call.ID, staff, `{"status":"resolved"}`)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

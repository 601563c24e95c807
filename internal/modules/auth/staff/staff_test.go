package staff

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qrdine/core/internal/middleware"
	"github.com/qrdine/core/internal/pkg/apperr"
	"github.com/qrdine/core/internal/pkg/jwt"
	"github.com/qrdine/core/internal/store/gormstore"
	"github.com/qrdine/core/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	svc    *Service
	tokens *jwt.Manager
	orgID  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	org := testutil.SeedOrganization(t, db, "Harbor Kitchen")
	tokens, err := jwt.New("test-secret", time.Hour)
	require.NoError(t, err)

	svc := NewService(gormstore.New(db), tokens, nil)
	svc.cost = bcrypt.MinCost
	return &fixture{svc: svc, tokens: tokens, orgID: org.ID}
}

func (f *fixture) create(t *testing.T, email, password string) {
	t.Helper()
	_, err := f.svc.Create(context.Background(), &CreateStaffDTO{
		OrganizationID: f.orgID,
		Email:          email,
		Password:       password,
		Role:           "manager",
	})
	require.NoError(t, err)
}

func TestCreateHashesPassword(t *testing.T) {
	f := newFixture(t)

	member, err := f.svc.Create(context.Background(), &CreateStaffDTO{
		OrganizationID: f.orgID,
		Email:          "  Ana@Example.com ",
		Password:       "correct horse",
	})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", member.Email)
	assert.Equal(t, "ana@example.com", member.Name)
	assert.Equal(t, "staff", string(member.Role))
	assert.NotEqual(t, "correct horse", member.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(member.PasswordHash), []byte("correct horse")))
}

func TestCreateRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, &CreateStaffDTO{Email: "nope", Password: "short", Role: "chef"})
	var ve *apperr.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Fields, 4)

	_, err = f.svc.Create(ctx, &CreateStaffDTO{OrganizationID: "missing", Email: "a@b.co", Password: "long enough"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	f.create(t, "dup@example.com", "long enough")
	_, err = f.svc.Create(ctx, &CreateStaffDTO{OrganizationID: f.orgID, Email: "DUP@example.com", Password: "long enough"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestLoginIssuesScopedToken(t *testing.T) {
	f := newFixture(t)
	f.create(t, "ana@example.com", "correct horse")

	token, member, err := f.svc.Login(context.Background(), "ANA@example.com", "correct horse")
	require.NoError(t, err)

	claims, err := f.tokens.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, member.ID, claims.StaffID)
	assert.Equal(t, f.orgID, claims.OrganizationID)
	assert.Equal(t, "manager", claims.Role)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)
	f.create(t, "ana@example.com", "correct horse")

	_, _, err := f.svc.Login(context.Background(), "ana@example.com", "wrong horse")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, _, err = f.svc.Login(context.Background(), "ghost@example.com", "correct horse")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestHandlerLoginAndMe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t)
	f.create(t, "ana@example.com", "correct horse")

	r := gin.New()
	NewHandler(f.svc, nil).RegisterRoutes(r.Group("/api/v1"), middleware.StaffAuth(f.tokens))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"email":"ana@example.com","password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"email":"ana@example.com","password":"correct horse"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body loginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.Token)
	assert.Equal(t, "ana@example.com", body.Staff.Email)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+body.Token)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), f.orgID)
}

package analytics

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qrdine/core/internal/middleware"
	"github.com/qrdine/core/internal/pkg/pagination"
	"github.com/qrdine/core/internal/pkg/response"
	"github.com/qrdine/core/internal/store"
	"go.uber.org/zap"
)

type Handler struct {
	svc *Service
	log *zap.Logger
}

func NewHandler(svc *Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log.Named("AnalyticsHandler")}
}

// RegisterRoutes mounts the read side. Every route is scoped to the staff
// member's organization.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/analytics", authMW)
	g.GET("/events", h.events)
	g.GET("/summary", h.summary)
}

func (h *Handler) events(c *gin.Context) {
	orgID, ok := middleware.ScopedOrganization(c)
	if !ok {
		return
	}
	since, ok := parseSince(c)
	if !ok {
		return
	}
	filter := store.EventFilter{
		OrganizationID: orgID,
		EventType:      strings.TrimSpace(c.Query("event_type")),
		SessionID:      strings.TrimSpace(c.Query("session_id")),
		Since:          since,
	}
	items, pag, err := h.svc.List(c.Request.Context(), filter, pagination.FromContext(c))
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	response.Paged(c, items, pag)
}

func (h *Handler) summary(c *gin.Context) {
	orgID, ok := middleware.ScopedOrganization(c)
	if !ok {
		return
	}
	since, ok := parseSince(c)
	if !ok {
		return
	}
	out, err := h.svc.Summary(c.Request.Context(), orgID, since)
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	response.OK(c, out)
}

// parseSince reads ?since= as RFC3339 or a duration such as 24h.
func parseSince(c *gin.Context) (time.Time, bool) {
	raw := strings.TrimSpace(c.Query("since"))
	if raw == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return time.Now().Add(-d), true
	}
	response.BadRequest(c, "since must be an RFC3339 timestamp or a positive duration")
	return time.Time{}, false
}

package webhook

import (
	"github.com/gin-gonic/gin"
	"github.com/qrdine/core/internal/middleware"
	"github.com/qrdine/core/internal/pkg/pagination"
	"github.com/qrdine/core/internal/pkg/response"
	"go.uber.org/zap"
)

// Handler wires webhook HTTP endpoints. Every route acts on the staff
// member's own organization.
type Handler struct {
	svc *Service
	log *zap.Logger
}

func NewHandler(svc *Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log.Named("WebhookHandler")}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/webhooks", authMW)
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/events", h.listEventsEnum)
	g.GET("/deliveries", h.listDeliveries)
	g.POST("/deliveries/:id/redispatch", h.redispatch)
	g.GET("/:id", h.get)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", h.delete)
	g.POST("/:id/test", h.test)
	g.GET("/:id/deliveries", h.listDeliveries)
}

func (h *Handler) list(c *gin.Context) {
	orgID, ok := middleware.ScopedOrganization(c)
	if !ok {
		return
	}
	items, err := h.svc.List(c.Request.Context(), orgID)
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	out := make([]webhookResponse, len(items))
	for i := range items {
		out[i] = toResponse(&items[i])
	}
	response.OK(c, out)
}

func (h *Handler) get(c *gin.Context) {
	orgID, ok := middleware.ScopedOrganization(c)
	if !ok {
		return
	}
	w, err := h.svc.Get(c.Request.Context(), orgID, c.Param("id"))
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	response.OK(c, toResponse(w))
}

func (h *Handler) create(c *gin.Context) {
	orgID, ok := middleware.ScopedOrganization(c)
	if !ok {
		return
	}
	var dto CreateWebhookDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	w, err := h.svc.Create(c.Request.Context(), orgID, &dto)
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	out := toResponse(w)
	out.Secret = w.Secret
	response.Created(c, out)
}

func (h *Handler) update(c *gin.Context) {
	orgID, ok := middleware.ScopedOrganization(c)
	if !ok {
		return
	}
	var dto UpdateWebhookDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	w, err := h.svc.Update(c.Request.Context(), orgID, c.Param("id"), &dto)
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	response.OK(c, toResponse(w))
}

func (h *Handler) delete(c *gin.Context) {
	orgID, ok := middleware.ScopedOrganization(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), orgID, c.Param("id")); err != nil {
		response.Error(c, h.log, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) test(c *gin.Context) {
	orgID, ok := middleware.ScopedOrganization(c)
	if !ok {
		return
	}
	result, err := h.svc.Test(c.Request.Context(), orgID, c.Param("id"))
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	response.OK(c, result)
}

func (h *Handler) listEventsEnum(c *gin.Context) {
	response.OK(c, webhookEventEnum)
}

func (h *Handler) listDeliveries(c *gin.Context) {
	orgID, ok := middleware.ScopedOrganization(c)
	if !ok {
		return
	}
	webhookID := c.Param("id")
	if webhookID == "" {
		webhookID = c.Query("webhook_id")
	}
	items, pag, err := h.svc.ListDeliveries(c.Request.Context(), orgID, webhookID, pagination.FromContext(c))
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	response.Paged(c, items, pag)
}

func (h *Handler) redispatch(c *gin.Context) {
	orgID, ok := middleware.ScopedOrganization(c)
	if !ok {
		return
	}
	if err := h.svc.Redispatch(c.Request.Context(), orgID, c.Param("id")); err != nil {
		response.Error(c, h.log, err)
		return
	}
	response.NoContent(c)
}

package order

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/qrdine/core/internal/pkg/response"
	"github.com/qrdine/core/internal/store"
	"go.uber.org/zap"
)

const maxStatusBodyBytes = 4 << 10

type Handler struct {
	svc *Service
	log *zap.Logger
}

func NewHandler(svc *Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log.Named("OrderHandler")}
}

// RegisterRoutes mounts the order endpoints. submitMW guards order
// submission, typically the idempotence middleware.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, submitMW ...gin.HandlerFunc) {
	orders := rg.Group("/orders")

	orders.POST("", append(submitMW, h.create)...)
	orders.GET("", h.list)
	orders.GET("/:id", h.get)
	orders.PATCH("/:id", h.updateStatus)
}

func (h *Handler) create(c *gin.Context) {
	in, err := DecodeCreate(http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes))
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	order, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	response.Created(c, gin.H{
		"order":   order,
		"message": "Order created successfully",
	})
}

func (h *Handler) list(c *gin.Context) {
	filter := store.OrderFilter{
		SessionID:      c.Query("session_id"),
		OrganizationID: c.Query("organization_id"),
	}
	if raw := c.Query("status"); raw != "" {
		status, ok := ParseStatus(raw)
		if !ok {
			response.BadRequest(c, "Invalid status")
			return
		}
		filter.Status = status
	}
	orders, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) get(c *gin.Context) {
	order, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (h *Handler) updateStatus(c *gin.Context) {
	status, err := DecodeStatus(http.MaxBytesReader(c.Writer, c.Request.Body, maxStatusBodyBytes))
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	order, err := h.svc.UpdateStatus(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order":   order,
		"message": "Order status updated successfully",
	})
}

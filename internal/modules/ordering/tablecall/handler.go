package tablecall

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/qrdine/core/internal/middleware"
	"github.com/qrdine/core/internal/pkg/response"
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
	return &Handler{svc: svc, log: log.Named("TableCallHandler")}
}

// RegisterRoutes mounts the table call endpoints. Customers create and list
// calls; acknowledging or resolving one requires staff auth.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/table-calls")
	g.POST("", h.create)
	g.GET("", h.list)
	g.PATCH("/:id", authMW, h.updateStatus)
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateCallDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	call, err := h.svc.Create(c.Request.Context(), &dto)
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	response.Created(c, gin.H{
		"call":    call,
		"message": "Table call request created successfully",
	})
}

func (h *Handler) list(c *gin.Context) {
	calls, err := h.svc.List(c.Request.Context(), c.Query("organization_id"), c.Query("status"))
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": calls})
}

func (h *Handler) updateStatus(c *gin.Context) {
	orgID, ok := middleware.ScopedOrganization(c)
	if !ok {
		return
	}
	var dto UpdateCallDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	call, err := h.svc.UpdateStatus(c.Request.Context(), orgID, c.Param("id"), dto.Status)
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"call":    call,
		"message": "Table call updated successfully",
	})
}

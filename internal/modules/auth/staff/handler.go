package staff

import (
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
	return &Handler{svc: svc, log: log.Named("StaffHandler")}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/auth")
	g.POST("/login", h.login)
	g.GET("/me", authMW, h.me)
}

func (h *Handler) login(c *gin.Context) {
	var dto LoginDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	token, member, err := h.svc.Login(c.Request.Context(), dto.Email, dto.Password)
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	response.OK(c, loginResponse{Token: token, Staff: toResponse(member)})
}

func (h *Handler) me(c *gin.Context) {
	response.OK(c, gin.H{
		"staff_id":        middleware.CurrentStaffID(c),
		"organization_id": middleware.CurrentOrganizationID(c),
		"role":            c.GetString(middleware.ContextKeyRole),
	})
}

package ai

import (
	"net/http"

	"github.com/gin-gonic/gin"
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
	return &Handler{svc: svc, log: log.Named("AIChatHandler")}
}

// RegisterRoutes mounts the customer chat endpoint. chatMW typically rate
// limits anonymous callers.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, chatMW ...gin.HandlerFunc) {
	rg.POST("/ai-chat", append(chatMW, h.chat)...)
}

func (h *Handler) chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request data")
		return
	}
	out, err := h.svc.Respond(c.Request.Context(), req)
	if err != nil {
		response.Error(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

package response

import (
	"errors"
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"
	"github.com/qrdine/core/internal/pkg/apperr"
	"go.uber.org/zap"
)

const internalErrorMessage = "Internal server error"

// Pagination metadata returned with paginated responses.
type Pagination struct {
	Total       int64 `json:"total"`
	CurrentPage int   `json:"current_page"`
	TotalPage   int   `json:"total_page"`
	Size        int   `json:"size"`
	HasNextPage bool  `json:"has_next_page"`
}

type pagedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// OK sends a 200 response. Arrays/slices are wrapped in {data: [...]}.
func OK(c *gin.Context, data interface{}) {
	if data != nil {
		v := reflect.ValueOf(data)
		if v.Kind() == reflect.Slice {
			c.JSON(http.StatusOK, gin.H{"data": data})
			return
		}
	}
	c.JSON(http.StatusOK, data)
}

// Paged sends a paginated response.
func Paged(c *gin.Context, data interface{}, pagination Pagination) {
	c.JSON(http.StatusOK, pagedResponse{
		Data:       data,
		Pagination: pagination,
	})
}

// Created sends a 201 response.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"ok": 0, "code": status, "message": message})
}

// BadRequest sends a 400 error response.
func BadRequest(c *gin.Context, message string) {
	abort(c, http.StatusBadRequest, message)
}

// Unauthorized sends a 401 error response.
func Unauthorized(c *gin.Context) {
	abort(c, http.StatusUnauthorized, "Authentication required")
}

// Forbidden sends a 403 error response.
func Forbidden(c *gin.Context) {
	abort(c, http.StatusForbidden, "Access to this organization is not allowed")
}

// NotFound sends a 404 error response.
func NotFound(c *gin.Context) {
	abort(c, http.StatusNotFound, "Not found")
}

// NotFoundMsg sends a 404 error with a custom message.
func NotFoundMsg(c *gin.Context, message string) {
	abort(c, http.StatusNotFound, message)
}

// InternalError sends a 500 error response. The cause is never exposed.
func InternalError(c *gin.Context) {
	abort(c, http.StatusInternalServerError, internalErrorMessage)
}

// Conflict sends a 409 error response.
func Conflict(c *gin.Context, message string) {
	abort(c, http.StatusConflict, message)
}

// BadGateway sends a 502 error response.
func BadGateway(c *gin.Context, message string) {
	abort(c, http.StatusBadGateway, message)
}

// Error maps a service error onto the matching status. Store and unknown
// errors are logged with the request path and answered generically.
func Error(c *gin.Context, log *zap.Logger, err error) {
	var ve *apperr.ValidationError
	var te *apperr.TransitionError
	var nf *apperr.NotFoundError

	switch {
	case errors.As(err, &ve):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"ok":      0,
			"code":    http.StatusBadRequest,
			"message": "Validation failed",
			"details": ve.Fields,
		})
	case errors.As(err, &te):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"ok":      0,
			"code":    http.StatusBadRequest,
			"message": te.Error(),
			"from":    te.From,
			"to":      te.To,
		})
	case errors.As(err, &nf):
		NotFoundMsg(c, capitalize(nf.Error()))
	case errors.Is(err, apperr.ErrNotFound):
		NotFound(c)
	case errors.Is(err, apperr.ErrUnauthorized):
		Unauthorized(c)
	case errors.Is(err, apperr.ErrConflict):
		Conflict(c, "The resource was modified concurrently, please retry")
	case errors.Is(err, apperr.ErrUpstreamUnavailable):
		logError(log, c, err)
		BadGateway(c, "The assistant is temporarily unavailable")
	default:
		logError(log, c, err)
		InternalError(c)
	}
}

func logError(log *zap.Logger, c *gin.Context, err error) {
	if log == nil {
		return
	}
	log.Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}

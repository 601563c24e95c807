package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/qrdine/core/internal/pkg/jwt"
	"github.com/qrdine/core/internal/pkg/response"
)

const (
	ContextKeyStaffID        = "staff_id"
	ContextKeyOrganizationID = "organization_id"
	ContextKeyRole           = "staff_role"
)

// StaffAuth requires a valid staff token and stores its claims on the
// context.
func StaffAuth(tokens *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := tokens.Parse(extractToken(c))
		if err != nil {
			response.Unauthorized(c)
			return
		}
		c.Set(ContextKeyStaffID, claims.StaffID)
		c.Set(ContextKeyOrganizationID, claims.OrganizationID)
		c.Set(ContextKeyRole, claims.Role)
		c.Next()
	}
}

// OptionalStaffAuth stores claims when a valid token is present, but does
// not block the request.
func OptionalStaffAuth(tokens *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := extractToken(c); token != "" {
			if claims, err := tokens.Parse(token); err == nil {
				c.Set(ContextKeyStaffID, claims.StaffID)
				c.Set(ContextKeyOrganizationID, claims.OrganizationID)
				c.Set(ContextKeyRole, claims.Role)
			}
		}
		c.Next()
	}
}

// CurrentStaffID extracts the authenticated staff ID from context.
func CurrentStaffID(c *gin.Context) string {
	return c.GetString(ContextKeyStaffID)
}

// CurrentOrganizationID extracts the organization the staff token is bound to.
func CurrentOrganizationID(c *gin.Context) string {
	return c.GetString(ContextKeyOrganizationID)
}

// IsAuthenticated returns true if the request carries valid staff claims.
func IsAuthenticated(c *gin.Context) bool {
	return CurrentStaffID(c) != ""
}

// ScopedOrganization returns the staff member's organization. A conflicting
// organization_id query parameter aborts with 403.
func ScopedOrganization(c *gin.Context) (string, bool) {
	orgID := CurrentOrganizationID(c)
	if orgID == "" {
		response.Unauthorized(c)
		return "", false
	}
	if q := strings.TrimSpace(c.Query("organization_id")); q != "" && q != orgID {
		response.Forbidden(c)
		return "", false
	}
	return orgID, true
}

func extractToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		return NormalizeToken(auth)
	}
	return NormalizeToken(c.Query("token"))
}

// NormalizeToken trims spaces and strips optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}

package staff

import (
	"errors"
	"time"

	"github.com/qrdine/core/internal/models"
)

type LoginDTO struct {
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// CreateStaffDTO provisions a dashboard account. It is used by the CLI.
type CreateStaffDTO struct {
	OrganizationID string
	Email          string
	Name           string
	Password       string
	Role           string
}

type staffResponse struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
}

type loginResponse struct {
	Token string         `json:"token"`
	Staff *staffResponse `json:"staff"`
}

const minPasswordLength = 8

var errInvalidCredentials = errors.New("invalid email or password")

func toResponse(m *models.StaffModel) *staffResponse {
	return &staffResponse{
		ID:             m.ID,
		OrganizationID: m.OrganizationID,
		Email:          m.Email,
		Name:           m.Name,
		Role:           string(m.Role),
		CreatedAt:      m.CreatedAt,
	}
}

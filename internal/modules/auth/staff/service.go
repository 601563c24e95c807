package staff

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/qrdine/core/internal/models"
	"github.com/qrdine/core/internal/pkg/apperr"
	"github.com/qrdine/core/internal/pkg/jwt"
	"github.com/qrdine/core/internal/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type Store interface {
	store.Organizations
	store.Staff
}

type Service struct {
	store  Store
	tokens *jwt.Manager
	log    *zap.Logger
	cost   int
}

func NewService(st Store, tokens *jwt.Manager, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: st, tokens: tokens, log: log.Named("StaffService"), cost: bcrypt.DefaultCost}
}

// Login checks the password and returns a token bound to the staff
// member's organization. Unknown emails and wrong passwords are not
// distinguished.
func (s *Service) Login(ctx context.Context, email, password string) (string, *models.StaffModel, error) {
	member, err := s.store.GetStaffByEmail(ctx, email)
	if err != nil {
		return "", nil, err
	}
	if member == nil {
		return "", nil, fmt.Errorf("%w: %w", apperr.ErrUnauthorized, errInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(member.PasswordHash), []byte(password)); err != nil {
		s.log.Info("staff login rejected", zap.String("staff_id", member.ID))
		return "", nil, fmt.Errorf("%w: %w", apperr.ErrUnauthorized, errInvalidCredentials)
	}

	token, err := s.tokens.Sign(member.ID, member.OrganizationID, string(member.Role))
	if err != nil {
		return "", nil, err
	}
	s.log.Info("staff logged in",
		zap.String("staff_id", member.ID),
		zap.String("organization_id", member.OrganizationID),
	)
	return token, member, nil
}

// Create hashes the password and stores a new staff member.
func (s *Service) Create(ctx context.Context, dto *CreateStaffDTO) (*models.StaffModel, error) {
	ve := &apperr.ValidationError{}
	orgID := strings.TrimSpace(dto.OrganizationID)
	email := strings.ToLower(strings.TrimSpace(dto.Email))
	if orgID == "" {
		ve.Add("organization_id", "is required")
	}
	if email == "" || !strings.Contains(email, "@") {
		ve.Add("email", "must be a valid email address")
	}
	if len(dto.Password) < minPasswordLength {
		ve.Add("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	role, ok := parseRole(dto.Role)
	if !ok {
		ve.Add("role", "must be one of owner, manager, staff")
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, apperr.NotFound("organization")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(dto.Password), s.cost)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(dto.Name)
	if name == "" {
		name = email
	}
	member := &models.StaffModel{
		OrganizationID: org.ID,
		Email:          email,
		Name:           name,
		PasswordHash:   string(hash),
		Role:           role,
	}
	if err := s.store.CreateStaff(ctx, member); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, apperr.Invalid("email", "is already registered")
		}
		return nil, err
	}
	return member, nil
}

func parseRole(raw string) (models.StaffRole, bool) {
	switch models.StaffRole(strings.ToLower(strings.TrimSpace(raw))) {
	case "", models.StaffMember:
		return models.StaffMember, true
	case models.StaffManager:
		return models.StaffManager, true
	case models.StaffOwner:
		return models.StaffOwner, true
	}
	return "", false
}

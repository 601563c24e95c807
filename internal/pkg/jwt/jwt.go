package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const issuer = "qrdine"

// Claims is the staff token payload. Every staff request is scoped to the
// organization it carries.
type Claims struct {
	StaffID        string `json:"sid"`
	OrganizationID string `json:"oid"`
	Role           string `json:"role"`
	jwtlib.RegisteredClaims
}

// Manager signs and verifies HS256 staff tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

// New returns a Manager. The secret must be non-empty.
func New(secret string, ttl time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Manager{secret: []byte(secret), ttl: ttl}, nil
}

// Sign creates a signed token for a staff member.
func (m *Manager) Sign(staffID, orgID, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		StaffID:        staffID,
		OrganizationID: orgID,
		Role:           role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    issuer,
			Subject:   staffID,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Parse validates a token string and returns the claims.
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	token, err := jwtlib.ParseWithClaims(tokenStr, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwtlib.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.OrganizationID == "" {
		return nil, fmt.Errorf("token has no organization")
	}
	return claims, nil
}

package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	appctx "backoffice/internal/core/context"
)

const staffInfo = "backoffice/staff-session/v1"

// StaffClaims are the claims of a back-office session token.
// Sessions are issued by the external identity service; this package only verifies them.
type StaffClaims struct {
	jwt.RegisteredClaims
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// StaffValidator verifies staff bearer tokens for the HTTP auth middleware.
type StaffValidator struct {
	key []byte
	now func() time.Time
}

// NewStaffValidator derives the staff key from the master secret.
func NewStaffValidator(secret []byte) (*StaffValidator, error) {
	key, err := DeriveKey(secret, staffInfo)
	if err != nil {
		return nil, err
	}
	return &StaffValidator{key: key, now: time.Now}, nil
}

// Sign issues a staff token. Used by operational tooling and tests.
func (v *StaffValidator) Sign(userID, email string, roles []string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := StaffClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: email,
		Roles: roles,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken validates a staff JWT and returns the user context.
func (v *StaffValidator) ValidateToken(tokenString string) (*appctx.UserContext, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &StaffClaims{},
		func(t *jwt.Token) (any, error) {
			return v.key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := parsed.Claims.(*StaffClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("invalid token claims")
	}

	return &appctx.UserContext{
		UserID: claims.Subject,
		Email:  claims.Email,
		Roles:  claims.Roles,
	}, nil
}

// Package token issues and validates the signed capability tokens that let an
// unauthenticated supplier act on exactly one order.
//
// Tokens are self-contained: validity is decided by signature and expiry
// alone, with no server-side store. Replay after a terminal transition is
// prevented by the order's own status, not by the token.
package token

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/id"
)

// Kind is the order kind a token is bound to.
type Kind string

const (
	KindPurchaseOrder Kind = "purchase_order"
	KindReorder       Kind = "reorder"
)

// IsValid checks if kind is known.
func (k Kind) IsValid() bool {
	return k == KindPurchaseOrder || k == KindReorder
}

const (
	issuer          = "backoffice"
	audience        = "supplier-order"
	capabilityInfo  = "backoffice/capability-token/v1"
	minSecretLength = 32
)

// Claims is the decoded payload of a valid token.
type Claims struct {
	OrderID        id.ID
	CounterpartyID id.ID
	Kind           Kind
	IssuedAt       time.Time
	ExpiresAt      time.Time
}

type capabilityClaims struct {
	Kind         Kind   `json:"knd"`
	Counterparty string `json:"cpy"`
	jwt.RegisteredClaims
}

// Authority signs and verifies capability tokens (HS256).
type Authority struct {
	key []byte
	now func() time.Time
}

// NewAuthority derives the signing key from the master secret with HKDF-SHA256,
// so capability tokens can never be confused with other tokens signed from the same secret.
func NewAuthority(secret []byte) (*Authority, error) {
	key, err := DeriveKey(secret, capabilityInfo)
	if err != nil {
		return nil, err
	}
	return &Authority{key: key, now: time.Now}, nil
}

// DeriveKey expands a purpose-specific 32-byte key from the master secret.
func DeriveKey(secret []byte, info string) ([]byte, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes", minSecretLength)
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", info, err)
	}
	return key, nil
}

// Issue returns a signed token binding {order, counterparty, kind} valid for ttlDays.
func (a *Authority) Issue(orderID, counterpartyID id.ID, kind Kind, ttlDays int) (string, error) {
	if !kind.IsValid() {
		return "", fmt.Errorf("unknown order kind %q", kind)
	}
	if ttlDays <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %d days", ttlDays)
	}

	now := a.now().UTC()
	claims := capabilityClaims{
		Kind:         kind,
		Counterparty: counterpartyID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			Subject:   orderID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttlDays) * 24 * time.Hour)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate checks signature and expiry and returns the claims.
// Failures are AppErrors with code TOKEN_EXPIRED or TOKEN_INVALID.
func (a *Authority) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &capabilityClaims{},
		func(t *jwt.Token) (any, error) {
			return a.key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperror.NewTokenError(apperror.CodeTokenExpired, "token has expired").WithCause(err)
		}
		return nil, apperror.NewTokenError(apperror.CodeTokenInvalid, "token is invalid").WithCause(err)
	}

	c, ok := parsed.Claims.(*capabilityClaims)
	if !ok || !parsed.Valid {
		return nil, apperror.NewTokenError(apperror.CodeTokenInvalid, "token is invalid")
	}

	orderID, err := id.Parse(c.Subject)
	if err != nil {
		return nil, apperror.NewTokenError(apperror.CodeTokenInvalid, "token subject is malformed").WithCause(err)
	}
	counterpartyID, err := id.Parse(c.Counterparty)
	if err != nil {
		return nil, apperror.NewTokenError(apperror.CodeTokenInvalid, "token counterparty is malformed").WithCause(err)
	}
	if !c.Kind.IsValid() {
		return nil, apperror.NewTokenError(apperror.CodeTokenInvalid, "token kind is unknown")
	}

	out := &Claims{
		OrderID:        orderID,
		CounterpartyID: counterpartyID,
		Kind:           c.Kind,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time.UTC()
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time.UTC()
	}
	return out, nil
}

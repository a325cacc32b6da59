// Package context provides request-scoped values extraction.
package context

import (
	"context"

	"backoffice/internal/core/entity"
)

// UserContext contains the authenticated back-office user.
// Supplier endpoints never carry one: suppliers act through capability tokens.
type UserContext struct {
	UserID string
	Email  string
	Roles  []string
}

type userContextKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetUserID returns user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return ""
}

// StaffActor converts the request's user into an explicit actor for the core services.
// The second result is false when the request is unauthenticated.
func StaffActor(ctx context.Context) (entity.Actor, bool) {
	u := GetUser(ctx)
	if u == nil || u.UserID == "" {
		return entity.Actor{}, false
	}
	return entity.StaffActor(u.UserID), true
}

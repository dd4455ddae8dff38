package auth

import (
	"context"
	"slices"

	"github.com/xenking/ecomify/internal/domain/failure"
)

// ScopeAdmin marks an administrator key.
const ScopeAdmin = "admin"

var (
	// ErrUnauthorized is returned when no valid API key was presented.
	ErrUnauthorized = failure.Unauthorized("auth.unauthorized", "invalid or missing API key")
	// ErrForbidden is returned when the caller lacks a required scope.
	ErrForbidden = failure.Forbidden("auth.forbidden", "insufficient scope")
)

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key grants scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	return slices.Contains(k.Scopes, scope)
}

// IsAdmin reports whether the key carries the admin scope.
func (k *APIKeyInfo) IsAdmin() bool {
	return k.HasScope(ScopeAdmin)
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
	Create(ctx context.Context, key *APIKeyInfo) error
}

type callerKey struct{}

// WithCaller stores the authenticated key in ctx.
func WithCaller(ctx context.Context, k *APIKeyInfo) context.Context {
	return context.WithValue(ctx, callerKey{}, k)
}

// CallerFrom returns the authenticated key stored in ctx.
func CallerFrom(ctx context.Context) (*APIKeyInfo, bool) {
	k, ok := ctx.Value(callerKey{}).(*APIKeyInfo)
	return k, ok && k != nil
}

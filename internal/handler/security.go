package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/ecomify/internal/domain/auth"
)

// HeaderAPIKey carries the raw API key.
const HeaderAPIKey = "X-API-Key"

// authenticate resolves the X-API-Key header to its stored key and puts it in
// the request context. The stored hash is re-checked in constant time.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(HeaderAPIKey)
		if raw == "" {
			writeError(w, r, auth.ErrUnauthorized)
			return
		}

		ctx := r.Context()
		info, err := h.apikeys.FindByHash(ctx, auth.HashKey(h.pepper, raw))
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthorized) {
				zctx.From(ctx).Warn("API key lookup failed", zap.Error(err))
			}
			writeError(w, r, auth.ErrUnauthorized)
			return
		}
		if !auth.VerifyKey(h.pepper, raw, info.KeyHash) {
			writeError(w, r, auth.ErrUnauthorized)
			return
		}

		ctx = auth.WithCaller(ctx, info)
		ctx = zctx.With(ctx, zap.String("api_key_id", info.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireScope rejects authenticated callers without scope.
func requireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := auth.CallerFrom(r.Context())
			if !ok {
				writeError(w, r, auth.ErrUnauthorized)
				return
			}
			if !caller.HasScope(scope) {
				writeError(w, r, auth.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// caller returns the authenticated key. Routes reaching it are behind
// authenticate.
func caller(r *http.Request) *auth.APIKeyInfo {
	k, ok := auth.CallerFrom(r.Context())
	if !ok {
		panic("handler: caller missing from authenticated route")
	}
	return k
}

// owns reports whether the caller may see a resource of customerID.
func owns(k *auth.APIKeyInfo, customerID string) bool {
	return k.ID == customerID || k.IsAdmin()
}

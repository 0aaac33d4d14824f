package handler

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/sales-engine/internal/domain/auth"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "api_key"

var errUnauthorized = errors.New("unauthorized")

// SecurityHandler authenticates API requests via HMAC-SHA256 hashed API keys.
type SecurityHandler struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurityHandler creates a SecurityHandler with the given API key
// repository and HMAC pepper.
func NewSecurityHandler(apikeys auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// Authenticate resolves key to its stored record and returns a context
// carrying it as the request principal.
func (s *SecurityHandler) Authenticate(ctx context.Context, key string) (context.Context, error) {
	if key == "" {
		return ctx, errUnauthorized
	}
	hash := auth.HashKey(s.pepper, key)

	info, err := s.apikeys.FindByHash(ctx, hex.EncodeToString(hash))
	switch {
	case errors.Is(err, auth.ErrNotFound):
		return ctx, errUnauthorized
	case err != nil:
		return ctx, errors.Wrap(err, "find api key")
	}

	// The repository matched on the hash; compare again in constant time in
	// case it returned a different row.
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
		return ctx, errUnauthorized
	}

	return auth.WithPrincipal(ctx, info), nil
}

// Middleware rejects requests without a valid API key with 401. Lookup
// failures are 500.
func (s *SecurityHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := s.Authenticate(r.Context(), r.Header.Get(APIKeyHeader))
		switch {
		case errors.Is(err, errUnauthorized):
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		case err != nil:
			zctx.From(r.Context()).Error("API key lookup failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

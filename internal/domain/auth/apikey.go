package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no active API key has the given hash.
var ErrNotFound = errors.New("api key not found")

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// Repository provides lookup of API keys by their HMAC hash. FindByHash
// returns ErrNotFound for unknown or inactive keys.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

type principalKey struct{}

// WithPrincipal returns a context carrying the authenticated API key.
func WithPrincipal(ctx context.Context, info *APIKeyInfo) context.Context {
	return context.WithValue(ctx, principalKey{}, info)
}

// PrincipalFrom returns the authenticated API key stored in ctx, if any.
func PrincipalFrom(ctx context.Context) (*APIKeyInfo, bool) {
	info, ok := ctx.Value(principalKey{}).(*APIKeyInfo)
	return info, ok && info != nil
}

// HashKey returns HMAC-SHA256(pepper, key). Stored key hashes are its hex
// encoding.
func HashKey(pepper []byte, key string) []byte {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return mac.Sum(nil)
}

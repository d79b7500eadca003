package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// AdminIdentity describes a caller that passed the admin guard.
type AdminIdentity struct {
	// KeyFingerprint is a short non-reversible digest of the presented key, safe to log.
	KeyFingerprint string
	RemoteIP       string
}

type contextKey string

const adminContextKey contextKey = "github.com/eurocoin-catalog/api/internal/platform/auth/admin"

// WithAdmin stores the admin identity within the context for downstream handlers.
func WithAdmin(ctx context.Context, identity *AdminIdentity) context.Context {
	return context.WithValue(ctx, adminContextKey, identity)
}

// AdminFromContext retrieves the admin identity previously stored in context.
func AdminFromContext(ctx context.Context) (*AdminIdentity, bool) {
	if ctx == nil {
		return nil, false
	}
	identity, ok := ctx.Value(adminContextKey).(*AdminIdentity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

func fingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:6])
}

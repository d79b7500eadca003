package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"go.uber.org/zap"

	"github.com/eurocoin-catalog/api/internal/platform/requestctx"
)

// AdminGuard protects administration routes with a static bearer API key and an optional
// source address allowlist.
type AdminGuard struct {
	apiKey            []byte
	allowAll          bool
	allowed           []netip.Prefix
	trustForwardedFor bool
	logger            *zap.Logger
}

// Option customises AdminGuard behaviour.
type Option func(*AdminGuard)

// WithAllowedIPs restricts callers to the listed addresses or CIDR ranges.
// "0.0.0.0" or "*" admits any address. Unparseable entries are ignored.
func WithAllowedIPs(entries []string) Option {
	return func(g *AdminGuard) {
		for _, entry := range entries {
			entry = strings.TrimSpace(entry)
			switch entry {
			case "":
				continue
			case "*", "0.0.0.0", "0.0.0.0/0":
				g.allowAll = true
				continue
			}
			if prefix, err := netip.ParsePrefix(entry); err == nil {
				g.allowed = append(g.allowed, prefix.Masked())
				continue
			}
			if addr, err := netip.ParseAddr(entry); err == nil {
				g.allowed = append(g.allowed, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			}
		}
	}
}

// WithTrustForwardedFor makes the guard read the client address from X-Forwarded-For / X-Real-IP.
// Enable only behind a proxy that overwrites these headers.
func WithTrustForwardedFor(trust bool) Option {
	return func(g *AdminGuard) {
		g.trustForwardedFor = trust
	}
}

// WithLogger sets the logger used for rejected attempts.
func WithLogger(logger *zap.Logger) Option {
	return func(g *AdminGuard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewAdminGuard constructs a guard for apiKey. An empty key rejects every request.
func NewAdminGuard(apiKey string, opts ...Option) *AdminGuard {
	g := &AdminGuard{
		apiKey: []byte(strings.TrimSpace(apiKey)),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	if len(g.allowed) == 0 {
		g.allowAll = true
	}
	return g
}

// RequireAdmin verifies the source address and the Authorization bearer key.
func (g *AdminGuard) RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g == nil || len(g.apiKey) == 0 {
				respondAuthError(w, http.StatusServiceUnavailable, "admin_unconfigured", "admin authentication not configured")
				return
			}
			clientIP := g.ClientIP(r)
			if !g.ipAllowed(clientIP) {
				g.logger.Warn("admin access denied for address", zap.String("remote_ip", clientIP))
				respondAuthError(w, http.StatusForbidden, "forbidden", "address not authorised for admin access")
				return
			}

			token, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "admin authentication required")
				return
			}
			if subtle.ConstantTimeCompare([]byte(token), g.apiKey) != 1 {
				g.logger.Warn("invalid admin api key", zap.String("remote_ip", clientIP))
				w.Header().Set("WWW-Authenticate", "Bearer")
				respondAuthError(w, http.StatusUnauthorized, "invalid_token", "invalid admin api key")
				return
			}

			identity := &AdminIdentity{KeyFingerprint: fingerprint(token), RemoteIP: clientIP}
			requestctx.Annotate(r.Context(), zap.String("admin_key", identity.KeyFingerprint))
			next.ServeHTTP(w, r.WithContext(WithAdmin(r.Context(), identity)))
		})
	}
}

// ClientIP resolves the caller address, honouring proxy headers when trusted.
func (g *AdminGuard) ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if g != nil && g.trustForwardedFor {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
			if first != "" {
				return first
			}
		}
		if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
			return real
		}
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func (g *AdminGuard) ipAllowed(raw string) bool {
	if g == nil {
		return false
	}
	if g.allowAll {
		return true
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range g.allowed {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}

	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}

func respondAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   code,
		"message": message,
		"status":  status,
	})
}

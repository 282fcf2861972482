package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/openaid/donation-market/pkg/logger"
)

type ctxKey string

const ctxIdentityKey ctxKey = "identity"

// IdentityClaims are the JWT claims the middleware accepts. The subject is
// the opaque caller identity the core trusts completely.
type IdentityClaims struct {
	DisplayName string `json:"display_name,omitempty"`
	jwt.RegisteredClaims
}

// IdentityMiddleware resolves the caller identity from the Authorization
// header. Static tokens map directly to identities (development and tests);
// otherwise the bearer token is parsed as an HMAC-signed JWT and the subject
// claim becomes the identity.
type IdentityMiddleware struct {
	staticTokens map[string]string
	jwtSecret    []byte
	log          *logger.Logger
	skipPaths    map[string]bool
}

// NewIdentityMiddleware builds the middleware. staticTokens may be nil;
// jwtSecret may be empty if only static tokens are used.
func NewIdentityMiddleware(staticTokens map[string]string, jwtSecret []byte, log *logger.Logger, skipPaths []string) *IdentityMiddleware {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	skip := make(map[string]bool)
	for _, path := range skipPaths {
		skip[path] = true
	}
	return &IdentityMiddleware{
		staticTokens: staticTokens,
		jwtSecret:    jwtSecret,
		log:          log,
		skipPaths:    skip,
	}
}

// Handler returns the middleware handler.
func (m *IdentityMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("missing Authorization header"))
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid Authorization header format"))
			return
		}
		token := parts[1]

		identity, err := m.resolve(token)
		if err != nil {
			m.log.WithError(err).Warn("token validation failed")
			writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid token"))
			return
		}

		ctx := context.WithValue(r.Context(), ctxIdentityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *IdentityMiddleware) resolve(token string) (string, error) {
	if identity, ok := m.staticTokens[token]; ok {
		return identity, nil
	}
	if len(m.jwtSecret) == 0 {
		return "", fmt.Errorf("unknown token")
	}

	claims := &IdentityClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.jwtSecret, nil
	})
	if err != nil {
		return "", err
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return claims.Subject, nil
}

// callerIdentity returns the identity resolved by the middleware, or the
// empty string for unauthenticated paths.
func callerIdentity(r *http.Request) string {
	if v, ok := r.Context().Value(ctxIdentityKey).(string); ok {
		return v
	}
	return ""
}

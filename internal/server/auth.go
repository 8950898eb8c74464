package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/crag-go/internal/logging"
)

// authMiddleware enforces Bearer token authentication on protected routes.
// An empty apiKey disables auth entirely (the server logs a startup warning
// for that case); otherwise requests must carry:
//
//	Authorization: Bearer <apiKey>
//
// Failures get 401 with a WWW-Authenticate challenge. The presented token is
// compared in constant time and never logged.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContext(r.Context())

		token := bearerToken(r)
		switch {
		case token == "":
			log.Warn("auth: missing Authorization header",
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="crag"`)
			http.Error(w, "authorization required", http.StatusUnauthorized)

		case subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1:
			log.Warn("auth: invalid token",
				slog.String("path", r.URL.Path),
				slog.Bool("token_present", true),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="crag" error="invalid_token"`)
			http.Error(w, "invalid token", http.StatusUnauthorized)

		default:
			next.ServeHTTP(w, r)
		}
	})
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header, accepting any case for the scheme. Returns "" when the header is
// absent, uses a different scheme, or carries no token.
func bearerToken(r *http.Request) string {
	scheme, rest, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(rest)
}

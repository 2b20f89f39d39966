package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/raterudder/leneda/pkg/log"
)

func oidcAuthenticator(v *oidc.IDTokenVerifier) tokenAuthenticator {
	return func(ctx context.Context, rawIDToken string) (string, error) {
		idToken, err := v.Verify(ctx, rawIDToken)
		if err != nil {
			return "", fmt.Errorf("failed to verify id token: %w", err)
		}
		var claims struct {
			Email         string `json:"email"`
			EmailVerified bool   `json:"email_verified"`
		}
		if err := idToken.Claims(&claims); err != nil {
			return "", fmt.Errorf("failed to parse id token claims: %w", err)
		}
		if claims.Email == "" {
			return "", errors.New("id token has no email")
		}
		return claims.Email, nil
	}
}

// bearerToken returns the token from the Authorization header, falling back
// to the auth cookie. ok is false if the header is present but malformed.
func bearerToken(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		if !strings.HasPrefix(h, "Bearer ") {
			return "", false
		}
		return strings.TrimPrefix(h, "Bearer "), true
	}
	if c, err := r.Cookie(authTokenCookie); err == nil {
		return c.Value, true
	}
	return "", true
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("reqPath", r.URL.Path)))

		if s.bypassAuth {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			log.Ctx(ctx).WarnContext(ctx, "invalid auth header")
			writeJSONError(w, "invalid auth header", http.StatusBadRequest)
			return
		}
		if token == "" {
			log.Ctx(ctx).WarnContext(ctx, "unauthenticated request")
			writeJSONError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if s.authenticate == nil {
			log.Ctx(ctx).ErrorContext(ctx, "no token authenticator configured")
			writeJSONError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		email, err := s.authenticate(ctx, token)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "auth token validation failed", slog.Any("error", err))
			writeJSONError(w, "invalid auth token", http.StatusUnauthorized)
			return
		}

		allowed := s.isAdmin(email) || len(s.adminEmails) == 0
		// the scheduler account may only trigger refreshes
		if !allowed && r.Method == http.MethodPost && r.URL.Path == "/api/refresh" && s.updateSpecificEmail != "" {
			allowed = subtle.ConstantTimeCompare([]byte(email), []byte(s.updateSpecificEmail)) == 1
		}
		if !allowed {
			log.Ctx(ctx).WarnContext(ctx, "email is not allowed", slog.String("email", email))
			writeJSONError(w, "access denied", http.StatusForbidden)
			return
		}

		ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("authEmail", email)))
		log.Ctx(ctx).DebugContext(ctx, "authenticated request")
		ctx = context.WithValue(ctx, emailContextKey, email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) getEmail(r *http.Request) string {
	email, _ := r.Context().Value(emailContextKey).(string)
	return email
}

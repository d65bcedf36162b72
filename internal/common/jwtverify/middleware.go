package jwtverify

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/AlibekovAA/worktime/backend/internal/common/constants"
	commonhttp "github.com/AlibekovAA/worktime/backend/internal/common/http"
	"github.com/AlibekovAA/worktime/backend/internal/common/logger"
)

// Claims is the authenticated principal attached to the request context.
type Claims struct {
	UserID    string
	Email     string
	CompanyID string
	JTI       string
	ExpiresAt time.Time
}

// Authenticator verifies a raw bearer token, including revocation.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (Claims, error)
}

type contextKey string

const claimsKey contextKey = "jwt_claims"

func Middleware(auth Authenticator, log *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				log.WithFields(r.Context(), logger.Fields{
					"path":   r.URL.Path,
					"action": "jwt_missing_authorization",
				}).Warn("jwt auth failed: missing or invalid authorization header")
				commonhttp.WriteErrorEnvelope(w, http.StatusUnauthorized, commonhttp.CodeMissingAuthorization,
					"missing or invalid authorization", nil, commonhttp.TraceIDFromContext(r.Context()))
				return
			}

			claims, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				log.WithFields(r.Context(), logger.Fields{
					"path":   r.URL.Path,
					"action": "jwt_auth_failed",
				}).Warnf("jwt auth failed: %v", err)
				commonhttp.HandleError(w, r, err, log)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func WithClaims(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func FromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(Claims)
	return claims, ok
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	raw := r.Header.Get("Authorization")
	prefix := constants.TokenTypeBearer + " "
	if len(raw) <= len(prefix) || !strings.EqualFold(raw[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(raw[len(prefix):])
	return token, token != ""
}

package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ideahub/internal/api/response"
	"github.com/kiranshivaraju/ideahub/internal/auth"
	"github.com/kiranshivaraju/ideahub/internal/safego"
	"github.com/kiranshivaraju/ideahub/pkg/models"
)

// APIKeyHeader carries the raw API key.
const APIKeyHeader = "x-api-key"

const usageTimeout = 5 * time.Second

// KeyValidator resolves raw API keys. *auth.Authenticator implements it.
type KeyValidator interface {
	Prefix() string
	Validate(ctx context.Context, raw string) (*models.KeyRecord, error)
	RecordUsage(ctx context.Context, keyID uuid.UUID) error
}

// Auth provides authentication and permission-checking middleware.
type Auth struct {
	keys KeyValidator
}

// NewAuth creates a new Auth middleware.
func NewAuth(keys KeyValidator) *Auth {
	return &Auth{keys: keys}
}

// Authenticate validates the x-api-key header and stores the resolved key
// record in the request context. Usage is recorded in the background.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(APIKeyHeader))
		if raw == "" {
			authFailure(w, "missing", "API key required. Include x-api-key header.")
			return
		}

		if !strings.HasPrefix(raw, a.keys.Prefix()) {
			authFailure(w, "format", "Invalid API key format")
			return
		}

		rec, err := a.keys.Validate(r.Context(), raw)
		switch {
		case errors.Is(err, auth.ErrKeyNotFound):
			authFailure(w, "unknown", "Invalid API key")
			return
		case err != nil:
			slog.Error("api key validation failed", "error", err)
			authFailure(w, "error", "Authentication failed")
			return
		case !rec.IsValid:
			authFailure(w, "invalid", "API key is expired or inactive")
			return
		}

		keyID := rec.KeyID
		safego.Go("record api key usage", func() {
			ctx, cancel := context.WithTimeout(context.Background(), usageTimeout)
			defer cancel()
			if err := a.keys.RecordUsage(ctx, keyID); err != nil {
				slog.Warn("record api key usage failed", "key_id", keyID, "error", err)
			}
		})

		next.ServeHTTP(w, r.WithContext(SetKeyRecord(r.Context(), rec)))
	})
}

// RequirePermission checks that the authenticated key may use the request
// method: GET needs read, anything else needs write.
func (a *Auth) RequirePermission(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec, ok := GetKeyRecord(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "API key required. Include x-api-key header.", nil)
			return
		}

		required := RequiredPermission(r.Method)
		if !rec.HasPermission(required) {
			response.Error(w, http.StatusForbidden, "Insufficient permissions. Required: "+required, nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequiredPermission maps an HTTP method to the capability it needs.
func RequiredPermission(method string) string {
	if method == http.MethodGet {
		return models.PermissionRead
	}
	return models.PermissionWrite
}

func authFailure(w http.ResponseWriter, reason, message string) {
	authFailures.WithLabelValues(reason).Inc()
	response.Error(w, http.StatusUnauthorized, message, nil)
}

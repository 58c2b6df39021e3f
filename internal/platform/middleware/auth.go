package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// KeyStore looks up per-workspace API key hashes. Workspaces without a row
// fall back to the global key.
type KeyStore interface {
	SecretHash(ctx context.Context, workspaceID string) (string, bool, error)
}

type contextKeyWorkspace struct{}

// ContextKeyWorkspace is exported for tests that build contexts directly.
var ContextKeyWorkspace = contextKeyWorkspace{}

// GetWorkspace retrieves the authenticated workspace ID from the context.
func GetWorkspace(ctx context.Context) string {
	workspace, ok := ctx.Value(ContextKeyWorkspace).(string)
	if !ok {
		return ""
	}
	return workspace
}

// WithWorkspace injects a workspace ID, for service tests that skip HTTP.
func WithWorkspace(ctx context.Context, workspaceID string) context.Context {
	return context.WithValue(ctx, ContextKeyWorkspace, workspaceID)
}

// RequireAPIKey authenticates requests by x-workspace-id and x-api-key.
// Workspaces with a stored secret are checked against its bcrypt hash;
// everything else compares against the global key in constant time.
func RequireAPIKey(keys KeyStore, globalKey, defaultWorkspace string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestID(ctx)

			workspaceID := r.Header.Get("x-workspace-id")
			if workspaceID == "" {
				workspaceID = r.URL.Query().Get("workspace_id")
			}
			if workspaceID == "" {
				workspaceID = defaultWorkspace
			}

			apiKey := r.Header.Get("x-api-key")
			if apiKey == "" {
				unauthorized(w, logger, ctx, requestID, "missing api key")
				return
			}

			if keys != nil {
				hash, found, err := keys.SecretHash(ctx, workspaceID)
				if err != nil {
					logger.ErrorContext(ctx, "api key lookup failed",
						"request_id", requestID,
						"workspace_id", workspaceID,
						"error", err.Error(),
					)
					w.WriteHeader(http.StatusServiceUnavailable)
					_, _ = w.Write([]byte(`{"error":"unavailable"}`))
					return
				}
				if found {
					if bcrypt.CompareHashAndPassword([]byte(hash), []byte(apiKey)) != nil {
						unauthorized(w, logger, ctx, requestID, "workspace key mismatch")
						return
					}
					next.ServeHTTP(w, r.WithContext(WithWorkspace(ctx, workspaceID)))
					return
				}
			}

			if globalKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(globalKey)) != 1 {
				unauthorized(w, logger, ctx, requestID, "global key mismatch")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithWorkspace(ctx, workspaceID)))
		})
	}
}

func unauthorized(w http.ResponseWriter, logger *slog.Logger, ctx context.Context, requestID, reason string) {
	logger.WarnContext(ctx, "unauthorized request",
		"request_id", requestID,
		"reason", reason,
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}

// Package middleware provides HTTP middleware for the compile API.
package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Header names.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderAPIToken  = "X-Runnerform-Token"
)

// =============================================================================
// Request ID Middleware
// =============================================================================

// RequestID keeps the caller's X-Request-ID or assigns a new UUID, stores it
// where chi's middleware.GetReqID finds it and echoes it in the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, reqID)
		ctx := context.WithValue(r.Context(), chimiddleware.RequestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// =============================================================================
// Token Middleware
// =============================================================================

// TokenConfig holds configuration for the token middleware.
type TokenConfig struct {
	// Token is the shared secret expected in the X-Runnerform-Token header.
	// If empty, token validation is skipped.
	Token string

	// Logger for rejected requests.
	Logger *slog.Logger
}

// RequireToken rejects requests that do not carry the configured token.
func RequireToken(cfg TokenConfig) func(http.Handler) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		if cfg.Token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(HeaderAPIToken)
			if subtle.ConstantTimeCompare([]byte(got), []byte(cfg.Token)) != 1 {
				cfg.Logger.Warn("invalid API token",
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
					"request_id", chimiddleware.GetReqID(r.Context()),
				)
				writeJSONError(w, http.StatusUnauthorized, "invalid or missing API token", "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// JSON Error Response
// =============================================================================

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSONError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: message, Code: code})
}

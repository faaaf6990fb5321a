package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LoginRequired rejects requests without a valid bearer token signed with
// key. A nil key disables the check.
func LoginRequired(key []byte, onDenied func(r *http.Request)) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if key == nil {
				next.ServeHTTP(w, r)
				return
			}

			// Get bearer token from request
			token := r.Header.Get("Authorization")
			if !strings.HasPrefix(token, "Bearer ") {
				if onDenied != nil {
					onDenied(r)
				}
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := ParseToken(key, strings.TrimPrefix(token, "Bearer "))
			if err != nil {
				if onDenied != nil {
					onDenied(r)
				}
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ClaimsKey, claims)))
		}
	}
}

// LogRequests assigns each request an id and logs it once the handler is done.
func LogRequests(logger *slog.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := uuid.New().String()
			w.Header().Set("X-Request-Id", requestID)

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), RequestIDKey, requestID)))

			logger.Info("Request served",
				"requestID", requestID,
				"remote", r.RemoteAddr,
				"method", r.Method,
				"path", r.URL.Path,
				"proto", r.Proto,
				"duration", time.Since(start),
			)
		}
	}
}

// Chain wraps h with middleware; the last one listed runs first.
func Chain(h http.HandlerFunc, middleware ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	for _, m := range middleware {
		h = m(h)
	}
	return h
}

// RequestID returns the id LogRequests assigned to the request.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// Claims returns the caller claims LoginRequired stored on the request.
func Claims(ctx context.Context) *CallerClaims {
	claims, _ := ctx.Value(ClaimsKey).(*CallerClaims)
	return claims
}

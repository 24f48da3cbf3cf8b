package middleware

import (
	"context"
	"net/http"
	"strings"

	"notes-sync-server/pkg/jwt"
	"notes-sync-server/pkg/response"
)

type contextKey string

const (
	UserIDKey   contextKey = "userID"
	DeviceIDKey contextKey = "deviceID"
)

// DeviceIDHeader names the calling device so change notifications are not
// echoed back to it.
const DeviceIDHeader = "X-Device-ID"

type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				w.Header().Set("WWW-Authenticate", "Bearer")
				response.Unauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				w.Header().Set("WWW-Authenticate", "Bearer")
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := validator.ValidateToken(parts[1])
			if err != nil {
				w.Header().Set("WWW-Authenticate", "Bearer")
				response.Unauthorized(w, "Invalid or expired token")
				return
			}

			reportUser(r.Context(), claims.UserID)
			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			if deviceID := r.Header.Get(DeviceIDHeader); deviceID != "" {
				ctx = context.WithValue(ctx, DeviceIDKey, deviceID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetUserID(r *http.Request) string {
	userID, ok := r.Context().Value(UserIDKey).(string)
	if !ok {
		return ""
	}
	return userID
}

func GetDeviceID(r *http.Request) string {
	deviceID, _ := r.Context().Value(DeviceIDKey).(string)
	return deviceID
}

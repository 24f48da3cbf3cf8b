package middleware

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"notes-sync-server/pkg/jwt"
)

type fakeValidator struct {
	token  string
	userID string
}

func (f fakeValidator) ValidateToken(token string) (*jwt.Claims, error) {
	if token != f.token {
		return nil, errors.New("invalid token")
	}
	return &jwt.Claims{UserID: f.userID}, nil
}

func TestAuthMiddleware(t *testing.T) {
	validator := fakeValidator{token: "good", userID: "admin"}

	var gotUser, gotDevice string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = GetUserID(r)
		gotDevice = GetDeviceID(r)
		w.WriteHeader(http.StatusNoContent)
	})
	handler := AuthMiddleware(validator)(next)

	tests := []struct {
		name       string
		header     string
		device     string
		wantStatus int
		wantUser   string
		wantDevice string
	}{
		{name: "missing header", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic good", wantStatus: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer good", wantStatus: http.StatusNoContent, wantUser: "admin"},
		{name: "lowercase scheme with device", header: "bearer good", device: "phone", wantStatus: http.StatusNoContent, wantUser: "admin", wantDevice: "phone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUser, gotDevice = "", ""

			req := httptest.NewRequest(http.MethodGet, "/api/v1/notes", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.device != "" {
				req.Header.Set(DeviceIDHeader, tt.device)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") != "Bearer" {
				t.Error("missing WWW-Authenticate header")
			}
			if gotUser != tt.wantUser || gotDevice != tt.wantDevice {
				t.Errorf("user/device = %q/%q, want %q/%q", gotUser, gotDevice, tt.wantUser, tt.wantDevice)
			}
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name       string
		allowed    string
		origin     string
		method     string
		wantOrigin string
		wantStatus int
	}{
		{name: "listed origin", allowed: "http://a.test, http://b.test", origin: "http://b.test", method: http.MethodGet, wantOrigin: "http://b.test", wantStatus: http.StatusTeapot},
		{name: "unlisted origin", allowed: "http://a.test", origin: "http://evil.test", method: http.MethodGet, wantOrigin: "", wantStatus: http.StatusTeapot},
		{name: "wildcard echoes origin", allowed: "*", origin: "http://c.test", method: http.MethodGet, wantOrigin: "http://c.test", wantStatus: http.StatusTeapot},
		{name: "wildcard without origin", allowed: "*", method: http.MethodGet, wantOrigin: "*", wantStatus: http.StatusTeapot},
		{name: "preflight short-circuits", allowed: "*", origin: "http://c.test", method: http.MethodOptions, wantOrigin: "http://c.test", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := CORSMiddleware(tt.allowed, "GET,POST", "Authorization,Content-Type")(next)

			req := httptest.NewRequest(tt.method, "/api/v1/notes", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
		})
	}
}

func TestLoggerMiddleware_ReportsStatusAndUser(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	inner := AuthMiddleware(fakeValidator{token: "good", userID: "admin"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		}),
	)
	handler := LoggerMiddleware(logger)(inner)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/push", nil)
	req.Header.Set("Authorization", "Bearer good")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	for _, want := range []string{"status=202", "user=admin", "path=/api/v1/sync/push", "method=POST"} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %q", line, want)
		}
	}

	buf.Reset()
	LoggerMiddleware(logger)(http.NotFoundHandler()).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	if !strings.Contains(buf.String(), "user=anonymous") || !strings.Contains(buf.String(), "status=404") {
		t.Errorf("anonymous log line = %q", buf.String())
	}
}

//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Message string `json:"message"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"message":"hi"}`))
	if err := DecodeJSON(httptest.NewRecorder(), r, &v); err != nil || v.Message != "hi" {
		t.Fatalf("DecodeJSON = %v, message %q", err, v.Message)
	}

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"message":`))
	if err := DecodeJSON(httptest.NewRecorder(), r, &v); err == nil {
		t.Fatal("expected an error for truncated JSON")
	}

	big := `{"message":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	if err := DecodeJSON(httptest.NewRecorder(), r, &v); err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Fatalf("expected size error, got %v", err)
	}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error   { return f(ctx) }
func (f pingFunc) Health(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("down") })

	tests := []struct {
		name      string
		directory Pinger
		oracle    any
		status    int
		want      HealthResponse
	}{
		{"all healthy", ok, ok, http.StatusOK, HealthResponse{Status: "ok", Directory: "ok", Oracle: "ok"}},
		{"oracle without health check", ok, struct{}{}, http.StatusOK, HealthResponse{Status: "ok", Directory: "ok", Oracle: "unknown"}},
		{"directory down", down, ok, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Directory: "unavailable", Oracle: "ok"}},
		{"oracle down", ok, down, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Directory: "ok", Oracle: "unavailable"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHealthHandler(tt.directory, tt.oracle).RegisterHealth(r)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			var got HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			got.Uptime = ""
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name        string
		allowed     []string
		origin      string
		method      string
		wantStatus  int
		wantOrigin  string
		wantCreds   bool
		wantHeaders bool
	}{
		{"explicit origin", []string{"https://desk.example.com"}, "https://desk.example.com", http.MethodPost, http.StatusTeapot, "https://desk.example.com", true, true},
		{"wildcard", []string{"*"}, "https://x.example.com", http.MethodGet, http.StatusTeapot, "https://x.example.com", false, true},
		{"rejected origin", []string{"https://desk.example.com"}, "https://evil.example.com", http.MethodGet, http.StatusTeapot, "", false, false},
		{"preflight", []string{"*"}, "https://x.example.com", http.MethodOptions, http.StatusOK, "https://x.example.com", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/rag", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			CORS(tt.allowed)(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Fatalf("allow-origin %q, want %q", got, tt.wantOrigin)
			}
			if got := rec.Header().Get("Access-Control-Allow-Credentials") == "true"; got != tt.wantCreds {
				t.Fatalf("credentials %v, want %v", got, tt.wantCreds)
			}
			headers := rec.Header().Get("Access-Control-Allow-Headers")
			if tt.wantHeaders != strings.Contains(headers, "X-Session-Token") {
				t.Fatalf("allow-headers %q", headers)
			}
		})
	}
}

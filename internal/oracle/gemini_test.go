package oracle

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/genai"
)

func TestClassifyGenAIError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"invalid key", genai.APIError{Code: 401, Status: "UNAUTHENTICATED"}, false},
		{"permission denied", genai.APIError{Code: 403, Status: "PERMISSION_DENIED"}, false},
		{"unknown model", genai.APIError{Code: 404, Status: "NOT_FOUND"}, false},
		{"bad request", fmt.Errorf("call: %w", genai.APIError{Code: 400}), false},
		{"throttled", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}, true},
		{"server error", genai.APIError{Code: 503, Status: "UNAVAILABLE"}, true},
		{"pointer error", &genai.APIError{Code: 500}, true},
		{"network failure", errors.New("dial tcp: connection refused"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyGenAIError(tt.err)
			if errors.Is(err, ErrTransient) != tt.transient {
				t.Fatalf("classifyGenAIError(%v) = %v, transient want %v", tt.err, err, tt.transient)
			}
		})
	}
}

package structured

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ashureev/trainingdesk/internal/domain"
	"github.com/ashureev/trainingdesk/internal/oracle"
)

func TestParseIdentity(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    domain.IdentityExtraction
		wantErr bool
	}{
		{"both", `{"id": "4471", "name": "Dana"}`, domain.IdentityExtraction{ID: "4471", Name: "Dana"}, false},
		{"id only", `{"id": "4471", "name": ""}`, domain.IdentityExtraction{ID: "4471"}, false},
		{"padded values", `{"id": " 4471 ", "name": " Dana "}`, domain.IdentityExtraction{ID: "4471", Name: "Dana"}, false},
		{"fenced", "```json\n{\"id\": \"\", \"name\": \"Dana\"}\n```", domain.IdentityExtraction{Name: "Dana"}, false},
		{"null", "null", domain.IdentityExtraction{}, false},
		{"python none", " None ", domain.IdentityExtraction{}, false},
		{"python literal", `{'id': '4471', 'name': 'Dana'}`, domain.IdentityExtraction{}, true},
		{"missing key", `{"id": "4471"}`, domain.IdentityExtraction{}, true},
		{"numeric id", `{"id": 4471, "name": ""}`, domain.IdentityExtraction{}, true},
		{"array", `[{"id": "1", "name": "x"}]`, domain.IdentityExtraction{}, true},
		{"prose", "Sure! Your id is 4471.", domain.IdentityExtraction{}, true},
		{"empty", "   ", domain.IdentityExtraction{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIdentity(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedOutput) {
					t.Fatalf("expected ErrMalformedOutput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("extraction mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseQuerySpec(t *testing.T) {
	good := `{"sql": "SELECT * FROM employees;", "target": "SELF", "error": "OK", "scope": "IN_SCOPE"}`
	got, err := ParseQuerySpec(good)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := domain.QuerySpec{
		SQL:     "SELECT * FROM employees;",
		Target:  domain.TargetSelf,
		Verdict: domain.VerdictOK,
		Scope:   domain.ScopeIn,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("spec mismatch (-want +got):\n%s", diff)
	}

	bad := []string{
		`{"sql": "SELECT 1", "target": "HIMSELF", "error": "OK", "scope": "IN_SCOPE"}`,
		`{"sql": "SELECT 1", "target": "SELF", "error": "MAYBE", "scope": "IN_SCOPE"}`,
		`{"sql": "SELECT 1", "target": "SELF", "error": "OK", "scope": "yes"}`,
		`{"sql": "SELECT 1", "target": "SELF", "error": "OK"}`,
		`{"sql": 1, "target": "SELF", "error": "OK", "scope": "IN_SCOPE"}`,
		`{"sql": "SELECT 1", "target": ["SELF"], "error": "OK", "scope": "IN_SCOPE"}`,
		`null`,
		`not json`,
	}
	for _, raw := range bad {
		if _, err := ParseQuerySpec(raw); !errors.Is(err, ErrMalformedOutput) {
			t.Errorf("ParseQuerySpec(%s): expected ErrMalformedOutput, got %v", raw, err)
		}
	}
}

func TestAskRetriesOnceOnMalformedOutput(t *testing.T) {
	var calls atomic.Int32
	o := oracle.Func(func(ctx context.Context, req oracle.Request) (string, error) {
		if calls.Add(1) == 1 {
			return "garbage", nil
		}
		return `{"id": "7", "name": ""}`, nil
	})

	got, err := Ask(context.Background(), o, oracle.Request{}, ParseIdentity, time.Second)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if got.ID != "7" || calls.Load() != 2 {
		t.Fatalf("got %+v after %d calls", got, calls.Load())
	}
}

func TestAskGivesUpAfterSecondMalformedReply(t *testing.T) {
	var calls atomic.Int32
	o := oracle.Func(func(ctx context.Context, req oracle.Request) (string, error) {
		calls.Add(1)
		return "garbage", nil
	})

	_, err := Ask(context.Background(), o, oracle.Request{}, ParseQuerySpec, time.Second)
	if !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("expected ErrMalformedOutput, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected exactly 2 calls, got %d", calls.Load())
	}
}

func TestAskRetriesTimeoutAsTransient(t *testing.T) {
	var calls atomic.Int32
	o := oracle.Func(func(ctx context.Context, req oracle.Request) (string, error) {
		if calls.Add(1) == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "a narrated answer", nil
	})

	got, err := Ask(context.Background(), o, oracle.Request{}, ParseText, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if got != "a narrated answer" {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestAskDoesNotRetryPermanentFailure(t *testing.T) {
	var calls atomic.Int32
	o := oracle.Func(func(ctx context.Context, req oracle.Request) (string, error) {
		calls.Add(1)
		return "", fmt.Errorf("bad api key")
	})

	_, err := Ask(context.Background(), o, oracle.Request{}, ParseText, time.Second)
	if !errors.Is(err, oracle.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}

func TestAskHonoursCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	o := oracle.Func(func(ctx context.Context, req oracle.Request) (string, error) {
		cancel()
		return "", ctx.Err()
	})

	_, err := Ask(ctx, o, oracle.Request{}, ParseText, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

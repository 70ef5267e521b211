package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"

	"github.com/ashureev/trainingdesk/internal/domain"
	"github.com/ashureev/trainingdesk/internal/identity"
	"github.com/ashureev/trainingdesk/internal/locale"
	"github.com/ashureev/trainingdesk/internal/query"
	"github.com/ashureev/trainingdesk/internal/session"
)

// fakeResolver authenticates "Dana 4471" and asks for both fields otherwise.
type fakeResolver struct {
	mu      sync.Mutex
	records []domain.Identity
}

func (f *fakeResolver) Turn(_ context.Context, text string, record domain.Identity, _ string) (identity.Result, error) {
	f.mu.Lock()
	f.records = append(f.records, record)
	f.mu.Unlock()

	if strings.Contains(text, "Dana") && strings.Contains(text, "4471") {
		id := domain.Identity{Name: "Dana", ID: "4471", Division: "R&D"}
		return identity.Result{
			Message:       "Hi Dana, how can I help you?",
			Identity:      id,
			State:         identity.StateAuthenticated,
			Authenticated: true,
		}, nil
	}
	return identity.Result{
		Message:  locale.Default().For(locale.AskBoth, text, ""),
		Identity: record.Unverified(),
		State:    identity.StateOf(record.Unverified()),
	}, nil
}

// echoQueries answers inside the session lock so closed sessions surface as
// session.ErrNotFound.
type echoQueries struct {
	sessions *session.Store
}

func (q echoQueries) Turn(ctx context.Context, key, text string) (query.Reply, error) {
	var reply query.Reply
	err := q.sessions.Do(ctx, key, func(sess *session.Session) error {
		sess.Transcript.Append(domain.RoleUser, text)
		sess.Transcript.Append(domain.RoleAssistant, "you said: "+text)
		reply = query.Reply{
			SessionID:   sess.ID,
			UserMessage: text,
			Message:     "you said: " + text,
			Outcome:     query.OutcomeAnswered,
		}
		return nil
	})
	return reply, err
}

type testServer struct {
	router   chi.Router
	sessions *session.Store
	resolver *fakeResolver
}

func newTestServer(t *testing.T, perMinute int) *testServer {
	t.Helper()
	sessions := session.NewStore(time.Hour)
	resolver := &fakeResolver{}
	svc := NewService(resolver, echoQueries{sessions: sessions}, sessions, locale.Default(), nil)
	r := chi.NewRouter()
	NewHandler(svc, sessions, NewRateLimiter(perMinute), nil).RegisterRoutes(r)
	return &testServer{router: r, sessions: sessions, resolver: resolver}
}

func (s *testServer) post(t *testing.T, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(identity.SessionHeaderName, token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func (s *testServer) authenticate(t *testing.T) string {
	t.Helper()
	rec := s.post(t, "/auth", "", AuthRequest{Message: "Dana 4471"})
	if rec.Code != http.StatusOK {
		t.Fatalf("auth status %d", rec.Code)
	}
	resp := decode[AuthResponse](t, rec)
	if !resp.Authenticated || resp.SessionToken == "" {
		t.Fatalf("expected authentication, got %+v", resp)
	}
	return resp.SessionToken
}

func TestStatus(t *testing.T) {
	s := newTestServer(t, 0)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	resp := decode[StatusResponse](t, rec)
	if resp.Status != "backend running" || resp.Message == "" {
		t.Fatalf("unexpected status %+v", resp)
	}
}

func TestAuthThenRag(t *testing.T) {
	s := newTestServer(t, 0)

	rec := s.post(t, "/auth", "", AuthRequest{Message: "hello"})
	first := decode[AuthResponse](t, rec)
	if first.Authenticated || first.SessionToken != "" {
		t.Fatalf("should not authenticate yet: %+v", first)
	}

	token := s.authenticate(t)
	rec = s.post(t, "/rag", token, RagRequest{UserMessage: "how many videos did I finish?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("rag status %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[RagResponse](t, rec).SystemReply; got != "you said: how many videos did I finish?" {
		t.Fatalf("reply %q", got)
	}
}

func TestAuthDiscardsClientDivision(t *testing.T) {
	s := newTestServer(t, 0)
	forged := domain.Identity{Name: "Mallory", ID: "666", Division: "CISO"}

	rec := s.post(t, "/auth", "", AuthRequest{Message: "let me in", UserInfo: forged})
	resp := decode[AuthResponse](t, rec)
	if resp.Authenticated || resp.UserInfo.Division != "" || resp.SessionToken != "" {
		t.Fatalf("forged record trusted: %+v", resp)
	}
}

func TestRagRequiresSession(t *testing.T) {
	s := newTestServer(t, 0)
	for _, token := range []string{"", "6f1c2b3a-0d4e-4f5a-9b8c-7d6e5f4a3b2c"} {
		rec := s.post(t, "/rag", token, RagRequest{UserMessage: "hi"})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("token %q: status %d", token, rec.Code)
		}
	}
}

func TestRagRejectsBadBodies(t *testing.T) {
	s := newTestServer(t, 0)
	token := s.authenticate(t)

	rec := s.post(t, "/rag", token, RagRequest{UserMessage: "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty message status %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/rag", strings.NewReader("{"))
	req.Header.Set(identity.SessionHeaderName, token)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad JSON status %d", rec.Code)
	}
}

func TestResetInvalidatesToken(t *testing.T) {
	s := newTestServer(t, 0)
	token := s.authenticate(t)

	rec := s.post(t, "/reset", token, struct{}{})
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status %d", rec.Code)
	}
	if diff := cmp.Diff(ResetResponse{Status: "conversation reset"}, decode[ResetResponse](t, rec)); diff != "" {
		t.Fatalf("reset body (-want +got):\n%s", diff)
	}
	if s.sessions.Len() != 0 {
		t.Fatalf("expected no sessions, got %d", s.sessions.Len())
	}

	rec = s.post(t, "/rag", token, RagRequest{UserMessage: "hi"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("rag after reset status %d", rec.Code)
	}
}

func TestReauthenticationReplacesToken(t *testing.T) {
	s := newTestServer(t, 0)
	old := s.authenticate(t)
	fresh := s.authenticate(t)
	if old == fresh {
		t.Fatal("expected a new token")
	}
	if rec := s.post(t, "/rag", old, RagRequest{UserMessage: "hi"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("old token still works: %d", rec.Code)
	}
	if rec := s.post(t, "/rag", fresh, RagRequest{UserMessage: "hi"}); rec.Code != http.StatusOK {
		t.Fatalf("new token rejected: %d", rec.Code)
	}
}

func TestRateLimitReturnsLocalizedMessage(t *testing.T) {
	s := newTestServer(t, 2)
	catalog := locale.Default()

	for i := 0; i < 2; i++ {
		if rec := s.post(t, "/auth", "", AuthRequest{Message: "hello"}); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
	}
	rec := s.post(t, "/auth", "", AuthRequest{Message: "שלום"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status %d", rec.Code)
	}
	want := catalog.Message(locale.RateLimited, locale.ScriptRTL, "")
	if got := decode[AuthResponse](t, rec).SystemLastMessage; got != want {
		t.Fatalf("message %q, want %q", got, want)
	}
}

func TestRateLimiterEvictsIdleKeys(t *testing.T) {
	rl := NewRateLimiter(1)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") {
		t.Fatal("first request denied")
	}
	if rl.Allow("a") {
		t.Fatal("second request allowed")
	}
	now = now.Add(11 * time.Minute)
	if n := rl.Evict(); n != 1 {
		t.Fatalf("evicted %d keys, want 1", n)
	}
	if !rl.Allow("a") {
		t.Fatal("request after eviction denied")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0)
	for i := 0; i < 100; i++ {
		if !rl.Allow("a") {
			t.Fatalf("request %d denied", i)
		}
	}
}

func TestChatSocket(t *testing.T) {
	s := newTestServer(t, 0)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat"
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = ws.Close(websocket.StatusNormalClosure, "") }()

	exchange := func(in Frame) Frame {
		t.Helper()
		if err := wsjson.Write(ctx, ws, in); err != nil {
			t.Fatalf("write: %v", err)
		}
		var out Frame
		if err := wsjson.Read(ctx, ws, &out); err != nil {
			t.Fatalf("read: %v", err)
		}
		return out
	}

	var welcome Frame
	if err := wsjson.Read(ctx, ws, &welcome); err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	if welcome.Type != FrameWelcome || welcome.Message == "" {
		t.Fatalf("welcome %+v", welcome)
	}

	if out := exchange(Frame{Type: FrameQuery, Message: "my videos?"}); out.Type != FrameError {
		t.Fatalf("query before auth: %+v", out)
	}
	if out := exchange(Frame{Type: FrameAuth, Message: "Dana 4471"}); !out.Authenticated {
		t.Fatalf("auth: %+v", out)
	}
	out := exchange(Frame{Type: FrameQuery, Message: "my videos?"})
	if out.Type != FrameQuery || out.Message != "you said: my videos?" || !out.Authenticated {
		t.Fatalf("query: %+v", out)
	}
	if out := exchange(Frame{Type: FrameReset}); out.Type != FrameReset {
		t.Fatalf("reset: %+v", out)
	}
	if s.sessions.Len() != 0 {
		t.Fatalf("session survived reset")
	}
	if out := exchange(Frame{Type: "bogus"}); out.Type != FrameError {
		t.Fatalf("unknown frame: %+v", out)
	}
}

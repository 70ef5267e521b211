package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/ashureev/trainingdesk/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var dana = domain.Identity{Name: "Dana", ID: "4471", Division: "R&D"}

func TestCreateAndResolveToken(t *testing.T) {
	s := NewStore(time.Hour)
	token, err := s.Create(context.Background(), "4471", dana)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	key, err := s.KeyForToken(token)
	if err != nil || key != "4471" {
		t.Fatalf("KeyForToken = %q, %v", key, err)
	}
	if _, err := s.KeyForToken("forged"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown token, got %v", err)
	}
}

func TestCreateReplacesPreviousToken(t *testing.T) {
	s := NewStore(time.Hour)
	ctx := context.Background()
	first, _ := s.Create(ctx, "4471", dana)
	_ = s.Do(ctx, "4471", func(sess *Session) error {
		sess.Transcript.Append(domain.RoleUser, "hello")
		return nil
	})

	second, err := s.Create(ctx, "4471", dana)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.KeyForToken(first); !errors.Is(err, ErrNotFound) {
		t.Fatal("old token still resolves")
	}
	if _, err := s.KeyForToken(second); err != nil {
		t.Fatalf("new token: %v", err)
	}
	_ = s.Do(ctx, "4471", func(sess *Session) error {
		if len(sess.Transcript) != 0 {
			t.Errorf("expected a fresh transcript, got %v", sess.Transcript)
		}
		return nil
	})
}

func TestDoRejectsReplacedToken(t *testing.T) {
	s := NewStore(time.Hour)
	ctx := context.Background()

	stale, err := s.Create(ctx, "4471", dana)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	fresh, err := s.Create(ctx, "4471", dana)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	ran := false
	err = s.Do(WithToken(ctx, stale), "4471", func(*Session) error {
		ran = true
		return nil
	})
	if !errors.Is(err, ErrNotFound) || ran {
		t.Fatalf("stale token: err = %v, ran = %v", err, ran)
	}
	if err := s.Do(WithToken(ctx, fresh), "4471", func(*Session) error { return nil }); err != nil {
		t.Fatalf("current token: %v", err)
	}
	if err := s.Do(ctx, "4471", func(*Session) error { return nil }); err != nil {
		t.Fatalf("no token bound: %v", err)
	}
}

func TestDoKeepsTurnsOrdered(t *testing.T) {
	s := NewStore(time.Hour)
	ctx := context.Background()
	if _, err := s.Create(ctx, "4471", dana); err != nil {
		t.Fatal(err)
	}

	var inside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Do(ctx, "4471", func(sess *Session) error {
				if inside.Add(1) != 1 {
					t.Error("two turns ran concurrently on one session")
				}
				sess.Transcript.Append(domain.RoleUser, "q")
				time.Sleep(time.Millisecond)
				sess.Transcript.Append(domain.RoleAssistant, "a")
				inside.Add(-1)
				return nil
			})
			if err != nil {
				t.Errorf("Do: %v", err)
			}
		}()
	}
	wg.Wait()

	_ = s.Do(ctx, "4471", func(sess *Session) error {
		if len(sess.Transcript) != 40 {
			t.Fatalf("expected 40 turns, got %d", len(sess.Transcript))
		}
		for i, turn := range sess.Transcript {
			want := domain.RoleUser
			if i%2 == 1 {
				want = domain.RoleAssistant
			}
			if turn.Role != want {
				t.Fatalf("turn %d role %s, want %s", i, turn.Role, want)
			}
		}
		return nil
	})
}

func TestDoReleasesLockOnError(t *testing.T) {
	s := NewStore(time.Hour)
	ctx := context.Background()
	_, _ = s.Create(ctx, "4471", dana)

	boom := errors.New("boom")
	if err := s.Do(ctx, "4471", func(*Session) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Do(ctx, "4471", func(*Session) error { return nil }) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Do: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("lock was not released after an error")
	}
}

func TestDoHonoursContextWhileWaiting(t *testing.T) {
	s := NewStore(time.Hour)
	_, _ = s.Create(context.Background(), "4471", dana)

	hold := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = s.Do(context.Background(), "4471", func(*Session) error {
			close(held)
			<-hold
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Do(ctx, "4471", func(*Session) error { return nil })
	close(hold)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	s := NewStore(time.Hour)
	ctx := context.Background()
	_, _ = s.Create(ctx, "4471", dana)
	_, _ = s.Create(ctx, "1001", domain.Identity{Name: "Noa", ID: "1001", Division: "CISO"})

	hold := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = s.Do(ctx, "4471", func(*Session) error {
			close(held)
			<-hold
			return nil
		})
	}()
	<-held
	defer close(hold)

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	var got domain.Identity
	if err := s.Do(waitCtx, "1001", func(sess *Session) error {
		got = sess.Identity
		return nil
	}); err != nil {
		t.Fatalf("other session blocked: %v", err)
	}
	if diff := cmp.Diff(domain.Identity{Name: "Noa", ID: "1001", Division: "CISO"}, got); diff != "" {
		t.Fatalf("identity mismatch (-want +got):\n%s", diff)
	}
}

func TestCloseDiscardsSession(t *testing.T) {
	s := NewStore(time.Hour)
	ctx := context.Background()
	token, _ := s.Create(ctx, "4471", dana)

	if err := s.Close(ctx, "4471"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := s.KeyForToken(token); !errors.Is(err, ErrNotFound) {
		t.Fatal("token survived Close")
	}
	if err := s.Do(ctx, "4471", func(*Session) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Close(ctx, "4471"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second Close, got %v", err)
	}
}

func TestCloseLockedFromInsideTurn(t *testing.T) {
	s := NewStore(time.Hour)
	ctx := context.Background()
	token, _ := s.Create(ctx, "4471", dana)

	if err := s.Do(ctx, "4471", func(sess *Session) error {
		s.CloseLocked(sess)
		return nil
	}); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if _, err := s.KeyForToken(token); !errors.Is(err, ErrNotFound) {
		t.Fatal("token survived CloseLocked")
	}
	if s.Len() != 0 {
		t.Fatalf("expected no sessions, got %d", s.Len())
	}
}

func TestSweepClosesIdleSessions(t *testing.T) {
	s := NewStore(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = s.Create(ctx, "4471", dana)
	now = now.Add(30 * time.Second)
	_, _ = s.Create(ctx, "1001", domain.Identity{Name: "Noa", ID: "1001", Division: "CISO"})
	now = now.Add(45 * time.Second)

	if n := s.Sweep(); n != 1 {
		t.Fatalf("Sweep closed %d sessions, want 1", n)
	}
	if err := s.Do(ctx, "1001", func(*Session) error { return nil }); err != nil {
		t.Fatalf("recent session was swept: %v", err)
	}
}

func TestRunStopsWithContext(t *testing.T) {
	s := NewStore(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, 5*time.Millisecond) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

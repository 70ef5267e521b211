// Package session holds the server-side state of authenticated
// conversations: one identity and one transcript per employee, each guarded
// by its own exclusion scope.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/trainingdesk/internal/domain"
)

// ErrNotFound is returned for an unknown session key or token.
var ErrNotFound = errors.New("session not found")

// Session is one authenticated conversation. It is only mutated inside Do.
type Session struct {
	Key string
	// ID names the session in logs. Token is the secret bearer value and is
	// never logged.
	ID         string
	Token      string
	Identity   domain.Identity
	Transcript domain.Transcript
	CreatedAt  time.Time
	LastActive time.Time
}

// entry pairs a session with its lock. The lock is a one-slot channel so
// acquisition can be abandoned when the caller's context ends.
type entry struct {
	lock    chan struct{}
	session *Session
	closed  bool
}

func (e *entry) acquire(ctx context.Context) error {
	select {
	case e.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *entry) release() { <-e.lock }

type tokenKey struct{}

// WithToken binds the caller's bearer token to ctx. Do then refuses to run
// if the session was replaced after the token was resolved.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFrom(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey{}).(string)
	return token, ok
}

// Store keeps sessions in memory keyed by verified employee id.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	tokens  map[string]string
	ttl     time.Duration
	now     func() time.Time
}

// NewStore creates a store whose idle sessions expire after ttl. A
// non-positive ttl disables expiry.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		entries: make(map[string]*entry),
		tokens:  make(map[string]string),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Create starts a fresh session for key and returns its bearer token. An
// existing session for the same key is replaced once any in-flight turn on
// it has finished, and its token stops working.
func (s *Store) Create(ctx context.Context, key string, id domain.Identity) (string, error) {
	if key == "" {
		return "", fmt.Errorf("session key is required")
	}

	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok || e.closed {
		e = &entry{lock: make(chan struct{}, 1)}
		s.entries[key] = e
	}
	s.mu.Unlock()

	if err := e.acquire(ctx); err != nil {
		return "", err
	}
	defer e.release()

	now := s.now()
	token := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	if e.session != nil {
		delete(s.tokens, e.session.Token)
	}
	// A concurrent Close may have dropped the entry while we waited.
	e.closed = false
	s.entries[key] = e
	e.session = &Session{
		Key:        key,
		ID:         uuid.NewString(),
		Token:      token,
		Identity:   id,
		CreatedAt:  now,
		LastActive: now,
	}
	s.tokens[token] = key
	return token, nil
}

// KeyForToken resolves a bearer token to its session key.
func (s *Store) KeyForToken(token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.tokens[token]
	if !ok {
		return "", ErrNotFound
	}
	return key, nil
}

// Do runs fn with exclusive access to the session for key. Turns on the
// same session never overlap and the lock is released on every path. When
// ctx carries a token from WithToken, it must still belong to the session.
func (s *Store) Do(ctx context.Context, key string, fn func(*Session) error) error {
	s.mu.Lock()
	e, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.release()

	s.mu.Lock()
	if e.closed || e.session == nil {
		s.mu.Unlock()
		return ErrNotFound
	}
	if token, ok := tokenFrom(ctx); ok && token != e.session.Token {
		s.mu.Unlock()
		return ErrNotFound
	}
	e.session.LastActive = s.now()
	sess := e.session
	s.mu.Unlock()

	return fn(sess)
}

// Close discards the session for key, including its transcript and token.
// It waits for an in-flight turn on the session to finish.
func (s *Store) Close(ctx context.Context, key string) error {
	s.mu.Lock()
	e, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.release()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(key, e)
	return nil
}

// CloseLocked discards sess from inside its own Do callback.
func (s *Store) CloseLocked(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[sess.Key]; ok && e.session == sess {
		s.dropLocked(sess.Key, e)
	}
}

func (s *Store) dropLocked(key string, e *entry) {
	if e.closed {
		return
	}
	e.closed = true
	if e.session != nil {
		delete(s.tokens, e.session.Token)
	}
	if s.entries[key] == e {
		delete(s.entries, key)
	}
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep closes sessions idle for longer than the TTL and returns how many it
// closed. Sessions with a turn in flight are skipped.
func (s *Store) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	threshold := s.now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	closed := 0
	for key, e := range s.entries {
		select {
		case e.lock <- struct{}{}:
		default:
			continue
		}
		if e.session != nil && e.session.LastActive.Before(threshold) {
			s.dropLocked(key, e)
			closed++
		}
		<-e.lock
	}
	return closed
}

// Run sweeps idle sessions every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				slog.Info("Closed idle sessions", "count", n, "remaining", s.Len())
			}
		}
	}
}

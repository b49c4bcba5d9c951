package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestTrustedHeaderProvider(t *testing.T) {
	p := TrustedHeaderProvider{Header: "X-Forwarded-Email"}
	req := httptest.NewRequest("POST", "/api/v1/session", nil)
	if _, err := p.SignIn(context.Background(), req); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	req.Header.Set("X-Forwarded-Email", "Curator@Museum.org")
	id, err := p.SignIn(context.Background(), req)
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if id.Email != "curator@museum.org" {
		t.Fatalf("expected normalized email, got %s", id.Email)
	}
	req.Header.Set("X-Forwarded-Email", "not an address")
	if _, err := p.SignIn(context.Background(), req); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected malformed address to be rejected, got %v", err)
	}
}

func TestStaticProvider(t *testing.T) {
	req := httptest.NewRequest("POST", "/", nil)
	if _, err := (StaticProvider{}).SignIn(context.Background(), req); err == nil {
		t.Fatalf("expected empty static identity to fail")
	}
	id, err := StaticProvider{Email: "dev@localhost.test"}.SignIn(context.Background(), req)
	if err != nil || id.Email != "dev@localhost.test" {
		t.Fatalf("unexpected %+v %v", id, err)
	}
}

func TestSessionsLifecycle(t *testing.T) {
	var mu sync.Mutex
	var ended []Identity
	s := NewSessions(time.Hour, func(id Identity) {
		mu.Lock()
		ended = append(ended, id)
		mu.Unlock()
	})
	alice := Identity{Email: "alice@lab.test"}
	token, err := s.Start(alice)
	if err != nil || token == "" {
		t.Fatalf("start: %q %v", token, err)
	}
	other, _ := s.Start(alice)
	if other == token {
		t.Fatalf("expected distinct tokens")
	}
	if got, ok := s.Lookup(token); !ok || got != alice {
		t.Fatalf("lookup: %+v %v", got, ok)
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", s.Len())
	}
	if _, ok := s.End(token); !ok {
		t.Fatalf("expected end to find session")
	}
	if _, ok := s.Lookup(token); ok {
		t.Fatalf("expected ended token to be gone")
	}
	if !s.Active(alice) {
		t.Fatalf("expected second session to keep alice active")
	}
	s.End(other)
	if s.Active(alice) {
		t.Fatalf("expected alice inactive")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(ended) != 2 {
		t.Fatalf("expected 2 end callbacks, got %d", len(ended))
	}
}

func TestSessionsExpire(t *testing.T) {
	s := NewSessions(20*time.Millisecond, nil)
	token, _ := s.Start(Identity{Email: "a@b.test"})
	time.Sleep(40 * time.Millisecond)
	if _, ok := s.Lookup(token); ok {
		t.Fatalf("expected session to expire")
	}
	if _, ok := s.Lookup(""); ok {
		t.Fatalf("expected empty token to miss")
	}
}

package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
)

func TestStaticVerifier(t *testing.T) {
	v := NewStaticVerifier(map[string]string{"tok-a": "alice"})
	v.Add("tok-b", "bob")

	if id, err := v.Verify(context.Background(), "tok-a"); err != nil || id != "alice" {
		t.Fatalf("expected alice, got %q (%v)", id, err)
	}
	if id, err := v.Verify(context.Background(), "tok-b"); err != nil || id != "bob" {
		t.Fatalf("expected bob, got %q (%v)", id, err)
	}
	for _, bad := range []string{"", "tok-c"} {
		if _, err := v.Verify(context.Background(), bad); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("token %q: expected ErrUnauthorized, got %v", bad, err)
		}
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/scan", nil)
	r.Header.Set("Authorization", "Bearer abc123")
	if got := BearerToken(r); got != "abc123" {
		t.Fatalf("expected abc123, got %q", got)
	}

	r = httptest.NewRequest("GET", "/api/scan", nil)
	r.Header.Set("Authorization", "Basic abc123")
	if got := BearerToken(r); got != "" {
		t.Fatalf("non bearer scheme must yield empty token, got %q", got)
	}

	r = httptest.NewRequest("GET", "/api/ws?token=qp", nil)
	if got := BearerToken(r); got != "qp" {
		t.Fatalf("expected query token, got %q", got)
	}
}

func TestPlayerContext(t *testing.T) {
	if _, ok := PlayerFrom(context.Background()); ok {
		t.Fatal("empty context must not carry a player")
	}
	ctx := WithPlayer(context.Background(), "alice")
	if id, ok := PlayerFrom(ctx); !ok || id != "alice" {
		t.Fatalf("expected alice, got %q", id)
	}
}

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
)

var ErrUnauthorized = errors.New("unauthorized")

// Verifier turns a bearer token into a player id. The real implementation
// lives in the external identity service.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// StaticVerifier accepts a fixed token table. Development only.
type StaticVerifier struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	v := &StaticVerifier{tokens: make(map[string]string, len(tokens))}
	for tok, id := range tokens {
		v.tokens[tok] = id
	}
	return v
}

func (v *StaticVerifier) Add(token, playerID string) {
	v.mu.Lock()
	v.tokens[token] = playerID
	v.mu.Unlock()
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthorized
	}
	v.mu.RLock()
	id, ok := v.tokens[token]
	v.mu.RUnlock()
	if !ok {
		return "", ErrUnauthorized
	}
	return id, nil
}

// BearerToken extracts the token from "Authorization: Bearer <token>". Browsers
// cannot set headers on websocket upgrades, so the token query parameter is
// accepted as a fallback.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

type ctxKey struct{}

// WithPlayer stores the verified player id on ctx.
func WithPlayer(ctx context.Context, playerID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, playerID)
}

// PlayerFrom returns the id stored by WithPlayer.
func PlayerFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

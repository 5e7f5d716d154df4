package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type captureGateway struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (g *captureGateway) Send(_ context.Context, recipientID string, kind Kind, payload map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, Notification{RecipientID: recipientID, Kind: kind, Payload: payload})
	return g.err
}

func (g *captureGateway) len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}

func TestDispatcherDeliversQueuedNotifications(t *testing.T) {
	gw := &captureGateway{}
	d := NewDispatcher(gw, 2, 16, zaptest.NewLogger(t))

	for i := 0; i < 5; i++ {
		d.Notify(context.Background(), Notification{RecipientID: "p1", Kind: KindDetected})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for gw.len() < 5 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if got := gw.len(); got != 5 {
		t.Fatalf("expected 5 sends, got %d", got)
	}
}

func TestDispatcherDrainsOnShutdown(t *testing.T) {
	gw := &captureGateway{}
	d := NewDispatcher(gw, 1, 16, zaptest.NewLogger(t))
	for i := 0; i < 3; i++ {
		d.Notify(context.Background(), Notification{RecipientID: "p1", Kind: KindStrikeResolved})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = d.Run(ctx)

	if got := gw.len(); got != 3 {
		t.Fatalf("expected queued notifications to drain, got %d", got)
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	gw := &captureGateway{}
	d := NewDispatcher(gw, 1, 2, zaptest.NewLogger(t))
	for i := 0; i < 5; i++ {
		d.Notify(context.Background(), Notification{RecipientID: "p1", Kind: KindDetected})
	}
	if got := len(d.queue); got != 2 {
		t.Fatalf("expected queue capped at 2, got %d", got)
	}
}

func TestDispatcherSwallowsGatewayErrors(t *testing.T) {
	gw := &captureGateway{err: errors.New("gateway down")}
	d := NewDispatcher(gw, 1, 4, zaptest.NewLogger(t))
	d.Notify(context.Background(), Notification{RecipientID: "p1", Kind: KindDetected})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatalf("gateway errors must not surface: %v", err)
	}
	if gw.len() != 1 {
		t.Fatalf("expected one attempt, got %d", gw.len())
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	sentAt := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	env, err := Envelope("p1", KindStrikeIncoming, map[string]any{
		"strikeId":  "s1",
		"resolveAt": "2026-10-15T12:00:05Z",
		"target":    map[string]any{"lat": 1.5, "lng": -2.25},
	}, sentAt)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}

	data, err := EncodeBinary(env)
	if err != nil {
		t.Fatalf("binary: %v", err)
	}
	decoded, err := DecodeBinary(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	fields := decoded.AsMap()
	if fields["kind"] != "strike_incoming" || fields["recipientId"] != "p1" {
		t.Fatalf("unexpected header fields %v", fields)
	}
	if fields["sentAt"] != "2026-10-15T12:00:00Z" {
		t.Fatalf("unexpected sentAt %v", fields["sentAt"])
	}
	payload := fields["payload"].(map[string]any)
	target := payload["target"].(map[string]any)
	if target["lat"] != 1.5 || target["lng"] != -2.25 {
		t.Fatalf("unexpected target %v", target)
	}

	js, err := EncodeJSON(env)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(js, &generic); err != nil {
		t.Fatalf("json output is not valid JSON: %v", err)
	}
	if generic["kind"] != "strike_incoming" {
		t.Fatalf("unexpected json kind %v", generic["kind"])
	}
}

func TestEnvelopeRejectsUnsupportedPayload(t *testing.T) {
	_, err := Envelope("p1", KindDetected, map[string]any{"bad": make(chan int)}, time.Now())
	if err == nil {
		t.Fatal("expected error for non JSON-like payload")
	}
}

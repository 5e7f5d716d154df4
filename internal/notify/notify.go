package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Kind string

const (
	KindDetected       Kind = "detected"
	KindStrikeIncoming Kind = "strike_incoming"
	KindStrikeResolved Kind = "strike_resolved"
	KindShieldUp       Kind = "shield_up"
)

// Notification is transient; nothing here persists it.
type Notification struct {
	RecipientID string
	Kind        Kind
	Payload     map[string]any
}

// Gateway delivers one message to one player. Implementations are external
// (push services, websocket hubs).
type Gateway interface {
	Send(ctx context.Context, recipientID string, kind Kind, payload map[string]any) error
}

// ErrNotConnected is returned by gateways that cannot reach the recipient.
var ErrNotConnected = errors.New("recipient not connected")

// LogGateway only logs. Used when no push transport is configured.
type LogGateway struct {
	Log *zap.Logger
}

func (g LogGateway) Send(_ context.Context, recipientID string, kind Kind, payload map[string]any) error {
	g.Log.Info("notification",
		zap.String("recipient", recipientID),
		zap.String("kind", string(kind)),
		zap.Any("payload", payload))
	return nil
}

// Dispatcher queues notifications and sends them from worker goroutines.
// Sending is fire-and-forget: a failed send is logged and dropped, it never
// reaches the game code that enqueued it.
type Dispatcher struct {
	gateway Gateway
	log     *zap.Logger
	queue   chan Notification
	workers int
	timeout time.Duration

	wg sync.WaitGroup
}

func NewDispatcher(gateway Gateway, workers, queueSize int, log *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		gateway: gateway,
		log:     log,
		queue:   make(chan Notification, queueSize),
		workers: workers,
		timeout: 5 * time.Second,
	}
}

// Notify enqueues n without blocking. A full queue drops n.
func (d *Dispatcher) Notify(_ context.Context, n Notification) {
	select {
	case d.queue <- n:
	default:
		d.log.Warn("notification queue full, dropping",
			zap.String("recipient", n.RecipientID),
			zap.String("kind", string(n.Kind)))
	}
}

// Run starts the workers and blocks until ctx is cancelled and every worker has
// drained what was already queued.
func (d *Dispatcher) Run(ctx context.Context) error {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	<-ctx.Done()
	d.wg.Wait()
	return nil
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case n := <-d.queue:
			d.send(n)
		case <-ctx.Done():
			for {
				select {
				case n := <-d.queue:
					d.send(n)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) send(n Notification) {
	// Detached from the request context: the request may already be done.
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.gateway.Send(ctx, n.RecipientID, n.Kind, n.Payload); err != nil {
		level := d.log.Warn
		if errors.Is(err, ErrNotConnected) {
			level = d.log.Debug
		}
		level("notification send failed",
			zap.String("recipient", n.RecipientID),
			zap.String("kind", string(n.Kind)),
			zap.Error(err))
	}
}

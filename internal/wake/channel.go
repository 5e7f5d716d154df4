package wake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/Guneet-Singh-Kalra/orbital/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	keyWake         = "strike:wake"
	signalChannel   = "strike:scheduled"
	defaultBatch    = 64
	defaultParallel = 8
)

// Handler receives one delivered strike id. A non-nil error makes the message
// available again after a backoff delay.
type Handler func(ctx context.Context, strikeID string) error

type Options struct {
	PollInterval   time.Duration
	Visibility     time.Duration
	BatchSize      int64
	Concurrency    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultOptions() Options {
	return Options{
		PollInterval:   time.Second,
		Visibility:     30 * time.Second,
		BatchSize:      defaultBatch,
		Concurrency:    defaultParallel,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
	}
}

func sanitizeOptions(o Options) Options {
	d := DefaultOptions()
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.Visibility <= 0 {
		o.Visibility = d.Visibility
	}
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = d.InitialBackoff
	}
	if o.MaxBackoff < o.InitialBackoff {
		o.MaxBackoff = o.InitialBackoff
	}
	return o
}

// Leases due ids by pushing their score to the lease deadline.
// KEYS: wake set. ARGV: now ms, lease-until ms, limit.
var leaseScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[3])
for _, id in ipairs(ids) do
  redis.call('ZADD', KEYS[1], ARGV[2], id)
end
return ids
`)

// Removes an id only while it still carries our lease.
// KEYS: wake set. ARGV: id, lease-until ms.
var ackScript = redis.NewScript(`
local s = redis.call('ZSCORE', KEYS[1], ARGV[1])
if s and tonumber(s) == tonumber(ARGV[2]) then
  redis.call('ZREM', KEYS[1], ARGV[1])
  return 1
end
return 0
`)

// Channel is a Redis delay queue with at-least-once delivery to every process
// that runs it. A delivered id stays in the queue under a lease until the
// handlers succeed, so a crashed worker's messages reappear once the lease
// lapses.
type Channel struct {
	client redis.UniversalClient
	opts   Options
	log    *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	handlers []Handler

	retryMu sync.Mutex
	retries map[string]*backoff.ExponentialBackOff
}

func NewChannel(client redis.UniversalClient, opts Options, log *zap.Logger) *Channel {
	if log == nil {
		log = zap.NewNop()
	}
	return &Channel{
		client:  client,
		opts:    sanitizeOptions(opts),
		log:     log,
		now:     time.Now,
		retries: make(map[string]*backoff.ExponentialBackOff),
	}
}

func (c *Channel) WithClock(now func() time.Time) *Channel {
	c.now = now
	return c
}

// ScheduleWake makes strikeID deliverable at or after at, replacing any
// earlier schedule.
func (c *Channel) ScheduleWake(ctx context.Context, strikeID string, at time.Time) error {
	_, err := c.client.ZAdd(ctx, keyWake, wakeEntry(strikeID, at)).Result()
	if err != nil {
		return fmt.Errorf("schedule wake %s: %w", strikeID, err)
	}
	c.signal(ctx, strikeID)
	return nil
}

// RearmWake schedules strikeID only when it is not queued at all. A queued id
// is leased or backing off and keeps its current score.
func (c *Channel) RearmWake(ctx context.Context, strikeID string, at time.Time) error {
	added, err := c.client.ZAddNX(ctx, keyWake, wakeEntry(strikeID, at)).Result()
	if err != nil {
		return fmt.Errorf("rearm wake %s: %w", strikeID, err)
	}
	if added > 0 {
		c.signal(ctx, strikeID)
	}
	return nil
}

// wakeEntry rounds up so a wake is never delivered before at.
func wakeEntry(strikeID string, at time.Time) redis.Z {
	ms := store.Millis(at)
	if at.After(store.FromMillis(ms)) {
		ms++
	}
	return redis.Z{Score: float64(ms), Member: strikeID}
}

// The queue entry is authoritative; the signal only shortens the wait.
func (c *Channel) signal(ctx context.Context, strikeID string) {
	if err := c.client.Publish(ctx, signalChannel, strikeID).Err(); err != nil {
		c.log.Warn("wake signal publish failed", zap.String("strike_id", strikeID), zap.Error(err))
	}
}

// Subscribe registers h for every delivered message.
func (c *Channel) Subscribe(h Handler) {
	c.mu.Lock()
	c.handlers = append(c.handlers, h)
	c.mu.Unlock()
}

// Run delivers due messages until ctx is cancelled. It sleeps until the
// earliest queued entry is due, a schedule signal arrives, or the poll
// interval passes.
func (c *Channel) Run(ctx context.Context) error {
	ps := c.client.Subscribe(ctx, signalChannel)
	defer ps.Close()
	signals := ps.Channel()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		case <-signals:
		}

		if n, err := c.DeliverDue(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("wake delivery failed", zap.Error(err))
		} else if n > 0 {
			c.log.Debug("wake delivered", zap.Int("count", n))
		}
		if err := c.pruneRetries(ctx); err != nil && ctx.Err() == nil {
			c.log.Warn("wake retry prune failed", zap.Error(err))
		}
		timer.Reset(c.nextWait(ctx))
	}
}

func (c *Channel) nextWait(ctx context.Context) time.Duration {
	head, err := c.client.ZRangeWithScores(ctx, keyWake, 0, 0).Result()
	if err != nil || len(head) == 0 {
		return c.opts.PollInterval
	}
	wait := store.FromMillis(int64(head[0].Score)).Sub(c.now())
	if wait < 0 {
		return 0
	}
	if wait > c.opts.PollInterval {
		return c.opts.PollInterval
	}
	return wait
}

// DeliverDue leases up to one batch of due messages and hands each to the
// subscribed handlers. It returns how many messages were delivered
// successfully.
func (c *Channel) DeliverDue(ctx context.Context) (int, error) {
	c.mu.RLock()
	handlers := append([]Handler(nil), c.handlers...)
	c.mu.RUnlock()
	if len(handlers) == 0 {
		return 0, nil
	}

	now := c.now()
	leaseUntil := store.Millis(now.Add(c.opts.Visibility))
	ids, err := leaseScript.Run(ctx, c.client, []string{keyWake},
		store.Millis(now), leaseUntil, c.opts.BatchSize).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("lease due wakes: %w", err)
	}

	var (
		mu        sync.Mutex
		delivered int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if c.deliver(gctx, handlers, id, leaseUntil) {
				mu.Lock()
				delivered++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return delivered, nil
}

func (c *Channel) deliver(ctx context.Context, handlers []Handler, id string, leaseUntil int64) bool {
	for _, h := range handlers {
		if err := h(ctx, id); err != nil {
			c.retryLater(ctx, id, err)
			return false
		}
	}

	c.retryMu.Lock()
	delete(c.retries, id)
	c.retryMu.Unlock()

	if _, err := ackScript.Run(ctx, c.client, []string{keyWake}, id, leaseUntil).Result(); err != nil {
		// The lease lapses and the message is redelivered; handlers are idempotent.
		c.log.Warn("wake ack failed", zap.String("strike_id", id), zap.Error(err))
	}
	return true
}

func (c *Channel) retryLater(ctx context.Context, id string, cause error) {
	c.retryMu.Lock()
	b, ok := c.retries[id]
	if !ok {
		b = backoff.NewExponentialBackOff()
		b.InitialInterval = c.opts.InitialBackoff
		b.MaxInterval = c.opts.MaxBackoff
		b.MaxElapsedTime = 0
		b.Reset()
		c.retries[id] = b
	}
	delay := b.NextBackOff()
	c.retryMu.Unlock()

	at := c.now().Add(delay)
	c.log.Warn("wake handler failed, retrying",
		zap.String("strike_id", id),
		zap.Duration("delay", delay),
		zap.Error(cause))

	err := c.client.ZAddXX(ctx, keyWake, redis.Z{Score: float64(store.Millis(at)), Member: id}).Err()
	if err != nil {
		c.log.Warn("wake retry reschedule failed, lease will lapse",
			zap.String("strike_id", id), zap.Error(err))
	}
}

// pruneRetries forgets backoff state for ids that left the queue without
// this process acking them: another process delivered them, or they were
// dropped.
func (c *Channel) pruneRetries(ctx context.Context) error {
	c.retryMu.Lock()
	ids := make([]string, 0, len(c.retries))
	for id := range c.retries {
		ids = append(ids, id)
	}
	c.retryMu.Unlock()
	if len(ids) == 0 {
		return nil
	}

	cmds := make([]*redis.FloatCmd, len(ids))
	_, err := c.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.ZScore(ctx, keyWake, id)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("prune wake retries: %w", err)
	}

	c.retryMu.Lock()
	defer c.retryMu.Unlock()
	for i, id := range ids {
		if errors.Is(cmds[i].Err(), redis.Nil) {
			delete(c.retries, id)
		}
	}
	return nil
}

// Pending returns the queued ids with their deliver-at time, for diagnostics
// and tests.
func (c *Channel) Pending(ctx context.Context) (map[string]time.Time, error) {
	zs, err := c.client.ZRangeWithScores(ctx, keyWake, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list wakes: %w", err)
	}
	out := make(map[string]time.Time, len(zs))
	for _, z := range zs {
		id, _ := z.Member.(string)
		out[id] = store.FromMillis(int64(z.Score))
	}
	return out, nil
}

package game

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Guneet-Singh-Kalra/orbital/internal/cooldown"
	"github.com/Guneet-Singh-Kalra/orbital/internal/geo"
	"github.com/Guneet-Singh-Kalra/orbital/internal/notify"
	"github.com/Guneet-Singh-Kalra/orbital/internal/presence"
	"github.com/Guneet-Singh-Kalra/orbital/internal/profile"
	"github.com/Guneet-Singh-Kalra/orbital/internal/strike"
	"github.com/Guneet-Singh-Kalra/orbital/internal/wake"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"
)

var testEpoch = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) {
	r.mu.Lock()
	r.sent = append(r.sent, n)
	r.mu.Unlock()
}

func (r *recordingNotifier) byKind(kind notify.Kind) []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Notification
	for _, n := range r.sent {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func (r *recordingNotifier) recipients(kind notify.Kind) map[string]int {
	out := map[string]int{}
	for _, n := range r.byKind(kind) {
		out[n.RecipientID]++
	}
	return out
}

// countingPresence counts radius queries.
type countingPresence struct {
	PresenceIndex
	queries atomic.Int32
}

func (c *countingPresence) QueryRadius(ctx context.Context, center geo.LatLng, r float64) ([]presence.Nearby, error) {
	c.queries.Add(1)
	return c.PresenceIndex.QueryRadius(ctx, center, r)
}

// failingCreate makes strike persistence fail.
type failingCreate struct {
	StrikeStore
}

func (failingCreate) Create(context.Context, strike.Record) error {
	return errors.New("connection refused")
}

// flakyProfiles fails the first n writes.
type flakyProfiles struct {
	Profiles
	failures atomic.Int32
	writes   atomic.Int32
}

func (f *flakyProfiles) ApplyStrikeOutcome(ctx context.Context, id string, d profile.Delta) error {
	f.writes.Add(1)
	if f.failures.Add(-1) >= 0 {
		return errors.New("profile store timeout")
	}
	return f.Profiles.ApplyStrikeOutcome(ctx, id, d)
}

// countingProfiles counts successful outcome writes per player.
type countingProfiles struct {
	Profiles
	mu     sync.Mutex
	writes map[string]int
}

func (c *countingProfiles) ApplyStrikeOutcome(ctx context.Context, id string, d profile.Delta) error {
	c.mu.Lock()
	if c.writes == nil {
		c.writes = map[string]int{}
	}
	c.writes[id]++
	c.mu.Unlock()
	return c.Profiles.ApplyStrikeOutcome(ctx, id, d)
}

type fixture struct {
	mr        *miniredis.Miniredis
	clock     *fakeClock
	presence  *countingPresence
	cooldowns *cooldown.Ledger
	strikes   *strike.Store
	wake      *wake.Channel
	profiles  *profile.MemoryStore
	notes     *recordingNotifier
	tuning    Tuning
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := &fakeClock{now: testEpoch}
	log := zaptest.NewLogger(t)
	return &fixture{
		mr:        mr,
		clock:     clock,
		presence:  &countingPresence{PresenceIndex: presence.NewIndex(client).WithClock(clock.Now)},
		cooldowns: cooldown.NewLedger(client),
		strikes:   strike.NewStore(client, time.Minute).WithClock(clock.Now),
		wake:      wake.NewChannel(client, wake.DefaultOptions(), log).WithClock(clock.Now),
		profiles:  profile.NewMemoryStore(),
		notes:     &recordingNotifier{},
		tuning:    DefaultTuning(),
	}
}

func (f *fixture) deps(t *testing.T) Deps {
	return Deps{
		Presence:  f.presence,
		Cooldowns: f.cooldowns,
		Profiles:  f.profiles,
		Strikes:   f.strikes,
		Wake:      f.wake,
		Notifier:  f.notes,
		Log:       zaptest.NewLogger(t),
		Now:       f.clock.Now,
	}
}

func (f *fixture) place(t *testing.T, playerID string, lat, lng float64) {
	t.Helper()
	if err := f.presence.Upsert(context.Background(), playerID, geo.LatLng{Lat: lat, Lng: lng}); err != nil {
		t.Fatalf("place %s: %v", playerID, err)
	}
}

func fastResolverOptions() ResolverOptions {
	o := DefaultResolverOptions()
	o.RetryMin = time.Millisecond
	o.RetryMax = 5 * time.Millisecond
	return o
}

func nearPoint(a, b geo.LatLng) bool {
	return geo.DistanceM(a, b) < 1
}

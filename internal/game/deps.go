package game

import (
	"context"
	"time"

	"github.com/Guneet-Singh-Kalra/orbital/internal/cooldown"
	"github.com/Guneet-Singh-Kalra/orbital/internal/geo"
	"github.com/Guneet-Singh-Kalra/orbital/internal/notify"
	"github.com/Guneet-Singh-Kalra/orbital/internal/presence"
	"github.com/Guneet-Singh-Kalra/orbital/internal/profile"
	"github.com/Guneet-Singh-Kalra/orbital/internal/strike"
	"go.uber.org/zap"
)

type PresenceIndex interface {
	Upsert(ctx context.Context, playerID string, loc geo.LatLng) error
	QueryRadius(ctx context.Context, center geo.LatLng, radiusM float64) ([]presence.Nearby, error)
	Position(ctx context.Context, playerID string) (presence.Presence, bool, error)
}

type CooldownLedger interface {
	TryAcquire(ctx context.Context, playerID, action string, ttl time.Duration) (bool, error)
	IsActive(ctx context.Context, playerID, action string) (bool, error)
	Remaining(ctx context.Context, playerID, action string) (time.Duration, error)
}

type Profiles interface {
	AliveStatus(ctx context.Context, playerID string) (bool, error)
	Profile(ctx context.Context, playerID string) (profile.Profile, error)
	ApplyStrikeOutcome(ctx context.Context, playerID string, d profile.Delta) error
}

type StrikeStore interface {
	Create(ctx context.Context, r strike.Record) error
	Get(ctx context.Context, id string) (strike.Record, error)
	Claim(ctx context.Context, id string) (bool, error)
	ListDue(ctx context.Context, before time.Time, limit int64) ([]string, error)
	Forget(ctx context.Context, id string) error
}

type WakeScheduler interface {
	ScheduleWake(ctx context.Context, strikeID string, at time.Time) error
	RearmWake(ctx context.Context, strikeID string, at time.Time) error
}

type Notifier interface {
	Notify(ctx context.Context, n notify.Notification)
}

// Deps are the shared collaborators injected into every service. Nothing here
// is owned by the services; the process entry point manages their lifecycle.
type Deps struct {
	Presence  PresenceIndex
	Cooldowns CooldownLedger
	Profiles  Profiles
	Strikes   StrikeStore
	Wake      WakeScheduler
	Notifier  Notifier
	Log       *zap.Logger
	Now       func() time.Time
	NewID     func() string
}

func (d Deps) withDefaults() Deps {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = newStrikeID
	}
	return d
}

// cooldownError builds a CooldownError; the remaining time is best effort.
func cooldownError(ctx context.Context, ledger CooldownLedger, now time.Time, playerID, action string, sentinel error) error {
	e := &CooldownError{Action: action, err: sentinel}
	if left, err := ledger.Remaining(ctx, playerID, action); err == nil && left > 0 {
		e.AvailableAt = now.Add(left)
	}
	return e
}

var _ CooldownLedger = (*cooldown.Ledger)(nil)
var _ PresenceIndex = (*presence.Index)(nil)
var _ StrikeStore = (*strike.Store)(nil)
var _ Profiles = (*profile.MemoryStore)(nil)
var _ Notifier = (*notify.Dispatcher)(nil)

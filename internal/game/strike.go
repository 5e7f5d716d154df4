package game

import (
	"context"
	"fmt"
	"time"

	"github.com/Guneet-Singh-Kalra/orbital/internal/cooldown"
	"github.com/Guneet-Singh-Kalra/orbital/internal/geo"
	"github.com/Guneet-Singh-Kalra/orbital/internal/notify"
	"github.com/Guneet-Singh-Kalra/orbital/internal/strike"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StrikeTicket is returned to the attacker once a strike is armed.
type StrikeTicket struct {
	StrikeID  string    `json:"strikeId"`
	ResolveAt time.Time `json:"resolveAt"`
}

// Coordinator owns the write path: strike scheduling and shields. It is the
// only creator of strike records.
type Coordinator struct {
	deps   Deps
	tuning Tuning
	log    *zap.Logger
}

func NewCoordinator(d Deps, t Tuning) *Coordinator {
	d = d.withDefaults()
	return &Coordinator{deps: d, tuning: SanitizeTuning(t), log: d.Log.Named("strike")}
}

func newStrikeID() string { return uuid.NewString() }

// InitiateStrike validates in a fixed order and fails fast:
//
//  1. target coordinates             -> ValidationError, nothing consumed
//  2. attacker alive                 -> ErrPlayerDead, nothing consumed
//  3. weapon cooldown acquired       -> ErrWeaponCooldown
//  4. attacker within weapon range   -> ValidationError, cooldown stays consumed
//
// After validation the victim set is frozen from one radius query and the
// record is persisted before anything is scheduled or announced.
func (c *Coordinator) InitiateStrike(ctx context.Context, attackerID string, target geo.LatLng) (StrikeTicket, error) {
	if err := target.Validate(); err != nil {
		return StrikeTicket{}, &ValidationError{Field: "target", Reason: err.Error()}
	}

	alive, err := c.deps.Profiles.AliveStatus(ctx, attackerID)
	if err != nil {
		return StrikeTicket{}, unavailable("attacker status", err)
	}
	if !alive {
		return StrikeTicket{}, ErrPlayerDead
	}

	acquired, err := c.deps.Cooldowns.TryAcquire(ctx, attackerID, cooldown.Weapon, c.tuning.WeaponCooldown)
	if err != nil {
		return StrikeTicket{}, unavailable("weapon cooldown", err)
	}
	if !acquired {
		return StrikeTicket{}, cooldownError(ctx, c.deps.Cooldowns, c.deps.Now(), attackerID, cooldown.Weapon, ErrWeaponCooldown)
	}

	// From here on the weapon cooldown is spent whatever happens.
	pos, ok, err := c.deps.Presence.Position(ctx, attackerID)
	if err != nil {
		return StrikeTicket{}, unavailable("attacker position", err)
	}
	if !ok {
		return StrikeTicket{}, &ValidationError{Field: "attacker", Reason: "no reported position"}
	}
	if d := geo.DistanceM(pos.Location, target); d > c.tuning.MaxWeaponRangeM {
		c.log.Info("strike out of range",
			zap.String("attacker_id", attackerID),
			zap.Float64("distance_m", d),
			zap.Float64("max_range_m", c.tuning.MaxWeaponRangeM))
		return StrikeTicket{}, &ValidationError{
			Field:  "target",
			Reason: fmt.Sprintf("%.0f m away, weapon range is %.0f m", d, c.tuning.MaxWeaponRangeM),
		}
	}

	hits, err := c.deps.Presence.QueryRadius(ctx, target, c.tuning.StrikeRadiusM)
	if err != nil {
		return StrikeTicket{}, unavailable("strike victim snapshot", err)
	}
	victims := make([]strike.Victim, len(hits))
	for i, h := range hits {
		victims[i] = strike.Victim{PlayerID: h.PlayerID, Location: h.Location}
	}

	rec := strike.NewRecord(c.deps.NewID(), attackerID, target, c.deps.Now(), c.tuning.ChargeDuration, victims)
	if err := c.deps.Strikes.Create(ctx, rec); err != nil {
		return StrikeTicket{}, unavailable("persist strike", err)
	}

	if err := c.deps.Wake.ScheduleWake(ctx, rec.ID, rec.ResolveAt); err != nil {
		// The record is durable and pending; the resolver sweep re-arms it.
		c.log.Error("schedule wake failed",
			zap.String("strike_id", rec.ID),
			zap.Error(err))
	}

	for _, v := range rec.FrozenVictims {
		c.deps.Notifier.Notify(ctx, notify.Notification{
			RecipientID: v.PlayerID,
			Kind:        notify.KindStrikeIncoming,
			Payload: map[string]any{
				"strikeId":   rec.ID,
				"attackerId": rec.AttackerID,
				"resolveAt":  rec.ResolveAt.UTC().Format(time.RFC3339Nano),
				"target":     latLngPayload(rec.Target),
			},
		})
	}

	c.log.Info("strike scheduled",
		zap.String("strike_id", rec.ID),
		zap.String("attacker_id", attackerID),
		zap.Int("victims", len(rec.FrozenVictims)),
		zap.Time("resolve_at", rec.ResolveAt))
	return StrikeTicket{StrikeID: rec.ID, ResolveAt: rec.ResolveAt}, nil
}

// ActivateShield spends the shield cooldown and raises a shield for
// ShieldDuration. A strike resolving while the shield is up is absorbed.
func (c *Coordinator) ActivateShield(ctx context.Context, playerID string) (time.Time, error) {
	alive, err := c.deps.Profiles.AliveStatus(ctx, playerID)
	if err != nil {
		return time.Time{}, unavailable("player status", err)
	}
	if !alive {
		return time.Time{}, ErrPlayerDead
	}

	acquired, err := c.deps.Cooldowns.TryAcquire(ctx, playerID, cooldown.Shield, c.tuning.ShieldCooldown)
	if err != nil {
		return time.Time{}, unavailable("shield cooldown", err)
	}
	if !acquired {
		return time.Time{}, cooldownError(ctx, c.deps.Cooldowns, c.deps.Now(), playerID, cooldown.Shield, ErrShieldCooldown)
	}

	// The cooldown is never shorter than the duration, so the previous
	// shield has always lapsed by now.
	if _, err := c.deps.Cooldowns.TryAcquire(ctx, playerID, cooldown.ShieldActive, c.tuning.ShieldDuration); err != nil {
		return time.Time{}, unavailable("shield activate", err)
	}
	until := c.deps.Now().Add(c.tuning.ShieldDuration)

	c.deps.Notifier.Notify(ctx, notify.Notification{
		RecipientID: playerID,
		Kind:        notify.KindShieldUp,
		Payload:     map[string]any{"activeUntil": until.UTC().Format(time.RFC3339Nano)},
	})
	c.log.Info("shield up", zap.String("player_id", playerID), zap.Time("until", until))
	return until, nil
}

// Strike returns a record for a player involved in it.
func (c *Coordinator) Strike(ctx context.Context, playerID, strikeID string) (strike.Record, error) {
	rec, err := c.deps.Strikes.Get(ctx, strikeID)
	if err != nil {
		return strike.Record{}, err
	}
	if !rec.Involves(playerID) {
		return strike.Record{}, fmt.Errorf("strike %s: %w", strikeID, strike.ErrNotFound)
	}
	return rec, nil
}

func latLngPayload(p geo.LatLng) map[string]any {
	return map[string]any{"lat": p.Lat, "lng": p.Lng}
}

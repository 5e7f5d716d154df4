package game

import (
	"context"
	"errors"
	"time"

	"github.com/Guneet-Singh-Kalra/orbital/internal/cooldown"
	"github.com/Guneet-Singh-Kalra/orbital/internal/notify"
	"github.com/Guneet-Singh-Kalra/orbital/internal/profile"
	"github.com/Guneet-Singh-Kalra/orbital/internal/strike"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Engine resolves due strikes. Any number of engines in any number of
// processes may be handed the same strike id; the store claim picks one.
type Engine struct {
	deps Deps
	rule OutcomeRule
	opts ResolverOptions
	log  *zap.Logger
}

func NewEngine(d Deps, rule OutcomeRule, opts ResolverOptions) *Engine {
	d = d.withDefaults()
	if rule == nil {
		rule = EliminationRule{Points: EliminationPoints}
	}
	return &Engine{deps: d, rule: rule, opts: SanitizeResolverOptions(opts), log: d.Log.Named("resolve")}
}

// Resolve is the wake handler. It returns an error only when the strike
// should be redelivered later: the store was unreachable before the claim, or
// the wake arrived early. A lost claim returns nil.
func (e *Engine) Resolve(ctx context.Context, strikeID string) error {
	rec, err := e.deps.Strikes.Get(ctx, strikeID)
	if errors.Is(err, strike.ErrNotFound) {
		e.log.Warn("strike gone before resolution", zap.String("strike_id", strikeID))
		if err := e.deps.Strikes.Forget(ctx, strikeID); err != nil {
			return unavailable("forget strike", err)
		}
		return nil
	}
	if err != nil {
		return unavailable("load strike", err)
	}
	if rec.Status != strike.StatusPending {
		e.log.Debug("strike already settled", zap.String("strike_id", strikeID), zap.String("status", string(rec.Status)))
		return nil
	}
	if e.deps.Now().Before(rec.ResolveAt) {
		return ErrNotDue
	}

	won, err := e.deps.Strikes.Claim(ctx, strikeID)
	if errors.Is(err, strike.ErrNotFound) {
		return nil
	}
	if err != nil {
		return unavailable("claim strike", err)
	}
	if !won {
		e.log.Debug("claim lost", zap.String("strike_id", strikeID))
		return nil
	}

	actx, cancel := e.detach(ctx)
	defer cancel()
	e.apply(actx, rec)
	return nil
}

// detach returns a context that survives cancellation of ctx by
// StopGrace, so a shutdown does not cut a claimed resolution short.
func (e *Engine) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	actx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go func() {
		select {
		case <-actx.Done():
			return
		case <-ctx.Done():
		}
		t := time.NewTimer(e.opts.StopGrace)
		defer t.Stop()
		select {
		case <-actx.Done():
		case <-t.C:
			cancel()
		}
	}()
	return actx, cancel
}

// apply runs after a won claim. The claim cannot be handed back, so every
// store call here is retried until it succeeds or ctx ends. If ctx ends first
// nothing further is evaluated or announced.
func (e *Engine) apply(ctx context.Context, rec strike.Record) {
	outcomes := make([]VictimOutcome, 0, len(rec.FrozenVictims))
	for _, v := range rec.FrozenVictims {
		state := VictimState{Victim: v}
		err := e.retry(ctx, rec.ID, "victim state", func() error {
			alive, err := e.deps.Profiles.AliveStatus(ctx, v.PlayerID)
			if err != nil {
				return err
			}
			shielded, err := e.deps.Cooldowns.IsActive(ctx, v.PlayerID, cooldown.ShieldActive)
			if err != nil {
				return err
			}
			state.Alive, state.Shielded = alive, shielded
			return nil
		})
		if err != nil {
			return
		}

		delta := e.rule.Victim(rec, state)
		if !delta.IsZero() {
			err := e.retry(ctx, rec.ID, "apply victim outcome", func() error {
				return e.deps.Profiles.ApplyStrikeOutcome(ctx, v.PlayerID, delta)
			})
			if err != nil {
				return
			}
		}
		outcomes = append(outcomes, VictimOutcome{PlayerID: v.PlayerID, Delta: delta})
	}

	attackerDelta := e.rule.Attacker(rec, outcomes)
	if !attackerDelta.IsZero() {
		err := e.retry(ctx, rec.ID, "apply attacker outcome", func() error {
			return e.deps.Profiles.ApplyStrikeOutcome(ctx, rec.AttackerID, attackerDelta)
		})
		if err != nil {
			return
		}
	}

	e.announce(ctx, rec, outcomes, attackerDelta)

	e.log.Info("strike resolved",
		zap.String("strike_id", rec.ID),
		zap.String("attacker_id", rec.AttackerID),
		zap.Int("victims", len(outcomes)),
		zap.Int("attacker_points", attackerDelta.Points))
}

// announce sends one strike_resolved per distinct recipient.
func (e *Engine) announce(ctx context.Context, rec strike.Record, outcomes []VictimOutcome, attackerDelta profile.Delta) {
	results := make([]any, 0, len(outcomes))
	for i, o := range outcomes {
		results = append(results, map[string]any{
			"playerId":   o.PlayerID,
			"location":   latLngPayload(rec.FrozenVictims[i].Location),
			"eliminated": o.Delta.Eliminated,
			"absorbed":   o.Delta.Absorbed,
			"damage":     o.Delta.Damage,
		})
	}

	order := []string{rec.AttackerID}
	payloads := map[string]map[string]any{
		rec.AttackerID: {
			"strikeId": rec.ID,
			"role":     "attacker",
			"victims":  results,
			"points":   attackerDelta.Points,
		},
	}
	for i, o := range outcomes {
		p, seen := payloads[o.PlayerID]
		if !seen {
			p = map[string]any{"strikeId": rec.ID, "role": "victim"}
			payloads[o.PlayerID] = p
			order = append(order, o.PlayerID)
		}
		p["outcome"] = results[i]
	}

	for _, id := range order {
		e.deps.Notifier.Notify(ctx, notify.Notification{
			RecipientID: id,
			Kind:        notify.KindStrikeResolved,
			Payload:     payloads[id],
		})
	}
}

func (e *Engine) retry(ctx context.Context, strikeID, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.opts.RetryMin
	b.MaxInterval = e.opts.RetryMax
	b.MaxElapsedTime = 0
	b.Reset()

	err := backoff.RetryNotify(fn, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		e.log.Warn("resolution step failed, retrying",
			zap.String("strike_id", strikeID),
			zap.String("op", op),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
	if err != nil {
		// Only reachable when ctx ends mid-resolution.
		e.log.Error("resolution step abandoned, outcome not applied",
			zap.String("strike_id", strikeID),
			zap.String("op", op),
			zap.Error(err))
	}
	return err
}

// Sweep re-arms wakes for pending strikes that are overdue by more than the
// sweep grace, covering lost schedules and restarts.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	now := e.deps.Now()
	ids, err := e.deps.Strikes.ListDue(ctx, now.Add(-e.opts.SweepGrace), e.opts.SweepBatch)
	if err != nil {
		return 0, unavailable("sweep", err)
	}
	rearmed := 0
	for _, id := range ids {
		if err := e.deps.Wake.RearmWake(ctx, id, now); err != nil {
			e.log.Warn("sweep re-arm failed", zap.String("strike_id", id), zap.Error(err))
			continue
		}
		rearmed++
	}
	if rearmed > 0 {
		e.log.Info("sweep re-armed overdue strikes", zap.Int("count", rearmed))
	}
	return rearmed, nil
}

// Run sweeps every SweepInterval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := e.Sweep(ctx); err != nil && ctx.Err() == nil {
				e.log.Warn("sweep failed", zap.Error(err))
			}
		}
	}
}

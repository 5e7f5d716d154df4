package game

import (
	"context"
	"errors"
	"time"

	"github.com/Guneet-Singh-Kalra/orbital/internal/cooldown"
	"github.com/Guneet-Singh-Kalra/orbital/internal/geo"
	"github.com/Guneet-Singh-Kalra/orbital/internal/notify"
	"github.com/Guneet-Singh-Kalra/orbital/internal/presence"
	"github.com/Guneet-Singh-Kalra/orbital/internal/profile"
	"go.uber.org/zap"
)

const unknownUsername = "Unknown"

// ScannedPlayer is what a scan reveals about another player. Location is the
// profile's last known location, never the live coordinate.
type ScannedPlayer struct {
	PlayerID string     `json:"playerId"`
	Username string     `json:"username"`
	Location geo.LatLng `json:"location"`
}

// Scanner serves the read path: position reports and cooldown-gated scans.
type Scanner struct {
	deps   Deps
	tuning Tuning
	log    *zap.Logger
}

func NewScanner(d Deps, t Tuning) *Scanner {
	d = d.withDefaults()
	return &Scanner{deps: d, tuning: SanitizeTuning(t), log: d.Log.Named("scan")}
}

// ReportPosition validates and stores the caller's live coordinate.
func (s *Scanner) ReportPosition(ctx context.Context, playerID string, loc geo.LatLng) error {
	if err := loc.Validate(); err != nil {
		return &ValidationError{Field: "location", Reason: err.Error()}
	}
	if err := s.deps.Presence.Upsert(ctx, playerID, loc); err != nil {
		return unavailable("report position", err)
	}
	return nil
}

// Scan finds players within the scan radius of center. The scan cooldown is
// consumed even when nobody is found.
func (s *Scanner) Scan(ctx context.Context, playerID string, center geo.LatLng) ([]ScannedPlayer, error) {
	if err := center.Validate(); err != nil {
		return nil, &ValidationError{Field: "location", Reason: err.Error()}
	}

	active, err := s.deps.Cooldowns.IsActive(ctx, playerID, cooldown.Scan)
	if err != nil {
		return nil, unavailable("scan cooldown check", err)
	}
	if active {
		return nil, cooldownError(ctx, s.deps.Cooldowns, s.deps.Now(), playerID, cooldown.Scan, ErrCooldownActive)
	}
	acquired, err := s.deps.Cooldowns.TryAcquire(ctx, playerID, cooldown.Scan, s.tuning.ScanCooldown)
	if err != nil {
		return nil, unavailable("scan cooldown acquire", err)
	}
	if !acquired {
		// Lost a race with a concurrent scan from the same player.
		return nil, cooldownError(ctx, s.deps.Cooldowns, s.deps.Now(), playerID, cooldown.Scan, ErrCooldownActive)
	}

	hits, err := s.deps.Presence.QueryRadius(ctx, center, s.tuning.ScanRadiusM)
	if err != nil {
		return nil, unavailable("scan query", err)
	}

	now := s.deps.Now()
	players := make([]ScannedPlayer, 0, len(hits))
	for _, h := range hits {
		if h.PlayerID == playerID {
			continue
		}
		players = append(players, s.describe(ctx, h))
		s.deps.Notifier.Notify(ctx, notify.Notification{
			RecipientID: h.PlayerID,
			Kind:        notify.KindDetected,
			Payload: map[string]any{
				"detectedAt": now.UTC().Format(time.RFC3339Nano),
			},
		})
	}

	s.log.Info("scan",
		zap.String("player_id", playerID),
		zap.Int("found", len(players)))
	return players, nil
}

func (s *Scanner) describe(ctx context.Context, h presence.Nearby) ScannedPlayer {
	out := ScannedPlayer{
		PlayerID: h.PlayerID,
		Username: unknownUsername,
		Location: geo.Quantize(h.Location, s.tuning.ScanPrecisionDecimals),
	}
	p, err := s.deps.Profiles.Profile(ctx, h.PlayerID)
	if err != nil {
		if !errors.Is(err, profile.ErrNotFound) {
			s.log.Warn("profile lookup failed", zap.String("player_id", h.PlayerID), zap.Error(err))
		}
		return out
	}
	if p.Username != "" {
		out.Username = p.Username
	}
	if p.LastKnownLocation != nil {
		out.Location = *p.LastKnownLocation
	}
	return out
}

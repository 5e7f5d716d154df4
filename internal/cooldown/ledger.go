package cooldown

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Action names shared by the game services.
const (
	Scan         = "scan"
	Weapon       = "weapon"
	Shield       = "shield"
	ShieldActive = "shield-active"
)

// Ledger holds per-player, per-action expiring locks. Expiry is passive: Redis
// drops a key once its TTL passes, so an expired entry is never observed.
type Ledger struct {
	client redis.UniversalClient
}

func NewLedger(client redis.UniversalClient) *Ledger {
	return &Ledger{client: client}
}

func key(playerID, action string) string {
	return "cooldown:" + playerID + ":" + action
}

// TryAcquire creates the entry only if none is live, in a single SET NX PX.
// Of any number of concurrent callers for one key, at most one gets true.
func (l *Ledger) TryAcquire(ctx context.Context, playerID, action string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("cooldown %s/%s: ttl must be positive, got %v", playerID, action, ttl)
	}
	ok, err := l.client.SetNX(ctx, key(playerID, action), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire cooldown %s/%s: %w", playerID, action, err)
	}
	return ok, nil
}

// IsActive reports whether an unexpired entry exists. It never writes.
func (l *Ledger) IsActive(ctx context.Context, playerID, action string) (bool, error) {
	n, err := l.client.Exists(ctx, key(playerID, action)).Result()
	if err != nil {
		return false, fmt.Errorf("check cooldown %s/%s: %w", playerID, action, err)
	}
	return n == 1, nil
}

// Remaining returns how long the entry has left, or 0 when none is live.
func (l *Ledger) Remaining(ctx context.Context, playerID, action string) (time.Duration, error) {
	d, err := l.client.PTTL(ctx, key(playerID, action)).Result()
	if err != nil {
		return 0, fmt.Errorf("cooldown ttl %s/%s: %w", playerID, action, err)
	}
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

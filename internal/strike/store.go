package strike

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Guneet-Singh-Kalra/orbital/internal/store"
	"github.com/redis/go-redis/v9"
)

const keyPending = "strike:pending"

var (
	ErrNotFound  = errors.New("strike not found")
	ErrDuplicate = errors.New("strike id already exists")
)

func recordKey(id string) string { return "strike:" + id }

// KEYS: record, pending index. ARGV: body, status, ttl ms, resolveAt ms, id.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'body', ARGV[1], 'status', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
redis.call('ZADD', KEYS[2], ARGV[4], ARGV[5])
return 1
`)

// KEYS: record, pending index. ARGV: expected status, new status, id.
var claimScript = redis.NewScript(`
local s = redis.call('HGET', KEYS[1], 'status')
if not s then
  redis.call('ZREM', KEYS[2], ARGV[3])
  return -1
end
if s ~= ARGV[1] then
  return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[2])
redis.call('ZREM', KEYS[2], ARGV[3])
return 1
`)

// Store persists strike records in Redis. A record outlives its ResolveAt by
// the grace period so a restarted resolver can still find it.
type Store struct {
	client redis.UniversalClient
	grace  time.Duration
	now    func() time.Time
}

func NewStore(client redis.UniversalClient, grace time.Duration) *Store {
	return &Store{client: client, grace: grace, now: time.Now}
}

func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Create persists a new pending record. It never overwrites.
func (s *Store) Create(ctx context.Context, r Record) error {
	if r.Status != StatusPending {
		return fmt.Errorf("create strike %s: status must be %s, got %s", r.ID, StatusPending, r.Status)
	}
	body, err := encodeBody(r)
	if err != nil {
		return err
	}
	ttl := r.ResolveAt.Add(s.grace).Sub(s.now())
	if ttl < s.grace {
		ttl = s.grace
	}
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}

	created, err := createScript.Run(ctx, s.client,
		[]string{recordKey(r.ID), keyPending},
		body, string(r.Status), ttl.Milliseconds(), store.Millis(r.ResolveAt), r.ID,
	).Int()
	if err != nil {
		return fmt.Errorf("create strike %s: %w", r.ID, err)
	}
	if created == 0 {
		return fmt.Errorf("create strike %s: %w", r.ID, ErrDuplicate)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	fields, err := s.client.HGetAll(ctx, recordKey(id)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("get strike %s: %w", id, err)
	}
	body, ok := fields["body"]
	if !ok {
		return Record{}, fmt.Errorf("get strike %s: %w", id, ErrNotFound)
	}
	r, err := decodeBody([]byte(body))
	if err != nil {
		return Record{}, err
	}
	r.Status = Status(fields["status"])
	return r, nil
}

// Claim atomically moves the record from pending to resolved. Exactly one of
// any number of concurrent callers gets true; the rest get false.
func (s *Store) Claim(ctx context.Context, id string) (bool, error) {
	res, err := claimScript.Run(ctx, s.client,
		[]string{recordKey(id), keyPending},
		string(StatusPending), string(StatusResolved), id,
	).Int()
	if err != nil {
		return false, fmt.Errorf("claim strike %s: %w", id, err)
	}
	switch res {
	case 1:
		return true, nil
	case -1:
		return false, fmt.Errorf("claim strike %s: %w", id, ErrNotFound)
	default:
		return false, nil
	}
}

// Forget drops id from the pending index. Used once the record itself has
// expired, since no claim can remove it after that.
func (s *Store) Forget(ctx context.Context, id string) error {
	if err := s.client.ZRem(ctx, keyPending, id).Err(); err != nil {
		return fmt.Errorf("forget strike %s: %w", id, err)
	}
	return nil
}

// ListDue returns ids of still-pending strikes whose ResolveAt is at or before
// the given time, oldest first.
func (s *Store) ListDue(ctx context.Context, before time.Time, limit int64) ([]string, error) {
	ids, err := s.client.ZRangeByScore(ctx, keyPending, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(store.Millis(before), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list due strikes: %w", err)
	}
	return ids, nil
}

// Package store owns the connection to the shared Redis instance that holds
// presence, cooldowns, strike records and the wake queue.
//
// Key layout:
//
//	players                        GEO set, member = playerId
//	players:updated                hash, playerId -> unix millis of last upsert
//	cooldown:{playerId}:{action}   string with TTL
//	strike:{strikeId}              hash {body: msgpack record, status}
//	strike:pending                 zset, score = resolveAt millis
//	strike:wake                    zset, score = deliver-at millis
//	strike:scheduled               pub/sub channel waking delivery loops
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Options struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		Addr:        "127.0.0.1:6379",
		DialTimeout: 5 * time.Second,
	}
}

// Open builds a client and pings it once. The caller owns the returned client
// and must Close it on shutdown.
func Open(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return client, nil
}

// Millis converts t to the integer millisecond scores used in sorted sets.
func Millis(t time.Time) int64 { return t.UnixMilli() }

// FromMillis is the inverse of Millis.
func FromMillis(ms int64) time.Time { return time.UnixMilli(ms) }

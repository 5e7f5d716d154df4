package presence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/Guneet-Singh-Kalra/orbital/internal/geo"
	"github.com/Guneet-Singh-Kalra/orbital/internal/store"
	"github.com/redis/go-redis/v9"
)

const (
	keyPlayers = "players"
	keyUpdated = "players:updated"

	// Redis and geo.DistanceM disagree by fractions of a millimetre near the
	// boundary; over-fetch and filter locally.
	overfetchFactor = 1.001
	overfetchMeters = 1.0
)

// Presence is a player's single live coordinate.
type Presence struct {
	PlayerID  string
	Location  geo.LatLng
	UpdatedAt time.Time
}

// Nearby is one radius query hit.
type Nearby struct {
	PlayerID  string     `json:"playerId" msgpack:"id"`
	Location  geo.LatLng `json:"location" msgpack:"loc"`
	DistanceM float64    `json:"distanceM" msgpack:"d"`
}

// Index is the Redis GEO backed presence store. It performs no coordinate
// validation; callers validate before Upsert.
type Index struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewIndex(client redis.UniversalClient) *Index {
	return &Index{client: client, now: time.Now}
}

// WithClock replaces the time source used for UpdatedAt.
func (x *Index) WithClock(now func() time.Time) *Index {
	x.now = now
	return x
}

// Upsert overwrites the player's entry. Last write wins.
func (x *Index) Upsert(ctx context.Context, playerID string, loc geo.LatLng) error {
	ts := store.Millis(x.now())
	_, err := x.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.GeoAdd(ctx, keyPlayers, &redis.GeoLocation{
			Name:      playerID,
			Longitude: loc.Lng,
			Latitude:  loc.Lat,
		})
		pipe.HSet(ctx, keyUpdated, playerID, ts)
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert presence %s: %w", playerID, err)
	}
	return nil
}

// QueryRadius returns every player within radiusM meters of center, nearest
// first, ties broken by player id.
func (x *Index) QueryRadius(ctx context.Context, center geo.LatLng, radiusM float64) ([]Nearby, error) {
	if radiusM < 0 {
		return nil, nil
	}
	locs, err := x.client.GeoRadius(ctx, keyPlayers, center.Lng, center.Lat, &redis.GeoRadiusQuery{
		Radius:    radiusM*overfetchFactor + overfetchMeters,
		Unit:      "m",
		WithCoord: true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("query radius %.1fm around %v: %w", radiusM, center, err)
	}

	out := make([]Nearby, 0, len(locs))
	for _, l := range locs {
		loc := geo.LatLng{Lat: l.Latitude, Lng: l.Longitude}
		d := geo.DistanceM(center, loc)
		if d > radiusM {
			continue
		}
		out = append(out, Nearby{PlayerID: l.Name, Location: loc, DistanceM: d})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceM != out[j].DistanceM {
			return out[i].DistanceM < out[j].DistanceM
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	return out, nil
}

// Position returns the player's live entry; ok is false if the player never
// reported a position.
func (x *Index) Position(ctx context.Context, playerID string) (Presence, bool, error) {
	var (
		posCmd *redis.GeoPosCmd
		tsCmd  *redis.StringCmd
	)
	_, err := x.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		posCmd = pipe.GeoPos(ctx, keyPlayers, playerID)
		tsCmd = pipe.HGet(ctx, keyUpdated, playerID)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Presence{}, false, fmt.Errorf("position %s: %w", playerID, err)
	}

	positions, err := posCmd.Result()
	if err != nil {
		return Presence{}, false, fmt.Errorf("position %s: %w", playerID, err)
	}
	if len(positions) == 0 || positions[0] == nil {
		return Presence{}, false, nil
	}

	p := Presence{
		PlayerID: playerID,
		Location: geo.LatLng{Lat: positions[0].Latitude, Lng: positions[0].Longitude},
	}
	if raw, err := tsCmd.Result(); err == nil {
		if ms, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			p.UpdatedAt = store.FromMillis(ms)
		}
	}
	return p, true, nil
}

package strike

import (
	"fmt"
	"time"

	"github.com/Guneet-Singh-Kalra/orbital/internal/geo"
	"github.com/vmihailenco/msgpack/v5"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	// StatusCancelled is reserved; nothing in this service cancels a strike.
	StatusCancelled Status = "cancelled"
)

// Victim is a player position frozen at scheduling time.
type Victim struct {
	PlayerID string     `json:"playerId" msgpack:"id"`
	Location geo.LatLng `json:"location" msgpack:"loc"`
}

// Record is a scheduled strike. Everything except Status is immutable once
// created; Status is owned by the resolution claim.
type Record struct {
	ID             string        `json:"strikeId" msgpack:"id"`
	AttackerID     string        `json:"attackerId" msgpack:"attacker"`
	Target         geo.LatLng    `json:"target" msgpack:"target"`
	ScheduledAt    time.Time     `json:"scheduledAt" msgpack:"scheduled"`
	ChargeDuration time.Duration `json:"chargeDurationMs" msgpack:"charge"`
	ResolveAt      time.Time     `json:"resolveAt" msgpack:"resolve"`
	FrozenVictims  []Victim      `json:"frozenVictims" msgpack:"victims"`
	Status         Status        `json:"status" msgpack:"-"`
}

// NewRecord builds a pending record. ResolveAt is derived here and nowhere else.
func NewRecord(id, attackerID string, target geo.LatLng, scheduledAt time.Time, charge time.Duration, victims []Victim) Record {
	frozen := make([]Victim, len(victims))
	copy(frozen, victims)
	return Record{
		ID:             id,
		AttackerID:     attackerID,
		Target:         target,
		ScheduledAt:    scheduledAt,
		ChargeDuration: charge,
		ResolveAt:      scheduledAt.Add(charge),
		FrozenVictims:  frozen,
		Status:         StatusPending,
	}
}

// Involves reports whether playerID is the attacker or a frozen victim.
func (r Record) Involves(playerID string) bool {
	if r.AttackerID == playerID {
		return true
	}
	for _, v := range r.FrozenVictims {
		if v.PlayerID == playerID {
			return true
		}
	}
	return false
}

func encodeBody(r Record) ([]byte, error) {
	data, err := msgpack.Marshal(&r)
	if err != nil {
		return nil, fmt.Errorf("encode strike %s: %w", r.ID, err)
	}
	return data, nil
}

func decodeBody(data []byte) (Record, error) {
	var r Record
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("decode strike: %w", err)
	}
	return r, nil
}

// Package profile holds the player-profile view this service needs from the
// external profile store, and an in-memory implementation of it.
package profile

import (
	"context"
	"errors"
	"sync"

	"github.com/Guneet-Singh-Kalra/orbital/internal/geo"
)

var ErrNotFound = errors.New("profile not found")

type Profile struct {
	PlayerID          string      `json:"playerId"`
	Username          string      `json:"username"`
	Points            int         `json:"points"`
	Alive             bool        `json:"alive"`
	LastKnownLocation *geo.LatLng `json:"lastKnownLocation,omitempty"`
}

// Delta is the outcome of a strike for one player.
type Delta struct {
	Eliminated bool
	Damage     int
	Absorbed   bool
	Points     int
}

func (d Delta) IsZero() bool { return d == Delta{} }

// MemoryStore is a process-local profile store for development and tests.
// Unknown players are created alive on first read.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: map[string]*Profile{}}
}

// Put inserts or replaces a profile.
func (s *MemoryStore) Put(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	if p.LastKnownLocation != nil {
		loc := *p.LastKnownLocation
		cp.LastKnownLocation = &loc
	}
	s.profiles[p.PlayerID] = &cp
}

func (s *MemoryStore) ensureLocked(playerID string) *Profile {
	p, ok := s.profiles[playerID]
	if !ok {
		p = &Profile{PlayerID: playerID, Username: playerID, Alive: true}
		s.profiles[playerID] = p
	}
	return p
}

func (s *MemoryStore) AliveStatus(_ context.Context, playerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(playerID).Alive, nil
}

// Profile returns a copy of the stored profile.
func (s *MemoryStore) Profile(_ context.Context, playerID string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[playerID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	cp := *p
	if p.LastKnownLocation != nil {
		loc := *p.LastKnownLocation
		cp.LastKnownLocation = &loc
	}
	return cp, nil
}

func (s *MemoryStore) ApplyStrikeOutcome(_ context.Context, playerID string, d Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.ensureLocked(playerID)
	if d.Eliminated {
		p.Alive = false
	}
	p.Points += d.Points
	if p.Points < 0 {
		p.Points = 0
	}
	return nil
}

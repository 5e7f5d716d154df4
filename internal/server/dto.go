package server

import (
	"time"

	"github.com/Guneet-Singh-Kalra/orbital/internal/game"
	"github.com/Guneet-Singh-Kalra/orbital/internal/geo"
	"github.com/Guneet-Singh-Kalra/orbital/internal/strike"
)

type latLngRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (r latLngRequest) location(field string) (geo.LatLng, error) {
	if r.Lat == nil || r.Lng == nil {
		return geo.LatLng{}, &game.ValidationError{Field: field, Reason: "lat and lng are required"}
	}
	return geo.LatLng{Lat: *r.Lat, Lng: *r.Lng}, nil
}

type healthResponse struct {
	Message string `json:"message"`
}

type scanResponse struct {
	Players []game.ScannedPlayer `json:"players"`
}

type shieldResponse struct {
	ActiveUntil time.Time `json:"activeUntil"`
}

type errorResponse struct {
	Error       string     `json:"error"`
	Message     string     `json:"message"`
	AvailableAt *time.Time `json:"availableAt,omitempty"`
}

type victimDTO struct {
	PlayerID string     `json:"playerId"`
	Location geo.LatLng `json:"location"`
}

type strikeDTO struct {
	StrikeID    string      `json:"strikeId"`
	AttackerID  string      `json:"attackerId"`
	Target      geo.LatLng  `json:"target"`
	ScheduledAt time.Time   `json:"scheduledAt"`
	ResolveAt   time.Time   `json:"resolveAt"`
	Status      string      `json:"status"`
	Victims     []victimDTO `json:"victims"`
}

func strikeToDTO(r strike.Record) strikeDTO {
	out := strikeDTO{
		StrikeID:    r.ID,
		AttackerID:  r.AttackerID,
		Target:      r.Target,
		ScheduledAt: r.ScheduledAt.UTC(),
		ResolveAt:   r.ResolveAt.UTC(),
		Status:      string(r.Status),
		Victims:     make([]victimDTO, len(r.FrozenVictims)),
	}
	for i, v := range r.FrozenVictims {
		out.Victims[i] = victimDTO{PlayerID: v.PlayerID, Location: v.Location}
	}
	return out
}

package game

import (
	"github.com/Guneet-Singh-Kalra/orbital/internal/profile"
	"github.com/Guneet-Singh-Kalra/orbital/internal/strike"
)

// VictimState is what the resolver knows about a frozen victim at
// resolution time. Location is the frozen one.
type VictimState struct {
	Victim   strike.Victim
	Alive    bool
	Shielded bool
}

// VictimOutcome pairs a victim with the delta applied to them.
type VictimOutcome struct {
	PlayerID string
	Delta    profile.Delta
}

// OutcomeRule decides strike effects. The numbers live outside this package;
// the rule only maps state to deltas.
type OutcomeRule interface {
	Victim(rec strike.Record, v VictimState) profile.Delta
	Attacker(rec strike.Record, outcomes []VictimOutcome) profile.Delta
}

// EliminationRule: dead victims are untouched, shielded victims absorb the
// strike, everyone else is eliminated. The attacker earns Points per
// eliminated opponent.
type EliminationRule struct {
	Points int
}

func (r EliminationRule) Victim(_ strike.Record, v VictimState) profile.Delta {
	switch {
	case !v.Alive:
		return profile.Delta{}
	case v.Shielded:
		return profile.Delta{Absorbed: true}
	default:
		return profile.Delta{Eliminated: true}
	}
}

func (r EliminationRule) Attacker(rec strike.Record, outcomes []VictimOutcome) profile.Delta {
	kills := 0
	for _, o := range outcomes {
		if o.Delta.Eliminated && o.PlayerID != rec.AttackerID {
			kills++
		}
	}
	return profile.Delta{Points: kills * r.Points}
}

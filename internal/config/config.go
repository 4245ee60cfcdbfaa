package config

import (
	"fmt"
	"sync/atomic"

	"github.com/BurntSushi/toml"

	"github.com/talgya/crowdforce/internal/geom"
)

// Params are the tunables an operator may edit while the simulation runs.
// Range enforcement is the caller's job; values are used as given.
type Params struct {
	AgentRadius   int `toml:"agent_radius" json:"agent_radius"`     // Body radius in cells
	CrowdSparsity int `toml:"crowd_sparsity" json:"crowd_sparsity"` // Extra spacing between spawned agents

	TroublemakerPercent int `toml:"troublemaker_percent" json:"troublemaker_percent"`
	ModeratePercent     int `toml:"moderate_percent" json:"moderate_percent"` // Remainder is passive

	MaxSpeedPassive  float64 `toml:"max_speed_passive" json:"max_speed_passive"`
	MaxSpeedModerate float64 `toml:"max_speed_moderate" json:"max_speed_moderate"`
	MaxSpeedTrouble  float64 `toml:"max_speed_trouble" json:"max_speed_trouble"` // Shared by policemen

	ViewRadius int `toml:"view_radius" json:"view_radius"`
	TickRate   int `toml:"tick_rate" json:"tick_rate"` // Ticks per second when free-running

	Target geom.Point `toml:"target" json:"target"` // Goal point for the crowd

	RubbleThreshold float64 `toml:"rubble_threshold" json:"rubble_threshold"` // Noise level above which rubble appears
	Workers         int     `toml:"workers" json:"workers"`                   // 0 = GOMAXPROCS-1
}

// Default returns the stock parameter set.
func Default() Params {
	return Params{
		AgentRadius:         3,
		CrowdSparsity:       1,
		TroublemakerPercent: 5,
		ModeratePercent:     15,
		MaxSpeedPassive:     1.2,
		MaxSpeedModerate:    1.6,
		MaxSpeedTrouble:     2.0,
		ViewRadius:          10,
		TickRate:            30,
		Target:              geom.Point{X: 350, Y: 20},
		RubbleThreshold:     0.62,
	}
}

// Load reads a TOML file over the defaults. Keys absent from the file keep
// their default values.
func Load(path string) (Params, error) {
	p := Default()
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return Default(), fmt.Errorf("decode config %s: %w", path, err)
	}
	return p, nil
}

// Store is the process-wide parameter holder. Readers take an immutable
// snapshot at the start of each tick; writers swap in a modified copy, so a
// live edit takes effect from the next tick on.
type Store struct {
	p atomic.Pointer[Params]
}

// NewStore creates a store holding p.
func NewStore(p Params) *Store {
	s := &Store{}
	s.p.Store(&p)
	return s
}

// Load returns the current snapshot.
func (s *Store) Load() Params {
	return *s.p.Load()
}

// Update applies fn to a copy of the current parameters and publishes it.
func (s *Store) Update(fn func(*Params)) Params {
	for {
		old := s.p.Load()
		next := *old
		fn(&next)
		if s.p.CompareAndSwap(old, &next) {
			return next
		}
	}
}

// Package island owns a single Habitat plus its tick cadence: when to run
// mutations and when a scheduled disaster wipes a rectangle of the grid.
package island

import (
	"math/rand"
	"time"

	"github.com/apilar-sim/apilar/internal/habitat"
)

// DisasterConfig schedules periodic wipeouts: every Frequency ticks, a
// random Width x Height rectangle is cleared.
type DisasterConfig struct {
	Frequency habitat.Ticks
	Width     int
	Height    int
}

// Connection is an outbound inter-island transfer channel: every
// TransmitFrequency wall-clock duration, the World attempts to sample one
// occupied cell from FromRect and place it into an empty cell of ToRect on
// island ToID.
type Connection struct {
	FromRect          habitat.Rectangle
	ToRect            habitat.Rectangle
	ToID              int
	TransmitFrequency time.Duration
}

// Island bundles one Habitat with the configuration and schedule that
// drives it.
type Island struct {
	Habitat     *habitat.Habitat
	Config      habitat.HabitatConfig
	Disaster    *DisasterConfig
	Connections []Connection
}

// New returns an Island with an empty habitat of the given dimensions.
func New(width, height int, resourcesPerLocation uint64, config habitat.HabitatConfig) *Island {
	return &Island{
		Habitat: habitat.New(width, height, resourcesPerLocation),
		Config:  config,
	}
}

// Update runs one habitat tick; if ticks falls on the island's mutation
// cadence, it additionally runs mutations; if a disaster is scheduled at
// this tick, it wipes a random rectangle of the habitat.
func (isl *Island) Update(ticks habitat.Ticks, rng *rand.Rand) {
	isl.Habitat.Update(rng, isl.Config)

	if ticks.IsAt(isl.Config.MutationFrequency) {
		isl.Habitat.Mutate(rng, isl.Config.Mutation)
	}

	if isl.Disaster != nil && ticks.IsAt(isl.Disaster.Frequency) {
		isl.Habitat.Wipeout(rng, isl.Disaster.Width, isl.Disaster.Height)
	}
}

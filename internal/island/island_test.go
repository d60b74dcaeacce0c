package island

import (
	"math/rand"
	"testing"

	"github.com/apilar-sim/apilar/internal/habitat"
)

func TestUpdateRunsMutationOnCadence(t *testing.T) {
	isl := New(3, 3, 5, habitat.HabitatConfig{
		InstructionsPerUpdate: 1,
		MaxProcessors:         1,
		MutationFrequency:     2,
		Mutation:              habitat.Mutation{OverwriteAmount: 1},
	})
	rng := rand.New(rand.NewSource(1))

	// ticks.IsAt(2) is true at 0, 2, 4, ...; this must not panic regardless
	// of whether any cell is occupied.
	isl.Update(0, rng)
	isl.Update(1, rng)
	isl.Update(2, rng)
}

func TestUpdateRunsDisasterOnSchedule(t *testing.T) {
	isl := New(4, 4, 0, habitat.HabitatConfig{InstructionsPerUpdate: 1, MaxProcessors: 1})
	isl.Disaster = &DisasterConfig{Frequency: 3, Width: 4, Height: 4}
	rng := rand.New(rand.NewSource(1))

	isl.Update(0, rng)
	isl.Update(3, rng)
}

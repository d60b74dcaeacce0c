package codec

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apilar-sim/apilar/internal/habitat"
	"github.com/apilar-sim/apilar/internal/island"
	"github.com/apilar-sim/apilar/internal/vm/computer"
	"github.com/apilar-sim/apilar/internal/vm/intent"
	"github.com/apilar-sim/apilar/internal/vm/memory"
	"github.com/apilar-sim/apilar/internal/vm/processor"
)

func buildTestIsland() *island.Island {
	cfg := habitat.HabitatConfig{
		InstructionsPerUpdate: 5,
		MaxProcessors:         4,
		MutationFrequency:     100,
		Mutation:              habitat.Mutation{OverwriteAmount: 1},
		Death:                 habitat.Death{Rate: 1000, MemorySize: 4096},
		Metabolism:            processor.Metabolism{EatMax: 10, GrowMax: 10, ShrinkMax: 10},
	}
	isl := island.New(3, 3, 7, cfg)
	isl.Disaster = &island.DisasterConfig{Frequency: 5000, Width: 2, Height: 2}
	isl.Connections = []island.Connection{
		{
			FromRect:          habitat.Rectangle{X: 0, Y: 0, W: 1, H: 1},
			ToRect:            habitat.Rectangle{X: 1, Y: 1, W: 1, H: 1},
			ToID:              1,
			TransmitFrequency: 2 * time.Second,
		},
	}

	mem := memory.New(4)
	mem.Set(0, 0x01)
	mem.Set(1, 0x02)
	mem.Set(2, 0x03)
	mem.Set(3, 0x04)
	c := computer.New(mem, 42)
	p := processor.New(1)
	p.Push(99)
	c.Processors = []*processor.Processor{p}
	c.Wants.Want(intent.Eat, intent.Arg{Amount: 3})
	c.Wants.Cancel(intent.Eat)

	isl.Habitat.Place(1, 2, c)
	return isl
}

func TestCaptureRestoreRoundTrip(t *testing.T) {
	original := buildTestIsland()
	ws := Capture([]*island.Island{original}, 1)
	require.Len(t, ws.Islands, 1)

	restored := Restore(ws)
	require.Len(t, restored, 1)
	isl := restored[0]

	require.Equal(t, 3, isl.Habitat.Width)
	require.Equal(t, 3, isl.Habitat.Height)
	require.NotNil(t, isl.Disaster)
	require.EqualValues(t, 5000, isl.Disaster.Frequency)
	require.Len(t, isl.Connections, 1)
	require.Equal(t, 1, isl.Connections[0].ToID)
	require.Equal(t, 2*time.Second, isl.Connections[0].TransmitFrequency)

	loc := isl.Habitat.At(1, 2)
	require.NotNil(t, loc.Computer)
	require.EqualValues(t, 42, loc.Computer.Resources)
	require.Equal(t, []byte{1, 2, 3, 4}, loc.Computer.Memory.Bytes())
	require.Len(t, loc.Computer.Processors, 1)
	require.Equal(t, 1, loc.Computer.Processors[0].IP())
	require.Equal(t, []uint64{99}, loc.Computer.Processors[0].Top())

	require.Empty(t, loc.Computer.Wants.Winners(intent.Eat), "the single eat tally should have been cancelled")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	isl := buildTestIsland()
	ws := Capture([]*island.Island{isl}, 0)

	path := filepath.Join(t.TempDir(), "snapshot.zip")
	require.NoError(t, Save(path, ws))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded.Islands, 1)
	require.Equal(t, 0, loaded.ObservedIslandID)

	restored := Restore(loaded)[0]
	loc := restored.Habitat.At(1, 2)
	require.NotNil(t, loc.Computer)
	require.EqualValues(t, 42, loc.Computer.Resources)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.zip"))
	require.Error(t, err)
}

package habitat

import (
	"math/rand"
	"testing"

	"github.com/apilar-sim/apilar/internal/geo"
	"github.com/apilar-sim/apilar/internal/vm/computer"
	"github.com/apilar-sim/apilar/internal/vm/memory"
	"github.com/apilar-sim/apilar/internal/vm/processor"
)

func TestNeighborCoordsWraps(t *testing.T) {
	h := New(5, 5, 5)

	cases := []struct {
		x, y int
		dir  Direction
		wx   int
		wy   int
	}{
		{2, 2, geo.North, 2, 1},
		{2, 2, geo.South, 2, 3},
		{2, 2, geo.West, 1, 2},
		{2, 2, geo.East, 3, 2},
		{1, 0, geo.North, 1, 4},
		{1, 4, geo.South, 1, 0},
		{0, 2, geo.West, 4, 2},
		{4, 2, geo.East, 0, 2},
	}
	for _, c := range cases {
		gx, gy := h.neighbor(c.x, c.y, c.dir)
		if gx != c.wx || gy != c.wy {
			t.Errorf("neighbor(%d,%d,%v) = (%d,%d), want (%d,%d)", c.x, c.y, c.dir, gx, gy, c.wx, c.wy)
		}
	}
}

func TestConservationAcrossUpdates(t *testing.T) {
	h := New(4, 4, 10)
	h.At(0, 0).Computer = computer.New(memory.FromBytes([]byte{1, 2, 3}), 20)
	h.At(0, 0).Computer.Processors = []*processor.Processor{processor.New(0)}
	h.At(1, 1).Computer = computer.New(memory.FromBytes([]byte{4, 5}), 5)
	h.At(1, 1).Computer.Processors = []*processor.Processor{processor.New(0)}

	free0, bound0, mem0 := h.ResourcesAmounts()
	total0 := free0 + bound0 + mem0

	rng := rand.New(rand.NewSource(42))
	config := HabitatConfig{
		InstructionsPerUpdate: 4,
		MaxProcessors:         4,
		Death:                 Death{Rate: 0, MemorySize: 0},
		Metabolism:            processor.Metabolism{EatMax: 10, GrowMax: 10, ShrinkMax: 10},
	}
	for i := 0; i < 200; i++ {
		h.Update(rng, config)
	}

	free1, bound1, mem1 := h.ResourcesAmounts()
	total1 := free1 + bound1 + mem1
	if total0 != total1 {
		t.Fatalf("conservation violated: before=%d after=%d", total0, total1)
	}
}

func TestConservationAcrossMutationsInsertDelete(t *testing.T) {
	h := New(3, 3, 0)
	h.At(1, 1).Computer = computer.New(memory.FromBytes([]byte{1, 2, 3}), 10)

	free0, bound0, mem0 := h.ResourcesAmounts()
	total0 := free0 + bound0 + mem0

	rng := rand.New(rand.NewSource(7))
	h.Mutate(rng, Mutation{InsertAmount: 3, DeleteAmount: 3})

	free1, bound1, mem1 := h.ResourcesAmounts()
	total1 := free1 + bound1 + mem1
	if total0 != total1 {
		t.Fatalf("conservation violated across insert/delete: before=%d after=%d", total0, total1)
	}
}

func TestWipeoutRefundsFree(t *testing.T) {
	h := New(4, 4, 0)
	h.At(0, 0).Computer = computer.New(memory.FromBytes([]byte{1, 2, 3}), 7)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		before := *h.At(0, 0)
		h.Wipeout(rng, 4, 4)
		if before.Computer != nil && h.At(0, 0).Computer == nil {
			if h.At(0, 0).Free != before.Free+before.Computer.Resources+uint64(before.Computer.Memory.Len()) {
				t.Fatal("wipeout did not refund resources and memory length to free")
			}
			return
		}
	}
}

func TestDeathRefundsOnOversize(t *testing.T) {
	h := New(2, 2, 0)
	h.At(0, 0).Computer = computer.New(memory.FromBytes(make([]byte, 100)), 3)

	rng := rand.New(rand.NewSource(1))
	h.arbitrateDeath(rng, 0, 0, Death{Rate: 0, MemorySize: 10})

	if h.At(0, 0).Computer != nil {
		t.Fatal("oversized computer should have died")
	}
	if h.At(0, 0).Free != 103 {
		t.Fatalf("free = %d, want 103", h.At(0, 0).Free)
	}
}

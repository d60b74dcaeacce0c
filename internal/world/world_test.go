package world

import (
	"math/rand"
	"testing"
	"time"

	"github.com/apilar-sim/apilar/internal/habitat"
	"github.com/apilar-sim/apilar/internal/island"
	"github.com/apilar-sim/apilar/internal/vm/computer"
	"github.com/apilar-sim/apilar/internal/vm/memory"
)

func newTestIsland(w, h int) *island.Island {
	return island.New(w, h, 0, habitat.HabitatConfig{InstructionsPerUpdate: 1, MaxProcessors: 1})
}

func TestHandleLookup(t *testing.T) {
	wd := New([]*island.Island{newTestIsland(2, 2), newTestIsland(2, 2)}, nil)
	if wd.handle(0) == nil || wd.handle(1) == nil {
		t.Fatal("expected both islands to be found")
	}
	if wd.handle(2) != nil {
		t.Fatal("expected no handle for unknown id")
	}
}

func TestAttemptTransferMovesComputer(t *testing.T) {
	src := newTestIsland(2, 2)
	dst := newTestIsland(2, 2)
	src.Habitat.At(0, 0).Computer = computer.New(memory.FromBytes([]byte{1, 2, 3}), 5)

	wd := New([]*island.Island{src, dst}, nil)
	srcHandle, dstHandle := wd.Islands[0], wd.Islands[1]

	conn := island.Connection{
		FromRect:          habitat.Rectangle{X: 0, Y: 0, W: 2, H: 2},
		ToRect:            habitat.Rectangle{X: 0, Y: 0, W: 2, H: 2},
		ToID:              1,
		TransmitFrequency: time.Millisecond,
	}

	wd.attemptTransfer(srcHandle, dstHandle, conn, rand.New(rand.NewSource(1)))

	if src.Habitat.ComputersAmount() != 0 {
		t.Fatal("source island should have lost its only computer")
	}
	if dst.Habitat.ComputersAmount() != 1 {
		t.Fatal("destination island should have gained the computer")
	}
}

func TestSetRunningDoesNotBlock(t *testing.T) {
	h := NewIslandHandle(0, newTestIsland(1, 1))
	h.SetRunning(false)
	h.SetRunning(true) // second call must not block even though the channel has capacity 1
}

// Package world owns the full set of simulated islands and schedules their
// concurrent execution: one dedicated OS thread per island running the
// simulation loop, plus a cooperative goroutine per inter-island connection
// and for the auxiliary snapshot/persistence tasks; client start/stop
// commands arrive on each IslandHandle's control channel. Per-
// island state is protected by coarse-grained, island-granular locking —
// there is no locking inside a single habitat tick.
package world

import (
	"context"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set"

	"github.com/apilar-sim/apilar/internal/habitat"
	"github.com/apilar-sim/apilar/internal/island"
	"github.com/apilar-sim/apilar/internal/logging"
)

// COMMAND_PROCESS_FREQUENCY is how often, in ticks, each island's
// simulation loop samples its client-command channel.
const COMMAND_PROCESS_FREQUENCY habitat.Ticks = 10000

// IslandHandle wraps one Island behind a mutex: every read or mutation of
// its Habitat, anywhere in the process, happens with this lock held.
type IslandHandle struct {
	ID int

	mu     sync.Mutex
	Island *island.Island

	control chan bool // true = run, false = pause; sampled every COMMAND_PROCESS_FREQUENCY ticks
}

// NewIslandHandle wraps isl with its scheduling identity.
func NewIslandHandle(id int, isl *island.Island) *IslandHandle {
	return &IslandHandle{ID: id, Island: isl, control: make(chan bool, 1)}
}

// Lock/Unlock expose the handle's mutex directly so World.Run's transfer
// goroutines can acquire two handles in a fixed order without reaching
// into an unexported field.
func (h *IslandHandle) Lock()   { h.mu.Lock() }
func (h *IslandHandle) Unlock() { h.mu.Unlock() }

// SetRunning pushes a start/stop command for this island's simulation loop
// to sample at its next COMMAND_PROCESS_FREQUENCY checkpoint.
func (h *IslandHandle) SetRunning(running bool) {
	select {
	case h.control <- running:
	default:
	}
}

// World owns every island in the simulation plus the client's current
// observation target.
type World struct {
	Islands []*IslandHandle

	// observedIslandID is read by the snapshot broadcaster and redraw loop
	// and written by /observe requests, all from different goroutines;
	// atomic.Int32 keeps that traffic race-free without a dedicated lock.
	observedIslandID atomic.Int32

	Log *logging.Logger

	// inFlight tracks destination island IDs with a transfer already in
	// progress, so two connection goroutines never race to fill the same
	// destination cell concurrently.
	inFlight mapset.Set
}

// New returns a World over the given islands, observing the first by
// default.
func New(islands []*island.Island, log *logging.Logger) *World {
	handles := make([]*IslandHandle, len(islands))
	for i, isl := range islands {
		handles[i] = NewIslandHandle(i, isl)
	}
	return &World{Islands: handles, Log: log, inFlight: mapset.NewSet()}
}

// ObservedIslandID reports the island currently targeted by the snapshot
// broadcaster, the terminal redraw loop, and /disassemble lookups.
func (w *World) ObservedIslandID() int {
	return int(w.observedIslandID.Load())
}

// Snapshot is a point-in-time, lock-free summary of one island, taken
// under the island's lock and handed to the caller (the websocket
// broadcaster) to serialize without holding the lock further. It carries
// the island ID and habitat dimensions only: no cell contents are copied,
// and the broadcaster leaves Ticks at zero.
type Snapshot struct {
	IslandID int
	Width    int
	Height   int
	Ticks    habitat.Ticks
}

// Run spawns the per-island simulation threads and the auxiliary
// goroutines (transfer, snapshot broadcast, persistence) and blocks until
// ctx is cancelled. Client commands are not a goroutine of their own: each
// island loop samples its handle's control channel.
func (w *World) Run(ctx context.Context, seed int64, snapshotFn func(Snapshot), persistFn func(), persistEvery time.Duration) {
	var wg sync.WaitGroup

	for _, h := range w.Islands {
		wg.Add(1)
		go w.runIsland(ctx, &wg, h, rand.New(rand.NewSource(seed+int64(h.ID))))
	}

	for _, h := range w.Islands {
		for i, conn := range h.Island.Connections {
			wg.Add(1)
			connRng := rand.New(rand.NewSource(seed + int64(h.ID)*1_000_003 + int64(i)))
			go w.runConnection(ctx, &wg, h, conn, connRng)
		}
	}

	if snapshotFn != nil {
		wg.Add(1)
		go w.runSnapshotBroadcast(ctx, &wg, snapshotFn)
	}
	if persistFn != nil && persistEvery > 0 {
		wg.Add(1)
		go w.runPersistence(ctx, &wg, persistFn, persistEvery)
	}

	wg.Wait()
}

// runIsland pins itself to an OS thread and runs the island's simulation
// loop until ctx is cancelled. This thread never suspends; it blocks only
// while acquiring its own island's lock when a transfer (see
// runConnection), snapshot, redraw, or autosave task holds it.
func (w *World) runIsland(ctx context.Context, wg *sync.WaitGroup, h *IslandHandle, rng *rand.Rand) {
	defer wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var ticks habitat.Ticks
	running := true

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if ticks.IsAt(COMMAND_PROCESS_FREQUENCY) {
			select {
			case running = <-h.control:
			default:
			}
		}

		if running {
			h.Lock()
			h.Island.Update(ticks, rng)
			h.Unlock()
		}

		ticks = ticks.Next()
	}
}

// runConnection sleeps for the connection's transmit frequency, then locks
// source and destination handles in ascending-ID order and attempts a
// single Computer hand-off. rng is seeded once for the life of the
// connection rather than reseeded from the clock on every tick.
func (w *World) runConnection(ctx context.Context, wg *sync.WaitGroup, src *IslandHandle, conn island.Connection, rng *rand.Rand) {
	defer wg.Done()

	dst := w.handle(conn.ToID)
	if dst == nil {
		return
	}

	ticker := time.NewTicker(conn.TransmitFrequency)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.attemptTransfer(src, dst, conn, rng)
		}
	}
}

func (w *World) handle(id int) *IslandHandle {
	for _, h := range w.Islands {
		if h.ID == id {
			return h
		}
	}
	return nil
}

// attemptTransfer performs one connection's transfer attempt: lock both
// islands in ascending-ID order (deadlock avoidance per the world's fixed
// lock ordering), sample a departing Computer from the source rectangle,
// sample a destination cell in the target rectangle, and move it.
func (w *World) attemptTransfer(src, dst *IslandHandle, conn island.Connection, rng *rand.Rand) {
	if !w.inFlight.Add(dst.ID) {
		return // a transfer into this destination is already underway
	}
	defer w.inFlight.Remove(dst.ID)

	first, second := src, dst
	if second.ID < first.ID {
		first, second = second, first
	}
	first.Lock()
	defer first.Unlock()
	if second != first {
		second.Lock()
		defer second.Unlock()
	}

	x, y, computer, ok := src.Island.Habitat.GetConnectionTransfer(rng, conn.FromRect)
	if !ok {
		return
	}
	dx, dy, ok := dst.Island.Habitat.GetPlaceSampleCoords(rng, conn.ToRect)
	if !ok {
		return
	}

	src.Island.Habitat.Remove(x, y)
	dst.Island.Habitat.Place(dx, dy, computer)
}

func (w *World) runSnapshotBroadcast(ctx context.Context, wg *sync.WaitGroup, emit func(Snapshot)) {
	defer wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h := w.handle(w.ObservedIslandID())
			if h == nil {
				continue
			}
			h.Lock()
			snap := Snapshot{IslandID: h.ID, Width: h.Island.Habitat.Width, Height: h.Island.Habitat.Height}
			h.Unlock()
			emit(snap)
		}
	}
}

func (w *World) runPersistence(ctx context.Context, wg *sync.WaitGroup, persist func(), every time.Duration) {
	defer wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.Log != nil {
				w.Log.Debug().Msg("autosave tick")
			}
			persist()
		}
	}
}

// Observe changes the snapshot broadcast target.
func (w *World) Observe(islandID int) {
	w.observedIslandID.Store(int32(islandID))
}

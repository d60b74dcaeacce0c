// Package habitat implements the toroidal grid of Locations that Computers
// live on: one random cell per tick runs its Computer, then its split,
// merge, and eat intents are arbitrated against the neighbor grid, and
// death is arbitrated last, so a cell that dies this tick has already
// resolved the split, merge, and eat intents it staged.
package habitat

import (
	"math/rand"

	"github.com/apilar-sim/apilar/internal/geo"
	"github.com/apilar-sim/apilar/internal/vm/computer"
	"github.com/apilar-sim/apilar/internal/vm/intent"
	"github.com/apilar-sim/apilar/internal/vm/processor"
)

// Rectangle, Direction, and Ticks are the small value types shared between
// the habitat and the instruction set; they live in internal/geo to avoid
// an import cycle (intent.Arg also needs Direction) and are aliased here so
// callers can spell them habitat.Rectangle etc.
type (
	Rectangle = geo.Rectangle
	Direction = geo.Direction
	Ticks     = geo.Ticks
)

// CONNECTION_SAMPLING_TRIES bounds the retry budget for sampling an
// occupied or empty coordinate within a sub-rectangle.
const CONNECTION_SAMPLING_TRIES = 32

// Location is one grid cell: free resources plus an optional tenant
// Computer.
type Location struct {
	Free     uint64
	Computer *computer.Computer
}

// Habitat is a width x height torus of Locations, row-major.
type Habitat struct {
	Width, Height int
	Locations     []Location
}

// Mutation holds the per-tick counts of independent point mutations the
// habitat applies during Mutate.
type Mutation struct {
	OverwriteAmount uint64
	InsertAmount    uint64
	DeleteAmount    uint64
	StackAmount     uint64
}

// Death holds the parameters governing spontaneous Computer death.
type Death struct {
	Rate       uint32
	MemorySize int
}

// HabitatConfig bundles everything Habitat.Update needs beyond the grid
// itself.
type HabitatConfig struct {
	InstructionsPerUpdate int
	MaxProcessors         int
	MutationFrequency     Ticks
	Mutation              Mutation
	Death                 Death
	Metabolism            processor.Metabolism
}

// New returns a width x height Habitat with every Location seeded with the
// given free resources and no tenant.
func New(width, height int, resourcesPerLocation uint64) *Habitat {
	locs := make([]Location, width*height)
	for i := range locs {
		locs[i].Free = resourcesPerLocation
	}
	return &Habitat{Width: width, Height: height, Locations: locs}
}

func (h *Habitat) index(x, y int) int {
	return geo.Wrap(y, h.Height)*h.Width + geo.Wrap(x, h.Width)
}

// At returns the Location at (x, y), wrapping coordinates toroidally.
func (h *Habitat) At(x, y int) *Location {
	return &h.Locations[h.index(x, y)]
}

// IsEmpty reports whether the Location at (x, y) has no tenant Computer.
func (h *Habitat) IsEmpty(x, y int) bool {
	return h.At(x, y).Computer == nil
}

// Place installs c at (x, y), overwriting any existing tenant.
func (h *Habitat) Place(x, y int, c *computer.Computer) {
	h.At(x, y).Computer = c
}

// RandomCoords returns a uniformly random coordinate in the grid.
func (h *Habitat) RandomCoords(rng *rand.Rand) (int, int) {
	return rng.Intn(h.Width), rng.Intn(h.Height)
}

func (h *Habitat) neighbor(x, y int, dir Direction) (int, int) {
	dx, dy := dir.Delta()
	return geo.Wrap(x+dx, h.Width), geo.Wrap(y+dy, h.Height)
}

// Update runs exactly one habitat tick: pick a random cell, run its
// Computer (or reap it if it has no live processors), then arbitrate
// split, merge, eat, and finally death.
func (h *Habitat) Update(rng *rand.Rand, config HabitatConfig) {
	x, y := h.RandomCoords(rng)
	loc := h.At(x, y)

	if loc.Computer != nil {
		if len(loc.Computer.Processors) == 0 {
			loc.Free += loc.Computer.Resources + uint64(loc.Computer.Memory.Len())
			loc.Computer = nil
		} else {
			loc.Computer.Execute(rng, config.InstructionsPerUpdate, config.MaxProcessors, config.Metabolism)
		}
	}

	h.arbitrateSplit(rng, x, y)
	h.arbitrateMerge(rng, x, y, config.MaxProcessors)
	h.arbitrateEat(rng, x, y)
	h.arbitrateDeath(rng, x, y, config.Death)
}

// arbitrateSplit moves the winning split want's address to a child
// Computer placed in the neighbor cell, provided that cell is empty. When
// more than one split tuple is winning, rng breaks the tie uniformly.
func (h *Habitat) arbitrateSplit(rng *rand.Rand, x, y int) {
	loc := h.At(x, y)
	if loc.Computer == nil {
		return
	}
	arg, ok := loc.Computer.Wants.Choose(intent.Split, rng)
	if !ok {
		return
	}
	nx, ny := h.neighbor(x, y, arg.Direction)
	if !h.IsEmpty(nx, ny) {
		return
	}
	child, ok := loc.Computer.Split(arg.Address)
	if !ok {
		return
	}
	h.At(nx, ny).Computer = child
}

// arbitrateMerge consumes the neighbor's Computer into this cell's when the
// neighbor is occupied and this cell's merge strength for the chosen
// direction strictly exceeds the neighbor's block_merge strength in the
// flipped direction (ties defend).
func (h *Habitat) arbitrateMerge(rng *rand.Rand, x, y int, maxProcessors int) {
	loc := h.At(x, y)
	if loc.Computer == nil {
		return
	}
	arg, strength, ok := loc.Computer.Wants.ChooseWithStrength(intent.Merge, rng)
	if !ok {
		return
	}
	nx, ny := h.neighbor(x, y, arg.Direction)
	if nx == x && ny == y {
		// Width or height 1: the wrapped neighbor coordinate is this same
		// cell. A Computer cannot merge with itself.
		return
	}
	neighbor := h.At(nx, ny)
	if neighbor.Computer == nil {
		return
	}
	defense, _ := neighbor.Computer.Wants.StrengthByDirection(intent.BlockMerge, arg.Direction.Flip())
	if strength <= defense {
		return
	}
	loc.Computer.Merge(neighbor.Computer, maxProcessors)
	neighbor.Computer = nil
}

// arbitrateEat transfers min(amount, free) from the cell's free resources
// into its Computer's bound resources. When more than one eat tuple is
// winning, rng breaks the tie uniformly.
func (h *Habitat) arbitrateEat(rng *rand.Rand, x, y int) {
	loc := h.At(x, y)
	if loc.Computer == nil {
		return
	}
	arg, ok := loc.Computer.Wants.Choose(intent.Eat, rng)
	if !ok {
		return
	}
	amount := arg.Amount
	if amount > loc.Free {
		amount = loc.Free
	}
	loc.Computer.Resources += amount
	loc.Free -= amount
}

// arbitrateDeath reaps the cell's Computer with probability 1/death.Rate or
// unconditionally once its memory exceeds death.MemorySize, refunding its
// resources and memory length to the Location's free pool.
func (h *Habitat) arbitrateDeath(rng *rand.Rand, x, y int, death Death) {
	loc := h.At(x, y)
	if loc.Computer == nil {
		return
	}
	overSize := death.MemorySize > 0 && loc.Computer.Memory.Len() > death.MemorySize
	byChance := death.Rate > 0 && rng.Intn(int(death.Rate)) == 0
	if !overSize && !byChance {
		return
	}
	loc.Free += loc.Computer.Resources + uint64(loc.Computer.Memory.Len())
	loc.Computer = nil
}

// Mutate applies Mutation.OverwriteAmount + InsertAmount + DeleteAmount +
// StackAmount independent point mutations, each targeting one random cell.
func (h *Habitat) Mutate(rng *rand.Rand, mutation Mutation) {
	for i := uint64(0); i < mutation.OverwriteAmount; i++ {
		h.mutateOne(rng, func(c *computer.Computer) { c.MutateMemoryOverwrite(rng) })
	}
	for i := uint64(0); i < mutation.InsertAmount; i++ {
		h.mutateOne(rng, func(c *computer.Computer) { c.MutateMemoryInsert(rng) })
	}
	for i := uint64(0); i < mutation.DeleteAmount; i++ {
		h.mutateOne(rng, func(c *computer.Computer) { c.MutateMemoryDelete(rng) })
	}
	for i := uint64(0); i < mutation.StackAmount; i++ {
		h.mutateOne(rng, func(c *computer.Computer) { c.MutateProcessors(rng) })
	}
}

func (h *Habitat) mutateOne(rng *rand.Rand, apply func(*computer.Computer)) {
	x, y := h.RandomCoords(rng)
	loc := h.At(x, y)
	if loc.Computer == nil {
		return
	}
	apply(loc.Computer)
}

// Wipeout kills every Computer in a toroidal w x h rectangle anchored at a
// random top-left corner, refunding each to its Location's free pool.
func (h *Habitat) Wipeout(rng *rand.Rand, w, h2 int) {
	ox, oy := h.RandomCoords(rng)
	for dy := 0; dy < h2; dy++ {
		for dx := 0; dx < w; dx++ {
			loc := h.At(ox+dx, oy+dy)
			if loc.Computer == nil {
				continue
			}
			loc.Free += loc.Computer.Resources + uint64(loc.Computer.Memory.Len())
			loc.Computer = nil
		}
	}
}

// TakeSample returns the Computer at (x, y) itself (not a copy), or false
// if empty. Used by inter-island transfer to pick up the departing tenant
// before it is removed at the origin.
func (h *Habitat) TakeSample(x, y int) (*computer.Computer, bool) {
	loc := h.At(x, y)
	if loc.Computer == nil {
		return nil, false
	}
	return loc.Computer, true
}

// Remove clears the tenant at (x, y) without refunding resources (the
// caller — inter-island transfer — is moving them elsewhere, not killing
// them).
func (h *Habitat) Remove(x, y int) {
	h.At(x, y).Computer = nil
}

// GetPlaceSampleCoords samples a uniformly random empty coordinate inside
// rect, retrying up to CONNECTION_SAMPLING_TRIES times before giving up.
func (h *Habitat) GetPlaceSampleCoords(rng *rand.Rand, rect Rectangle) (int, int, bool) {
	return h.sampleCoords(rng, rect, true)
}

// GetConnectionTransfer samples a uniformly random occupied coordinate
// inside rect, retrying up to CONNECTION_SAMPLING_TRIES times, and returns
// the Computer found there along with its coordinates.
func (h *Habitat) GetConnectionTransfer(rng *rand.Rand, rect Rectangle) (int, int, *computer.Computer, bool) {
	x, y, ok := h.sampleCoords(rng, rect, false)
	if !ok {
		return 0, 0, nil, false
	}
	c, ok := h.TakeSample(x, y)
	if !ok {
		return 0, 0, nil, false
	}
	return x, y, c, true
}

func (h *Habitat) sampleCoords(rng *rand.Rand, rect Rectangle, wantEmpty bool) (int, int, bool) {
	for i := 0; i < CONNECTION_SAMPLING_TRIES; i++ {
		x := geo.Wrap(rect.X+rng.Intn(max1(rect.W)), h.Width)
		y := geo.Wrap(rect.Y+rng.Intn(max1(rect.H)), h.Height)
		if h.IsEmpty(x, y) == wantEmpty {
			return x, y, true
		}
	}
	return 0, 0, false
}

func max1(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// ComputersAmount counts occupied Locations.
func (h *Habitat) ComputersAmount() uint64 {
	var total uint64
	for _, loc := range h.Locations {
		if loc.Computer != nil {
			total++
		}
	}
	return total
}

// ProcessorsAmount counts every live Processor across every Computer in the
// habitat.
func (h *Habitat) ProcessorsAmount() uint64 {
	var total uint64
	for _, loc := range h.Locations {
		if loc.Computer != nil {
			total += uint64(len(loc.Computer.Processors))
		}
	}
	return total
}

// ResourcesAmounts returns (free, bound, memory) totals across the whole
// habitat; their sum is the conserved quantity S.
func (h *Habitat) ResourcesAmounts() (free, bound, mem uint64) {
	for _, loc := range h.Locations {
		free += loc.Free
		if loc.Computer != nil {
			bound += loc.Computer.Resources
			mem += uint64(loc.Computer.Memory.Len())
		}
	}
	return free, bound, mem
}

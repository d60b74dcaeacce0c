// Package computer implements Computer: the unit of life in the
// simulation. A Computer bundles one Memory, a bounded list of Processors
// racing through it, an intent buffer (Wants), and the resources it has
// bound from its Location's free pool. Execute, Split, Merge, and the
// Mutate* family are the operations in this package that move resources
// between the memory and bound accounting buckets described by the
// conservation invariant in the data model; moves to and from the free
// pool (eat, death) happen in the habitat.
package computer

import (
	"math/rand"

	"github.com/apilar-sim/apilar/internal/vm/intent"
	"github.com/apilar-sim/apilar/internal/vm/memory"
	"github.com/apilar-sim/apilar/internal/vm/processor"
)

// Computer is Memory + Processors + an intent buffer + bound resources.
type Computer struct {
	Memory     *memory.Memory
	Processors []*processor.Processor
	Wants      *intent.Wants
	Resources  uint64
}

// New returns a Computer with no processors and the given starting
// resources.
func New(mem *memory.Memory, resources uint64) *Computer {
	return &Computer{Memory: mem, Wants: intent.New(), Resources: resources}
}

// AddProcessor appends a new Processor at ip if doing so would not exceed
// maxProcessors. It reports whether the processor was added.
func (c *Computer) AddProcessor(ip int, maxProcessors int) bool {
	if len(c.Processors) >= maxProcessors {
		return false
	}
	c.Processors = append(c.Processors, processor.New(ip))
	return true
}

// Execute runs Computer.execute for one habitat tick: clear wants, run each
// processor for up to instructionsPerUpdate instructions, sweep the dead,
// start any wanted processors, then resolve grow before shrink (the order
// is not externally observable since the two are gated by disjoint intents,
// but grow is applied first throughout this implementation).
func (c *Computer) Execute(rng *rand.Rand, instructionsPerUpdate, maxProcessors int, met processor.Metabolism) {
	c.Wants.Clear()

	for _, p := range c.Processors {
		p.ExecuteAmount(instructionsPerUpdate, c.Memory, c.Wants, rng, met)
	}

	c.sweepDead()

	for _, arg := range c.Wants.Winners(intent.Start) {
		if len(c.Processors) >= maxProcessors {
			break
		}
		c.AddProcessor(arg.Address, maxProcessors)
	}

	c.resolveGrow(rng)
	c.resolveShrink(rng)
}

func (c *Computer) sweepDead() {
	alive := c.Processors[:0]
	for _, p := range c.Processors {
		if p.Alive() {
			alive = append(alive, p)
		}
	}
	c.Processors = alive
}

func (c *Computer) resolveGrow(rng *rand.Rand) {
	arg, ok := c.Wants.Choose(intent.Grow, rng)
	if !ok {
		return
	}
	amount := arg.Amount
	if amount > c.Resources {
		amount = c.Resources
	}
	for i := uint64(0); i < amount; i++ {
		c.Memory.Append(0xFF)
	}
	c.Resources -= amount
}

func (c *Computer) resolveShrink(rng *rand.Rand) {
	arg, ok := c.Wants.Choose(intent.Shrink, rng)
	if !ok {
		return
	}
	amount := arg.Amount
	memLen := uint64(c.Memory.Len())
	if amount > memLen {
		amount = memLen
	}
	for i := uint64(0); i < amount; i++ {
		c.Memory.Pop()
	}
	newLen := c.Memory.Len()
	for _, p := range c.Processors {
		p.AdjustBackward(newLen, int(amount))
	}
	c.Resources += amount
}

// Split partitions the Computer's memory at address, returning the child
// Computer holding the suffix. It requires 0 < address < memory length;
// otherwise it reports false and leaves the Computer untouched.
//
// Processors with IP < address stay with the parent; any of their heads
// pointing into the discarded suffix become undefined. Processors with
// IP >= address migrate to the child, their IP/heads re-based to the
// child's own address space. Resources split as child = resources/2,
// parent = resources - child.
func (c *Computer) Split(address int) (*Computer, bool) {
	memLen := c.Memory.Len()
	if address <= 0 || address >= memLen {
		return nil, false
	}
	suffixLen := memLen - address

	parentBytes := append([]byte(nil), c.Memory.Bytes()[:address]...)
	childBytes := append([]byte(nil), c.Memory.Bytes()[address:]...)

	var parentProcs, childProcs []*processor.Processor
	for _, p := range c.Processors {
		if p.IP() < address {
			p.AdjustBackward(address, suffixLen)
			parentProcs = append(parentProcs, p)
		} else {
			p.AdjustBackward(0, address)
			childProcs = append(childProcs, p)
		}
	}

	childResources := c.Resources / 2
	parentResources := c.Resources - childResources

	c.Memory = memory.FromBytes(parentBytes)
	c.Processors = parentProcs
	c.Resources = parentResources

	child := &Computer{
		Memory:     memory.FromBytes(childBytes),
		Processors: childProcs,
		Wants:      intent.New(),
		Resources:  childResources,
	}
	return child, true
}

// Merge absorbs other's memory and processors onto the end of c's. Other's
// processors are re-based forward by c's pre-merge memory length. If the
// combined processor count would exceed maxProcessors, the newest
// (other's, i.e. child-side) processors are truncated first — rewarding
// computers that are already near capacity.
func (c *Computer) Merge(other *Computer, maxProcessors int) {
	distance := c.Memory.Len()
	for _, p := range other.Processors {
		p.AdjustForward(0, distance)
	}
	c.Memory = memory.FromBytes(append(c.Memory.Bytes(), other.Memory.Bytes()...))
	c.Processors = append(c.Processors, other.Processors...)
	if len(c.Processors) > maxProcessors {
		c.Processors = c.Processors[:maxProcessors]
	}
	c.Resources += other.Resources
}

// MutateMemoryOverwrite replaces a uniformly random byte with a random
// byte. It is a no-op on empty memory.
func (c *Computer) MutateMemoryOverwrite(rng *rand.Rand) {
	n := c.Memory.Len()
	if n == 0 {
		return
	}
	c.Memory.Set(rng.Intn(n), byte(rng.Intn(256)))
}

// MutateMemoryInsert inserts a random byte at a random position, moving one
// unit of resources into memory. It is a no-op if resources are exhausted.
func (c *Computer) MutateMemoryInsert(rng *rand.Rand) {
	if c.Resources == 0 {
		return
	}
	pos := rng.Intn(c.Memory.Len() + 1)
	c.Memory.InsertAt(pos, byte(rng.Intn(256)))
	c.Resources--
	for _, p := range c.Processors {
		p.AdjustForward(pos, 1)
	}
}

// MutateMemoryDelete removes a random byte, moving one unit of memory back
// into resources. It is a no-op if resources are exhausted or memory is
// empty.
func (c *Computer) MutateMemoryDelete(rng *rand.Rand) {
	if c.Resources == 0 || c.Memory.Len() == 0 {
		return
	}
	pos := rng.Intn(c.Memory.Len())
	c.Memory.DeleteAt(pos)
	c.Resources++
	for _, p := range c.Processors {
		p.AdjustBackward(pos, 1)
	}
}

// MutateProcessors perturbs one random processor's stack: with probability
// 1/5 it pops an entry, otherwise it pushes a random byte-valued word.
func (c *Computer) MutateProcessors(rng *rand.Rand) {
	if len(c.Processors) == 0 {
		return
	}
	p := c.Processors[rng.Intn(len(c.Processors))]
	if rng.Intn(5) == 0 {
		p.Pop()
		return
	}
	p.Push(uint64(rng.Intn(256)))
}

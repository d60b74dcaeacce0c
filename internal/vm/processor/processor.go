// Package processor implements the stack-VM execution context: one
// Processor per address-carrying "thread" inside a Computer. ExecuteAmount
// runs step, which decodes one bytecode instruction from a shared Memory and
// dispatches on it directly (a dense switch over isa.Opcode, not a map),
// staging multi-cell desires into the owning Computer's Wants and mutating
// only its own IP/stack/heads — the spatial-locality rule that keeps head
// movement within MaxAddressDistance of the IP lives here, in
// moveCurrentHead.
package processor

import (
	"math/rand"

	"github.com/apilar-sim/apilar/internal/geo"
	"github.com/apilar-sim/apilar/internal/vm/intent"
	"github.com/apilar-sim/apilar/internal/vm/isa"
	"github.com/apilar-sim/apilar/internal/vm/memory"
)

// Tunable bounds shared by head movement and address derivation.
const (
	// MaxAddressDistance is the spatial-locality cap: no address derived
	// from a Word (via head movement or otherwise) may land further than
	// this many bytes from the owning Processor's IP.
	MaxAddressDistance = 1024

	// MaxMoveHeadAmount caps a single FORWARD/BACKWARD offset.
	MaxMoveHeadAmount = 1024

	// StackSize is the operand stack's fixed capacity before compaction.
	StackSize = 64

	// HeadCount is the number of address heads a Processor carries.
	HeadCount = 8

	// compactKeep is how many of the youngest stack entries survive
	// compaction (the upper half of StackSize).
	compactKeep = StackSize / 2
)

// Metabolism bounds how much a Processor may EAT, GROW, or SHRINK in a
// single instruction; amounts popped off the stack are clamped to these
// limits before being staged as a want.
type Metabolism struct {
	EatMax    uint64
	GrowMax   uint64
	ShrinkMax uint64
}

type head struct {
	set   bool
	value int
}

// Processor is one VM execution context: an instruction pointer, a bounded
// operand stack, and eight optional address heads.
//
// The zero value is not usable; use New.
type Processor struct {
	ip     int
	alive  bool
	jumped bool

	stack []uint64 // length <= StackSize

	heads       [HeadCount]head
	currentHead int
}

// New returns a live Processor with its instruction pointer at ip.
func New(ip int) *Processor {
	return &Processor{ip: ip, alive: true, stack: make([]uint64, 0, StackSize)}
}

// IP returns the current instruction pointer.
func (p *Processor) IP() int { return p.ip }

// Alive reports whether the processor is still scheduled for execution.
func (p *Processor) Alive() bool { return p.alive }

// Kill marks the processor dead; per the data model, a dead processor's IP
// reads as 0.
func (p *Processor) Kill() {
	p.alive = false
	p.ip = 0
}

// Address returns the current instruction pointer (the address a processor
// "is at", used e.g. by ADDR).
func (p *Processor) Address() int { return p.ip }

// Jump sets the instruction pointer to addr and suppresses the normal
// post-instruction auto-increment for this step.
func (p *Processor) Jump(addr int) {
	p.ip = addr
	p.jumped = true
}

// Skip advances the instruction pointer by 2 (used by IF to skip the next
// byte) and suppresses auto-increment.
func (p *Processor) Skip() {
	p.ip += 2
	p.jumped = true
}

// ---- stack primitives -------------------------------------------------

// Push appends v to the operand stack, compacting (dropping the lower half)
// if the stack is already at capacity.
func (p *Processor) Push(v uint64) {
	if len(p.stack) >= StackSize {
		keep := append([]uint64(nil), p.stack[len(p.stack)-compactKeep:]...)
		p.stack = keep
	}
	p.stack = append(p.stack, v)
}

// Pop removes and returns the top of the stack, or 0 if empty. Popping an
// empty stack is not a VM trap: it behaves as if an implicit 0 were always
// present beneath the stack, consistent with the rest of the instruction
// set's no-fault policy (OOB read -> 0xFF, div-by-zero -> 0, ...).
func (p *Processor) Pop() uint64 {
	n := len(p.stack)
	if n == 0 {
		return 0
	}
	v := p.stack[n-1]
	p.stack = p.stack[:n-1]
	return v
}

// PopClamped pops a value and reduces it modulo modN.
func (p *Processor) PopClamped(modN uint64) uint64 {
	if modN == 0 {
		return 0
	}
	return p.Pop() % modN
}

// PopMax pops a value and clamps it to at most cap.
func (p *Processor) PopMax(cap uint64) uint64 {
	v := p.Pop()
	if v > cap {
		return cap
	}
	return v
}

// PopHeadNr pops a head index in [0, HeadCount).
func (p *Processor) PopHeadNr() int {
	return int(p.PopClamped(HeadCount))
}

// PopDirection pops a compass direction, decoded modulo 4.
func (p *Processor) PopDirection() geo.Direction {
	return geo.DecodeDirection(p.Pop())
}

// Len reports the number of live stack entries (for tests and disassembly
// tooling, not used on the hot path).
func (p *Processor) Len() int { return len(p.stack) }

// Top returns the stack slice, top-last, for inspection.
func (p *Processor) Top() []uint64 { return p.stack }

// ---- heads --------------------------------------------------------------

// Head returns head i's value, or false if unset.
func (p *Processor) Head(i int) (int, bool) {
	h := p.heads[i]
	return h.value, h.set
}

// CurrentHeadValue returns the current head's value, or false if unset.
func (p *Processor) CurrentHeadValue() (int, bool) {
	return p.Head(p.currentHead)
}

// SetCurrentHeadValue sets the current head to v.
func (p *Processor) SetCurrentHeadValue(v int) {
	p.heads[p.currentHead] = head{set: true, value: v}
}

// unsetCurrentHead clears the current head.
func (p *Processor) unsetCurrentHead() {
	p.heads[p.currentHead] = head{}
}

// ForwardCurrentHead moves the current head forward by amount bytes,
// silently rejecting the move if amount exceeds MaxMoveHeadAmount, the
// result falls outside memory, or the result violates MaxAddressDistance.
func (p *Processor) ForwardCurrentHead(amount uint64, memLen int) {
	p.moveCurrentHead(int(amount), memLen)
}

// BackwardCurrentHead is the BACKWARD counterpart to ForwardCurrentHead.
func (p *Processor) BackwardCurrentHead(amount uint64, memLen int) {
	p.moveCurrentHead(-int(amount), memLen)
}

func (p *Processor) moveCurrentHead(delta int, memLen int) {
	if uint64(absInt(delta)) > MaxMoveHeadAmount {
		return
	}
	cur, ok := p.CurrentHeadValue()
	if !ok {
		return
	}
	next := cur + delta
	if next < 0 || next >= memLen {
		return
	}
	if absInt(next-p.ip) > MaxAddressDistance {
		return
	}
	p.SetCurrentHeadValue(next)
}

// AdjustForward shifts every head/IP at or past addr up by distance. Used
// when Memory grows at addr (GROW, mutation-insert).
func (p *Processor) AdjustForward(addr, distance int) {
	if p.ip >= addr {
		p.ip += distance
	}
	for i := range p.heads {
		if p.heads[i].set && p.heads[i].value >= addr {
			p.heads[i].value += distance
		}
	}
}

// AdjustBackward shifts every head/IP at or past addr+distance down by
// distance; any head or the IP that falls in [addr, addr+distance) becomes
// undefined — heads are cleared, and an IP in that range kills the
// processor. Used when Memory shrinks at addr (SHRINK, split, mutation-delete).
func (p *Processor) AdjustBackward(addr, distance int) {
	lo, hi := addr, addr+distance
	if p.ip >= hi {
		p.ip -= distance
	} else if p.ip >= lo {
		p.Kill()
	}
	for i := range p.heads {
		h := &p.heads[i]
		if !h.set {
			continue
		}
		if h.value >= hi {
			h.value -= distance
		} else if h.value >= lo {
			*h = head{}
		}
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// ---- persistence ----------------------------------------------------------

// HeadState is the serializable form of one address head.
type HeadState struct {
	Set   bool
	Value int
}

// State is the serializable form of a Processor, self-describing via field
// names for the snapshot codec: fixed-length Stack (padded to StackSize)
// and Heads arrays, matching the snapshot format's "stack arrays are
// length-64 (fixed)" rule.
type State struct {
	IP          int
	Alive       bool
	Stack       [StackSize]uint64
	StackLen    int
	Heads       [HeadCount]HeadState
	CurrentHead int
}

// State captures p's full execution state for persistence.
func (p *Processor) State() State {
	var s State
	s.IP = p.ip
	s.Alive = p.alive
	s.StackLen = copy(s.Stack[:], p.stack)
	for i, h := range p.heads {
		s.Heads[i] = HeadState{Set: h.set, Value: h.value}
	}
	s.CurrentHead = p.currentHead
	return s
}

// FromState reconstructs a Processor from a previously captured State.
func FromState(s State) *Processor {
	p := &Processor{ip: s.IP, alive: s.Alive, currentHead: s.CurrentHead}
	p.stack = append([]uint64(nil), s.Stack[:s.StackLen]...)
	for i, h := range s.Heads {
		p.heads[i] = head{set: h.Set, value: h.Value}
	}
	return p
}

// ---- execution ------------------------------------------------------------

// ExecuteAmount runs up to n instructions, stopping early if the processor
// dies. It returns the number of instructions actually executed.
func (p *Processor) ExecuteAmount(n int, mem *memory.Memory, wants *intent.Wants, rng *rand.Rand, met Metabolism) int {
	ran := 0
	for i := 0; i < n; i++ {
		if !p.alive {
			break
		}
		p.step(mem, wants, rng, met)
		ran++
	}
	return ran
}

// step fetches, decodes, and dispatches exactly one instruction.
func (p *Processor) step(mem *memory.Memory, wants *intent.Wants, rng *rand.Rand, met Metabolism) {
	if p.ip < 0 || p.ip >= mem.Len() {
		p.Kill()
		return
	}
	raw := mem.At(p.ip)
	op := isa.Decode(raw)
	p.jumped = false

	p.dispatch(op, mem, wants, rng, met)

	if !p.jumped {
		p.ip++
	}
}

//nolint:gocyclo
func (p *Processor) dispatch(op isa.Opcode, mem *memory.Memory, wants *intent.Wants, rng *rand.Rand, met Metabolism) {
	switch op {
	case isa.N0, isa.N1, isa.N2, isa.N3, isa.N4, isa.N5, isa.N6, isa.N7, isa.N8, isa.N9:
		p.Push(uint64(op - isa.N0))
	case isa.RND:
		p.Push(uint64(rng.Intn(256)))

	case isa.DUP:
		if len(p.stack) >= 1 {
			p.Push(p.stack[len(p.stack)-1])
		}
	case isa.DUP2:
		if len(p.stack) >= 2 {
			x, y := p.stack[len(p.stack)-2], p.stack[len(p.stack)-1]
			p.Push(x)
			p.Push(y)
		}
	case isa.DROP:
		if len(p.stack) >= 1 {
			p.Pop()
		}
	case isa.SWAP:
		if len(p.stack) >= 2 {
			n := len(p.stack)
			p.stack[n-1], p.stack[n-2] = p.stack[n-2], p.stack[n-1]
		}
	case isa.OVER:
		if len(p.stack) >= 2 {
			p.Push(p.stack[len(p.stack)-2])
		}
	case isa.ROT:
		if len(p.stack) >= 3 {
			c := p.Pop()
			b := p.Pop()
			a := p.Pop()
			p.Push(b)
			p.Push(c)
			p.Push(a)
		}

	case isa.ADD:
		a, b := p.Pop(), p.Pop()
		p.Push(b + a)
	case isa.SUB:
		a, b := p.Pop(), p.Pop()
		p.Push(b - a)
	case isa.MUL:
		a, b := p.Pop(), p.Pop()
		p.Push(b * a)
	case isa.DIV:
		a, b := p.Pop(), p.Pop()
		if a == 0 {
			p.Push(0)
		} else {
			p.Push(b / a)
		}
	case isa.MOD:
		a, b := p.Pop(), p.Pop()
		if a == 0 {
			p.Push(0)
		} else {
			p.Push(b % a)
		}

	case isa.EQ:
		a, b := p.Pop(), p.Pop()
		p.Push(boolWord(b == a))
	case isa.GT:
		a, b := p.Pop(), p.Pop()
		p.Push(boolWord(b > a))
	case isa.LT:
		a, b := p.Pop(), p.Pop()
		p.Push(boolWord(b < a))

	case isa.NOT:
		a := p.Pop()
		p.Push(boolWord(a == 0))
	case isa.AND:
		a, b := p.Pop(), p.Pop()
		p.Push(boolWord(a != 0 && b != 0))
	case isa.OR:
		a, b := p.Pop(), p.Pop()
		p.Push(boolWord(a != 0 || b != 0))

	case isa.HEAD:
		p.currentHead = p.PopHeadNr()
	case isa.ADDR:
		p.SetCurrentHeadValue(p.ip)
	case isa.COPY:
		src := p.PopHeadNr()
		if v, ok := p.Head(src); ok {
			p.SetCurrentHeadValue(v)
		} else {
			p.unsetCurrentHead()
		}
	case isa.FORWARD:
		amount := p.Pop()
		p.ForwardCurrentHead(amount, mem.Len())
	case isa.BACKWARD:
		amount := p.Pop()
		p.BackwardCurrentHead(amount, mem.Len())
	case isa.DISTANCE:
		other := p.PopHeadNr()
		cur, curOK := p.CurrentHeadValue()
		ov, otherOK := p.Head(other)
		if !curOK || !otherOK {
			p.Push(0)
		} else {
			p.Push(uint64(absInt(cur - ov)))
		}

	case isa.READ:
		if v, ok := p.CurrentHeadValue(); ok {
			if b, ok := mem.ReadAt(v); ok {
				p.Push(uint64(b))
				return
			}
		}
		p.Push(0xFF)
	case isa.WRITE:
		val := p.Pop()
		if v, ok := p.CurrentHeadValue(); ok {
			mem.WriteAt(v, saturateByte(val))
		}

	case isa.JMP:
		if v, ok := p.CurrentHeadValue(); ok {
			p.Jump(v)
		}
	case isa.JMPIF:
		cond := p.Pop()
		if cond != 0 {
			if v, ok := p.CurrentHeadValue(); ok {
				p.Jump(v)
			}
		}
	case isa.IF:
		cond := p.Pop()
		if cond == 0 {
			p.Skip()
		}

	case isa.START:
		if v, ok := p.CurrentHeadValue(); ok {
			wants.Want(intent.Start, intent.Arg{Address: v})
		}
	case isa.END:
		p.Kill()

	case isa.EAT:
		amount := p.PopMax(met.EatMax)
		wants.Want(intent.Eat, intent.Arg{Amount: amount})
	case isa.GROW:
		amount := p.PopMax(met.GrowMax)
		wants.Want(intent.Grow, intent.Arg{Amount: amount})
	case isa.SHRINK:
		amount := p.PopMax(met.ShrinkMax)
		wants.Want(intent.Shrink, intent.Arg{Amount: amount})
	case isa.RES_MEMORY:
		p.Push(uint64(mem.Len()))

	case isa.SPLIT:
		p.wantDirectional(wants, intent.Split)
	case isa.MERGE:
		p.wantDirectional(wants, intent.Merge)
	case isa.BLOCK_MERGE:
		p.wantDirectional(wants, intent.BlockMerge)
	case isa.MOVE:
		p.wantDirectional(wants, intent.Move)
	case isa.PEEK:
		p.wantDirectional(wants, intent.Peek)
	case isa.BLOCK_PEEK:
		p.wantDirectional(wants, intent.BlockPeek)

	case isa.CANCEL_START:
		wants.Cancel(intent.Start)
	case isa.CANCEL_SHRINK:
		wants.Cancel(intent.Shrink)
	case isa.CANCEL_GROW:
		wants.Cancel(intent.Grow)
	case isa.CANCEL_EAT:
		wants.Cancel(intent.Eat)
	case isa.CANCEL_SPLIT:
		wants.Cancel(intent.Split)
	case isa.CANCEL_MERGE:
		wants.Cancel(intent.Merge)
	case isa.CANCEL_BLOCK_MERGE:
		wants.Cancel(intent.BlockMerge)
	case isa.CANCEL_MOVE:
		wants.Cancel(intent.Move)
	case isa.CANCEL_PEEK:
		wants.Cancel(intent.Peek)
	case isa.CANCEL_BLOCK_PEEK:
		wants.Cancel(intent.BlockPeek)

	case isa.NOOP:
		// no-op; also the fallback for every undecoded byte.
	}
}

// wantDirectional pops a direction and stages (direction, current-head
// value) under category c, the shared shape of SPLIT/MERGE/BLOCK_MERGE/
// MOVE/PEEK/BLOCK_PEEK.
func (p *Processor) wantDirectional(wants *intent.Wants, c intent.Category) {
	dir := p.PopDirection()
	if v, ok := p.CurrentHeadValue(); ok {
		wants.Want(c, intent.Arg{Direction: dir, Address: v})
	}
}

func boolWord(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func saturateByte(v uint64) byte {
	if v > 0xFF {
		return 0xFF
	}
	return byte(v)
}

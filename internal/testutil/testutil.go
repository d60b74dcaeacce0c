// Package testutil provides the fixtures VM-level tests assemble and run
// a program against: a fresh 1000-byte Memory, a single Processor at
// address 0, a seeded deterministic RNG, and an all-zero Metabolism so eat/
// grow/shrink intents stage but never auto-clamp to something nonzero.
package testutil

import (
	"math/rand"

	"github.com/apilar-sim/apilar/internal/assembler"
	"github.com/apilar-sim/apilar/internal/vm/intent"
	"github.com/apilar-sim/apilar/internal/vm/memory"
	"github.com/apilar-sim/apilar/internal/vm/processor"
)

// DefaultMemorySize is the fixture Memory's capacity, matching the
// original harness's fixed 1000-byte scratch space.
const DefaultMemorySize = 1000

// Exec bundles the fixture state produced by Execute/ExecuteLines so a
// test can inspect the processor's final stack, the memory bytes written
// by self-modifying code, and (for further stepping) the RNG stream.
type Exec struct {
	Processor *processor.Processor
	Memory    *memory.Memory
	Wants     *intent.Wants
	Rng       *rand.Rand
}

// Execute assembles text (Assemble-style, whitespace-separated tokens)
// into a fresh fixture Memory at address 0 and runs a single Processor for
// as many instructions as were assembled, or fewer if it dies first.
func Execute(text string) (Exec, error) {
	return execute(text, assembler.Assemble)
}

// ExecuteLines is Execute for line-mode text (with "#" comments and blank
// lines).
func ExecuteLines(text string) (Exec, error) {
	return execute(text, assembler.LineAssemble)
}

func execute(text string, assemble func(string, *memory.Memory, int) (int, error)) (Exec, error) {
	mem := memory.New(DefaultMemorySize)
	amount, err := assemble(text, mem, 0)
	if err != nil {
		return Exec{}, err
	}

	p := processor.New(0)
	wants := intent.New()
	rng := rand.New(rand.NewSource(0))

	p.ExecuteAmount(amount, mem, wants, rng, processor.Metabolism{})

	return Exec{Processor: p, Memory: mem, Wants: wants, Rng: rng}, nil
}

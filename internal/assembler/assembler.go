// Package assembler turns apilar assembly text into bytecode and back.
// One mnemonic per whitespace-separated token; LineAssemble additionally
// strips "#..." comments and blank lines, for programs written one
// instruction (or comment) per line rather than all on one line.
package assembler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/apilar-sim/apilar/internal/vm/isa"
	"github.com/apilar-sim/apilar/internal/vm/memory"
)

// ErrUnknownMnemonic is returned when assembly text names a mnemonic that
// does not decode to a known opcode.
var ErrUnknownMnemonic = errors.New("assembler: unknown mnemonic")

// Assemble writes one byte per whitespace-separated mnemonic in text,
// starting at index, into mem. It returns the number of bytes written, or
// an error wrapping ErrUnknownMnemonic naming the offending token.
func Assemble(text string, mem *memory.Memory, index int) (int, error) {
	return assembleTokens(strings.Fields(text), mem, index)
}

// LineAssemble is Assemble for text with one mnemonic (or blank/comment
// line) per line: a "#" anywhere on a line starts a comment that runs to
// end of line, and blank lines are skipped entirely.
func LineAssemble(text string, mem *memory.Memory, index int) (int, error) {
	var tokens []string
	for _, line := range strings.Split(text, "\n") {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		tokens = append(tokens, strings.Fields(line)...)
	}
	return assembleTokens(tokens, mem, index)
}

func assembleTokens(tokens []string, mem *memory.Memory, index int) (int, error) {
	i := index
	for _, tok := range tokens {
		op, ok := isa.ParseMnemonic(tok)
		if !ok {
			return i - index, fmt.Errorf("%w: %q", ErrUnknownMnemonic, tok)
		}
		mem.WriteAt(i, byte(op))
		i++
	}
	return i - index, nil
}

// Disassemble renders one mnemonic per byte of mem, joined by newlines;
// undecodable bytes render as "noop <N>".
func Disassemble(mem *memory.Memory) string {
	lines := make([]string, mem.Len())
	for i := 0; i < mem.Len(); i++ {
		lines[i] = isa.MnemonicForByte(mem.At(i))
	}
	return strings.Join(lines, "\n")
}

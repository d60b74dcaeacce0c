package assembler

import (
	"errors"
	"testing"

	"github.com/apilar-sim/apilar/internal/vm/isa"
	"github.com/apilar-sim/apilar/internal/vm/memory"
)

func TestAssemble(t *testing.T) {
	mem := memory.New(10)
	n, err := Assemble("N1 N2", mem, 0)
	if err != nil {
		t.Fatalf("Assemble returned error: %v", err)
	}
	if n != 2 {
		t.Fatalf("wrote %d bytes, want 2", n)
	}
	if mem.At(0) != byte(isa.N1) || mem.At(1) != byte(isa.N2) {
		t.Fatalf("memory = %v, want [N1 N2]", mem.Bytes()[:2])
	}
}

func TestAssembleUnknownMnemonic(t *testing.T) {
	mem := memory.New(10)
	if _, err := Assemble("N1 BOGUS", mem, 0); !errors.Is(err, ErrUnknownMnemonic) {
		t.Fatalf("err = %v, want ErrUnknownMnemonic", err)
	}
}

func TestLineAssembleStripsCommentsAndBlankLines(t *testing.T) {
	mem := memory.New(10)
	text := "N1 # push one\n\n  N2\n# whole line comment\nADD"
	n, err := LineAssemble(text, mem, 0)
	if err != nil {
		t.Fatalf("LineAssemble returned error: %v", err)
	}
	if n != 3 {
		t.Fatalf("wrote %d bytes, want 3", n)
	}
	want := []byte{byte(isa.N1), byte(isa.N2), byte(isa.ADD)}
	for i, b := range want {
		if mem.At(i) != b {
			t.Fatalf("byte %d = %d, want %d", i, mem.At(i), b)
		}
	}
}

func TestDisassembleRendersNoopForUndecoded(t *testing.T) {
	mem := memory.FromBytes([]byte{byte(isa.N1), 0xFE})
	got := Disassemble(mem)
	want := "N1\nnoop 254"
	if got != want {
		t.Fatalf("Disassemble = %q, want %q", got, want)
	}
}

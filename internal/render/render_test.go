package render

import (
	"strings"
	"testing"

	"github.com/apilar-sim/apilar/internal/habitat"
	"github.com/apilar-sim/apilar/internal/vm/computer"
	"github.com/apilar-sim/apilar/internal/vm/memory"
)

func TestFrameDimensions(t *testing.T) {
	h := habitat.New(3, 2, 0)
	frame := Frame(h)
	lines := strings.Split(frame, "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	for _, line := range lines {
		if len(line) != 3 {
			t.Fatalf("line %q has length %d, want 3", line, len(line))
		}
	}
}

func TestGlyphsReflectOccupancyAndResources(t *testing.T) {
	h := habitat.New(2, 1, 0)
	h.At(0, 0).Computer = computer.New(memory.New(0), 100)
	h.At(1, 0).Computer = computer.New(memory.New(0), 1)

	frame := Frame(h)
	if frame[0] != glyphAlive {
		t.Fatalf("well-resourced cell glyph = %q, want %q", frame[0], glyphAlive)
	}
	if frame[1] != glyphLow {
		t.Fatalf("low-resource cell glyph = %q, want %q", frame[1], glyphLow)
	}
}

func TestEmptyGlyph(t *testing.T) {
	h := habitat.New(1, 1, 0)
	if Frame(h) != string(glyphEmpty) {
		t.Fatal("empty habitat cell should render as the empty glyph")
	}
}

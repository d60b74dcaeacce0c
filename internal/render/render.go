// Package render draws a Habitat as a text-mode grid of glyphs: one
// character per cell, distinguishing empty locations, healthy computers,
// and computers close to death, in the spirit of the original renderer's
// resource-threshold glyph mapping but keyed off the real Habitat rather
// than an independent random grid.
package render

import (
	"strings"

	"github.com/apilar-sim/apilar/internal/habitat"
)

// LowResourceThreshold is the bound-resources level below which an
// occupied cell renders as "dying" rather than "alive".
const LowResourceThreshold = 8

const (
	glyphEmpty = ' '
	glyphLow   = 'x'
	glyphAlive = 'X'
)

// Frame renders h as LF-joined rows of single-character glyphs.
func Frame(h *habitat.Habitat) string {
	var b strings.Builder
	for y := 0; y < h.Height; y++ {
		for x := 0; x < h.Width; x++ {
			b.WriteRune(glyphFor(h.At(x, y)))
		}
		if y < h.Height-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func glyphFor(loc *habitat.Location) rune {
	if loc.Computer == nil {
		return glyphEmpty
	}
	if loc.Computer.Resources < LowResourceThreshold {
		return glyphLow
	}
	return glyphAlive
}

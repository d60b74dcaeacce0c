// Package codec serializes a running World into the snapshot format: a ZIP
// archive containing a single entry, data.cbor, holding a CBOR encoding of
// the entire WorldState. The format is self-describing via field names
// (struct tags), so a snapshot taken by one build can be read back by any
// build with matching Go struct shapes.
package codec

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/apilar-sim/apilar/internal/habitat"
	"github.com/apilar-sim/apilar/internal/island"
	"github.com/apilar-sim/apilar/internal/vm/computer"
	"github.com/apilar-sim/apilar/internal/vm/intent"
	"github.com/apilar-sim/apilar/internal/vm/memory"
	"github.com/apilar-sim/apilar/internal/vm/processor"
)

// snapshotEntryName is the single file the ZIP container holds.
const snapshotEntryName = "data.cbor"

// ProcessorState is the persisted form of one Processor.
type ProcessorState struct {
	processor.State
}

// ComputerState is the persisted form of one Computer.
type ComputerState struct {
	Memory     []byte
	Processors []ProcessorState
	Wants      [10]intent.CategoryState
	Resources  uint64
}

// LocationState is the persisted form of one habitat Location.
type LocationState struct {
	Free     uint64
	Computer *ComputerState
}

// RectangleState mirrors habitat.Rectangle for persistence.
type RectangleState struct {
	X, Y, W, H int
}

// ConnectionState is the persisted form of one island.Connection.
type ConnectionState struct {
	FromRect          RectangleState
	ToRect            RectangleState
	ToID              int
	TransmitFrequency int64 // nanoseconds
}

// HabitatConfigState mirrors habitat.HabitatConfig for persistence.
type HabitatConfigState struct {
	InstructionsPerUpdate int
	MaxProcessors         int
	MutationFrequency     uint64
	Mutation              habitat.Mutation
	Death                 habitat.Death
	Metabolism            processor.Metabolism
}

// DisasterState mirrors island.DisasterConfig for persistence.
type DisasterState struct {
	Frequency uint64
	Width     int
	Height    int
}

// IslandState is the persisted form of one Island: its dimensions, every
// Location, configuration, outbound connections, and disaster schedule.
type IslandState struct {
	Width, Height int
	Locations     []LocationState
	Config        HabitatConfigState
	Connections   []ConnectionState
	Disaster      *DisasterState
}

// WorldState is the complete persisted simulation: every island plus the
// client's current observation target.
type WorldState struct {
	Islands          []IslandState
	ObservedIslandID int
}

// Capture builds a WorldState snapshot of the given islands.
func Capture(islands []*island.Island, observedIslandID int) WorldState {
	ws := WorldState{ObservedIslandID: observedIslandID}
	for _, isl := range islands {
		ws.Islands = append(ws.Islands, captureIsland(isl))
	}
	return ws
}

func captureIsland(isl *island.Island) IslandState {
	h := isl.Habitat
	is := IslandState{
		Width:  h.Width,
		Height: h.Height,
		Config: HabitatConfigState{
			InstructionsPerUpdate: isl.Config.InstructionsPerUpdate,
			MaxProcessors:         isl.Config.MaxProcessors,
			MutationFrequency:     uint64(isl.Config.MutationFrequency),
			Mutation:              isl.Config.Mutation,
			Death:                 isl.Config.Death,
			Metabolism:            isl.Config.Metabolism,
		},
	}
	for _, conn := range isl.Connections {
		is.Connections = append(is.Connections, ConnectionState{
			FromRect:          RectangleState(conn.FromRect),
			ToRect:            RectangleState(conn.ToRect),
			ToID:              conn.ToID,
			TransmitFrequency: int64(conn.TransmitFrequency),
		})
	}
	if isl.Disaster != nil {
		is.Disaster = &DisasterState{
			Frequency: uint64(isl.Disaster.Frequency),
			Width:     isl.Disaster.Width,
			Height:    isl.Disaster.Height,
		}
	}
	for y := 0; y < h.Height; y++ {
		for x := 0; x < h.Width; x++ {
			is.Locations = append(is.Locations, captureLocation(h.At(x, y)))
		}
	}
	return is
}

func captureLocation(loc *habitat.Location) LocationState {
	ls := LocationState{Free: loc.Free}
	if loc.Computer != nil {
		cs := captureComputer(loc.Computer)
		ls.Computer = &cs
	}
	return ls
}

func captureComputer(c *computer.Computer) ComputerState {
	cs := ComputerState{
		Memory:    append([]byte(nil), c.Memory.Bytes()...),
		Resources: c.Resources,
		Wants:     c.Wants.State(),
	}
	for _, p := range c.Processors {
		cs.Processors = append(cs.Processors, ProcessorState{State: p.State()})
	}
	return cs
}

// Restore reconstructs islands from a WorldState captured by Capture.
func Restore(ws WorldState) []*island.Island {
	islands := make([]*island.Island, len(ws.Islands))
	for i, is := range ws.Islands {
		islands[i] = restoreIsland(is)
	}
	return islands
}

func restoreIsland(is IslandState) *island.Island {
	cfg := habitat.HabitatConfig{
		InstructionsPerUpdate: is.Config.InstructionsPerUpdate,
		MaxProcessors:         is.Config.MaxProcessors,
		MutationFrequency:     habitat.Ticks(is.Config.MutationFrequency),
		Mutation:              is.Config.Mutation,
		Death:                 is.Config.Death,
		Metabolism:            is.Config.Metabolism,
	}
	isl := island.New(is.Width, is.Height, 0, cfg)
	for _, conn := range is.Connections {
		isl.Connections = append(isl.Connections, island.Connection{
			FromRect:          habitat.Rectangle(conn.FromRect),
			ToRect:            habitat.Rectangle(conn.ToRect),
			ToID:              conn.ToID,
			TransmitFrequency: time.Duration(conn.TransmitFrequency),
		})
	}
	if is.Disaster != nil {
		isl.Disaster = &island.DisasterConfig{
			Frequency: habitat.Ticks(is.Disaster.Frequency),
			Width:     is.Disaster.Width,
			Height:    is.Disaster.Height,
		}
	}
	for i, ls := range is.Locations {
		x, y := i%is.Width, i/is.Width
		loc := isl.Habitat.At(x, y)
		loc.Free = ls.Free
		if ls.Computer != nil {
			loc.Computer = restoreComputer(*ls.Computer)
		}
	}
	return isl
}

func restoreComputer(cs ComputerState) *computer.Computer {
	c := computer.New(memory.FromBytes(append([]byte(nil), cs.Memory...)), cs.Resources)
	c.Wants = intent.FromState(cs.Wants)
	for _, ps := range cs.Processors {
		c.Processors = append(c.Processors, processor.FromState(ps.State))
	}
	return c
}

// Save writes ws to path as a ZIP archive containing data.cbor.
func Save(path string, ws WorldState) error {
	data, err := cbor.Marshal(ws)
	if err != nil {
		return fmt.Errorf("codec: encode snapshot: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("codec: create %s: %w", path, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	entry, err := zw.Create(snapshotEntryName)
	if err != nil {
		return fmt.Errorf("codec: create zip entry: %w", err)
	}
	if _, err := entry.Write(data); err != nil {
		return fmt.Errorf("codec: write zip entry: %w", err)
	}
	return zw.Close()
}

// Load reads a snapshot ZIP archive at path and decodes its data.cbor
// entry.
func Load(path string) (WorldState, error) {
	var ws WorldState

	r, err := zip.OpenReader(path)
	if err != nil {
		return ws, fmt.Errorf("codec: open %s: %w", path, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != snapshotEntryName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return ws, fmt.Errorf("codec: open %s entry: %w", snapshotEntryName, err)
		}
		defer rc.Close()

		var buf bytes.Buffer
		if _, err := io.Copy(&buf, rc); err != nil {
			return ws, fmt.Errorf("codec: read %s entry: %w", snapshotEntryName, err)
		}
		if err := cbor.Unmarshal(buf.Bytes(), &ws); err != nil {
			return ws, fmt.Errorf("codec: decode snapshot: %w", err)
		}
		return ws, nil
	}
	return ws, fmt.Errorf("codec: %s: missing %s entry", path, snapshotEntryName)
}

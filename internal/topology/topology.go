// Package topology loads the JSON file describing a world's islands,
// connections, and initial computer placements (§6 "Topology file").
package topology

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/apilar-sim/apilar/internal/habitat"
	"github.com/apilar-sim/apilar/internal/island"
	"github.com/apilar-sim/apilar/internal/vm/computer"
	"github.com/apilar-sim/apilar/internal/vm/memory"
	"github.com/apilar-sim/apilar/internal/vm/processor"
)

// ErrUnknownIsland is returned when a computer placement names an
// island_id not present in the topology's islands list.
var ErrUnknownIsland = errors.New("topology: unknown island_id")

// Rectangle is the JSON wire shape for a habitat.Rectangle.
type Rectangle struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

func (r Rectangle) toHabitat() habitat.Rectangle {
	return habitat.Rectangle{X: r.X, Y: r.Y, W: r.W, H: r.H}
}

// Connection is the JSON wire shape for one outbound transfer channel.
type Connection struct {
	FromRect                Rectangle `json:"from_rect"`
	ToRect                  Rectangle `json:"to_rect"`
	ToID                    int       `json:"to_id"`
	TransmitFrequencySecond float64   `json:"transmit_frequency_seconds"`
}

// Mutation mirrors habitat.Mutation for JSON decoding.
type Mutation struct {
	OverwriteAmount uint64 `json:"overwrite_amount"`
	InsertAmount    uint64 `json:"insert_amount"`
	DeleteAmount    uint64 `json:"delete_amount"`
	StackAmount     uint64 `json:"stack_amount"`
}

// Death mirrors habitat.Death for JSON decoding.
type Death struct {
	Rate       uint32 `json:"rate"`
	MemorySize int    `json:"memory_size"`
}

// Metabolism mirrors processor.Metabolism for JSON decoding.
type Metabolism struct {
	EatMax   uint64 `json:"eat_max"`
	GrowMax  uint64 `json:"grow_max"`
	ShrinkMax uint64 `json:"shrink_max"`
}

// Config mirrors habitat.HabitatConfig for JSON decoding.
type Config struct {
	InstructionsPerUpdate int        `json:"instructions_per_update"`
	MaxProcessors         int        `json:"max_processors"`
	MutationFrequency     uint64     `json:"mutation_frequency"`
	Mutation              Mutation   `json:"mutation"`
	Death                 Death      `json:"death"`
	Metabolism            Metabolism `json:"metabolism"`
}

func (c Config) toHabitat() habitat.HabitatConfig {
	return habitat.HabitatConfig{
		InstructionsPerUpdate: c.InstructionsPerUpdate,
		MaxProcessors:         c.MaxProcessors,
		MutationFrequency:     habitat.Ticks(c.MutationFrequency),
		Mutation: habitat.Mutation{
			OverwriteAmount: c.Mutation.OverwriteAmount,
			InsertAmount:    c.Mutation.InsertAmount,
			DeleteAmount:    c.Mutation.DeleteAmount,
			StackAmount:     c.Mutation.StackAmount,
		},
		Death: habitat.Death{Rate: c.Death.Rate, MemorySize: c.Death.MemorySize},
		Metabolism: processor.Metabolism{
			EatMax:    c.Metabolism.EatMax,
			GrowMax:   c.Metabolism.GrowMax,
			ShrinkMax: c.Metabolism.ShrinkMax,
		},
	}
}

// Disaster is the JSON wire shape for island.DisasterConfig.
type Disaster struct {
	Frequency uint64 `json:"frequency"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Island is one topology islands[] entry.
type Island struct {
	Config      Config       `json:"config"`
	Width       int          `json:"width"`
	Height      int          `json:"height"`
	Resources   uint64       `json:"resources"`
	Disaster    *Disaster    `json:"disaster,omitempty"`
	Connections []Connection `json:"connections"`
}

// Computer is one topology computers[] entry: a program file assembled at
// (X, Y) on island IslandID with the given starting resources.
type Computer struct {
	IslandID   int    `json:"island_id"`
	Filename   string `json:"filename"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
	Resources  uint64 `json:"resources"`
	MemorySize *int   `json:"memory_size,omitempty"`
}

// Topology is the full decoded topology file.
type Topology struct {
	Islands   []Island   `json:"islands"`
	Computers []Computer `json:"computers"`
}

// Load reads and decodes the topology JSON at path.
func Load(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("topology: read %s: %w", path, err)
	}
	var t Topology
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("topology: parse %s: %w", path, err)
	}
	return &t, nil
}

// Assemble builds one island.Island per Topology.Islands entry and places
// each Topology.Computers entry's program file at its configured
// coordinate, assembled with one processor at address 0. Program file
// paths are resolved relative to baseDir (typically the topology file's
// own directory).
func (t *Topology) Assemble(baseDir string, assemble func(text string, mem *memory.Memory, index int) (int, error)) ([]*island.Island, error) {
	islands := make([]*island.Island, len(t.Islands))
	for i, isl := range t.Islands {
		hc := isl.Config.toHabitat()
		islands[i] = island.New(isl.Width, isl.Height, isl.Resources, hc)
		if isl.Disaster != nil {
			islands[i].Disaster = &island.DisasterConfig{
				Frequency: habitat.Ticks(isl.Disaster.Frequency),
				Width:     isl.Disaster.Width,
				Height:    isl.Disaster.Height,
			}
		}
		for _, conn := range isl.Connections {
			islands[i].Connections = append(islands[i].Connections, island.Connection{
				FromRect:          conn.FromRect.toHabitat(),
				ToRect:            conn.ToRect.toHabitat(),
				ToID:              conn.ToID,
				TransmitFrequency: time.Duration(conn.TransmitFrequencySecond * float64(time.Second)),
			})
		}
	}

	for _, c := range t.Computers {
		if c.IslandID < 0 || c.IslandID >= len(islands) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownIsland, c.IslandID)
		}
		size := 1024
		if c.MemorySize != nil {
			size = *c.MemorySize
		}
		mem := memory.New(size)

		path := c.Filename
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		source, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("topology: read program %s: %w", path, err)
		}
		if _, err := assemble(string(source), mem, 0); err != nil {
			return nil, fmt.Errorf("topology: assemble %s: %w", path, err)
		}

		comp := computer.New(mem, c.Resources)
		comp.Processors = []*processor.Processor{processor.New(0)}
		islands[c.IslandID].Habitat.Place(c.X, c.Y, comp)
	}

	return islands, nil
}

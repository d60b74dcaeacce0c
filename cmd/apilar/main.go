// Command apilar runs and inspects an artificial-life simulation: a
// topology file of islands and starting computers, scheduled concurrently
// and optionally served over a websocket for live observation.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"gopkg.in/urfave/cli.v1"

	"github.com/apilar-sim/apilar/internal/assembler"
	"github.com/apilar-sim/apilar/internal/codec"
	"github.com/apilar-sim/apilar/internal/island"
	"github.com/apilar-sim/apilar/internal/logging"
	"github.com/apilar-sim/apilar/internal/render"
	"github.com/apilar-sim/apilar/internal/server"
	"github.com/apilar-sim/apilar/internal/topology"
	"github.com/apilar-sim/apilar/internal/world"
)

const version = "0.1.0"

var (
	autosaveFlag = cli.BoolFlag{
		Name:  "autosave",
		Usage: "periodically write a snapshot of the running simulation to disk",
	}
	autosavePathFlag = cli.StringFlag{
		Name:  "autosave-path",
		Usage: "snapshot file written by --autosave",
		Value: "apilar.snapshot.zip",
	}
	autosaveFrequencyFlag = cli.IntFlag{
		Name:  "autosave-frequency",
		Usage: "seconds between autosave snapshots",
		Value: 300,
	}
	redrawFrequencyFlag = cli.IntFlag{
		Name:  "redraw-frequency",
		Usage: "milliseconds between terminal redraws of the observed island",
		Value: 200,
	}
	noServerFlag = cli.BoolFlag{
		Name:  "no-server",
		Usage: "disable the websocket observation/control server",
	}
	seedFlag = cli.IntFlag{
		Name:  "seed",
		Usage: "per-island RNG seed base (island i seeds with seed+i)",
		Value: 1,
	}
	logLevelFlag = cli.StringFlag{
		Name:  "log-level",
		Usage: "debug, info, warn, error",
		Value: "info",
	}
	logFormatFlag = cli.StringFlag{
		Name:  "log-format",
		Usage: "console or json",
		Value: "console",
	}

	sharedFlags = []cli.Flag{
		autosaveFlag,
		autosavePathFlag,
		autosaveFrequencyFlag,
		redrawFrequencyFlag,
		noServerFlag,
		seedFlag,
		logLevelFlag,
		logFormatFlag,
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "apilar"
	app.Usage = "a multi-island artificial-life simulator"
	app.Version = version
	app.Commands = []cli.Command{runCommand, loadCommand}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "apilar:", err)
		os.Exit(1)
	}
}

var runCommand = cli.Command{
	Name:      "run",
	Usage:     "assemble a topology file and run its simulation",
	ArgsUsage: "<topology.json>",
	Flags:     sharedFlags,
	Action: func(ctx *cli.Context) error {
		path := ctx.Args().First()
		if path == "" {
			return cli.NewExitError("usage: apilar run <topology.json>", 1)
		}

		log := logging.New(ctx.String(logLevelFlag.Name), ctx.String(logFormatFlag.Name))

		topo, err := topology.Load(path)
		if err != nil {
			return cli.NewExitError(fmt.Sprintf("loading topology: %v", err), 1)
		}

		islands, err := topo.Assemble(dirOf(path), assembler.Assemble)
		if err != nil {
			return cli.NewExitError(fmt.Sprintf("assembling topology: %v", err), 1)
		}

		return runSimulation(ctx, log, islands, 0)
	},
}

var loadCommand = cli.Command{
	Name:      "load",
	Usage:     "resume a simulation from a previously saved snapshot",
	ArgsUsage: "<snapshot.zip>",
	Flags:     sharedFlags,
	Action: func(ctx *cli.Context) error {
		path := ctx.Args().First()
		if path == "" {
			return cli.NewExitError("usage: apilar load <snapshot.zip>", 1)
		}

		log := logging.New(ctx.String(logLevelFlag.Name), ctx.String(logFormatFlag.Name))

		ws, err := codec.Load(path)
		if err != nil {
			return cli.NewExitError(fmt.Sprintf("loading snapshot: %v", err), 1)
		}

		return runSimulation(ctx, log, codec.Restore(ws), ws.ObservedIslandID)
	},
}

// runSimulation wires a World around islands and drives it until the
// process receives an interrupt: the per-island scheduler loop, the
// optional websocket server, and the optional autosave and terminal
// redraw tasks all run off the same cancellable context. observedIslandID
// seeds the snapshot/redraw target, carried over from a loaded snapshot.
func runSimulation(cliCtx *cli.Context, log *logging.Logger, islands []*island.Island, observedIslandID int) error {
	w := world.New(islands, log)
	w.Observe(observedIslandID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Info().Msg("received interrupt, shutting down")
		cancel()
	}()

	var snapshotFn func(world.Snapshot)
	if !cliCtx.Bool(noServerFlag.Name) {
		srv := server.New(w, disassembleLookup(w), log)
		addr, err := srv.Listen()
		if err != nil {
			return cli.NewExitError(fmt.Sprintf("starting server: %v", err), 1)
		}
		log.Info().Str("addr", addr).Msg("websocket server listening")
		go func() {
			if err := srv.Serve(); err != nil {
				log.Error().Err(err).Msg("server stopped")
			}
		}()
		snapshotFn = srv.Publish
	}

	var persistFn func()
	var persistEvery time.Duration
	if cliCtx.Bool(autosaveFlag.Name) {
		snapshotPath := cliCtx.String(autosavePathFlag.Name)
		persistFn = func() {
			// Lock every island in ascending-ID order, the same order
			// transfers use, so Capture reads no habitat mid-update.
			for _, h := range w.Islands {
				h.Lock()
			}
			ws := codec.Capture(islandsOf(w), w.ObservedIslandID())
			for _, h := range w.Islands {
				h.Unlock()
			}
			if err := codec.Save(snapshotPath, ws); err != nil {
				log.Error().Err(err).Msg("autosave failed")
			}
		}
		persistEvery = time.Duration(cliCtx.Int(autosaveFrequencyFlag.Name)) * time.Second
	}

	redrawEvery := time.Duration(cliCtx.Int(redrawFrequencyFlag.Name)) * time.Millisecond
	if redrawEvery > 0 {
		go runRedraw(ctx, w, redrawEvery)
	}

	w.Run(ctx, int64(cliCtx.Int(seedFlag.Name)), snapshotFn, persistFn, persistEvery)
	return nil
}

// runRedraw clears the terminal and prints the observed island's habitat
// on a fixed cadence until ctx is cancelled.
func runRedraw(ctx context.Context, w *world.World, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h := handleByID(w, w.ObservedIslandID())
			if h == nil {
				continue
			}
			h.Lock()
			frame := render.Frame(h.Island.Habitat)
			h.Unlock()
			fmt.Print("\033[H\033[2J")
			fmt.Println(frame)
		}
	}
}

// disassembleLookup resolves a websocket /disassemble request against the
// currently observed island's habitat.
func disassembleLookup(w *world.World) server.DisassembleLookup {
	return func(x, y int) (string, error) {
		h := handleByID(w, w.ObservedIslandID())
		if h == nil {
			return "", errors.New("no observed island")
		}
		h.Lock()
		defer h.Unlock()
		loc := h.Island.Habitat.At(x, y)
		if loc.Computer == nil {
			return "", fmt.Errorf("no computer at (%d, %d)", x, y)
		}
		return assembler.Disassemble(loc.Computer.Memory), nil
	}
}

func handleByID(w *world.World, id int) *world.IslandHandle {
	for _, h := range w.Islands {
		if h.ID == id {
			return h
		}
	}
	return nil
}

// islandsOf returns every handle's Island pointer. The returned slice
// aliases live Habitat state, so the caller (autosave) holds every
// handle's lock while it uses it.
func islandsOf(w *world.World) []*island.Island {
	out := make([]*island.Island, len(w.Islands))
	for i, h := range w.Islands {
		out[i] = h.Island
	}
	return out
}

func dirOf(path string) string {
	return filepath.Dir(path)
}

// Package main implements the entry point of the CHIP-8 emulator: it wires
// the SDL host thread to the emulator goroutine through the event channel.
package main

import (
	"errors"
	"os"

	"github.com/mnafees/chip8/internal/chip8"
	"github.com/mnafees/chip8/internal/cli"
	"github.com/mnafees/chip8/internal/config"
	"github.com/mnafees/chip8/internal/display"
	"github.com/mnafees/chip8/internal/emulator"
	sdlio "github.com/mnafees/chip8/pkg/sdl"
	"github.com/retroenv/retrogolib/app"
	"github.com/retroenv/retrogolib/log"
)

func main() {
	ctx := app.Context()

	opts, err := cli.ParseFlags(os.Args[1:])
	if err != nil {
		logger := config.CreateLogger(opts.Debug, opts.Quiet)
		var usageErr *cli.UsageError
		if errors.As(err, &usageErr) {
			usageErr.ShowUsage()
		} else {
			logger.Error(err.Error())
		}
		os.Exit(1)
	}
	logger := config.CreateLogger(opts.Debug, opts.Quiet)

	rom, err := os.ReadFile(opts.ROM)
	if err != nil {
		logger.Fatal("Reading ROM", log.Err(err))
	}
	logger.Info("Loading ROM", log.String("file", opts.ROM), log.Int("bytes", len(rom)))

	screen := display.New(display.Options{Wrap: opts.Wrap})
	vm := chip8.New(screen, logger, chip8.Options{
		Quirks: chip8.Quirks{
			ResetFlagOnLogic: opts.ResetVF,
			ShiftSourceY:     opts.ShiftVY,
		},
		Trace: opts.Trace,
	})
	vm.Load(rom)

	io := sdlio.NewIO(opts.Scale)
	if err := io.SetupWindow("CHIP-8"); err != nil {
		logger.Fatal("Setting up window", log.Err(err))
	}
	defer io.Destroy()

	events := make(chan emulator.Event, 64)
	done := make(chan error, 1)
	go func() {
		done <- emulator.New(vm, screen, events, logger).Run()
	}()

	events <- emulator.Started{Surface: io}
	io.Pump(ctx, events)

	if err := <-done; err != nil {
		logger.Fatal("Emulator stopped", log.Err(err))
	}
}

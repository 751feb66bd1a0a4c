// Package cli handles command line interface logic
package cli

import (
	"flag"
	"fmt"
)

// Options are the program options selected by command line flags.
type Options struct {
	ROM string

	Scale int
	Debug bool
	Quiet bool
	Trace bool

	ResetVF bool
	ShiftVY bool
	Wrap    bool
}

// ParseFlags parses command line flags and the ROM argument.
func ParseFlags(args []string) (Options, error) {
	flags := flag.NewFlagSet("chip8", flag.ContinueOnError)
	var opts Options

	flags.IntVar(&opts.Scale, "scale", 10, "window pixels per CHIP-8 pixel")
	flags.BoolVar(&opts.Debug, "debug", false, "enable debug logging")
	flags.BoolVar(&opts.Quiet, "quiet", false, "only log errors")
	flags.BoolVar(&opts.Trace, "trace", false, "log every executed instruction (implies -debug)")
	flags.BoolVar(&opts.ResetVF, "reset-vf", true, "quirk: OR/AND/XOR reset the VF register")
	flags.BoolVar(&opts.ShiftVY, "shift-vy", true, "quirk: shifts read from Vy instead of Vx")
	flags.BoolVar(&opts.Wrap, "wrap", false, "wrap sprites at screen edges instead of clipping")

	if err := flags.Parse(args); err != nil {
		return opts, &UsageError{flags: flags}
	}
	rest := flags.Args()
	if len(rest) != 1 {
		return opts, &UsageError{flags: flags}
	}
	opts.ROM = rest[0]

	if opts.Scale < 1 {
		return opts, fmt.Errorf("invalid scale factor %d", opts.Scale)
	}
	if opts.Trace {
		opts.Debug = true
	}
	return opts, nil
}

// UsageError represents an error that should show usage information
type UsageError struct {
	flags *flag.FlagSet
}

func (e *UsageError) Error() string {
	return "usage error"
}

func (e *UsageError) ShowUsage() {
	fmt.Printf("usage: chip8 [options] <CHIP-8 program>\n\n")
	e.flags.PrintDefaults()
	fmt.Println()
}

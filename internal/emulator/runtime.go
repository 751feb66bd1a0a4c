// Package emulator drives a CHIP-8 VM at a fixed 60 Hz frame cadence on a
// dedicated goroutine, fed by a one-directional event channel from the
// host.
package emulator

import (
	"errors"
	"fmt"
	"time"

	"github.com/mnafees/chip8/internal/chip8"
	"github.com/mnafees/chip8/internal/display"
	"github.com/retroenv/retrogolib/log"
)

// ErrProtocol reports a host integration bug on the event channel.
var ErrProtocol = errors.New("event protocol violation")

// ticksPerFrame bounds how many instructions run per 60 Hz frame,
// approximating a 720 Hz instruction clock.
const ticksPerFrame = 12

// Runtime owns the VM and framebuffer exclusively and runs them until a
// Stopped event arrives. No state is shared with the host; all
// communication happens over the event channel.
type Runtime struct {
	vm     *chip8.VM
	screen *display.Display
	events <-chan Event
	logger *log.Logger

	// Frame is the frame period. Overridable in tests, 1/60 s otherwise.
	Frame time.Duration
}

// New returns a runtime loop for the given VM and framebuffer.
func New(vm *chip8.VM, screen *display.Display, events <-chan Event, logger *log.Logger) *Runtime {
	return &Runtime{
		vm:     vm,
		screen: screen,
		events: events,
		logger: logger,
		Frame:  time.Second / 60,
	}
}

// Run blocks until the first Started event arrives, then executes the
// fetch-decode-execute loop until Stopped is received or the channel is
// closed. Any interpreter or protocol failure stops the loop and is
// returned; the emulated state is not trustworthy past that point.
func (r *Runtime) Run() error {
	surface, err := r.waitStarted()
	if err != nil {
		return err
	}
	r.logger.Debug("Emulator loop started")

	frameStart := time.Now()
	for {
		if time.Since(frameStart) >= r.Frame {
			frameStart = time.Now()

			for cycles := 0; cycles < ticksPerFrame; cycles++ {
				// simulate blocking execution until key input arrives
				if r.vm.Waiting() {
					break
				}
				drawn, err := r.vm.Tick()
				if err != nil {
					return err
				}
				// wait for the frame refresh after drawing
				if drawn {
					break
				}
			}

			r.vm.TickTimers()
			surface.SetBeeping(r.vm.Sounding())
			if err := surface.Render(r.screen.Pixels()); err != nil {
				return fmt.Errorf("rendering frame: %w", err)
			}
		}

		stop, err := r.drainEvents()
		if err != nil {
			return err
		}
		if stop {
			r.logger.Debug("Emulator loop stopped")
			return nil
		}
	}
}

// waitStarted blocks for the first event, which the protocol requires to
// be Started.
func (r *Runtime) waitStarted() (Surface, error) {
	ev, ok := <-r.events
	if !ok {
		return nil, fmt.Errorf("%w: channel closed before Started", ErrProtocol)
	}
	started, ok := ev.(Started)
	if !ok {
		return nil, fmt.Errorf("%w: first event must be Started, got %T", ErrProtocol, ev)
	}
	return started.Surface, nil
}

// drainEvents consumes every currently queued event without blocking, so
// input and shutdown are never starved by the instruction burst.
func (r *Runtime) drainEvents() (stop bool, err error) {
	for {
		select {
		case ev, ok := <-r.events:
			if !ok {
				return true, nil
			}
			switch e := ev.(type) {
			case KeyChanged:
				r.vm.HandleKey(e.Key, e.Pressed)
			case Stopped:
				return true, nil
			case Started:
				return false, fmt.Errorf("%w: Started received twice", ErrProtocol)
			}
		default:
			return false, nil
		}
	}
}

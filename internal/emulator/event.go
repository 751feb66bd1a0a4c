package emulator

import (
	"github.com/mnafees/chip8/internal/display"
)

// Surface is the presentation target handed over by the host in the
// Started event. Implementations are only ever called from the emulator
// goroutine.
type Surface interface {
	// Render rasterizes the framebuffer snapshot.
	Render(pixels [display.Width][display.Height]bool) error
	// SetBeeping signals whether the sound timer is active.
	SetBeeping(on bool)
}

// Event is a host-to-emulator message. The host must send exactly one
// Started first, any number of KeyChanged events after it, and at most one
// terminal Stopped. Closing the channel is equivalent to Stopped.
type Event interface {
	event()
}

// Started hands the presentation surface over to the emulator goroutine.
type Started struct {
	Surface Surface
}

// KeyChanged reports a keypad press or release for key index 0x0..0xF.
type KeyChanged struct {
	Key     uint8
	Pressed bool
}

// Stopped requests the emulator loop to exit.
type Stopped struct{}

func (Started) event() {}
func (KeyChanged) event() {}
func (Stopped) event() {}

// Package sdl is the SDL2 host frontend: it owns the window, maps physical
// keys onto the CHIP-8 keypad and rasterizes the framebuffer. It feeds the
// emulator exclusively through the event channel.
package sdl

import (
	"context"
	"fmt"

	"github.com/mnafees/chip8/internal/display"
	"github.com/mnafees/chip8/internal/emulator"
	"github.com/veandco/go-sdl2/sdl"
)

const (
	screenColor = 0x1A237E
	spriteColor = 0x9FA8DA

	beepTitle = "\U0001F50A"
)

// IO is the input/output abstraction layer for the VM
type IO struct {
	window  *sdl.Window
	surface *sdl.Surface

	title   string
	scale   int32
	beeping bool
}

// NewIO returns a new I/O instance for the SDL frontend
func NewIO(scale int) *IO {
	return &IO{
		scale: int32(scale),
	}
}

// SetupWindow initialises and sets up the main SDL window
func (io *IO) SetupWindow(title string) error {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return fmt.Errorf("initialising SDL: %w", err)
	}

	window, err := sdl.CreateWindow(title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		display.Width*io.scale, display.Height*io.scale, sdl.WINDOW_SHOWN)
	if err != nil {
		return fmt.Errorf("creating window: %w", err)
	}
	io.window = window
	io.title = title
	io.surface, err = window.GetSurface()
	if err != nil {
		return fmt.Errorf("getting window surface: %w", err)
	}
	return io.surface.FillRect(nil, screenColor)
}

// Destroy should be called before quitting the application
func (io *IO) Destroy() {
	if io.window != nil {
		io.window.Destroy()
	}
	sdl.Quit()
}

// Render draws the framebuffer snapshot onto the window surface.
func (io *IO) Render(pixels [display.Width][display.Height]bool) error {
	if err := io.surface.FillRect(nil, screenColor); err != nil {
		return err
	}
	for w := int32(0); w < display.Width; w++ {
		for h := int32(0); h < display.Height; h++ {
			if !pixels[w][h] {
				continue
			}
			rect := &sdl.Rect{X: w * io.scale, Y: h * io.scale, W: io.scale, H: io.scale}
			if err := io.surface.FillRect(rect, spriteColor); err != nil {
				return err
			}
		}
	}
	return io.window.UpdateSurface()
}

// SetBeeping swaps the window title while the sound timer is active. There
// is no audio output, only the indicator.
func (io *IO) SetBeeping(on bool) {
	if on == io.beeping {
		return
	}
	io.beeping = on
	if on {
		io.window.SetTitle(beepTitle)
	} else {
		io.window.SetTitle(io.title)
	}
}

// Pump runs the host event loop on the calling thread, translating SDL
// events into emulator events. It returns after sending Stopped, either on
// window close or context cancellation.
func (io *IO) Pump(ctx context.Context, events chan<- emulator.Event) {
	for {
		select {
		case <-ctx.Done():
			events <- emulator.Stopped{}
			return
		default:
		}

		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch t := event.(type) {
			case *sdl.KeyboardEvent:
				code := keymap(t.Keysym.Scancode)
				if code == -1 {
					break
				}
				switch t.GetType() {
				case sdl.KEYDOWN:
					events <- emulator.KeyChanged{Key: uint8(code), Pressed: true}
				case sdl.KEYUP:
					events <- emulator.KeyChanged{Key: uint8(code), Pressed: false}
				}
			case *sdl.QuitEvent:
				events <- emulator.Stopped{}
				return
			}
		}
		sdl.Delay(5)
	}
}

// Maps keys from a QWERTY keyboard to the keypad used by CHIP-8
// Below we have a mapping QWERTY keyboard to the CHIP-8 keypad
// +--------+--------+--------+--------+
// | 1 -> 1 | 2 -> 2 | 3 -> 3 | 4 -> C |
// +--------+--------+--------+--------+
// | Q -> 4 | W -> 5 | E -> 6 | R -> D |
// +--------+--------+--------+--------+
// | A -> 7 | S -> 8 | D -> 9 | F -> E |
// +--------+--------+--------+--------+
// | Z -> A | X -> 0 | C -> B | V -> F |
// +--------+--------+--------+--------+
func keymap(code sdl.Scancode) int8 {
	switch code {
	case sdl.SCANCODE_1:
		return 0x1
	case sdl.SCANCODE_2:
		return 0x2
	case sdl.SCANCODE_3:
		return 0x3
	case sdl.SCANCODE_4:
		return 0xC
	case sdl.SCANCODE_Q:
		return 0x4
	case sdl.SCANCODE_W:
		return 0x5
	case sdl.SCANCODE_E:
		return 0x6
	case sdl.SCANCODE_R:
		return 0xD
	case sdl.SCANCODE_A:
		return 0x7
	case sdl.SCANCODE_S:
		return 0x8
	case sdl.SCANCODE_D:
		return 0x9
	case sdl.SCANCODE_F:
		return 0xE
	case sdl.SCANCODE_Z:
		return 0xA
	case sdl.SCANCODE_X:
		return 0x0
	case sdl.SCANCODE_C:
		return 0xB
	case sdl.SCANCODE_V:
		return 0xF
	default:
		return -1
	}
}

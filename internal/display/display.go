// Package display implements the CHIP-8 monochrome framebuffer.
package display

// Screen dimensions in pixels
const (
	Width  = 64
	Height = 32
)

// Options configures framebuffer behaviour.
type Options struct {
	// Wrap makes sprite pixels wrap around the screen edges during the
	// scan instead of being clipped. Most ROMs expect clipping; a few
	// need full wraparound.
	Wrap bool
}

// Display is a 64 px x 32 px monochrome framebuffer. Sprites are XORed
// into the grid, never assigned directly.
type Display struct {
	pixels [Width][Height]bool
	wrap   bool
}

// New returns an empty framebuffer.
func New(opts Options) *Display {
	return &Display{
		wrap: opts.Wrap,
	}
}

// Clear unsets every pixel.
func (d *Display) Clear() {
	d.pixels = [Width][Height]bool{}
}

// Draw XORs an 8-pixel-wide sprite into the framebuffer with its top-left
// corner at (x, y). The anchor is wrapped into screen bounds; pixels that
// fall off the right or bottom edge during the scan are clipped unless the
// wrap option is set. It reports whether any lit pixel was unset by the
// draw.
func (d *Display) Draw(x uint8, y uint8, sprite []byte) bool {
	collision := false
	baseX := int(x) % Width
	baseY := int(y) % Height

	for row, line := range sprite {
		py := baseY + row
		if py >= Height {
			if !d.wrap {
				break
			}
			py %= Height
		}
		for col := 0; col < 8; col++ {
			px := baseX + col
			if px >= Width {
				if !d.wrap {
					break
				}
				px %= Width
			}
			if line&(0x80>>col) == 0 {
				continue
			}
			if d.pixels[px][py] {
				collision = true
			}
			d.pixels[px][py] = !d.pixels[px][py]
		}
	}
	return collision
}

// Pixels returns a snapshot of the framebuffer for rendering.
func (d *Display) Pixels() [Width][Height]bool {
	return d.pixels
}

package chip8

import (
	"errors"
	"testing"

	"github.com/mnafees/chip8/internal/display"
	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
)

func newTestVM(t *testing.T, quirks Quirks) *VM {
	t.Helper()
	return New(display.New(display.Options{}), log.NewTestLogger(t), Options{Quirks: quirks})
}

// program packs instruction words into ROM bytes, big-endian.
func program(words ...uint16) []byte {
	rom := make([]byte, 0, len(words)*2)
	for _, w := range words {
		rom = append(rom, byte(w>>8), byte(w))
	}
	return rom
}

func step(t *testing.T, vm *VM) bool {
	t.Helper()
	drawn, err := vm.Tick()
	assert.NoError(t, err)
	return drawn
}

func TestLoadAndTick(t *testing.T) {
	vm := newTestVM(t, DefaultQuirks())
	vm.Load(program(0x6142))

	step(t, vm)

	assert.Equal(t, uint8(0x42), vm.regV[1])
	assert.Equal(t, uint16(0x202), vm.pc)
}

func TestLoadTruncatesOversizedROM(t *testing.T) {
	vm := newTestVM(t, DefaultQuirks())
	rom := make([]byte, maxProgramSize+16)
	for i := range rom {
		rom[i] = uint8(i)
	}

	vm.Load(rom)

	assert.Equal(t, rom[maxProgramSize-1], vm.memory[totalMemory-1])
}

func TestAddImmediateWraps(t *testing.T) {
	vm := newTestVM(t, DefaultQuirks())
	vm.Load(program(0x60FF, 0x7002))

	step(t, vm)
	step(t, vm)

	assert.Equal(t, uint8(0x01), vm.regV[0])
	// 7xkk never touches the flag register
	assert.Equal(t, uint8(0), vm.regV[0xF])
}

func TestAddRegisterCarry(t *testing.T) {
	tests := []struct {
		name string
		vx   uint8
		vy   uint8
		sum  uint8
		flag uint8
	}{
		{"no carry", 0x10, 0x20, 0x30, 0},
		{"carry", 0xFF, 0x02, 0x01, 1},
		{"exact limit", 0xFF, 0x00, 0xFF, 0},
		{"wrap to zero", 0x80, 0x80, 0x00, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t, DefaultQuirks())
			vm.Load(program(0x8014))
			vm.regV[0] = tt.vx
			vm.regV[1] = tt.vy

			step(t, vm)

			assert.Equal(t, tt.sum, vm.regV[0])
			assert.Equal(t, tt.flag, vm.regV[0xF])
		})
	}
}

func TestSubtract(t *testing.T) {
	tests := []struct {
		name   string
		raw    uint16
		vx     uint8
		vy     uint8
		result uint8
		flag   uint8
	}{
		{"sub no borrow", 0x8015, 0x30, 0x10, 0x20, 1},
		{"sub equal", 0x8015, 0x10, 0x10, 0x00, 1},
		{"sub borrow", 0x8015, 0x10, 0x30, 0xE0, 0},
		{"subn no borrow", 0x8017, 0x10, 0x30, 0x20, 1},
		{"subn equal", 0x8017, 0x10, 0x10, 0x00, 1},
		{"subn borrow", 0x8017, 0x30, 0x10, 0xE0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t, DefaultQuirks())
			vm.Load(program(tt.raw))
			vm.regV[0] = tt.vx
			vm.regV[1] = tt.vy

			step(t, vm)

			assert.Equal(t, tt.result, vm.regV[0])
			assert.Equal(t, tt.flag, vm.regV[0xF])
		})
	}
}

func TestLogicOps(t *testing.T) {
	tests := []struct {
		name   string
		raw    uint16
		result uint8
	}{
		{"or", 0x8011, 0xF5},
		{"and", 0x8012, 0xA0},
		{"xor", 0x8013, 0x55},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t, DefaultQuirks())
			vm.Load(program(tt.raw))
			vm.regV[0] = 0xF0
			vm.regV[1] = 0xA5
			vm.regV[0xF] = 1

			step(t, vm)

			assert.Equal(t, tt.result, vm.regV[0])
			// VIP dialect zeroes the flag register
			assert.Equal(t, uint8(0), vm.regV[0xF])
		})
	}
}

func TestLogicOpsKeepFlagWithoutQuirk(t *testing.T) {
	vm := newTestVM(t, Quirks{})
	vm.Load(program(0x8011))
	vm.regV[0] = 0xF0
	vm.regV[1] = 0xA5
	vm.regV[0xF] = 1

	step(t, vm)

	assert.Equal(t, uint8(1), vm.regV[0xF])
}

func TestShifts(t *testing.T) {
	tests := []struct {
		name   string
		quirks Quirks
		raw    uint16
		vx     uint8
		vy     uint8
		result uint8
		flag   uint8
	}{
		{"shr from vy", Quirks{ShiftSourceY: true}, 0x8016, 0x00, 0x05, 0x02, 1},
		{"shr from vx", Quirks{}, 0x8016, 0x04, 0xFF, 0x02, 0},
		{"shl from vy", Quirks{ShiftSourceY: true}, 0x801E, 0x00, 0x81, 0x02, 1},
		{"shl from vx", Quirks{}, 0x801E, 0x41, 0xFF, 0x82, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t, tt.quirks)
			vm.Load(program(tt.raw))
			vm.regV[0] = tt.vx
			vm.regV[1] = tt.vy

			step(t, vm)

			assert.Equal(t, tt.result, vm.regV[0])
			assert.Equal(t, tt.flag, vm.regV[0xF])
		})
	}
}

func TestSkips(t *testing.T) {
	tests := []struct {
		name string
		raw  uint16
		v0   uint8
		v1   uint8
		pc   uint16
	}{
		{"se imm taken", 0x3042, 0x42, 0, 0x204},
		{"se imm not taken", 0x3042, 0x41, 0, 0x202},
		{"sne imm taken", 0x4042, 0x41, 0, 0x204},
		{"sne imm not taken", 0x4042, 0x42, 0, 0x202},
		{"se reg taken", 0x5010, 0x42, 0x42, 0x204},
		{"se reg not taken", 0x5010, 0x42, 0x41, 0x202},
		{"sne reg taken", 0x9010, 0x42, 0x41, 0x204},
		{"sne reg not taken", 0x9010, 0x42, 0x42, 0x202},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t, DefaultQuirks())
			vm.Load(program(tt.raw))
			vm.regV[0] = tt.v0
			vm.regV[1] = tt.v1

			step(t, vm)

			assert.Equal(t, tt.pc, vm.pc)
		})
	}
}

func TestJumps(t *testing.T) {
	vm := newTestVM(t, DefaultQuirks())
	vm.Load(program(0x1400))
	step(t, vm)
	assert.Equal(t, uint16(0x400), vm.pc)

	vm = newTestVM(t, DefaultQuirks())
	vm.Load(program(0xB400))
	vm.regV[0] = 0x10
	step(t, vm)
	assert.Equal(t, uint16(0x410), vm.pc)
}

func TestCallReturn(t *testing.T) {
	// 0x200: CALL 0x204; 0x202: unreachable; 0x204: RET
	vm := newTestVM(t, DefaultQuirks())
	vm.Load(program(0x2204, 0x0000, 0x00EE))

	step(t, vm)
	assert.Equal(t, uint16(0x204), vm.pc)
	assert.Equal(t, uint8(1), vm.sp)

	step(t, vm)
	// back at the instruction after the CALL
	assert.Equal(t, uint16(0x202), vm.pc)
	assert.Equal(t, uint8(0), vm.sp)
}

func TestStackOverflow(t *testing.T) {
	// CALL 0x200 in a loop nests one call per tick.
	vm := newTestVM(t, DefaultQuirks())
	vm.Load(program(0x2200))

	for i := 0; i < stackSize; i++ {
		step(t, vm)
	}
	_, err := vm.Tick()
	assert.True(t, errors.Is(err, ErrStackOverflow))
}

func TestStackUnderflow(t *testing.T) {
	vm := newTestVM(t, DefaultQuirks())
	vm.Load(program(0x00EE))

	_, err := vm.Tick()
	assert.True(t, errors.Is(err, ErrStackUnderflow))
}

func TestUnknownOpcode(t *testing.T) {
	for _, raw := range []uint16{0x00E1, 0x5011, 0x8018, 0x9011, 0xE042, 0xF0FF} {
		vm := newTestVM(t, DefaultQuirks())
		vm.Load(program(raw))

		_, err := vm.Tick()
		assert.True(t, errors.Is(err, ErrUnknownOpcode))
	}
}

func TestEmptyMemoryWordIsIgnored(t *testing.T) {
	vm := newTestVM(t, DefaultQuirks())

	drawn := step(t, vm)

	assert.False(t, drawn)
	assert.Equal(t, uint16(0x202), vm.pc)
}

func TestRegisterStoreLoadRoundTrip(t *testing.T) {
	// 0x200: LD [I], V4; 0x202: LD V4, [I] re-reads the same block
	vm := newTestVM(t, DefaultQuirks())
	vm.Load(program(0xF455, 0xA300, 0xF465))
	vm.regI = 0x300
	want := [5]uint8{0x11, 0x22, 0x33, 0x44, 0x55}
	copy(vm.regV[:], want[:])

	step(t, vm)
	assert.Equal(t, uint16(0x305), vm.regI)

	// clobber and restore
	vm.regV = [16]uint8{}
	step(t, vm) // I := 0x300
	step(t, vm)

	assert.Equal(t, uint16(0x305), vm.regI)
	for i, v := range want {
		assert.Equal(t, v, vm.regV[i])
	}
}

func TestBCD(t *testing.T) {
	vm := newTestVM(t, DefaultQuirks())
	vm.Load(program(0xF033))
	vm.regV[0] = 254
	vm.regI = 0x300

	step(t, vm)

	assert.Equal(t, uint8(2), vm.memory[0x300])
	assert.Equal(t, uint8(5), vm.memory[0x301])
	assert.Equal(t, uint8(4), vm.memory[0x302])
}

func TestFontAddress(t *testing.T) {
	vm := newTestVM(t, DefaultQuirks())
	vm.Load(program(0xF029))
	vm.regV[0] = 0x7

	step(t, vm)

	assert.Equal(t, uint16(35), vm.regI)
	glyph := vm.memory[vm.regI : vm.regI+5]
	want := []uint8{0xF0, 0x10, 0x20, 0x40, 0x40}
	for i, row := range want {
		assert.Equal(t, row, glyph[i])
	}
}

func TestTimers(t *testing.T) {
	vm := newTestVM(t, DefaultQuirks())
	vm.Load(program(0x6003, 0xF015, 0xF018, 0xF107))
	step(t, vm)
	step(t, vm)
	step(t, vm)

	assert.True(t, vm.Sounding())

	step(t, vm)
	assert.Equal(t, uint8(3), vm.regV[1])

	for i := 0; i < 3; i++ {
		vm.TickTimers()
	}
	assert.Equal(t, uint8(0), vm.delayTimer)
	assert.False(t, vm.Sounding())

	// timers stop at zero
	vm.TickTimers()
	assert.Equal(t, uint8(0), vm.delayTimer)
}

func TestRandomMasked(t *testing.T) {
	vm := newTestVM(t, DefaultQuirks())
	vm.Load(program(0xC100))
	vm.regV[1] = 0xAA

	step(t, vm)

	// kk = 0 masks every random byte down to zero
	assert.Equal(t, uint8(0), vm.regV[1])
}

func TestKeySkips(t *testing.T) {
	vm := newTestVM(t, DefaultQuirks())
	vm.Load(program(0xE09E, 0xE0A1))
	vm.regV[0] = 0x5

	vm.HandleKey(0x5, true)
	step(t, vm)
	assert.Equal(t, uint16(0x204), vm.pc)

	vm.HandleKey(0x5, false)
	vm.pc = 0x202
	step(t, vm)
	assert.Equal(t, uint16(0x206), vm.pc)
}

func TestWaitForKey(t *testing.T) {
	vm := newTestVM(t, DefaultQuirks())
	vm.Load(program(0xF30A, 0x6001))

	step(t, vm)
	assert.True(t, vm.Waiting())
	pc := vm.pc

	// execution is suspended while waiting
	drawn, err := vm.Tick()
	assert.NoError(t, err)
	assert.False(t, drawn)
	assert.Equal(t, pc, vm.pc)

	// a press alone does not resume execution
	vm.HandleKey(0x9, true)
	assert.True(t, vm.Waiting())

	// the release stores the key code and resumes
	vm.HandleKey(0x9, false)
	assert.False(t, vm.Waiting())
	assert.Equal(t, uint8(0x9), vm.regV[3])

	step(t, vm)
	assert.Equal(t, uint8(0x01), vm.regV[0])
}

func TestDrawCollision(t *testing.T) {
	// point I at glyph 0 and draw it twice at (0, 0)
	vm := newTestVM(t, DefaultQuirks())
	vm.Load(program(0xA000, 0xD005, 0xD005))
	step(t, vm)

	drawn := step(t, vm)
	assert.True(t, drawn)
	assert.Equal(t, uint8(0), vm.regV[0xF])

	drawn = step(t, vm)
	assert.True(t, drawn)
	assert.Equal(t, uint8(1), vm.regV[0xF])

	// XOR idempotence: the grid is dark again
	pixels := vm.screen.Pixels()
	for x := 0; x < display.Width; x++ {
		for y := 0; y < display.Height; y++ {
			assert.False(t, pixels[x][y])
		}
	}
}

func TestClearScreen(t *testing.T) {
	vm := newTestVM(t, DefaultQuirks())
	vm.Load(program(0xA000, 0xD005, 0x00E0))
	step(t, vm)
	step(t, vm)

	drawn := step(t, vm)
	assert.True(t, drawn)

	pixels := vm.screen.Pixels()
	for x := 0; x < display.Width; x++ {
		for y := 0; y < display.Height; y++ {
			assert.False(t, pixels[x][y])
		}
	}
}

func TestMemoryRangeErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  uint16
		i    uint16
	}{
		{"draw past end", 0xD005, 0xFFE},
		{"bcd past end", 0xF033, 0xFFE},
		{"store past end", 0xF555, 0xFFC},
		{"load past end", 0xF565, 0xFFC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t, DefaultQuirks())
			vm.Load(program(tt.raw))
			vm.regI = tt.i

			_, err := vm.Tick()
			assert.True(t, errors.Is(err, ErrMemoryRange))
		})
	}
}

func TestFetchPastEndOfMemory(t *testing.T) {
	// jump to the last word, execute it, then fetch runs off the end
	vm := newTestVM(t, DefaultQuirks())
	vm.Load(program(0x1FFE))

	step(t, vm)
	assert.Equal(t, uint16(0xFFE), vm.pc)
	step(t, vm) // 0x0000 word, ignored

	_, err := vm.Tick()
	assert.True(t, errors.Is(err, ErrMemoryRange))
}

func TestIndexAdd(t *testing.T) {
	vm := newTestVM(t, DefaultQuirks())
	vm.Load(program(0xA100, 0xF01E))
	vm.regV[0] = 0x42

	step(t, vm)
	step(t, vm)

	assert.Equal(t, uint16(0x142), vm.regI)
}

func TestHandleKeyIgnoresInvalidIndex(t *testing.T) {
	vm := newTestVM(t, DefaultQuirks())
	vm.HandleKey(0x10, true)

	for _, pressed := range vm.keys {
		assert.False(t, pressed)
	}
}

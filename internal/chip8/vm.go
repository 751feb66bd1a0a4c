// Package chip8 implements a CHIP-8 virtual machine interpreter.
//
// Follows the CHIP-8 technical reference found at http://devernay.free.fr/hacks/chip8/C8TECH10.HTM
package chip8

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/mnafees/chip8/internal/display"
	"github.com/retroenv/retrogolib/log"
)

// CHIP-8 VM constants
const (
	totalMemory    = 0x1000
	pcStartAddr    = 0x200
	maxProgramSize = totalMemory - pcStartAddr

	stackSize = 16
	numKeys   = 16
)

// Interpreter failure modes. All of them leave the emulated state
// untrustworthy, so callers are expected to stop the machine.
var (
	ErrUnknownOpcode  = errors.New("unknown opcode")
	ErrStackOverflow  = errors.New("call stack overflow")
	ErrStackUnderflow = errors.New("call stack underflow")
	ErrMemoryRange    = errors.New("memory access out of range")
)

// Quirks selects between documented CHIP-8 dialect behaviours. The zero
// value is the modern (SCHIP-style) dialect; DefaultQuirks matches the
// original COSMAC VIP interpreter.
type Quirks struct {
	// ResetFlagOnLogic makes 8xy1/8xy2/8xy3 zero VF as a side effect.
	ResetFlagOnLogic bool
	// ShiftSourceY makes 8xy6/8xyE shift Vy into Vx instead of shifting
	// Vx in place.
	ShiftSourceY bool
}

// DefaultQuirks returns the COSMAC VIP dialect, which most test ROMs
// assume.
func DefaultQuirks() Quirks {
	return Quirks{
		ResetFlagOnLogic: true,
		ShiftSourceY:     true,
	}
}

// Options configures a VM.
type Options struct {
	Quirks Quirks
	// Trace logs every executed instruction at debug level.
	Trace bool
}

// keyWait models the Fx0A blocking state: while waiting is set,
// instruction execution is suspended until a key release stores its code
// into register reg.
type keyWait struct {
	waiting bool
	reg     uint8
}

// VM is an emulated CHIP-8 virtual machine. It owns memory, registers,
// stack, timers and keypad state exclusively; all mutation happens through
// Tick and HandleKey.
type VM struct {
	regV   [16]uint8          // 16 general purpose 8-bit registers
	regI   uint16             // 16-bit register that is generally used to store memory addresses
	pc     uint16             // Program counter
	sp     uint8              // Stack pointer
	stack  [stackSize]uint16  // A stack of 16 16-bit values
	memory [totalMemory]uint8 // 4 KB global memory

	delayTimer uint8
	soundTimer uint8

	keys [numKeys]bool
	wait keyWait

	screen *display.Display
	quirks Quirks
	trace  bool
	logger *log.Logger
}

// New creates a new instance of an emulated CHIP-8 VM with the font set
// installed at the start of memory.
func New(screen *display.Display, logger *log.Logger, opts Options) *VM {
	vm := &VM{
		pc:     pcStartAddr,
		screen: screen,
		quirks: opts.Quirks,
		trace:  opts.Trace,
		logger: logger,
	}
	copy(vm.memory[:], fontset[:])
	return vm
}

// Load copies a program into memory starting at 0x200. A ROM larger than
// the available program space is truncated with a warning rather than
// rejected.
func (vm *VM) Load(rom []byte) {
	if len(rom) > maxProgramSize {
		vm.logger.Warn("ROM exceeds program space, truncating",
			log.Int("size", len(rom)),
			log.Int("max", maxProgramSize))
		rom = rom[:maxProgramSize]
	}
	n := copy(vm.memory[pcStartAddr:], rom)
	vm.logger.Info("Program loaded", log.Int("bytes", n))
}

// Waiting reports whether the VM is suspended on an Fx0A key wait.
func (vm *VM) Waiting() bool {
	return vm.wait.waiting
}

// Sounding reports whether the sound timer is active.
func (vm *VM) Sounding() bool {
	return vm.soundTimer > 0
}

// TickTimers decrements the delay and sound timers by at most 1. Called
// once per 60 Hz frame.
func (vm *VM) TickTimers() {
	if vm.delayTimer > 0 {
		vm.delayTimer--
	}
	if vm.soundTimer > 0 {
		vm.soundTimer--
	}
}

// HandleKey updates keypad state for key index 0x0..0xF. A key release
// while the VM is waiting on Fx0A stores the key code into the pending
// register and resumes execution.
func (vm *VM) HandleKey(key uint8, pressed bool) {
	if key >= numKeys {
		return
	}
	vm.keys[key] = pressed

	if vm.wait.waiting && !pressed {
		vm.regV[vm.wait.reg] = key
		vm.wait = keyWait{}
	}
}

// Tick fetches, decodes and executes a single instruction. It reports
// whether the instruction affected the framebuffer. While the VM is
// waiting for a key it does nothing.
func (vm *VM) Tick() (bool, error) {
	if vm.wait.waiting {
		return false, nil
	}

	op, err := vm.fetch()
	if err != nil {
		return false, err
	}
	if vm.trace {
		vm.logger.Debug("Executing",
			log.String("ins", mnemonic(op.raw)),
			log.Hex("opcode", op.raw),
			log.Hex("addr", op.addr))
	}
	return vm.exec(op)
}

// fetch reads the 2-byte big-endian instruction word at PC and advances PC
// past it.
func (vm *VM) fetch() (opcode, error) {
	if int(vm.pc)+1 >= totalMemory {
		return opcode{}, fmt.Errorf("%w: fetch at %04X", ErrMemoryRange, vm.pc)
	}
	raw := uint16(vm.memory[vm.pc])<<8 | uint16(vm.memory[vm.pc+1])
	op := decode(vm.pc, raw)
	vm.pc += 2
	return op, nil
}

func (vm *VM) unknownOpcode(op opcode) error {
	return fmt.Errorf("%w %04X at %04X", ErrUnknownOpcode, op.raw, op.addr)
}

// checkRange validates that the n bytes starting at I fall inside memory.
func (vm *VM) checkRange(op opcode, n int) error {
	if int(vm.regI)+n > totalMemory {
		return fmt.Errorf("%w: %d bytes at I=%04X (opcode %04X at %04X)",
			ErrMemoryRange, n, vm.regI, op.raw, op.addr)
	}
	return nil
}

func (vm *VM) exec(op opcode) (bool, error) {
	switch op.raw & 0xF000 { // Compare against the first 4 bits of the instruction only
	case 0x0000:
		switch op.kk {
		case 0x00: // empty memory, ignore
		case 0xE0: // CLS
			vm.screen.Clear()
			return true, nil
		case 0xEE: // RET
			if vm.sp == 0 {
				return false, fmt.Errorf("%w: return at %04X", ErrStackUnderflow, op.addr)
			}
			vm.sp--
			vm.pc = vm.stack[vm.sp]
		default:
			return false, vm.unknownOpcode(op)
		}
	case 0x1000: // JP nnn
		vm.pc = op.nnn
	case 0x2000: // CALL nnn
		if vm.sp == stackSize {
			return false, fmt.Errorf("%w: call at %04X", ErrStackOverflow, op.addr)
		}
		vm.stack[vm.sp] = vm.pc
		vm.sp++
		vm.pc = op.nnn
	case 0x3000: // SE Vx, kk
		if vm.regV[op.x] == op.kk {
			vm.pc += 2
		}
	case 0x4000: // SNE Vx, kk
		if vm.regV[op.x] != op.kk {
			vm.pc += 2
		}
	case 0x5000: // SE Vx, Vy
		if op.n != 0x0 {
			return false, vm.unknownOpcode(op)
		}
		if vm.regV[op.x] == vm.regV[op.y] {
			vm.pc += 2
		}
	case 0x6000: // LD Vx, kk
		vm.regV[op.x] = op.kk
	case 0x7000: // ADD Vx, kk
		vm.regV[op.x] += op.kk
	case 0x8000:
		if err := vm.execALU(op); err != nil {
			return false, err
		}
	case 0x9000: // SNE Vx, Vy
		if op.n != 0x0 {
			return false, vm.unknownOpcode(op)
		}
		if vm.regV[op.x] != vm.regV[op.y] {
			vm.pc += 2
		}
	case 0xA000: // LD I, nnn
		vm.regI = op.nnn
	case 0xB000: // JP V0, nnn
		vm.pc = op.nnn + uint16(vm.regV[0])
	case 0xC000: // RND Vx, kk
		vm.regV[op.x] = uint8(rand.Intn(256)) & op.kk
	case 0xD000: // DRW Vx, Vy, n
		if err := vm.checkRange(op, int(op.n)); err != nil {
			return false, err
		}
		sprite := vm.memory[vm.regI : vm.regI+uint16(op.n)]
		collision := vm.screen.Draw(vm.regV[op.x], vm.regV[op.y], sprite)
		vm.setFlag(collision)
		return true, nil
	case 0xE000:
		switch op.kk {
		case 0x9E: // SKP Vx
			if vm.pressed(vm.regV[op.x]) {
				vm.pc += 2
			}
		case 0xA1: // SKNP Vx
			if !vm.pressed(vm.regV[op.x]) {
				vm.pc += 2
			}
		default:
			return false, vm.unknownOpcode(op)
		}
	case 0xF000:
		return false, vm.execMisc(op)
	default:
		return false, vm.unknownOpcode(op)
	}
	return false, nil
}

// execALU handles the 8xyN register-to-register operation family.
func (vm *VM) execALU(op opcode) error {
	switch op.n {
	case 0x0: // LD Vx, Vy
		vm.regV[op.x] = vm.regV[op.y]
	case 0x1: // OR Vx, Vy
		vm.regV[op.x] |= vm.regV[op.y]
		if vm.quirks.ResetFlagOnLogic {
			vm.setFlag(false)
		}
	case 0x2: // AND Vx, Vy
		vm.regV[op.x] &= vm.regV[op.y]
		if vm.quirks.ResetFlagOnLogic {
			vm.setFlag(false)
		}
	case 0x3: // XOR Vx, Vy
		vm.regV[op.x] ^= vm.regV[op.y]
		if vm.quirks.ResetFlagOnLogic {
			vm.setFlag(false)
		}
	case 0x4: // ADD Vx, Vy
		sum := uint16(vm.regV[op.x]) + uint16(vm.regV[op.y])
		vm.regV[op.x] = uint8(sum)
		vm.setFlag(sum > 0xFF)
	case 0x5: // SUB Vx, Vy
		noBorrow := vm.regV[op.x] >= vm.regV[op.y]
		vm.regV[op.x] -= vm.regV[op.y]
		vm.setFlag(noBorrow)
	case 0x6: // SHR Vx {, Vy}
		src := vm.regV[op.x]
		if vm.quirks.ShiftSourceY {
			src = vm.regV[op.y]
		}
		vm.regV[op.x] = src >> 1
		vm.setFlag(src&0x01 == 0x01)
	case 0x7: // SUBN Vx, Vy
		noBorrow := vm.regV[op.y] >= vm.regV[op.x]
		vm.regV[op.x] = vm.regV[op.y] - vm.regV[op.x]
		vm.setFlag(noBorrow)
	case 0xE: // SHL Vx {, Vy}
		src := vm.regV[op.x]
		if vm.quirks.ShiftSourceY {
			src = vm.regV[op.y]
		}
		vm.regV[op.x] = src << 1
		vm.setFlag(src&0x80 == 0x80)
	default:
		return vm.unknownOpcode(op)
	}
	return nil
}

// execMisc handles the FxNN memory, timer and keypad operation family.
func (vm *VM) execMisc(op opcode) error {
	switch op.kk {
	case 0x07: // LD Vx, DT
		vm.regV[op.x] = vm.delayTimer
	case 0x0A: // LD Vx, K
		vm.wait = keyWait{waiting: true, reg: op.x}
	case 0x15: // LD DT, Vx
		vm.delayTimer = vm.regV[op.x]
	case 0x18: // LD ST, Vx
		vm.soundTimer = vm.regV[op.x]
	case 0x1E: // ADD I, Vx
		vm.regI += uint16(vm.regV[op.x])
	case 0x29: // LD F, Vx
		vm.regI = uint16(vm.regV[op.x]) * 5
	case 0x33: // LD B, Vx
		if err := vm.checkRange(op, 3); err != nil {
			return err
		}
		vm.memory[vm.regI] = vm.regV[op.x] / 100
		vm.memory[vm.regI+1] = vm.regV[op.x] / 10 % 10
		vm.memory[vm.regI+2] = vm.regV[op.x] % 10
	case 0x55: // LD [I], Vx
		if err := vm.checkRange(op, int(op.x)+1); err != nil {
			return err
		}
		copy(vm.memory[vm.regI:], vm.regV[:op.x+1])
		vm.regI += uint16(op.x) + 1
	case 0x65: // LD Vx, [I]
		if err := vm.checkRange(op, int(op.x)+1); err != nil {
			return err
		}
		copy(vm.regV[:op.x+1], vm.memory[vm.regI:])
		vm.regI += uint16(op.x) + 1
	default:
		return vm.unknownOpcode(op)
	}
	return nil
}

func (vm *VM) pressed(key uint8) bool {
	return key < numKeys && vm.keys[key]
}

func (vm *VM) setFlag(set bool) {
	if set {
		vm.regV[0xF] = 1
	} else {
		vm.regV[0xF] = 0
	}
}

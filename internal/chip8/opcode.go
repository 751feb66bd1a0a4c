package chip8

import (
	"github.com/retroenv/retrogolib/arch/cpu/chip8"
)

// opcode is a decoded 2-byte instruction word. The fields are the standard
// slices of the word that the instruction families select their operands
// from.
type opcode struct {
	addr uint16 // address the word was fetched from
	raw  uint16
	nnn  uint16 // lowest 12 bits
	x    uint8  // lower 4 bits of the high byte
	y    uint8  // upper 4 bits of the low byte
	kk   uint8  // low byte
	n    uint8  // low nibble
}

func decode(addr uint16, raw uint16) opcode {
	return opcode{
		addr: addr,
		raw:  raw,
		nnn:  raw & 0x0FFF,
		x:    uint8((raw >> 8) & 0x000F),
		y:    uint8((raw >> 4) & 0x000F),
		kk:   uint8(raw & 0x00FF),
		n:    uint8(raw & 0x000F),
	}
}

// mnemonic resolves an instruction word to its assembler name using the
// retrogolib opcode tables, for trace output. Unknown words resolve to an
// empty string.
func mnemonic(raw uint16) string {
	firstNibble := (raw & 0xF000) >> 12
	for _, op := range chip8.Opcodes[int(firstNibble)] {
		if op.Info.Mask&raw == op.Info.Value && op.Instruction != nil {
			return op.Instruction.Name
		}
	}
	return ""
}

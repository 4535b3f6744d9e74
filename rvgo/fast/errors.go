package fast

import "fmt"

// UnsupportedInstructionErr is returned when an opcode, or a function code within a
// supported opcode, has no handler. The run cannot continue past it.
type UnsupportedInstructionErr struct {
	PC    uint64
	Instr uint32
	Field string
	Value uint32
}

func (e *UnsupportedInstructionErr) Error() string {
	return fmt.Sprintf("unsupported %s 0x%x (instruction %08x at pc %016x)", e.Field, e.Value, e.Instr, e.PC)
}

// MemoryFaultErr is returned for a guest access outside of every mapped region,
// or for an instruction fetch from a misaligned address.
type MemoryFaultErr struct {
	Op         string
	Addr       uint64
	Size       uint64
	Misaligned bool
}

func (e *MemoryFaultErr) Error() string {
	if e.Misaligned {
		return fmt.Sprintf("misaligned %s of %d bytes at %016x", e.Op, e.Size, e.Addr)
	}
	return fmt.Sprintf("%s of %d bytes at %016x is outside guest memory", e.Op, e.Size, e.Addr)
}

package riscv

// Opcodes of the supported encoding families (bits 0-6 of the instruction word).
const (
	OpcodeRType = 0b0110011
	OpcodeIType = 0b0010011
	OpcodeBType = 0b1100011
	OpcodeLoad  = 0b0000011
	OpcodeStore = 0b0100011
	OpcodeJAL   = 0b1101111
	OpcodeJALR  = 0b1100111
)

// funct3 codes
const (
	Funct3AddSubMul = 0b000
	Funct3Sll       = 0b001
	Funct3Div       = 0b100
	Funct3Srl       = 0b101
	Funct3Rem       = 0b110
	Funct3And       = 0b111

	Funct3BEQ = 0b000
	Funct3BNE = 0b001
	Funct3BLT = 0b100
	Funct3BGE = 0b101

	Funct3Byte   = 0b000
	Funct3Word   = 0b010
	Funct3Double = 0b011
)

// funct7 codes
const (
	Funct7Base = 0b0000000
	Funct7Sub  = 0b0100000
	Funct7MulD = 0b0000001
)

// Register roles, by the standard calling convention.
const (
	RegZero = 0
	RegRA   = 1
	RegSP   = 2
	RegA0   = 10
	RegA1   = 11
	RegA2   = 12
	RegA3   = 13
)

const (
	// StopAddr is loaded into ra at init. Returning to it halts the emulation.
	// No region may map it, so it can never be fetched.
	StopAddr = uint64(0)

	// StackBase is where the guest stack region starts in the guest address space.
	StackBase = uint64(0x7fff_0000)
	// DefaultStackSize in bytes.
	DefaultStackSize = 8192

	// DefaultProgramBase is where raw program images are loaded when no base is given.
	DefaultProgramBase = uint64(0x1_0000)

	// DefaultICacheSlots is the number of direct-mapped instruction cache slots.
	DefaultICacheSlots = 256

	InstrSize = 4
)

var RegNames = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

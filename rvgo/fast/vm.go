package fast

import (
	"fmt"

	"github.com/ethereum-optimism/rvemu/rvgo/bits"
	"github.com/ethereum-optimism/rvemu/rvgo/riscv"
)

func parseOpcode(instr uint32) uint32 { return bits.GetBits(instr, 0, 7) }
func parseRd(instr uint32) uint32     { return bits.GetBits(instr, 7, 5) }
func parseFunct3(instr uint32) uint32 { return bits.GetBits(instr, 12, 3) }
func parseRs1(instr uint32) uint32    { return bits.GetBits(instr, 15, 5) }
func parseRs2(instr uint32) uint32    { return bits.GetBits(instr, 20, 5) }
func parseFunct7(instr uint32) uint32 { return bits.GetBits(instr, 25, 7) }

// 12-bit immediate of I-type and load instructions.
func parseImmTypeI(instr uint32) uint64 {
	return uint64(bits.SignExtend(uint64(bits.GetBits(instr, 20, 12)), 11))
}

func parseImmTypeS(instr uint32) uint64 {
	imm4to0 := bits.GetBits(instr, 7, 5)
	imm11to5 := bits.GetBits(instr, 25, 7)
	return uint64(bits.SignExtend(uint64(imm11to5<<5|imm4to0), 11))
}

// parseImmTypeB returns the signed branch offset. It is a multiple of 2 bytes,
// so really 13 bits with a hardcoded 0 bit.
func parseImmTypeB(instr uint32) uint64 {
	imm4to1 := bits.GetBits(instr, 8, 4)
	imm10to5 := bits.GetBits(instr, 25, 6)
	imm11 := bits.GetBit(instr, 7)
	imm12 := bits.GetBit(instr, 31)
	offset := imm12<<12 | imm11<<11 | imm10to5<<5 | imm4to1<<1
	return uint64(bits.SignExtend(uint64(offset), 12))
}

func parseImmTypeJ(instr uint32) uint64 {
	imm19to12 := bits.GetBits(instr, 12, 8)
	imm11 := bits.GetBit(instr, 20)
	imm10to1 := bits.GetBits(instr, 21, 10)
	imm20 := bits.GetBit(instr, 31)
	offset := imm20<<20 | imm19to12<<12 | imm11<<11 | imm10to1<<1
	return uint64(bits.SignExtend(uint64(offset), 20))
}

func unsupported(s *VMState, instr uint32, field string, value uint32) error {
	return &UnsupportedInstructionErr{PC: s.PC, Instr: instr, Field: field, Value: value}
}

// Division treats both registers as unsigned. A zero divisor does not trap:
// the quotient is all ones and the remainder is the dividend.
func div64(x, y uint64) uint64 {
	if y == 0 {
		return ^uint64(0)
	}
	return x / y
}

func rem64(x, y uint64) uint64 {
	if y == 0 {
		return x
	}
	return x % y
}

// register arithmetic and logic
func emuRType(s *VMState, instr uint32) error {
	rd := parseRd(instr)
	rs1 := parseRs1(instr)
	rs2 := parseRs2(instr)
	funct3 := parseFunct3(instr)
	funct7 := parseFunct7(instr)

	rs1Value := s.loadRegister(rs1)
	rs2Value := s.loadRegister(rs2)
	var rdValue uint64
	switch {
	case funct3 == riscv.Funct3AddSubMul && funct7 == riscv.Funct7Base: // ADD
		rdValue = rs1Value + rs2Value
	case funct3 == riscv.Funct3AddSubMul && funct7 == riscv.Funct7Sub: // SUB
		rdValue = rs1Value - rs2Value
	case funct3 == riscv.Funct3AddSubMul && funct7 == riscv.Funct7MulD: // MUL
		rdValue = rs1Value * rs2Value
	case funct3 == riscv.Funct3Sll && funct7 == riscv.Funct7Base: // SLL, low 6 bits of rs2 in 64 bit mode
		rdValue = rs1Value << (rs2Value & 0x3F)
	case funct3 == riscv.Funct3Div && funct7 == riscv.Funct7MulD: // DIV
		rdValue = div64(rs1Value, rs2Value)
	case funct3 == riscv.Funct3Rem && funct7 == riscv.Funct7MulD: // REM
		rdValue = rem64(rs1Value, rs2Value)
	case funct3 == riscv.Funct3Srl && funct7 == riscv.Funct7Base: // SRL: fill with zeroes
		rdValue = rs1Value >> (rs2Value & 0x3F)
	case funct3 == riscv.Funct3And && funct7 == riscv.Funct7Base: // AND
		rdValue = rs1Value & rs2Value
	default:
		return unsupported(s, instr, "R-type funct7|funct3", funct7<<3|funct3)
	}
	s.writeRegister(rd, rdValue)
	s.Analysis.IRCount += 1
	s.PC += 4
	return nil
}

// immediate arithmetic and logic
func emuIType(s *VMState, instr uint32) error {
	rd := parseRd(instr)
	rs1 := parseRs1(instr)
	shamt := bits.GetBits(instr, 20, 5)
	funct3 := parseFunct3(instr)
	funct7 := parseFunct7(instr)
	imm := parseImmTypeI(instr)

	rs1Value := s.loadRegister(rs1)
	var rdValue uint64
	switch {
	case funct3 == riscv.Funct3Srl && funct7 == riscv.Funct7Base: // SRLI
		rdValue = rs1Value >> shamt
	case funct3 == riscv.Funct3AddSubMul: // ADDI, also covers li / mv / la
		rdValue = rs1Value + imm
	case funct3 == riscv.Funct3Sll && funct7 == riscv.Funct7Base: // SLLI
		rdValue = rs1Value << shamt
	default:
		return unsupported(s, instr, "I-type funct3", funct3)
	}
	s.writeRegister(rd, rdValue)
	s.Analysis.IRCount += 1
	s.PC += 4
	return nil
}

// conditional branching, comparing the low 32 bits of both registers as signed values
func emuSBType(s *VMState, instr uint32) error {
	rs1 := parseRs1(instr)
	rs2 := parseRs2(instr)
	funct3 := parseFunct3(instr)
	offset := parseImmTypeB(instr)

	v1 := int32(uint32(s.loadRegister(rs1)))
	v2 := int32(uint32(s.loadRegister(rs2)))

	var taken bool
	switch funct3 {
	case riscv.Funct3BLT:
		taken = v1 < v2
	case riscv.Funct3BGE:
		taken = v1 >= v2
	case riscv.Funct3BEQ:
		taken = v1 == v2
	case riscv.Funct3BNE:
		taken = v1 != v2
	default:
		return unsupported(s, instr, "SB-type funct3", funct3)
	}

	if taken {
		s.Analysis.BTaken += 1
		s.PC += offset
	} else {
		s.Analysis.BNotTaken += 1
		s.PC += 4
	}
	return nil
}

// memWidth maps the load/store funct3 to an access size in bytes.
func memWidth(funct3 uint32) (uint64, bool) {
	switch funct3 {
	case riscv.Funct3Byte:
		return 1, true
	case riscv.Funct3Word:
		return 4, true
	case riscv.Funct3Double:
		return 8, true
	default:
		return 0, false
	}
}

// memory loading, zero-extended into rd
func emuLType(s *VMState, instr uint32) error {
	rd := parseRd(instr)
	rs1 := parseRs1(instr)
	funct3 := parseFunct3(instr)
	imm := parseImmTypeI(instr)

	size, ok := memWidth(funct3)
	if !ok {
		return unsupported(s, instr, "L-type funct3", funct3)
	}
	addr := s.loadRegister(rs1) + imm
	v, err := s.Memory.Load(addr, size)
	if err != nil {
		return fmt.Errorf("load at pc %016x: %w", s.PC, err)
	}
	s.writeRegister(rd, v)
	s.Analysis.LdCount += 1
	s.PC += 4
	return nil
}

// memory storing, from the low-order bytes of rs2
func emuSType(s *VMState, instr uint32) error {
	rs1 := parseRs1(instr)
	rs2 := parseRs2(instr)
	funct3 := parseFunct3(instr)
	imm := parseImmTypeS(instr)

	size, ok := memWidth(funct3)
	if !ok {
		return unsupported(s, instr, "S-type funct3", funct3)
	}
	addr := s.loadRegister(rs1) + imm
	if err := s.Memory.Store(addr, size, s.loadRegister(rs2)); err != nil {
		return fmt.Errorf("store at pc %016x: %w", s.PC, err)
	}
	s.icache.Invalidate(addr, size)
	s.Analysis.StCount += 1
	s.PC += 4
	return nil
}

// jump and link: only a call through ra links
func emuJAL(s *VMState, instr uint32) error {
	rd := parseRd(instr)
	offset := parseImmTypeJ(instr)

	if rd == riscv.RegRA {
		s.writeRegister(rd, s.PC+4)
	}
	s.Analysis.JCount += 1
	s.PC += offset
	return nil
}

// jump to the address held in rs1, as is
func emuJALR(s *VMState, instr uint32) error {
	rs1 := parseRs1(instr)

	s.Analysis.JCount += 1
	s.PC = s.loadRegister(rs1)
	return nil
}

// Step fetches, decodes and executes a single instruction.
// A returned error is fatal for the run: the state is not meaningful afterwards.
func Step(s *VMState) error {
	if s.icache == nil {
		if err := s.restoreICache(); err != nil {
			return err
		}
	}

	instr, err := s.icache.Lookup(s.PC)
	s.ICacheStats = s.icache.Stats()
	if err != nil {
		return err
	}

	opcode := parseOpcode(instr)
	switch opcode {
	case riscv.OpcodeRType: // 011_0011: two register operands
		err = emuRType(s, instr)
	case riscv.OpcodeIType: // 001_0011: register and immediate operand
		err = emuIType(s, instr)
	case riscv.OpcodeBType: // 110_0011: branching
		err = emuSBType(s, instr)
	case riscv.OpcodeLoad: // 000_0011
		err = emuLType(s, instr)
	case riscv.OpcodeStore: // 010_0011
		err = emuSType(s, instr)
	case riscv.OpcodeJAL: // 110_1111
		err = emuJAL(s, instr)
	case riscv.OpcodeJALR: // 110_0111: a variant of I-type, used as RET
		err = emuJALR(s, instr)
	default:
		err = unsupported(s, instr, "opcode", opcode)
	}
	if err != nil {
		return err
	}
	// zero is always 0
	s.Registers[riscv.RegZero] = 0
	s.Analysis.ICount += 1
	return nil
}

// Emulate steps until the program returns to the halt address, and returns a0.
func Emulate(s *VMState) (uint64, error) {
	for !s.Halted() {
		if err := Step(s); err != nil {
			return 0, err
		}
	}
	return s.Result(), nil
}

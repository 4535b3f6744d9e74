// Package asm encodes the instructions the emulator supports, and assembles
// small programs with label-resolved branches and jumps.
package asm

import "github.com/ethereum-optimism/rvemu/rvgo/riscv"

type Reg uint32

// ABI register names
const (
	Zero Reg = 0
	RA   Reg = 1
	SP   Reg = 2
	GP   Reg = 3
	TP   Reg = 4
	T0   Reg = 5
	T1   Reg = 6
	T2   Reg = 7
	S0   Reg = 8
	S1   Reg = 9
	A0   Reg = 10
	A1   Reg = 11
	A2   Reg = 12
	A3   Reg = 13
	A4   Reg = 14
	A5   Reg = 15
	T3   Reg = 28
	T4   Reg = 29
)

func (r Reg) String() string {
	return riscv.RegNames[r&31]
}

func u5(r Reg) uint32 { return uint32(r) & 0x1f }

// EncodeR encodes a register-register instruction.
func EncodeR(opcode, funct3, funct7 uint32, rd, rs1, rs2 Reg) uint32 {
	return (funct7&0x7f)<<25 | u5(rs2)<<20 | u5(rs1)<<15 | (funct3&7)<<12 | u5(rd)<<7 | opcode&0x7f
}

// EncodeI encodes a register-immediate instruction; imm keeps its low 12 bits.
func EncodeI(opcode, funct3 uint32, rd, rs1 Reg, imm int64) uint32 {
	return (uint32(imm)&0xfff)<<20 | u5(rs1)<<15 | (funct3&7)<<12 | u5(rd)<<7 | opcode&0x7f
}

// EncodeS splits the 12-bit store offset over bits 7-11 and 25-31.
func EncodeS(opcode, funct3 uint32, rs1, rs2 Reg, imm int64) uint32 {
	v := uint32(imm) & 0xfff
	return (v>>5)<<25 | u5(rs2)<<20 | u5(rs1)<<15 | (funct3&7)<<12 | (v&0x1f)<<7 | opcode&0x7f
}

// EncodeB scatters the 13-bit branch offset; bit 0 is implied zero.
func EncodeB(opcode, funct3 uint32, rs1, rs2 Reg, offset int64) uint32 {
	v := uint32(offset)
	imm12 := (v >> 12) & 1
	imm11 := (v >> 11) & 1
	imm10to5 := (v >> 5) & 0x3f
	imm4to1 := (v >> 1) & 0xf
	return imm12<<31 | imm10to5<<25 | u5(rs2)<<20 | u5(rs1)<<15 | (funct3&7)<<12 | imm4to1<<8 | imm11<<7 | opcode&0x7f
}

// EncodeJ scatters the 21-bit jump offset; bit 0 is implied zero.
func EncodeJ(opcode uint32, rd Reg, offset int64) uint32 {
	v := uint32(offset)
	imm20 := (v >> 20) & 1
	imm19to12 := (v >> 12) & 0xff
	imm11 := (v >> 11) & 1
	imm10to1 := (v >> 1) & 0x3ff
	return imm20<<31 | imm10to1<<21 | imm11<<20 | imm19to12<<12 | u5(rd)<<7 | opcode&0x7f
}

func Add(rd, rs1, rs2 Reg) uint32 {
	return EncodeR(riscv.OpcodeRType, riscv.Funct3AddSubMul, riscv.Funct7Base, rd, rs1, rs2)
}

func Sub(rd, rs1, rs2 Reg) uint32 {
	return EncodeR(riscv.OpcodeRType, riscv.Funct3AddSubMul, riscv.Funct7Sub, rd, rs1, rs2)
}

func Mul(rd, rs1, rs2 Reg) uint32 {
	return EncodeR(riscv.OpcodeRType, riscv.Funct3AddSubMul, riscv.Funct7MulD, rd, rs1, rs2)
}

func Sll(rd, rs1, rs2 Reg) uint32 {
	return EncodeR(riscv.OpcodeRType, riscv.Funct3Sll, riscv.Funct7Base, rd, rs1, rs2)
}

func Div(rd, rs1, rs2 Reg) uint32 {
	return EncodeR(riscv.OpcodeRType, riscv.Funct3Div, riscv.Funct7MulD, rd, rs1, rs2)
}

func Rem(rd, rs1, rs2 Reg) uint32 {
	return EncodeR(riscv.OpcodeRType, riscv.Funct3Rem, riscv.Funct7MulD, rd, rs1, rs2)
}

func Srl(rd, rs1, rs2 Reg) uint32 {
	return EncodeR(riscv.OpcodeRType, riscv.Funct3Srl, riscv.Funct7Base, rd, rs1, rs2)
}

func And(rd, rs1, rs2 Reg) uint32 {
	return EncodeR(riscv.OpcodeRType, riscv.Funct3And, riscv.Funct7Base, rd, rs1, rs2)
}

func Addi(rd, rs1 Reg, imm int64) uint32 {
	return EncodeI(riscv.OpcodeIType, riscv.Funct3AddSubMul, rd, rs1, imm)
}

func Slli(rd, rs1 Reg, shamt uint32) uint32 {
	return EncodeI(riscv.OpcodeIType, riscv.Funct3Sll, rd, rs1, int64(shamt&0x1f))
}

func Srli(rd, rs1 Reg, shamt uint32) uint32 {
	return EncodeI(riscv.OpcodeIType, riscv.Funct3Srl, rd, rs1, int64(shamt&0x1f))
}

func Lb(rd, rs1 Reg, imm int64) uint32 {
	return EncodeI(riscv.OpcodeLoad, riscv.Funct3Byte, rd, rs1, imm)
}

func Lw(rd, rs1 Reg, imm int64) uint32 {
	return EncodeI(riscv.OpcodeLoad, riscv.Funct3Word, rd, rs1, imm)
}

func Ld(rd, rs1 Reg, imm int64) uint32 {
	return EncodeI(riscv.OpcodeLoad, riscv.Funct3Double, rd, rs1, imm)
}

func Sb(rs2, rs1 Reg, imm int64) uint32 {
	return EncodeS(riscv.OpcodeStore, riscv.Funct3Byte, rs1, rs2, imm)
}

func Sw(rs2, rs1 Reg, imm int64) uint32 {
	return EncodeS(riscv.OpcodeStore, riscv.Funct3Word, rs1, rs2, imm)
}

func Sd(rs2, rs1 Reg, imm int64) uint32 {
	return EncodeS(riscv.OpcodeStore, riscv.Funct3Double, rs1, rs2, imm)
}

func Beq(rs1, rs2 Reg, offset int64) uint32 {
	return EncodeB(riscv.OpcodeBType, riscv.Funct3BEQ, rs1, rs2, offset)
}

func Bne(rs1, rs2 Reg, offset int64) uint32 {
	return EncodeB(riscv.OpcodeBType, riscv.Funct3BNE, rs1, rs2, offset)
}

func Blt(rs1, rs2 Reg, offset int64) uint32 {
	return EncodeB(riscv.OpcodeBType, riscv.Funct3BLT, rs1, rs2, offset)
}

func Bge(rs1, rs2 Reg, offset int64) uint32 {
	return EncodeB(riscv.OpcodeBType, riscv.Funct3BGE, rs1, rs2, offset)
}

func Jal(rd Reg, offset int64) uint32 {
	return EncodeJ(riscv.OpcodeJAL, rd, offset)
}

func Jalr(rd, rs1 Reg, imm int64) uint32 {
	return EncodeI(riscv.OpcodeJALR, 0, rd, rs1, imm)
}

// pseudo instructions

func Mv(rd, rs Reg) uint32 { return Addi(rd, rs, 0) }

func Li(rd Reg, imm int64) uint32 { return Addi(rd, Zero, imm) }

func Nop() uint32 { return Addi(Zero, Zero, 0) }

func Ret() uint32 { return Jalr(Zero, RA, 0) }

package asm

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum-optimism/rvemu/rvgo/riscv"
)

type fixup struct {
	index int
	label string
	// encode produces the final word from the pc-relative offset to the label.
	encode func(offset int64) uint32
	bits   uint
}

// Builder collects instruction words and labels. Branch and jump targets are
// referenced by label and resolved in Assemble.
type Builder struct {
	words  []uint32
	labels map[string]int
	fixups []fixup
	err    error
}

func NewBuilder() *Builder {
	return &Builder{labels: make(map[string]int)}
}

// Label marks the position of the next emitted instruction.
func (b *Builder) Label(name string) *Builder {
	if _, ok := b.labels[name]; ok && b.err == nil {
		b.err = fmt.Errorf("duplicate label %q", name)
	}
	b.labels[name] = len(b.words)
	return b
}

// Emit appends encoded instruction words.
func (b *Builder) Emit(words ...uint32) *Builder {
	b.words = append(b.words, words...)
	return b
}

func (b *Builder) branch(funct3 uint32, rs1, rs2 Reg, label string) *Builder {
	b.fixups = append(b.fixups, fixup{
		index: len(b.words),
		label: label,
		encode: func(offset int64) uint32 {
			return EncodeB(riscv.OpcodeBType, funct3, rs1, rs2, offset)
		},
		bits: 13,
	})
	b.words = append(b.words, 0)
	return b
}

func (b *Builder) Beq(rs1, rs2 Reg, label string) *Builder {
	return b.branch(riscv.Funct3BEQ, rs1, rs2, label)
}

func (b *Builder) Bne(rs1, rs2 Reg, label string) *Builder {
	return b.branch(riscv.Funct3BNE, rs1, rs2, label)
}

func (b *Builder) Blt(rs1, rs2 Reg, label string) *Builder {
	return b.branch(riscv.Funct3BLT, rs1, rs2, label)
}

func (b *Builder) Bge(rs1, rs2 Reg, label string) *Builder {
	return b.branch(riscv.Funct3BGE, rs1, rs2, label)
}

// Jal jumps to label, linking into rd. Only ra links.
func (b *Builder) Jal(rd Reg, label string) *Builder {
	b.fixups = append(b.fixups, fixup{
		index:  len(b.words),
		label:  label,
		encode: func(offset int64) uint32 { return EncodeJ(riscv.OpcodeJAL, rd, offset) },
		bits:   21,
	})
	b.words = append(b.words, 0)
	return b
}

func (b *Builder) Call(label string) *Builder { return b.Jal(RA, label) }

func (b *Builder) J(label string) *Builder { return b.Jal(Zero, label) }

// Offset returns the byte offset of a label from the start of the program.
func (b *Builder) Offset(label string) (uint64, bool) {
	i, ok := b.labels[label]
	return uint64(i) * riscv.InstrSize, ok
}

// Words resolves all label references and returns the instruction words.
func (b *Builder) Words() ([]uint32, error) {
	if b.err != nil {
		return nil, b.err
	}
	out := make([]uint32, len(b.words))
	copy(out, b.words)
	for _, f := range b.fixups {
		target, ok := b.labels[f.label]
		if !ok {
			return nil, fmt.Errorf("undefined label %q", f.label)
		}
		offset := int64(target-f.index) * riscv.InstrSize
		limit := int64(1) << (f.bits - 1)
		if offset < -limit || offset >= limit {
			return nil, fmt.Errorf("label %q is out of range: offset %d does not fit in %d bits", f.label, offset, f.bits)
		}
		out[f.index] = f.encode(offset)
	}
	return out, nil
}

// Assemble returns the little-endian machine code.
func (b *Builder) Assemble() ([]byte, error) {
	words, err := b.Words()
	if err != nil {
		return nil, err
	}
	return Bytes(words...), nil
}

// Bytes encodes instruction words little-endian.
func Bytes(words ...uint32) []byte {
	out := make([]byte, 0, len(words)*riscv.InstrSize)
	for _, w := range words {
		out = binary.LittleEndian.AppendUint32(out, w)
	}
	return out
}

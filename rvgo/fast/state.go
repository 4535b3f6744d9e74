package fast

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ethereum-optimism/rvemu/rvgo/riscv"
)

// Analysis counts executed instructions by category.
type Analysis struct {
	ICount    uint64 `json:"instructions"`
	IRCount   uint64 `json:"rOrIType"`
	LdCount   uint64 `json:"loads"`
	StCount   uint64 `json:"stores"`
	JCount    uint64 `json:"jumps"`
	BTaken    uint64 `json:"branchesTaken"`
	BNotTaken uint64 `json:"branchesNotTaken"`
}

// Branches returns the number of conditional branches evaluated.
func (a *Analysis) Branches() uint64 {
	return a.BTaken + a.BNotTaken
}

type Config struct {
	StackSize   uint64
	ICacheSlots int
}

func DefaultConfig() Config {
	return Config{
		StackSize:   riscv.DefaultStackSize,
		ICacheSlots: riscv.DefaultICacheSlots,
	}
}

type VMState struct {
	Memory *Memory `json:"memory"`

	PC uint64 `json:"pc"`

	Registers [32]uint64 `json:"registers"`

	Analysis Analysis `json:"analysis"`

	ICacheStats CacheStats `json:"icache"`
	// ICacheSlots is the configured cache size, kept so a decoded state resumes with the same cache.
	ICacheSlots int `json:"icacheSlots"`

	icache ICache
}

// NewVMState prepares a run of the code mapped in mem, starting at entry.
// The four arguments are placed in a0..a3, ra is set to the halt address,
// and a stack region is mapped with sp pointing one past its end.
func NewVMState(mem *Memory, entry uint64, a0, a1, a2, a3 uint64, cfg Config) (*VMState, error) {
	if entry == riscv.StopAddr {
		return nil, errors.New("entry point is the halt address")
	}
	if entry%riscv.InstrSize != 0 {
		return nil, fmt.Errorf("entry point %016x is not aligned to %d bytes", entry, riscv.InstrSize)
	}
	if cfg.StackSize == 0 || cfg.StackSize%8 != 0 {
		return nil, fmt.Errorf("stack size must be a non-zero multiple of 8, got %d", cfg.StackSize)
	}
	icache, err := NewICache(mem, cfg.ICacheSlots)
	if err != nil {
		return nil, err
	}
	stack, err := mem.AddRegion("stack", riscv.StackBase, make([]byte, cfg.StackSize))
	if err != nil {
		return nil, fmt.Errorf("failed to map stack: %w", err)
	}

	s := &VMState{
		Memory:      mem,
		PC:          entry,
		ICacheSlots: cfg.ICacheSlots,
		icache:      icache,
	}
	s.Registers[riscv.RegA0] = a0
	s.Registers[riscv.RegA1] = a1
	s.Registers[riscv.RegA2] = a2
	s.Registers[riscv.RegA3] = a3

	s.Registers[riscv.RegZero] = 0
	s.Registers[riscv.RegRA] = riscv.StopAddr
	s.Registers[riscv.RegSP] = stack.End()

	s.icache.Reset()
	return s, nil
}

// Halted reports whether the program returned to the halt address.
func (s *VMState) Halted() bool {
	return s.PC == riscv.StopAddr
}

// Result is the value of a0, the return value register.
func (s *VMState) Result() uint64 {
	return s.Registers[riscv.RegA0]
}

func (s *VMState) ICache() ICache {
	return s.icache
}

// restoreICache rebuilds the instruction cache of a decoded state. The cache
// starts cold, and its statistics continue from the decoded ones.
func (s *VMState) restoreICache() error {
	icache, err := NewICache(s.Memory, s.ICacheSlots)
	if err != nil {
		return fmt.Errorf("failed to restore icache: %w", err)
	}
	if c, ok := icache.(*DirectMappedCache); ok {
		c.stats = s.ICacheStats
	}
	s.icache = icache
	return nil
}

// Instr returns the instruction word at the current pc, bypassing the cache.
func (s *VMState) Instr() uint32 {
	v, err := s.Memory.Load(s.PC, riscv.InstrSize)
	if err != nil {
		return 0
	}
	return uint32(v)
}

func (s *VMState) loadRegister(reg uint32) uint64 {
	return s.Registers[reg]
}

func (s *VMState) writeRegister(reg uint32, v uint64) {
	if reg == riscv.RegZero {
		return
	}
	s.Registers[reg] = v
}

// StateWitness is the binary encoding of a VM state, see EncodeWitness.
type StateWitness []byte

const witnessHeaderSize = 8 + 32*8 + 7*8 + 8

// EncodeWitness encodes the pc, registers, analysis counters and a digest of every memory region.
func (s *VMState) EncodeWitness() StateWitness {
	out := make([]byte, 0, witnessHeaderSize)
	out = binary.BigEndian.AppendUint64(out, s.PC)
	for _, r := range s.Registers {
		out = binary.BigEndian.AppendUint64(out, r)
	}
	a := &s.Analysis
	for _, c := range []uint64{a.ICount, a.IRCount, a.LdCount, a.StCount, a.JCount, a.BTaken, a.BNotTaken} {
		out = binary.BigEndian.AppendUint64(out, c)
	}
	regions := s.Memory.Regions()
	out = binary.BigEndian.AppendUint64(out, uint64(len(regions)))
	for _, r := range regions {
		out = binary.BigEndian.AppendUint64(out, r.Base)
		out = binary.BigEndian.AppendUint64(out, uint64(len(r.Data)))
		h := crypto.Keccak256Hash(r.Data)
		out = append(out, h[:]...)
	}
	return out
}

// StateHash is the keccak256 hash of the witness.
func (sw StateWitness) StateHash() (common.Hash, error) {
	if len(sw) < witnessHeaderSize {
		return common.Hash{}, fmt.Errorf("invalid state witness length %d, expected at least %d", len(sw), witnessHeaderSize)
	}
	regions := binary.BigEndian.Uint64(sw[witnessHeaderSize-8 : witnessHeaderSize])
	if want := uint64(witnessHeaderSize) + regions*(8+8+32); uint64(len(sw)) != want {
		return common.Hash{}, fmt.Errorf("invalid state witness length %d for %d regions, expected %d", len(sw), regions, want)
	}
	return crypto.Keccak256Hash(sw), nil
}

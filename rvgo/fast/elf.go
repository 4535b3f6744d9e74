package fast

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ethereum-optimism/rvemu/rvgo/riscv"
)

// MaxProgramSize bounds the program region built from an ELF file.
const MaxProgramSize = 64 << 20

// Program is a flat guest image: code and data mapped contiguously at Base.
type Program struct {
	Name    string            `json:"name"`
	Base    uint64            `json:"base"`
	Entry   uint64            `json:"entry"`
	Code    hexutil.Bytes     `json:"code"`
	Symbols map[string]uint64 `json:"symbols,omitempty"`
}

// LoadRaw wraps a flat binary mapped at base, with the entry point at base.
func LoadRaw(name string, data []byte, base uint64) *Program {
	code := make([]byte, len(data))
	copy(code, data)
	return &Program{Name: name, Base: base, Entry: base, Code: code}
}

// Memory maps a copy of the program image into a fresh guest memory.
func (p *Program) Memory() (*Memory, error) {
	mem := NewMemory()
	code := make([]byte, len(p.Code))
	copy(code, p.Code)
	if _, err := mem.AddRegion("program", p.Base, code); err != nil {
		return nil, err
	}
	return mem, nil
}

// EntryFor resolves the entry point: the named symbol, or the program entry if name is empty.
func (p *Program) EntryFor(name string) (uint64, error) {
	if name == "" {
		return p.Entry, nil
	}
	addr, ok := p.Symbols[name]
	if !ok {
		return 0, fmt.Errorf("symbol %q not found in program %q", name, p.Name)
	}
	return addr, nil
}

// SortedSymbols returns the program symbols ordered by address.
func (p *Program) SortedSymbols() SortedSymbols {
	out := make(SortedSymbols, 0, len(p.Symbols))
	for name, addr := range p.Symbols {
		out = append(out, elf.Symbol{Name: name, Value: addr})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value == out[j].Value {
			return out[i].Name < out[j].Name
		}
		return out[i].Value < out[j].Value
	})
	// without sizes, each symbol extends to the next one
	end := p.Base + uint64(len(p.Code))
	for i := range out {
		if i+1 < len(out) {
			out[i].Size = out[i+1].Value - out[i].Value
		} else if out[i].Value < end {
			out[i].Size = end - out[i].Value
		}
	}
	return out
}

// LoadELF flattens the PT_LOAD segments of a RISC-V ELF file into a single program image.
func LoadELF(name string, f *elf.File) (*Program, error) {
	if f.Machine != elf.EM_RISCV {
		return nil, fmt.Errorf("ELF is not RISC-V, but got %q", f.Machine.String())
	}
	var loads []*elf.Prog
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Memsz == 0 {
			// RISC-V reuses the MIPS_ABIFLAGS program type for `.riscv.attributes`,
			// which has no memory size and is not loaded.
			continue
		}
		loads = append(loads, prog)
	}
	if len(loads) == 0 {
		return nil, errors.New("ELF has no loadable segments")
	}

	base, end := ^uint64(0), uint64(0)
	for i, prog := range loads {
		if prog.Filesz > prog.Memsz {
			return nil, fmt.Errorf("invalid PT_LOAD program segment %d, file size (%d) > mem size (%d)", i, prog.Filesz, prog.Memsz)
		}
		if prog.Vaddr < base {
			base = prog.Vaddr
		}
		if e := prog.Vaddr + prog.Memsz; e > end {
			end = e
		}
	}
	if end-base > MaxProgramSize {
		return nil, fmt.Errorf("ELF segments span %d bytes, more than the maximum of %d", end-base, MaxProgramSize)
	}
	base = base &^ (riscv.InstrSize - 1)

	code := make([]byte, end-base)
	for i, prog := range loads {
		// memory past the file size is left zeroed
		off := prog.Vaddr - base
		r := io.NewSectionReader(prog, 0, int64(prog.Filesz))
		if _, err := io.ReadFull(r, code[off:off+prog.Filesz]); err != nil {
			return nil, fmt.Errorf("failed to read program segment %d: %w", i, err)
		}
	}

	out := &Program{
		Name:    name,
		Base:    base,
		Entry:   f.Entry,
		Code:    code,
		Symbols: make(map[string]uint64),
	}
	symbols, err := f.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, fmt.Errorf("failed to read symbols data: %w", err)
	}
	for _, s := range symbols {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC || s.Name == "" {
			continue
		}
		out.Symbols[s.Name] = s.Value
	}
	return out, nil
}

type SortedSymbols []elf.Symbol

// FindSymbol finds the symbol that intersects with the given addr, or a placeholder if none exists
func (s SortedSymbols) FindSymbol(addr uint64) elf.Symbol {
	// find first symbol with higher start. Or n if no such symbol exists
	i := sort.Search(len(s), func(i int) bool {
		return s[i].Value > addr
	})
	if i == 0 {
		return elf.Symbol{Name: "!start", Value: 0}
	}
	out := &s[i-1]
	if out.Value+out.Size <= addr { // addr may be pointing to a gap between symbols
		return elf.Symbol{Name: "!gap", Value: addr}
	}
	return *out
}

// LookupSymbol returns the name of the symbol containing addr.
func (s SortedSymbols) LookupSymbol(addr uint64) string {
	return s.FindSymbol(addr).Name
}

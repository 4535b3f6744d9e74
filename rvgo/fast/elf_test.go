package fast

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/rvemu/rvgo/asm"
)

type testSegment struct {
	vaddr uint64
	data  []byte
	memsz uint64
}

// buildELF writes a minimal little-endian ELF64 executable with one PT_LOAD per segment,
// and no section headers.
func buildELF(t *testing.T, machine elf.Machine, entry uint64, segments ...testSegment) *elf.File {
	const headerSize, progSize = 64, 56
	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var buf bytes.Buffer
	hdr := elf.Header64{
		Ident:     ident,
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(machine),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     entry,
		Phoff:     headerSize,
		Ehsize:    headerSize,
		Phentsize: progSize,
		Phnum:     uint16(len(segments)),
	}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &hdr))

	off := uint64(headerSize + progSize*len(segments))
	for _, seg := range segments {
		prog := elf.Prog64{
			Type:   uint32(elf.PT_LOAD),
			Flags:  uint32(elf.PF_R | elf.PF_X),
			Off:    off,
			Vaddr:  seg.vaddr,
			Paddr:  seg.vaddr,
			Filesz: uint64(len(seg.data)),
			Memsz:  seg.memsz,
			Align:  4,
		}
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, &prog))
		off += uint64(len(seg.data))
	}
	for _, seg := range segments {
		buf.Write(seg.data)
	}
	f, err := elf.NewFile(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	return f
}

func TestLoadELF(t *testing.T) {
	text := asm.Bytes(asm.Addi(asm.A0, asm.A0, 1), asm.Ret())
	data := []byte{1, 2, 3, 4}
	f := buildELF(t, elf.EM_RISCV, 0x10004,
		testSegment{vaddr: 0x10000, data: append(make([]byte, 4), text...), memsz: 12},
		testSegment{vaddr: 0x10010, data: data, memsz: 16},
	)

	p, err := LoadELF("test.elf", f)
	require.NoError(t, err)
	require.Equal(t, uint64(0x10000), p.Base)
	require.Equal(t, uint64(0x10004), p.Entry)
	require.Len(t, p.Code, 0x20)
	require.Equal(t, text, []byte(p.Code[4:12]))
	require.Equal(t, data, []byte(p.Code[0x10:0x14]))
	require.Equal(t, make([]byte, 12), []byte(p.Code[0x14:]), "bss is zeroed")
	require.Empty(t, p.Symbols)

	mem, err := p.Memory()
	require.NoError(t, err)
	s, err := NewVMState(mem, p.Entry, 41, 0, 0, 0, DefaultConfig())
	require.NoError(t, err)
	result, err := Emulate(s)
	require.NoError(t, err)
	require.Equal(t, uint64(42), result)
}

func TestLoadELFErrors(t *testing.T) {
	code := asm.Bytes(asm.Ret())

	f := buildELF(t, elf.EM_X86_64, 0x10000, testSegment{vaddr: 0x10000, data: code, memsz: 4})
	_, err := LoadELF("x86.elf", f)
	require.ErrorContains(t, err, "not RISC-V")

	f = buildELF(t, elf.EM_RISCV, 0x10000)
	_, err = LoadELF("empty.elf", f)
	require.ErrorContains(t, err, "no loadable segments")

	f = buildELF(t, elf.EM_RISCV, 0x10000, testSegment{vaddr: 0x10000, data: code, memsz: 2})
	_, err = LoadELF("short.elf", f)
	require.ErrorContains(t, err, "file size")

	f = buildELF(t, elf.EM_RISCV, 0x10000,
		testSegment{vaddr: 0x10000, data: code, memsz: 4},
		testSegment{vaddr: 0x10000 + 2*MaxProgramSize, data: code, memsz: 4},
	)
	_, err = LoadELF("sparse.elf", f)
	require.ErrorContains(t, err, "maximum")
}

func TestProgram(t *testing.T) {
	p := LoadRaw("raw", make([]byte, 0x40), 0x1000)
	p.Symbols = map[string]uint64{
		"main":   0x1000,
		"helper": 0x1020,
		"tail":   0x1030,
	}

	entry, err := p.EntryFor("")
	require.NoError(t, err)
	require.Equal(t, uint64(0x1000), entry)
	entry, err = p.EntryFor("helper")
	require.NoError(t, err)
	require.Equal(t, uint64(0x1020), entry)
	_, err = p.EntryFor("missing")
	require.ErrorContains(t, err, "not found")

	syms := p.SortedSymbols()
	require.Len(t, syms, 3)
	require.Equal(t, "main", syms[0].Name)
	require.Equal(t, uint64(0x20), syms[0].Size)
	require.Equal(t, uint64(0x10), syms[2].Size, "last symbol runs to the end of the image")

	require.Equal(t, "!start", syms.LookupSymbol(0x0ffc))
	require.Equal(t, "main", syms.LookupSymbol(0x1000))
	require.Equal(t, "main", syms.LookupSymbol(0x101c))
	require.Equal(t, "helper", syms.LookupSymbol(0x1024))
	require.Equal(t, "tail", syms.LookupSymbol(0x103c))
	require.Equal(t, "!gap", syms.LookupSymbol(0x1040))

	// the memory holds a copy of the code
	mem, err := p.Memory()
	require.NoError(t, err)
	require.NoError(t, mem.Store(0x1000, 4, 0xffff_ffff))
	require.Equal(t, byte(0), p.Code[0])
}

package fast

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ethereum-optimism/rvemu/rvgo/riscv"
)

// Region is a contiguous, owned range of guest memory.
type Region struct {
	Name string        `json:"name"`
	Base uint64        `json:"base"`
	Data hexutil.Bytes `json:"data"`
}

// End returns the first address past the region.
func (r *Region) End() uint64 {
	return r.Base + uint64(len(r.Data))
}

// offset translates [addr, addr+size) into an offset into the region data,
// or reports false if any byte of the range falls outside the region.
func (r *Region) offset(addr uint64, size uint64) (uint64, bool) {
	if addr < r.Base {
		return 0, false
	}
	off := addr - r.Base
	n := uint64(len(r.Data))
	if off >= n || size > n-off {
		return 0, false
	}
	return off, true
}

// Memory is the bounded guest address space: a set of non-overlapping regions.
// Addresses outside every region are unmapped and fault on access.
type Memory struct {
	regions []*Region

	// two caches: instruction fetches hit one region, stack and data accesses another.
	// this avoids scanning the region list on every access.
	lastRegion [2]*Region
}

func NewMemory() *Memory {
	return &Memory{}
}

// AddRegion maps size bytes of data at base. The data slice is owned by the memory afterwards.
func (m *Memory) AddRegion(name string, base uint64, data []byte) (*Region, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("region %q is empty", name)
	}
	end := base + uint64(len(data))
	if end < base {
		return nil, fmt.Errorf("region %q at %016x wraps around the address space", name, base)
	}
	if base <= riscv.StopAddr && riscv.StopAddr < end {
		return nil, fmt.Errorf("region %q [%016x, %016x) maps the halt address %016x", name, base, end, riscv.StopAddr)
	}
	for _, r := range m.regions {
		if base < r.End() && r.Base < end {
			return nil, fmt.Errorf("region %q [%016x, %016x) overlaps region %q [%016x, %016x)",
				name, base, end, r.Name, r.Base, r.End())
		}
	}
	r := &Region{Name: name, Base: base, Data: data}
	m.regions = append(m.regions, r)
	sort.Slice(m.regions, func(i, j int) bool {
		return m.regions[i].Base < m.regions[j].Base
	})
	return r, nil
}

// Region returns the region with the given name, or nil.
func (m *Memory) Region(name string) *Region {
	for _, r := range m.regions {
		if r.Name == name {
			return r
		}
	}
	return nil
}

func (m *Memory) Regions() []*Region {
	return m.regions
}

func (m *Memory) regionLookup(addr uint64, size uint64) (*Region, uint64, bool) {
	// hit caches
	for _, r := range m.lastRegion {
		if r == nil {
			continue
		}
		if off, ok := r.offset(addr, size); ok {
			return r, off, true
		}
	}
	for _, r := range m.regions {
		if off, ok := r.offset(addr, size); ok {
			if r != m.lastRegion[0] {
				m.lastRegion[1] = m.lastRegion[0]
				m.lastRegion[0] = r
			}
			return r, off, true
		}
	}
	return nil, 0, false
}

// Load reads a little-endian value of size 1, 2, 4 or 8 bytes, zero-extended to 64 bits.
func (m *Memory) Load(addr uint64, size uint64) (uint64, error) {
	r, off, ok := m.regionLookup(addr, size)
	if !ok {
		return 0, &MemoryFaultErr{Op: "load", Addr: addr, Size: size}
	}
	b := r.Data[off : off+size]
	switch size {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	case 8:
		return binary.LittleEndian.Uint64(b), nil
	default:
		return 0, fmt.Errorf("unsupported load size: %d", size)
	}
}

// Store writes the low size bytes of value, little-endian.
func (m *Memory) Store(addr uint64, size uint64, value uint64) error {
	r, off, ok := m.regionLookup(addr, size)
	if !ok {
		return &MemoryFaultErr{Op: "store", Addr: addr, Size: size}
	}
	b := r.Data[off : off+size]
	switch size {
	case 1:
		b[0] = byte(value)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(value))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(value))
	case 8:
		binary.LittleEndian.PutUint64(b, value)
	default:
		return fmt.Errorf("unsupported store size: %d", size)
	}
	return nil
}

// Usage reports the total mapped size in human-readable units.
func (m *Memory) Usage() string {
	total := uint64(0)
	for _, r := range m.regions {
		total += uint64(len(r.Data))
	}
	const unit = 1024
	if total < unit {
		return fmt.Sprintf("%d B", total)
	}
	div, exp := uint64(unit), 0
	for n := total / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	// KiB, MiB, GiB, TiB, ...
	return fmt.Sprintf("%.1f %ciB", float64(total)/float64(div), "KMGTPE"[exp])
}

func (m *Memory) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.regions)
}

func (m *Memory) UnmarshalJSON(data []byte) error {
	var regions []*Region
	if err := json.Unmarshal(data, &regions); err != nil {
		return err
	}
	m.regions = nil
	m.lastRegion = [2]*Region{nil, nil}
	for i, r := range regions {
		if _, err := m.AddRegion(r.Name, r.Base, r.Data); err != nil {
			return fmt.Errorf("cannot load region entry %d: %w", i, err)
		}
	}
	return nil
}

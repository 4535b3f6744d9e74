package fast

import (
	"fmt"

	"github.com/ethereum-optimism/rvemu/rvgo/riscv"
)

// ICache maps a program counter to the instruction word stored there,
// filling from guest memory on a miss.
type ICache interface {
	Lookup(addr uint64) (uint32, error)
	// Invalidate drops cached words overlapping a store of size bytes at addr.
	Invalidate(addr uint64, size uint64)
	// Reset drops all cached words and statistics.
	Reset()
	Stats() CacheStats
}

type CacheStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

func (s CacheStats) Lookups() uint64 {
	return s.Hits + s.Misses
}

// NewICache creates an instruction cache over mem with the given number of slots.
// Zero slots disables caching: every lookup reads memory.
func NewICache(mem *Memory, slots int) (ICache, error) {
	if slots == 0 {
		return &uncachedFetch{mem: mem}, nil
	}
	if slots < 0 || slots&(slots-1) != 0 {
		return nil, fmt.Errorf("icache slot count must be a power of two, got %d", slots)
	}
	c := &DirectMappedCache{
		mem:   mem,
		tags:  make([]uint64, slots),
		words: make([]uint32, slots),
		valid: make([]bool, slots),
		mask:  uint64(slots - 1),
	}
	return c, nil
}

func fetchWord(mem *Memory, addr uint64) (uint32, error) {
	if addr%riscv.InstrSize != 0 {
		return 0, &MemoryFaultErr{Op: "fetch", Addr: addr, Size: riscv.InstrSize, Misaligned: true}
	}
	v, err := mem.Load(addr, riscv.InstrSize)
	if err != nil {
		return 0, &MemoryFaultErr{Op: "fetch", Addr: addr, Size: riscv.InstrSize}
	}
	return uint32(v), nil
}

// DirectMappedCache keeps one instruction word per slot, indexed by word address.
type DirectMappedCache struct {
	mem *Memory

	tags  []uint64
	words []uint32
	valid []bool
	mask  uint64

	stats CacheStats
}

func (c *DirectMappedCache) Lookup(addr uint64) (uint32, error) {
	wordAddr := addr / riscv.InstrSize
	slot := wordAddr & c.mask
	if c.valid[slot] && c.tags[slot] == wordAddr && addr%riscv.InstrSize == 0 {
		c.stats.Hits += 1
		return c.words[slot], nil
	}
	w, err := fetchWord(c.mem, addr)
	if err != nil {
		return 0, err
	}
	c.stats.Misses += 1
	c.tags[slot] = wordAddr
	c.words[slot] = w
	c.valid[slot] = true
	return w, nil
}

func (c *DirectMappedCache) Invalidate(addr uint64, size uint64) {
	if size == 0 {
		return
	}
	last := (addr + size - 1) / riscv.InstrSize
	for w := addr / riscv.InstrSize; w <= last; w++ {
		slot := w & c.mask
		if c.valid[slot] && c.tags[slot] == w {
			c.valid[slot] = false
		}
	}
}

func (c *DirectMappedCache) Reset() {
	for i := range c.valid {
		c.valid[i] = false
	}
	c.stats = CacheStats{}
}

func (c *DirectMappedCache) Stats() CacheStats {
	return c.stats
}

// Slots returns the number of cache slots.
func (c *DirectMappedCache) Slots() int {
	return len(c.valid)
}

type uncachedFetch struct {
	mem *Memory
}

func (c *uncachedFetch) Lookup(addr uint64) (uint32, error) {
	return fetchWord(c.mem, addr)
}

func (c *uncachedFetch) Invalidate(addr uint64, size uint64) {}

func (c *uncachedFetch) Reset() {}

func (c *uncachedFetch) Stats() CacheStats {
	return CacheStats{}
}

// Package programs holds guest programs assembled from the supported
// instruction subset, each with a Go reference of what it computes.
package programs

import (
	"fmt"
	"math/bits"
	"sort"

	"github.com/ethereum-optimism/rvemu/rvgo/asm"
	"github.com/ethereum-optimism/rvemu/rvgo/fast"
	"github.com/ethereum-optimism/rvemu/rvgo/riscv"
)

type Builtin struct {
	Name        string
	Description string
	Args        []string
	build       func(b *asm.Builder)

	// Reference computes the expected a0 for the given arguments.
	Reference func(args [4]uint64) uint64
}

// Program assembles the builtin at riscv.DefaultProgramBase.
func (bi *Builtin) Program() (*fast.Program, error) {
	b := asm.NewBuilder().Label(bi.Name)
	bi.build(b)
	code, err := b.Assemble()
	if err != nil {
		return nil, fmt.Errorf("failed to assemble %q: %w", bi.Name, err)
	}
	p := fast.LoadRaw(bi.Name, code, riscv.DefaultProgramBase)
	p.Symbols = map[string]uint64{bi.Name: riscv.DefaultProgramBase}
	return p, nil
}

// signed 32 bit comparison, as conditional branches do
func lt32(x, y uint64) bool {
	return int32(uint32(x)) < int32(uint32(y))
}

var builtins = []*Builtin{
	{
		Name:        "quadratic",
		Description: "a*x*x + b*x + c",
		Args:        []string{"x", "a", "b", "c"},
		build: func(b *asm.Builder) {
			b.Emit(
				asm.Mul(asm.T0, asm.A0, asm.A0),
				asm.Mul(asm.T0, asm.T0, asm.A1),
				asm.Mul(asm.T1, asm.A0, asm.A2),
				asm.Add(asm.T0, asm.T0, asm.T1),
				asm.Add(asm.A0, asm.T0, asm.A3),
				asm.Ret(),
			)
		},
		Reference: func(a [4]uint64) uint64 {
			return a[1]*a[0]*a[0] + a[2]*a[0] + a[3]
		},
	},
	{
		Name:        "midpoint",
		Description: "start + (end - start) / 2",
		Args:        []string{"start", "end"},
		build: func(b *asm.Builder) {
			b.Emit(
				asm.Sub(asm.T0, asm.A1, asm.A0),
				asm.Srli(asm.T0, asm.T0, 1),
				asm.Add(asm.A0, asm.A0, asm.T0),
				asm.Ret(),
			)
		},
		Reference: func(a [4]uint64) uint64 {
			return a[0] + (a[1]-a[0])>>1
		},
	},
	{
		Name:        "max3",
		Description: "largest of three values, compared as signed 32 bit",
		Args:        []string{"a", "b", "c"},
		build: func(b *asm.Builder) {
			b.Emit(asm.Mv(asm.T0, asm.A0)).
				Bge(asm.T0, asm.A1, "check_c").
				Emit(asm.Mv(asm.T0, asm.A1)).
				Label("check_c").
				Bge(asm.T0, asm.A2, "done").
				Emit(asm.Mv(asm.T0, asm.A2)).
				Label("done").
				Emit(asm.Mv(asm.A0, asm.T0), asm.Ret())
		},
		Reference: func(a [4]uint64) uint64 {
			m := a[0]
			if lt32(m, a[1]) {
				m = a[1]
			}
			if lt32(m, a[2]) {
				m = a[2]
			}
			return m
		},
	},
	{
		Name:        "get_bitseq",
		Description: "bits start..end (inclusive) of n",
		Args:        []string{"n", "start", "end"},
		build: func(b *asm.Builder) {
			b.Emit(
				asm.Srl(asm.T0, asm.A0, asm.A1),
				asm.Sub(asm.T1, asm.A2, asm.A1),
				asm.Addi(asm.T1, asm.T1, 1),
				asm.Li(asm.T2, 1),
				asm.Sll(asm.T2, asm.T2, asm.T1),
				asm.Addi(asm.T2, asm.T2, -1),
				asm.And(asm.A0, asm.T0, asm.T2),
				asm.Ret(),
			)
		},
		Reference: func(a [4]uint64) uint64 {
			n, start, end := a[0], a[1], a[2]
			width := end - start + 1
			mask := (uint64(1) << (width & 0x3f)) - 1
			return (n >> (start & 0x3f)) & mask
		},
	},
	{
		Name:        "fib_rec",
		Description: "n-th Fibonacci number, recursively",
		Args:        []string{"n"},
		build: func(b *asm.Builder) {
			b.Emit(asm.Li(asm.T0, 1)).
				Bge(asm.T0, asm.A0, "base").
				Emit(
					asm.Addi(asm.SP, asm.SP, -24),
					asm.Sd(asm.RA, asm.SP, 0),
					asm.Sd(asm.A0, asm.SP, 8),
					asm.Addi(asm.A0, asm.A0, -1),
				).
				Call("fib_rec").
				Emit(
					asm.Sd(asm.A0, asm.SP, 16),
					asm.Ld(asm.A0, asm.SP, 8),
					asm.Addi(asm.A0, asm.A0, -2),
				).
				Call("fib_rec").
				Emit(
					asm.Ld(asm.T1, asm.SP, 16),
					asm.Add(asm.A0, asm.A0, asm.T1),
					asm.Ld(asm.RA, asm.SP, 0),
					asm.Addi(asm.SP, asm.SP, 24),
				).
				Label("base").
				Emit(asm.Ret())
		},
		Reference: func(a [4]uint64) uint64 {
			var fib func(n uint64) uint64
			fib = func(n uint64) uint64 {
				if !lt32(1, n) {
					return n
				}
				return fib(n-1) + fib(n-2)
			}
			return fib(a[0])
		},
	},
	{
		Name:        "sum_to",
		Description: "1 + 2 + ... + n",
		Args:        []string{"n"},
		build: func(b *asm.Builder) {
			b.Emit(
				asm.Li(asm.T0, 0),
				asm.Li(asm.T1, 1),
			).
				Label("loop").
				Blt(asm.A0, asm.T1, "done").
				Emit(
					asm.Add(asm.T0, asm.T0, asm.T1),
					asm.Addi(asm.T1, asm.T1, 1),
				).
				J("loop").
				Label("done").
				Emit(asm.Mv(asm.A0, asm.T0), asm.Ret())
		},
		Reference: func(a [4]uint64) uint64 {
			sum := uint64(0)
			for i := uint64(1); !lt32(a[0], i); i++ {
				sum += i
			}
			return sum
		},
	},
	{
		Name:        "swap_bytes",
		Description: "reverses the byte order of the low 32 bits, through the stack",
		Args:        []string{"x"},
		build: func(b *asm.Builder) {
			b.Emit(
				asm.Addi(asm.SP, asm.SP, -16),
				asm.Sw(asm.A0, asm.SP, 0),
				asm.Lb(asm.T0, asm.SP, 0),
				asm.Lb(asm.T1, asm.SP, 1),
				asm.Lb(asm.T2, asm.SP, 2),
				asm.Lb(asm.T3, asm.SP, 3),
				asm.Sb(asm.T0, asm.SP, 11),
				asm.Sb(asm.T1, asm.SP, 10),
				asm.Sb(asm.T2, asm.SP, 9),
				asm.Sb(asm.T3, asm.SP, 8),
				asm.Lw(asm.A0, asm.SP, 8),
				asm.Addi(asm.SP, asm.SP, 16),
				asm.Ret(),
			)
		},
		Reference: func(a [4]uint64) uint64 {
			return uint64(bits.ReverseBytes32(uint32(a[0])))
		},
	},
	{
		Name:        "div_rem",
		Description: "(a / b) * 1000 + a % b, unsigned",
		Args:        []string{"a", "b"},
		build: func(b *asm.Builder) {
			b.Emit(
				asm.Div(asm.T0, asm.A0, asm.A1),
				asm.Rem(asm.T1, asm.A0, asm.A1),
				asm.Li(asm.T2, 1000),
				asm.Mul(asm.T0, asm.T0, asm.T2),
				asm.Add(asm.A0, asm.T0, asm.T1),
				asm.Ret(),
			)
		},
		Reference: func(a [4]uint64) uint64 {
			x, y := a[0], a[1]
			q, r := ^uint64(0), x
			if y != 0 {
				q, r = x/y, x%y
			}
			return q*1000 + r
		},
	},
}

// Lookup returns the builtin with the given name.
func Lookup(name string) (*Builtin, bool) {
	for _, bi := range builtins {
		if bi.Name == name {
			return bi, true
		}
	}
	return nil, false
}

// All returns every builtin, ordered by name.
func All() []*Builtin {
	out := make([]*Builtin, len(builtins))
	copy(out, builtins)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

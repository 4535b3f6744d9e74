package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	cannon "github.com/ethereum-optimism/optimism/cannon/cmd"
	"github.com/ethereum-optimism/optimism/cannon/mipsevm"

	"github.com/ethereum-optimism/rvemu/rvgo/fast"
	"github.com/ethereum-optimism/rvemu/rvgo/riscv"
)

const envPrefix = "RVEMU_"

func prefixEnvVars(name string) []string {
	return []string{envPrefix + name}
}

// StepMatcher reports whether the VM is at a step of interest.
type StepMatcher func(st *fast.VMState) bool

// stepMatcher adapts a cannon step pattern flag ("never", "always", "=N", "%N")
// to the instruction count of the VM.
func stepMatcher(ctx *cli.Context, flag *cli.GenericFlag) StepMatcher {
	m := ctx.Generic(flag.Name).(*cannon.StepMatcherFlag).Matcher()
	at := new(mipsevm.State)
	return func(st *fast.VMState) bool {
		at.Step = st.Analysis.ICount
		return m(at)
	}
}

var (
	RunELFFlag = &cli.PathFlag{
		Name:      "elf",
		Usage:     "RISC-V ELF executable to run",
		TakesFile: true,
	}
	RunRawFlag = &cli.PathFlag{
		Name:      "raw",
		Usage:     "flat binary to run, mapped at --base with the entry point at its first instruction",
		TakesFile: true,
	}
	RunRawBaseFlag = &cli.Uint64Flag{
		Name:  "base",
		Usage: "address to map a --raw binary at",
		Value: riscv.DefaultProgramBase,
	}
	RunProgramFlag = &cli.PathFlag{
		Name:      "program",
		Usage:     "JSON program image, as written by load-elf. Can be gzipped",
		TakesFile: true,
	}
	RunBuiltinFlag = &cli.StringFlag{
		Name:  "builtin",
		Usage: "name of a builtin program, see the programs command",
	}
	RunFuncFlag = &cli.StringFlag{
		Name:  "func",
		Usage: "symbol to start execution at, instead of the program entry point",
	}
	RunArgsFlag = &cli.StringSliceFlag{
		Name:  "args",
		Usage: "up to four integer arguments, passed in a0..a3",
	}
	RunStackSizeFlag = &cli.Uint64Flag{
		Name:    "stack-size",
		Usage:   "size of the guest stack in bytes",
		EnvVars: prefixEnvVars("STACK_SIZE"),
		Value:   riscv.DefaultStackSize,
	}
	RunICacheSlotsFlag = &cli.IntFlag{
		Name:    "icache-slots",
		Usage:   "number of instruction cache slots, a power of two. 0 disables the cache",
		EnvVars: prefixEnvVars("ICACHE_SLOTS"),
		Value:   riscv.DefaultICacheSlots,
	}
	RunOutputFlag = &cli.PathFlag{
		Name:      "output",
		Usage:     "path of the final state JSON. Use - for stdout, a .gz suffix to compress",
		TakesFile: true,
	}
	RunTraceFlag = &cli.BoolFlag{
		Name:    "trace",
		Usage:   "log every executed instruction at debug level",
		EnvVars: prefixEnvVars("TRACE"),
	}
	RunAnalysisFlag = &cli.BoolFlag{
		Name:  "analysis",
		Usage: "print the instruction analysis report after the run",
		Value: true,
	}

	LoadELFPathFlag = &cli.PathFlag{
		Name:      "path",
		Usage:     "path to a RISC-V ELF file",
		TakesFile: true,
		Required:  true,
	}
	LoadELFOutFlag = &cli.PathFlag{
		Name:  "out",
		Usage: "output path of the JSON program image. Use - for stdout, a .gz suffix to compress",
		Value: "program.json",
	}

	WitnessInputFlag = &cli.PathFlag{
		Name:      "input",
		Usage:     "path of the input state JSON, as written by run --output",
		TakesFile: true,
		Required:  true,
	}
	WitnessOutputFlag = &cli.PathFlag{
		Name:  "output",
		Usage: "path to write the witness and state hash to. Leave empty to only print the hash",
	}
)

// parseArgs reads up to four guest arguments, decimal or 0x-prefixed hex, negative values allowed.
func parseArgs(values []string) ([4]uint64, error) {
	var out [4]uint64
	if len(values) > len(out) {
		return out, fmt.Errorf("at most %d arguments are passed in registers, got %d", len(out), len(values))
	}
	for i, v := range values {
		v = strings.TrimSpace(v)
		if strings.HasPrefix(v, "-") {
			n, err := strconv.ParseInt(v, 0, 64)
			if err != nil {
				return out, fmt.Errorf("invalid argument %d %q: %w", i, v, err)
			}
			out[i] = uint64(n)
			continue
		}
		n, err := strconv.ParseUint(v, 0, 64)
		if err != nil {
			return out, fmt.Errorf("invalid argument %d %q: %w", i, v, err)
		}
		out[i] = n
	}
	return out, nil
}

package cmd

import (
	"debug/elf"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/profile"
	"github.com/urfave/cli/v2"

	cannon "github.com/ethereum-optimism/optimism/cannon/cmd"
	"github.com/ethereum-optimism/optimism/op-service/jsonutil"

	"github.com/ethereum-optimism/rvemu/rvgo/fast"
	"github.com/ethereum-optimism/rvemu/rvgo/programs"
)

var OutFilePerm = os.FileMode(0o755)

func loadProgram(ctx *cli.Context) (*fast.Program, error) {
	var sources []string
	for _, name := range []string{RunELFFlag.Name, RunRawFlag.Name, RunProgramFlag.Name, RunBuiltinFlag.Name} {
		if ctx.IsSet(name) {
			sources = append(sources, "--"+name)
		}
	}
	if len(sources) != 1 {
		return nil, fmt.Errorf("exactly one of --%s, --%s, --%s or --%s is required, got %v",
			RunELFFlag.Name, RunRawFlag.Name, RunProgramFlag.Name, RunBuiltinFlag.Name, sources)
	}

	switch {
	case ctx.IsSet(RunELFFlag.Name):
		path := ctx.Path(RunELFFlag.Name)
		f, err := elf.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open ELF file %q: %w", path, err)
		}
		defer f.Close()
		return fast.LoadELF(filepath.Base(path), f)
	case ctx.IsSet(RunRawFlag.Name):
		path := ctx.Path(RunRawFlag.Name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read raw binary %q: %w", path, err)
		}
		if len(data) > fast.MaxProgramSize {
			return nil, fmt.Errorf("raw binary %q is %d bytes, more than the maximum of %d", path, len(data), fast.MaxProgramSize)
		}
		return fast.LoadRaw(filepath.Base(path), data, ctx.Uint64(RunRawBaseFlag.Name)), nil
	case ctx.IsSet(RunProgramFlag.Name):
		return jsonutil.LoadJSON[fast.Program](ctx.Path(RunProgramFlag.Name))
	default:
		name := ctx.String(RunBuiltinFlag.Name)
		bi, ok := programs.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown builtin program %q", name)
		}
		return bi.Program()
	}
}

func Run(ctx *cli.Context) error {
	if ctx.Bool(cannon.RunPProfCPU.Name) {
		defer profile.Start(profile.NoShutdownHook, profile.ProfilePath("."), profile.CPUProfile).Stop()
	}

	trace := ctx.Bool(RunTraceFlag.Name)
	l := Logger(ctx.App.ErrWriter, LogLevel(trace))

	prog, err := loadProgram(ctx)
	if err != nil {
		return err
	}
	args, err := parseArgs(ctx.StringSlice(RunArgsFlag.Name))
	if err != nil {
		return err
	}
	entry, err := prog.EntryFor(ctx.String(RunFuncFlag.Name))
	if err != nil {
		return err
	}
	mem, err := prog.Memory()
	if err != nil {
		return fmt.Errorf("failed to map program: %w", err)
	}
	cfg := fast.Config{
		StackSize:   ctx.Uint64(RunStackSizeFlag.Name),
		ICacheSlots: ctx.Int(RunICacheSlotsFlag.Name),
	}
	state, err := fast.NewVMState(mem, entry, args[0], args[1], args[2], args[3], cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize VM state: %w", err)
	}
	symbols := prog.SortedSymbols()

	l.Info("loaded program",
		"name", prog.Name,
		"base", HexU64(prog.Base),
		"entry", HexU64(entry),
		"size", len(prog.Code),
		"a0", args[0], "a1", args[1], "a2", args[2], "a3", args[3],
	)

	stopAt := stepMatcher(ctx, cannon.RunStopAtFlag)
	snapshotAt := stepMatcher(ctx, cannon.RunSnapshotAtFlag)
	infoAt := stepMatcher(ctx, cannon.RunInfoAtFlag)
	snapshotFmt := ctx.String(cannon.RunSnapshotFmtFlag.Name)

	start := time.Now()
	for !state.Halted() {
		step := state.Analysis.ICount
		if step%100 == 0 { // don't do the ctx err check (includes lock) too often
			if err := ctx.Context.Err(); err != nil {
				return err
			}
		}

		if infoAt(state) {
			delta := time.Since(start)
			l.Info("processing",
				"step", step,
				"pc", HexU64(state.PC),
				"insn", HexU32(state.Instr()),
				"ips", float64(step)/(float64(delta)/float64(time.Second)),
				"mem", state.Memory.Usage(),
				"name", symbols.LookupSymbol(state.PC),
			)
		}

		if stopAt(state) {
			l.Info("stopping early", "step", step, "pc", HexU64(state.PC))
			break
		}

		if snapshotAt(state) {
			if err := jsonutil.WriteJSON(fmt.Sprintf(snapshotFmt, step), state, OutFilePerm); err != nil {
				return fmt.Errorf("failed to write state snapshot: %w", err)
			}
		}

		if trace {
			l.Debug("step",
				"step", step,
				"pc", HexU64(state.PC),
				"insn", HexU32(state.Instr()),
				"name", symbols.LookupSymbol(state.PC),
			)
		}

		if err := fast.Step(state); err != nil {
			logFailure(l, state, err)
			return fmt.Errorf("failed at step %d (PC: %016x): %w", step, state.PC, err)
		}
	}

	stateHash, err := state.EncodeWitness().StateHash()
	if err != nil {
		return fmt.Errorf("failed to hash final state: %w", err)
	}
	l.Info("finished",
		"halted", state.Halted(),
		"steps", state.Analysis.ICount,
		"result", state.Result(),
		"duration", time.Since(start),
		"stateHash", stateHash,
	)

	if err := jsonutil.WriteJSON(ctx.Path(RunOutputFlag.Name), state, OutFilePerm); err != nil {
		return fmt.Errorf("failed to write state output: %w", err)
	}

	w := ctx.App.Writer
	if state.Halted() {
		_, _ = fmt.Fprintf(w, "result = %d (0x%x)\n", state.Result(), state.Result())
	} else {
		_, _ = fmt.Fprintf(w, "stopped at pc %016x after %d steps\n", state.PC, state.Analysis.ICount)
	}
	_, _ = fmt.Fprintf(w, "state hash = %s\n", stateHash.Hex())
	if ctx.Bool(RunAnalysisFlag.Name) {
		state.Analysis.Print(w)
		if state.ICacheStats.Lookups() > 0 {
			state.ICacheStats.Print(w)
		}
	}
	return nil
}

// logFailure adds the decoded cause of a fatal step error to the log.
func logFailure(l log.Logger, state *fast.VMState, err error) {
	var unsupportedErr *fast.UnsupportedInstructionErr
	var faultErr *fast.MemoryFaultErr
	switch {
	case errors.As(err, &unsupportedErr):
		l.Error("unsupported instruction",
			"pc", HexU64(unsupportedErr.PC),
			"insn", HexU32(unsupportedErr.Instr),
			"field", unsupportedErr.Field,
			"value", unsupportedErr.Value,
		)
	case errors.As(err, &faultErr):
		l.Error("memory fault",
			"pc", HexU64(state.PC),
			"op", faultErr.Op,
			"addr", HexU64(faultErr.Addr),
			"size", faultErr.Size,
			"misaligned", faultErr.Misaligned,
		)
	}
}

var RunCommand = &cli.Command{
	Name:        "run",
	Usage:       "Run a RISC-V program until it returns",
	Description: "Run a RISC-V program from an ELF file, raw binary, program image or builtin until it returns to the halt address, then print its result and the instruction analysis. See flags to log progress, snapshot state, or to stop early.",
	Action:      Run,
	Flags: []cli.Flag{
		RunELFFlag,
		RunRawFlag,
		RunRawBaseFlag,
		RunProgramFlag,
		RunBuiltinFlag,
		RunFuncFlag,
		RunArgsFlag,
		RunStackSizeFlag,
		RunICacheSlotsFlag,
		RunOutputFlag,
		cannon.RunSnapshotAtFlag,
		cannon.RunSnapshotFmtFlag,
		cannon.RunStopAtFlag,
		cannon.RunInfoAtFlag,
		RunTraceFlag,
		RunAnalysisFlag,
		cannon.RunPProfCPU,
	},
}

package cmd

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	cannon "github.com/ethereum-optimism/optimism/cannon/cmd"
	"github.com/ethereum-optimism/optimism/op-service/jsonutil"

	"github.com/ethereum-optimism/rvemu/rvgo/asm"
	"github.com/ethereum-optimism/rvemu/rvgo/fast"
	"github.com/ethereum-optimism/rvemu/rvgo/programs"
	"github.com/ethereum-optimism/rvemu/rvgo/riscv"
)

func runApp(t *testing.T, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	app := cli.NewApp()
	app.Name = "rvemu"
	app.Writer = &stdout
	app.ErrWriter = &stderr
	app.Commands = []*cli.Command{RunCommand, LoadELFCommand, WitnessCommand, ProgramsCommand}
	err := app.Run(append([]string{"rvemu"}, args...))
	return stdout.String(), stderr.String(), err
}

var stateHashLine = regexp.MustCompile(`state hash = (0x[0-9a-f]{64})`)

func TestStepMatcher(t *testing.T) {
	at := func(n uint64) *fast.VMState {
		return &fast.VMState{Analysis: fast.Analysis{ICount: n}}
	}
	cases := []struct {
		pattern string
		match   []uint64
		skip    []uint64
	}{
		{"", nil, []uint64{0, 1, 100}},
		{"never", nil, []uint64{0, 1, 100}},
		{"always", []uint64{0, 1, 100}, nil},
		{"=5", []uint64{5}, []uint64{0, 4, 6, 10}},
		{"%10", []uint64{0, 10, 1000}, []uint64{1, 5, 11}},
	}
	for _, c := range cases {
		t.Run(c.pattern, func(t *testing.T) {
			f := &cli.GenericFlag{Name: "at", Value: cannon.MustStepMatcherFlag(c.pattern)}
			set := flag.NewFlagSet("test", flag.ContinueOnError)
			require.NoError(t, f.Apply(set))
			m := stepMatcher(cli.NewContext(cli.NewApp(), set, nil), f)
			for _, n := range c.match {
				require.True(t, m(at(n)), "step %d", n)
			}
			for _, n := range c.skip {
				require.False(t, m(at(n)), "step %d", n)
			}
		})
	}
}

func TestStepMatcherInvalid(t *testing.T) {
	t.Cleanup(func() {
		require.NoError(t, cannon.RunStopAtFlag.Value.Set("never"))
	})
	for _, bad := range []string{"=", "~5", "=x", "sometimes"} {
		_, _, err := runApp(t, "run", "--builtin", "max3", "--stop-at", bad)
		require.Error(t, err, bad)
	}
}

func TestParseArgs(t *testing.T) {
	args, err := parseArgs([]string{"10", "0x20", "-1"})
	require.NoError(t, err)
	require.Equal(t, [4]uint64{10, 0x20, ^uint64(0), 0}, args)

	args, err = parseArgs(nil)
	require.NoError(t, err)
	require.Equal(t, [4]uint64{}, args)

	_, err = parseArgs([]string{"1", "2", "3", "4", "5"})
	require.ErrorContains(t, err, "at most 4")
	_, err = parseArgs([]string{"ten"})
	require.Error(t, err)
}

func TestRunBuiltin(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "final.json.gz")
	stdout, stderr, err := runApp(t, "run", "--builtin", "fib_rec", "--args", "10", "--output", out)
	require.NoError(t, err)
	require.Contains(t, stdout, "result = 55 (0x37)")
	require.Contains(t, stdout, "=== Analysis")
	require.Contains(t, stdout, "=== Instruction cache")
	require.Contains(t, stderr, "loaded program")
	require.Contains(t, stderr, "finished")

	m := stateHashLine.FindStringSubmatch(stdout)
	require.Len(t, m, 2)

	state, err := jsonutil.LoadJSON[fast.VMState](out)
	require.NoError(t, err)
	require.True(t, state.Halted())
	require.Equal(t, uint64(55), state.Result())

	// the witness of the written state hashes the same
	witnessOut := filepath.Join(dir, "witness.json")
	stdout, _, err = runApp(t, "witness", "--input", out, "--output", witnessOut)
	require.NoError(t, err)
	require.Equal(t, m[1], strings.TrimSpace(stdout))
	witness, err := jsonutil.LoadJSON[WitnessOutput](witnessOut)
	require.NoError(t, err)
	require.Equal(t, m[1], witness.StateHash.Hex())
	require.NotEmpty(t, witness.Witness)
}

func TestRunEveryBuiltin(t *testing.T) {
	for _, bi := range programs.All() {
		t.Run(bi.Name, func(t *testing.T) {
			var in [4]uint64
			flags := []string{"run", "--builtin", bi.Name, "--analysis=false"}
			for i, a := range []uint64{7, 3, 2, 1}[:len(bi.Args)] {
				in[i] = a
				flags = append(flags, "--args", strconv.FormatUint(a, 10))
			}
			stdout, _, err := runApp(t, flags...)
			require.NoError(t, err)
			want := bi.Reference(in)
			require.Contains(t, stdout, fmt.Sprintf("result = %d (0x%x)", want, want))
			require.NotContains(t, stdout, "=== Analysis")
		})
	}
}

func writeRaw(t *testing.T, words ...uint32) string {
	path := filepath.Join(t.TempDir(), "prog.bin")
	require.NoError(t, os.WriteFile(path, asm.Bytes(words...), 0o644))
	return path
}

func TestRunRaw(t *testing.T) {
	path := writeRaw(t, asm.Addi(asm.A0, asm.A0, 1), asm.Ret())
	stdout, _, err := runApp(t, "run", "--raw", path, "--args", "41", "--icache-slots", "0")
	require.NoError(t, err)
	require.Contains(t, stdout, "result = 42 (0x2a)")
	require.NotContains(t, stdout, "=== Instruction cache", "no cache, no cache report")

	stdout, _, err = runApp(t, "run", "--raw", path, "--base", "0x20000", "--args", "-1")
	require.NoError(t, err)
	require.Contains(t, stdout, "result = 0 (0x0)")
}

func TestRunProgramImage(t *testing.T) {
	bi, ok := programs.Lookup("midpoint")
	require.True(t, ok)
	prog, err := bi.Program()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "midpoint.json")
	require.NoError(t, jsonutil.WriteJSON(path, prog, OutFilePerm))

	stdout, _, err := runApp(t, "run", "--program", path, "--func", "midpoint", "--args", "10,20")
	require.NoError(t, err)
	require.Contains(t, stdout, "result = 15 (0xf)")

	_, _, err = runApp(t, "run", "--program", path, "--func", "nope")
	require.ErrorContains(t, err, "not found")
}

func TestRunStopAt(t *testing.T) {
	t.Cleanup(func() {
		require.NoError(t, cannon.RunStopAtFlag.Value.Set("never"))
	})
	stdout, stderr, err := runApp(t, "run", "--builtin", "sum_to", "--args", "100", "--stop-at", "=5", "--trace")
	require.NoError(t, err)
	require.Contains(t, stdout, "after 5 steps")
	require.NotContains(t, stdout, "result =")
	require.Equal(t, 5, strings.Count(stderr, "msg=step"), "one trace line per executed instruction")
}

func TestRunSnapshots(t *testing.T) {
	t.Cleanup(func() {
		require.NoError(t, cannon.RunSnapshotAtFlag.Value.Set("never"))
	})
	dir := t.TempDir()
	_, _, err := runApp(t, "run", "--builtin", "quadratic", "--args", "2,1,1,1",
		"--snapshot-at", "%2", "--snapshot-fmt", filepath.Join(dir, "snap-%d.json"))
	require.NoError(t, err)
	for _, step := range []uint64{0, 2, 4} {
		state, err := jsonutil.LoadJSON[fast.VMState](filepath.Join(dir, fmt.Sprintf("snap-%d.json", step)))
		require.NoError(t, err)
		require.Equal(t, step, state.Analysis.ICount)
		require.Equal(t, riscv.DefaultProgramBase+step*4, state.PC)
	}
}

func TestRunErrors(t *testing.T) {
	_, _, err := runApp(t, "run")
	require.ErrorContains(t, err, "exactly one of")

	raw := writeRaw(t, asm.Ret())
	_, _, err = runApp(t, "run", "--raw", raw, "--builtin", "max3")
	require.ErrorContains(t, err, "exactly one of")

	_, _, err = runApp(t, "run", "--builtin", "does_not_exist")
	require.ErrorContains(t, err, "unknown builtin")

	_, _, err = runApp(t, "run", "--raw", raw, "--args", "1,2,3,4,5")
	require.ErrorContains(t, err, "at most 4")

	_, _, err = runApp(t, "run", "--raw", raw, "--stack-size", "12")
	require.ErrorContains(t, err, "stack size")

	_, _, err = runApp(t, "run", "--raw", raw, "--icache-slots", "3")
	require.ErrorContains(t, err, "power of two")

	lui := writeRaw(t, asm.Nop(), 0x000015b7)
	_, stderr, err := runApp(t, "run", "--raw", lui)
	var unsupportedErr *fast.UnsupportedInstructionErr
	require.ErrorAs(t, err, &unsupportedErr)
	require.Equal(t, "opcode", unsupportedErr.Field)
	require.ErrorContains(t, err, "failed at step 1")
	require.Contains(t, stderr, "unsupported instruction")

	fault := writeRaw(t, asm.Ld(asm.A0, asm.Zero, 0x100), asm.Ret())
	_, stderr, err = runApp(t, "run", "--raw", fault)
	var faultErr *fast.MemoryFaultErr
	require.ErrorAs(t, err, &faultErr)
	require.Equal(t, uint64(0x100), faultErr.Addr)
	require.Contains(t, stderr, "memory fault")
}

func TestLoadELFErrors(t *testing.T) {
	_, _, err := runApp(t, "load-elf")
	require.Error(t, err, "path is required")

	raw := writeRaw(t, asm.Ret())
	_, _, err = runApp(t, "load-elf", "--path", raw, "--out", filepath.Join(t.TempDir(), "out.json"))
	require.ErrorContains(t, err, "failed to open ELF file")
}

func TestListPrograms(t *testing.T) {
	stdout, _, err := runApp(t, "programs")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(stdout, "NAME"))
	for _, bi := range programs.All() {
		require.Contains(t, stdout, bi.Name)
		require.Contains(t, stdout, bi.Description)
	}
}

func TestLogLevelEnv(t *testing.T) {
	t.Setenv("RVEMU_LOG_LEVEL", "error")
	require.Equal(t, log.LevelError, LogLevel(false))
	require.Equal(t, log.LevelDebug, LogLevel(true), "tracing needs debug logs")

	stdout, stderr, err := runApp(t, "run", "--builtin", "max3", "--args", "1,9,4")
	require.NoError(t, err)
	require.Contains(t, stdout, "result = 9 (0x9)")
	require.NotContains(t, stderr, "loaded program")

	t.Setenv("RVEMU_LOG_LEVEL", "")
	require.Equal(t, log.LevelInfo, LogLevel(false))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/rvemu/rvgo/cmd"
)

func main() {
	app := cli.NewApp()
	app.Name = "rvemu"
	app.Usage = "RISC-V RV64 subset emulator"
	app.Description = "Runs RISC-V programs built from a subset of RV64IM, and reports what they executed"
	app.Commands = []*cli.Command{
		cmd.RunCommand,
		cmd.LoadELFCommand,
		cmd.WitnessCommand,
		cmd.ProgramsCommand,
	}
	ctx, cancel := context.WithCancel(context.Background())

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for {
			<-c
			cancel()
			fmt.Println("\r\nExiting...")
		}
	}()

	err := app.RunContext(ctx, os.Args)
	if code := exitCode(ctx, err, os.Stderr); code != 0 {
		os.Exit(code)
	}
}

// exitCode reports a failed command to w and returns the process exit status.
func exitCode(ctx context.Context, err error, w io.Writer) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, ctx.Err()) {
		_, _ = fmt.Fprintln(w, "command interrupted")
		return 130
	}
	_, _ = fmt.Fprintf(w, "error: %v\n", err)
	return 1
}

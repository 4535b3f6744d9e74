package cmd

import (
	"debug/elf"
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/optimism/op-service/jsonutil"

	"github.com/ethereum-optimism/rvemu/rvgo/fast"
)

func LoadELF(ctx *cli.Context) error {
	elfPath := ctx.Path(LoadELFPathFlag.Name)
	elfProgram, err := elf.Open(elfPath)
	if err != nil {
		return fmt.Errorf("failed to open ELF file %q: %w", elfPath, err)
	}
	defer elfProgram.Close()
	program, err := fast.LoadELF(filepath.Base(elfPath), elfProgram)
	if err != nil {
		return fmt.Errorf("failed to load ELF data into program image: %w", err)
	}
	l := Logger(ctx.App.ErrWriter, LogLevel(false))
	l.Info("loaded ELF",
		"name", program.Name,
		"base", HexU64(program.Base),
		"entry", HexU64(program.Entry),
		"size", len(program.Code),
		"symbols", len(program.Symbols),
	)
	return jsonutil.WriteJSON(ctx.Path(LoadELFOutFlag.Name), program, OutFilePerm)
}

var LoadELFCommand = &cli.Command{
	Name:        "load-elf",
	Usage:       "Load ELF file into a JSON program image",
	Description: "Load ELF file into a JSON program image: the PT_LOAD segments flattened into one region, the entry point and the function symbols",
	Action:      LoadELF,
	Flags: []cli.Flag{
		LoadELFPathFlag,
		LoadELFOutFlag,
	},
}

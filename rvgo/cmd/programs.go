package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/rvemu/rvgo/programs"
)

func ListPrograms(ctx *cli.Context) error {
	w := tabwriter.NewWriter(ctx.App.Writer, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tARGS\tDESCRIPTION")
	for _, bi := range programs.All() {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", bi.Name, strings.Join(bi.Args, ","), bi.Description)
	}
	return w.Flush()
}

var ProgramsCommand = &cli.Command{
	Name:        "programs",
	Usage:       "List the builtin programs",
	Description: "List the builtin programs that run --builtin accepts, with the arguments each takes in a0..a3",
	Action:      ListPrograms,
}

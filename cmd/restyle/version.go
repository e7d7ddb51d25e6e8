package main

import (
	"github.com/amp-labs/restyle/build"
	"github.com/spf13/cobra"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			info := build.Current()

			return a.out.Print(
				[]string{"VERSION", "COMMIT", "DATE", "GO"},
				[][]string{{info.Version, info.GitCommit, info.GitDate, info.GoVersion}},
				info,
			)
		},
	}
}

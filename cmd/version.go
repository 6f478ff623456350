package cmd

import (
	"fmt"

	"github.com/ledgercache/ledgercache/util"
	"github.com/spf13/cobra"
)

// NewVersionCommand creates new command instance
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Args:  cobra.NoArgs,
		Short: "Print the version number of ledgercache",
		Run:   printVersion,
	}
}

func printVersion(c *cobra.Command, _ []string) {
	fmt.Fprintln(c.OutOrStdout(), "ledgercache")
	fmt.Fprintf(c.OutOrStdout(), "Version: %s\n", util.Version)
	fmt.Fprintf(c.OutOrStdout(), "Build time: %s\n", util.BuildTime)
}

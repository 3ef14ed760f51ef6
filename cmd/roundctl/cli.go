package main

import (
	"github.com/spf13/cobra"
)

// command mirrors the registerFlags/run split the source material's
// scootapi client commands use, minus the dialer: roundctl never talks
// to a remote server, so there is nothing to close on exit.
type command interface {
	registerFlags() *cobra.Command
	run(cmd *cobra.Command, args []string) error
}

func newCLI() *cobra.Command {
	root := &cobra.Command{
		Use:   "roundctl",
		Short: "roundctl drives the assignment engine through a single scheduling round",
	}
	addCmd(root, &roundCmd{})
	addCmd(root, &versionCmd{})
	return root
}

func addCmd(root *cobra.Command, c command) {
	cobraCmd := c.registerFlags()
	cobraCmd.RunE = c.run
	root.AddCommand(cobraCmd)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

type versionCmd struct{}

func (c *versionCmd) registerFlags() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print roundctl's version",
	}
}

func (c *versionCmd) run(cmd *cobra.Command, args []string) error {
	fmt.Println(version)
	return nil
}

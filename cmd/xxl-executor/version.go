package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/jdziat/xxljob-executor/pkg/core"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the executor version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "xxl-executor %s (%s %s/%s)\n",
				core.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return err
		},
	}
}

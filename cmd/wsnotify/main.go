package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const cliName = "wsnotify"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           cliName,
		Short:         "wsnotify listens to a notification server over a persistent websocket",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	root.AddCommand(newListenCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cliName, err)
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gitlab-login",
		Short:         "Log users in with their GitLab account",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(newServeCmd(), newMigrateCmd(), newCheckConfigCmd())
	return root
}

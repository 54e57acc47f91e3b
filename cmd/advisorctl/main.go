// Command advisorctl runs the advisory pipeline offline so knowledge-base
// authors can check their files and answers without a server.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "advisorctl",
		Short:         "Offline tools for the farm advisor knowledge base",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newKBCmd(), newAskCmd(), newAnalyzeCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

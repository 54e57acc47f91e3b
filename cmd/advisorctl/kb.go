package main

import (
	"fmt"
	"os"

	"farm-advisor-go/internal/knowledge"

	"github.com/spf13/cobra"
)

func newKBCmd() *cobra.Command {
	kb := &cobra.Command{
		Use:   "kb",
		Short: "Knowledge base file utilities",
	}
	kb.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Parse a JSON or YAML knowledge base and report problems",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	})
	return kb
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	base, err := knowledge.Parse(data, knowledge.FormatFor(path))
	if err != nil {
		return fmt.Errorf("validate %s: %w", path, err)
	}

	out := cmd.OutOrStdout()
	untriggered := 0
	for i, e := range base.All() {
		if len(e.Triggers) == 0 {
			untriggered++
			fmt.Fprintf(out, "warning: entry %d has no triggers and can never match\n", i)
		}
	}
	fmt.Fprintf(out, "%s: %d entries (%s)\n", path, base.Len(), knowledge.FormatFor(path))
	if base.Len() == 0 {
		return fmt.Errorf("validate %s: no usable entries", path)
	}
	return nil
}

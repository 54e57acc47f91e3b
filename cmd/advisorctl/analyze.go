package main

import (
	"encoding/json"
	"fmt"
	"os"

	"farm-advisor-go/internal/leafhealth"

	"github.com/spf13/cobra"
)

func newAnalyzeCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "analyze <image-file>",
		Short: "Run the leaf-health heuristic on an image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			assessment, err := leafhealth.Analyze(raw)
			if err != nil {
				return fmt.Errorf("analyze %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(assessment)
			}
			fmt.Fprintf(out, "green ratio: %.4f (%s)\n", assessment.Ratio, assessment.Category)
			fmt.Fprintln(out, assessment.Reply())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the assessment as JSON")
	return cmd
}

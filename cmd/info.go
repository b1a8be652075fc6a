package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <id>",
	Short: "Show details of a recording",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newStore()
		if err != nil {
			return err
		}

		entry, err := st.Get(args[0])
		if err != nil {
			return fmt.Errorf("failed to load recording: %w", err)
		}

		fmt.Printf("ID:        %s\n", entry.ID)
		fmt.Printf("Kind:      %s\n", entry.Kind)
		fmt.Printf("File:      %s\n", entry.Path)
		fmt.Printf("Size:      %s\n", formatBytes(entry.FileSizeBytes))
		fmt.Printf("Duration:  %.1fs\n", entry.DurationSeconds)
		fmt.Printf("Created:   %s\n", entry.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("Analyzed:  %v\n", entry.Analyzed)

		if res := entry.AnalysisResult; res != nil {
			fmt.Println("\nAnalysis:")
			fmt.Printf("  Respiratory rate:  %d breaths/min\n", res.RespiratoryRate)
			fmt.Printf("  Condition:         %s\n", res.Condition)
			fmt.Printf("  Confidence:        %.0f%%\n", res.Confidence)
			fmt.Printf("  Irregularities:    %v\n", res.Irregularities)
			fmt.Printf("  Interpretation:    %s\n", res.Interpretation)
			fmt.Printf("  Recommendations:   %s\n", res.Recommendations)
		}
		return nil
	},
}

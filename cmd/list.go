package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recordings in the media library",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newStore()
		if err != nil {
			return err
		}

		entries, err := st.List()
		if err != nil {
			return fmt.Errorf("failed to list recordings: %w", err)
		}
		if len(entries) == 0 {
			fmt.Println("No recordings yet.")
			return nil
		}

		fmt.Printf("📼 Recordings (%d):\n\n", len(entries))
		for _, e := range entries {
			analyzed := " "
			if e.Analyzed {
				analyzed = "✓"
			}
			fmt.Printf("  [%s] %-36s  %-12s  %6.1fs  %8s  %s\n",
				analyzed, e.ID, e.Kind, e.DurationSeconds,
				formatBytes(e.FileSizeBytes),
				e.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	deleteYes bool
	clearYes  bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a recording from the media library",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newStore()
		if err != nil {
			return err
		}

		if !deleteYes && !confirm(fmt.Sprintf("Delete recording %s?", args[0])) {
			fmt.Println("Aborted.")
			return nil
		}
		if err := st.Delete(args[0]); err != nil {
			return fmt.Errorf("failed to delete recording: %w", err)
		}
		fmt.Println("🗑️  Recording deleted.")
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all recordings from the media library",
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
			fmt.Println("No recordings to delete.")
			return nil
		}

		if !clearYes && !confirm(fmt.Sprintf("Delete all %d recordings?", len(entries))) {
			fmt.Println("Aborted.")
			return nil
		}
		if err := st.ClearAll(); err != nil {
			return fmt.Errorf("failed to clear recordings: %w", err)
		}
		fmt.Printf("🗑️  Deleted %d recordings.\n", len(entries))
		return nil
	},
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "skip the confirmation prompt")
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "skip the confirmation prompt")
}

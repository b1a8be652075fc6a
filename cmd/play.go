package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/respirelab/respicapture/internal/play"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play <id>",
	Short: "Play a recording through the speakers",
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

		_, backend, err := newDevice()
		if err != nil {
			return err
		}
		defer backend.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fmt.Printf("🔊 Playing %s (%.1fs)... Press Ctrl+C to stop\n", entry.ID, entry.DurationSeconds)
		if err := play.New(backend).PlayFile(ctx, entry.Path); err != nil {
			if ctx.Err() != nil {
				fmt.Println("Playback stopped.")
				return nil
			}
			return fmt.Errorf("playback failed: %w", err)
		}
		return nil
	},
}

package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/respirelab/respicapture/internal/audio"
	"github.com/respirelab/respicapture/internal/session"
	"github.com/respirelab/respicapture/internal/store"

	"github.com/spf13/cobra"
)

var recordKind string

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record respiratory audio from the microphone",
	Long: `Record audio from the configured capture device until interrupted.
The recording is saved into the media library on Ctrl+C; recordings
shorter than the configured minimum are discarded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := recordKind
		if kind == "" {
			kind = cfg.Recording.DefaultKind
		}

		st, err := newStore()
		if err != nil {
			return err
		}
		device, backend, err := newDevice()
		if err != nil {
			return err
		}
		defer backend.Close()

		sess := session.New(device, st, session.Options{
			Kind:        store.Kind(kind),
			MinDuration: time.Duration(cfg.Recording.MinDurationSeconds * float64(time.Second)),
			OnStatus: func(u audio.StatusUpdate) {
				fmt.Fprintf(os.Stderr, "\r🎙️  %6.1fs  level %s", u.Elapsed.Seconds(), levelBar(u.Amplitude))
			},
		})

		slog.Info("Starting recording", "kind", kind, "sample_rate", cfg.Capture.SampleRate)
		if err := sess.Begin(); err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}
		fmt.Println("Recording... Press Ctrl+C to stop")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		fmt.Fprintln(os.Stderr)

		entry, err := sess.Finish()
		if err != nil {
			sess.Cancel()
			return fmt.Errorf("failed to save recording: %w", err)
		}

		fmt.Printf("✅ Saved %s (%.1fs, %s)\n", entry.ID, entry.DurationSeconds, formatBytes(entry.FileSizeBytes))
		return nil
	},
}

// levelBar renders a coarse amplitude meter for terminal output.
func levelBar(amplitude float64) string {
	const width = 20
	filled := int(amplitude * width)
	if filled > width {
		filled = width
	}
	bar := make([]byte, width)
	for i := range bar {
		if i < filled {
			bar[i] = '#'
		} else {
			bar[i] = '-'
		}
	}
	return string(bar)
}

// formatBytes formats bytes in human readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func init() {
	recordCmd.Flags().StringVarP(&recordKind, "kind", "k", "", "recording kind: cough, breath or stethoscope (default from config)")
}

package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/respirelab/respicapture/internal/audio"
	"github.com/respirelab/respicapture/internal/config"
	"github.com/respirelab/respicapture/internal/store"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "respicapture",
	Short: "Respiratory sound recorder and analyzer",
	Long: `RespiCapture records cough, breath and stethoscope audio from a
microphone, keeps the recordings in a managed library, and runs a
spectrogram-based analysis over them.

All recordings are stored as 16-bit PCM WAV files together with a JSON
index carrying their metadata and analysis results.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(verboseLevel)

		if cfgFile == "" {
			cfgFile = os.ExpandEnv("$HOME/.config/respicapture.yaml")
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/respicapture.yaml)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	slog.SetDefault(slog.New(handler))
}

// newStore builds the media store from the loaded configuration.
func newStore() (*store.Store, error) {
	st := store.New(cfg.Storage.MediaDirectory, cfg.Storage.IndexFile)
	if err := st.EnsureReady(); err != nil {
		return nil, fmt.Errorf("failed to prepare media directory: %w", err)
	}
	return st, nil
}

// newDevice builds the capture device from the loaded configuration.
func newDevice() (*audio.Device, audio.Backend, error) {
	backend, err := audio.NewBackend(cfg.Capture.Backend)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize audio backend: %w", err)
	}
	device := audio.NewDevice(backend, audio.InputConfig{
		SampleRate:    cfg.Capture.SampleRate,
		Channels:      cfg.Capture.Channels,
		DeviceID:      cfg.Capture.DeviceID,
		TempDirectory: cfg.Storage.TempDirectory,
	})
	return device, backend, nil
}

package cmd

import (
	"fmt"
	"time"

	"github.com/respirelab/respicapture/internal/analysis"
	"github.com/respirelab/respicapture/internal/server"

	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Run the local HTTP JSON API used by the companion UI. The server
controls recording sessions and serves the media library, including
stored audio and analysis results.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveAddr != "" {
			cfg.Server.ListenAddress = serveAddr
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

		analyzer := analysis.New(st, analysis.HeuristicClassifier{}, analysis.Options{
			FFTSize:         cfg.Analysis.FFTSize,
			HopSize:         cfg.Analysis.HopSize,
			ProcessingDelay: time.Duration(cfg.Analysis.ProcessingDelayMS) * time.Millisecond,
		})

		srv := server.New(cfg, device, st, analyzer)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "listen address (overrides config)")
}

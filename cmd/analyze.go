package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/respirelab/respicapture/internal/analysis"

	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <id>",
	Short: "Analyze a recording and attach the result",
	Long: `Compute a spectrogram for the recording and run the classifier over
it. The result is stored on the recording's library entry, replacing any
previous analysis.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newStore()
		if err != nil {
			return err
		}

		analyzer := analysis.New(st, analysis.HeuristicClassifier{}, analysis.Options{
			FFTSize:         cfg.Analysis.FFTSize,
			HopSize:         cfg.Analysis.HopSize,
			ProcessingDelay: time.Duration(cfg.Analysis.ProcessingDelayMS) * time.Millisecond,
		})

		fmt.Println("🔬 Analyzing...")
		entry, err := analyzer.Analyze(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}

		res := entry.AnalysisResult
		fmt.Printf("\nRespiratory rate:  %d breaths/min\n", res.RespiratoryRate)
		fmt.Printf("Condition:         %s\n", res.Condition)
		fmt.Printf("Confidence:        %.0f%%\n", res.Confidence)
		fmt.Printf("Irregularities:    %v\n", res.Irregularities)
		fmt.Printf("\n%s\n%s\n", res.Interpretation, res.Recommendations)
		return nil
	},
}

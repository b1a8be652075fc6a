// Package analysis turns stored recordings into analysis results: it decodes
// the audio, computes a spectrogram, and runs a classifier over it. The
// classifier is pluggable; the built-in one is a deterministic heuristic,
// not a clinical model.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/respirelab/respicapture/internal/audio"
	"github.com/respirelab/respicapture/internal/dsp"
	"github.com/respirelab/respicapture/internal/store"
)

// Classifier produces an analysis result from a normalized spectrogram.
// Implementations must be deterministic for a given input and must not
// populate SpectrogramData; the analyzer owns that field.
type Classifier interface {
	Classify(frames [][]float64, sampleRate int, durationSeconds float64) store.AnalysisResult
}

// Options tunes the analyzer. Zero values fall back to the defaults used
// across the app.
type Options struct {
	FFTSize int
	HopSize int
	// ProcessingDelay simulates the latency of a remote analysis service.
	ProcessingDelay time.Duration
}

// Analyzer runs analyses against recordings in a store.
type Analyzer struct {
	st         *store.Store
	classifier Classifier
	fftSize    int
	hopSize    int
	delay      time.Duration
}

func New(st *store.Store, classifier Classifier, opts Options) *Analyzer {
	fftSize := opts.FFTSize
	if fftSize == 0 {
		fftSize = 1024
	}
	hopSize := opts.HopSize
	if hopSize == 0 {
		hopSize = fftSize / 2
	}
	return &Analyzer{
		st:         st,
		classifier: classifier,
		fftSize:    fftSize,
		hopSize:    hopSize,
		delay:      opts.ProcessingDelay,
	}
}

// Analyze processes the recording with the given id and persists the result
// on its entry, replacing any previous analysis. The updated entry is
// returned.
func (a *Analyzer) Analyze(ctx context.Context, id string) (store.RecordingEntry, error) {
	entry, err := a.st.Get(id)
	if err != nil {
		return store.RecordingEntry{}, err
	}

	samples, sampleRate, err := audio.ReadWAV(entry.Path)
	if err != nil {
		return store.RecordingEntry{}, fmt.Errorf("failed to decode %s: %w", entry.Path, err)
	}

	frames, err := dsp.Spectrogram(samples, a.fftSize, a.hopSize)
	if err != nil {
		return store.RecordingEntry{}, fmt.Errorf("recording %s: %w", id, err)
	}

	if a.delay > 0 {
		timer := time.NewTimer(a.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return store.RecordingEntry{}, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return store.RecordingEntry{}, err
	}

	duration := float64(len(samples)) / float64(sampleRate)
	result := a.classifier.Classify(frames, sampleRate, duration)
	result.SpectrogramData = dsp.Flatten(frames)

	analyzed := true
	updated, err := a.st.Update(id, store.Patch{
		Analyzed:       &analyzed,
		AnalysisResult: &result,
	})
	if err != nil {
		return store.RecordingEntry{}, err
	}
	slog.Info("Analysis complete", "id", id,
		"condition", result.Condition, "respiratory_rate", result.RespiratoryRate)
	return updated, nil
}

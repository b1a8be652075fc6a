package dsp

import (
	"fmt"
	"math"
)

// logEpsilon keeps log10 defined for silent bins.
const logEpsilon = 1e-10

// dbRange maps [-100dB, 0dB] onto [0, 1]. This range is a presentation
// choice and must stay fixed so stored spectrogram data remains comparable
// across versions.
const dbRange = 100.0

// Spectrogram slices samples into hopSize-spaced frames of fftSize samples,
// computes each frame's magnitude spectrum, and converts the magnitudes to
// dB normalized into [0, 1]. The result has
// floor((len(samples)-fftSize)/hopSize)+1 frames of fftSize/2 values each.
func Spectrogram(samples []float64, fftSize, hopSize int) ([][]float64, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("empty sample buffer: %w", ErrInvalidInput)
	}
	if !isPowerOfTwo(fftSize) {
		return nil, fmt.Errorf("fft size %d is not a power of two: %w", fftSize, ErrInvalidInput)
	}
	if hopSize <= 0 {
		return nil, fmt.Errorf("hop size must be > 0, got %d: %w", hopSize, ErrInvalidInput)
	}
	if len(samples) < fftSize {
		return nil, fmt.Errorf("need at least %d samples, got %d: %w", fftSize, len(samples), ErrInvalidInput)
	}

	frameCount := (len(samples)-fftSize)/hopSize + 1
	frames := make([][]float64, 0, frameCount)

	for f := 0; f < frameCount; f++ {
		start := f * hopSize
		mags, err := Spectrum(samples[start:start+fftSize], fftSize)
		if err != nil {
			return nil, err
		}
		for k, mag := range mags {
			db := 20 * math.Log10(mag+logEpsilon)
			mags[k] = clamp01((db + dbRange) / dbRange)
		}
		frames = append(frames, mags)
	}

	return frames, nil
}

// Flatten concatenates spectrogram frames into a single intensity sequence,
// one value per time-frequency cell in frame order. This is the layout the
// stored AnalysisResult carries.
func Flatten(frames [][]float64) []float64 {
	if len(frames) == 0 {
		return nil
	}
	out := make([]float64, 0, len(frames)*len(frames[0]))
	for _, frame := range frames {
		out = append(out, frame...)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package analysis

import (
	"math"

	"github.com/respirelab/respicapture/internal/store"
)

// Band edges for the breathing envelope and for adventitious-sound energy.
// Breathing noise concentrates below a few hundred hertz; wheezes and
// crackles add energy well above that.
const (
	lowBandHz  = 400.0
	highBandHz = 1000.0
)

// HeuristicClassifier estimates a respiratory rate from the low-band energy
// envelope and flags recordings whose high-band energy share is unusually
// large. It is a deterministic stand-in for a real model and its labels
// carry no clinical weight.
type HeuristicClassifier struct{}

func (HeuristicClassifier) Classify(frames [][]float64, sampleRate int, durationSeconds float64) store.AnalysisResult {
	if len(frames) == 0 || durationSeconds <= 0 {
		return store.AnalysisResult{
			Condition:      "inconclusive",
			Interpretation: "The recording is too short to analyze.",
			Recommendations: "Record at least a few full breath cycles " +
				"and try again.",
		}
	}

	bins := len(frames[0])
	fftSize := 2 * bins
	lowBins := clampBin(binFor(lowBandHz, fftSize, sampleRate), 1, bins)
	highBins := clampBin(binFor(highBandHz, fftSize, sampleRate), lowBins, bins)

	envelope := make([]float64, len(frames))
	var lowEnergy, highEnergy float64
	for i, frame := range frames {
		var low float64
		for _, v := range frame[:lowBins] {
			low += v
		}
		low /= float64(lowBins)
		envelope[i] = low
		lowEnergy += low

		var high float64
		for _, v := range frame[highBins:] {
			high += v
		}
		highEnergy += high / float64(bins-highBins)
	}
	lowEnergy /= float64(len(frames))
	highEnergy /= float64(len(frames))

	smooth(envelope)
	peaks := countPeaks(envelope)

	rate := int(math.Round(float64(peaks) * 60.0 / durationSeconds))
	if rate < 6 {
		rate = 6
	}
	if rate > 40 {
		rate = 40
	}

	highRatio := highEnergy / (lowEnergy + 1e-6)
	irregular := highRatio > 0.85 || rate > 25

	condition := "normal breathing"
	interpretation := "Breathing sounds fall within the expected frequency range."
	recommendations := "No follow-up indicated based on this recording."
	if irregular {
		condition = "adventitious sounds suspected"
		interpretation = "The recording contains more high-frequency energy " +
			"than typical breath sounds."
		recommendations = "Consider repeating the recording in a quiet room; " +
			"persistent findings warrant clinical review."
	}

	// More signal above the noise floor means a steadier estimate.
	confidence := 40.0 + 55.0*math.Min(1, lowEnergy*4)
	if confidence > 100 {
		confidence = 100
	}

	return store.AnalysisResult{
		RespiratoryRate: rate,
		Condition:       condition,
		Confidence:      confidence,
		Irregularities:  irregular,
		Interpretation:  interpretation,
		Recommendations: recommendations,
	}
}

func binFor(freqHz float64, fftSize, sampleRate int) int {
	return int(freqHz * float64(fftSize) / float64(sampleRate))
}

func clampBin(b, min, max int) int {
	if b < min {
		return min
	}
	if b > max-1 {
		return max - 1
	}
	return b
}

// smooth applies a 5-point moving average in place.
func smooth(v []float64) {
	const half = 2
	src := make([]float64, len(v))
	copy(src, v)
	for i := range v {
		lo, hi := i-half, i+half
		if lo < 0 {
			lo = 0
		}
		if hi > len(v)-1 {
			hi = len(v) - 1
		}
		var sum float64
		for j := lo; j <= hi; j++ {
			sum += src[j]
		}
		v[i] = sum / float64(hi-lo+1)
	}
}

// countPeaks counts local maxima that rise meaningfully above the mean of
// the envelope. Each counted peak stands for one breath cycle.
func countPeaks(envelope []float64) int {
	if len(envelope) < 3 {
		return 0
	}
	var mean float64
	for _, v := range envelope {
		mean += v
	}
	mean /= float64(len(envelope))
	threshold := mean * 1.05

	peaks := 0
	for i := 1; i < len(envelope)-1; i++ {
		if envelope[i] > threshold && envelope[i] >= envelope[i-1] && envelope[i] > envelope[i+1] {
			peaks++
		}
	}
	return peaks
}

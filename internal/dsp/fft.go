// Package dsp implements the time-frequency analysis used on captured
// respiratory audio: windowed FFT magnitude spectra and normalized dB
// spectrograms. Everything here is pure computation; the same input always
// produces the same output.
package dsp

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
)

// ErrInvalidInput is returned for malformed analysis input such as empty
// sample buffers or a non-power-of-two FFT size.
var ErrInvalidInput = errors.New("invalid input")

// Spectrum computes the magnitude spectrum of samples using an fftSize-point
// FFT. A Hann window is applied before the transform. Samples beyond fftSize
// are ignored; shorter input is zero-padded. The result has fftSize/2 bins.
func Spectrum(samples []float64, fftSize int) ([]float64, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("empty sample buffer: %w", ErrInvalidInput)
	}
	if !isPowerOfTwo(fftSize) {
		return nil, fmt.Errorf("fft size %d is not a power of two: %w", fftSize, ErrInvalidInput)
	}

	re := make([]float64, fftSize)
	im := make([]float64, fftSize)
	window(samples, re)
	fft(re, im)

	mags := make([]float64, fftSize/2)
	for k := range mags {
		mags[k] = math.Hypot(re[k], im[k])
	}
	return mags, nil
}

// BinFrequency returns the center frequency in Hz of an FFT bin.
func BinFrequency(bin, fftSize int, sampleRate float64) float64 {
	return float64(bin) * sampleRate / float64(fftSize)
}

// window copies samples into dst multiplied by a Hann window of len(dst)
// points. dst positions past the input remain zero.
func window(samples []float64, dst []float64) {
	n := len(dst)
	m := len(samples)
	if m > n {
		m = n
	}
	for i := 0; i < m; i++ {
		w := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
		dst[i] = samples[i] * w
	}
}

// fft runs an in-place iterative radix-2 Cooley-Tukey transform over the
// real/imaginary pair. len(re) must be a power of two.
func fft(re, im []float64) {
	n := len(re)
	if n < 2 {
		return
	}

	// Bit-reversal permutation.
	shift := 64 - uint(bits.TrailingZeros(uint(n)))
	for i := 1; i < n; i++ {
		j := int(bits.Reverse64(uint64(i)) >> shift)
		if j > i {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}

	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		step := -2 * math.Pi / float64(size)
		for start := 0; start < n; start += size {
			for k := 0; k < half; k++ {
				angle := step * float64(k)
				wr, wi := math.Cos(angle), math.Sin(angle)

				i := start + k
				j := i + half
				tr := wr*re[j] - wi*im[j]
				ti := wr*im[j] + wi*re[j]
				re[j] = re[i] - tr
				im[j] = im[i] - ti
				re[i] += tr
				im[i] += ti
			}
		}
	}
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

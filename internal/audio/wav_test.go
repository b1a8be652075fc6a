package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	w, err := newWAVWriter(f, 8000, 1)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}

	written := make([]int16, 800)
	for i := range written {
		written[i] = int16(10000 * math.Sin(float64(i)*0.1))
	}
	if err := w.WriteSamples(written[:400]); err != nil {
		t.Fatalf("WriteSamples failed: %v", err)
	}
	if err := w.WriteSamples(written[400:]); err != nil {
		t.Fatalf("WriteSamples failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	samples, rate, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV failed: %v", err)
	}
	if rate != 8000 {
		t.Errorf("Expected sample rate 8000, got %d", rate)
	}
	if len(samples) != len(written) {
		t.Fatalf("Expected %d samples, got %d", len(written), len(samples))
	}
	for i, want := range written {
		got := samples[i] * 32768
		if math.Abs(got-float64(want)) > 0.5 {
			t.Fatalf("sample %d: expected %d, got %.2f", i, want, got)
		}
	}
}

func TestWAVStereoDownmix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	w, err := newWAVWriter(f, 44100, 2)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	// Interleaved L/R pairs averaging to 1000.
	if err := w.WriteSamples([]int16{2000, 0, 2000, 0, 2000, 0}); err != nil {
		t.Fatalf("WriteSamples failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	samples, rate, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV failed: %v", err)
	}
	if rate != 44100 {
		t.Errorf("Expected sample rate 44100, got %d", rate)
	}
	if len(samples) != 3 {
		t.Fatalf("Expected 3 downmixed frames, got %d", len(samples))
	}
	for i, s := range samples {
		if math.Abs(s*32768-1000) > 0.5 {
			t.Errorf("frame %d: expected downmix ~1000, got %.2f", i, s*32768)
		}
	}
}

func TestReadWAVRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.wav")
	if err := os.WriteFile(path, []byte("this is not audio data at all!!!!!!!!!!!!!!!"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if _, _, err := ReadWAV(path); err == nil {
		t.Errorf("Expected error for non-WAV data")
	}

	if _, _, err := ReadWAV(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Errorf("Expected error for missing file")
	}
}

package analysis

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/respirelab/respicapture/internal/dsp"
	"github.com/respirelab/respicapture/internal/store"
)

// writeTestWAV writes a 16-bit mono PCM file containing a sine carrier whose
// amplitude is modulated at breathRateHz, which is roughly what a breathing
// envelope looks like to the classifier.
func writeTestWAV(t *testing.T, path string, seconds float64, sampleRate int, carrierHz, breathRateHz float64) {
	t.Helper()

	n := int(seconds * float64(sampleRate))
	data := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		ts := float64(i) / float64(sampleRate)
		env := 0.55 + 0.45*math.Sin(2*math.Pi*breathRateHz*ts)
		v := int16(env * 0.5 * 32767 * math.Sin(2*math.Pi*carrierHz*ts))
		binary.LittleEndian.PutUint16(data[2*i:], uint16(v))
	}

	var header [44]byte
	copy(header[0:], "RIFF")
	binary.LittleEndian.PutUint32(header[4:], uint32(36+len(data)))
	copy(header[8:], "WAVE")
	copy(header[12:], "fmt ")
	binary.LittleEndian.PutUint32(header[16:], 16)
	binary.LittleEndian.PutUint16(header[20:], 1)
	binary.LittleEndian.PutUint16(header[22:], 1)
	binary.LittleEndian.PutUint32(header[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(header[32:], 2)
	binary.LittleEndian.PutUint16(header[34:], 16)
	copy(header[36:], "data")
	binary.LittleEndian.PutUint32(header[40:], uint32(len(data)))

	if err := os.WriteFile(path, append(header[:], data...), 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
}

func newTestAnalyzer(t *testing.T, opts Options) (*Analyzer, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st := store.New(filepath.Join(dir, "media"), filepath.Join(dir, "index.json"))
	if err := st.EnsureReady(); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	return New(st, HeuristicClassifier{}, opts), st
}

func saveRecording(t *testing.T, st *store.Store, seconds float64) store.RecordingEntry {
	t.Helper()
	tmp := filepath.Join(t.TempDir(), "clip.wav")
	writeTestWAV(t, tmp, seconds, 8000, 220, 0.3)
	entry, err := st.Save(tmp, store.Seed{Kind: store.KindBreath, DurationSeconds: seconds})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	return entry
}

func TestAnalyzeAttachesResult(t *testing.T) {
	a, st := newTestAnalyzer(t, Options{})
	entry := saveRecording(t, st, 10)

	updated, err := a.Analyze(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !updated.Analyzed {
		t.Error("entry not marked analyzed")
	}
	res := updated.AnalysisResult
	if res == nil {
		t.Fatal("analysis result missing")
	}
	if res.RespiratoryRate < 6 || res.RespiratoryRate > 40 {
		t.Errorf("respiratoryRate = %d, want within [6, 40]", res.RespiratoryRate)
	}
	if res.Confidence < 0 || res.Confidence > 100 {
		t.Errorf("confidence = %v, want within [0, 100]", res.Confidence)
	}
	if res.Condition == "" || res.Interpretation == "" || res.Recommendations == "" {
		t.Error("text fields must be populated")
	}

	samples := int(10 * 8000)
	frames := (samples-1024)/512 + 1
	if want := frames * 512; len(res.SpectrogramData) != want {
		t.Errorf("spectrogramData length = %d, want %d", len(res.SpectrogramData), want)
	}
	for _, v := range res.SpectrogramData {
		if v < 0 || v > 1 {
			t.Fatalf("spectrogram value %v outside [0, 1]", v)
		}
	}

	// The result must be persisted, not just returned.
	fetched, err := st.Get(entry.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !fetched.Analyzed || fetched.AnalysisResult == nil {
		t.Error("analysis not persisted to the store")
	}
}

func TestAnalyzeOverwritesPreviousResult(t *testing.T) {
	a, st := newTestAnalyzer(t, Options{})
	entry := saveRecording(t, st, 6)

	first, err := a.Analyze(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("first Analyze: %v", err)
	}
	second, err := a.Analyze(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("second Analyze: %v", err)
	}
	if second.AnalysisResult == nil {
		t.Fatal("second analysis result missing")
	}
	if first.AnalysisResult.RespiratoryRate != second.AnalysisResult.RespiratoryRate {
		t.Errorf("re-analysis of identical audio changed the rate: %d vs %d",
			first.AnalysisResult.RespiratoryRate, second.AnalysisResult.RespiratoryRate)
	}
}

func TestAnalyzeUnknownID(t *testing.T) {
	a, _ := newTestAnalyzer(t, Options{})
	if _, err := a.Analyze(context.Background(), "no-such-id"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Analyze = %v, want ErrNotFound", err)
	}
}

func TestAnalyzeClipShorterThanWindow(t *testing.T) {
	a, st := newTestAnalyzer(t, Options{})

	tmp := filepath.Join(t.TempDir(), "tiny.wav")
	writeTestWAV(t, tmp, 0.05, 8000, 220, 0.3)
	entry, err := st.Save(tmp, store.Seed{Kind: store.KindBreath, DurationSeconds: 0.05})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := a.Analyze(context.Background(), entry.ID); !errors.Is(err, dsp.ErrInvalidInput) {
		t.Fatalf("Analyze = %v, want ErrInvalidInput", err)
	}
}

func TestAnalyzeHonorsContext(t *testing.T) {
	a, st := newTestAnalyzer(t, Options{ProcessingDelay: time.Hour})
	entry := saveRecording(t, st, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := a.Analyze(ctx, entry.ID); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Analyze = %v, want DeadlineExceeded", err)
	}

	fetched, err := st.Get(entry.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetched.Analyzed {
		t.Error("cancelled analysis must not mark the entry analyzed")
	}
}

func TestClassifierDeterministic(t *testing.T) {
	frames := make([][]float64, 40)
	for i := range frames {
		frames[i] = make([]float64, 512)
		for j := range frames[i] {
			frames[i][j] = 0.3 + 0.2*math.Sin(float64(i)/3)*math.Exp(-float64(j)/64)
		}
	}

	c := HeuristicClassifier{}
	first := c.Classify(frames, 8000, 5)
	second := c.Classify(frames, 8000, 5)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("classifier not deterministic: %+v vs %+v", first, second)
	}
}

func TestClassifierEmptyInput(t *testing.T) {
	res := HeuristicClassifier{}.Classify(nil, 8000, 0)
	if res.Condition != "inconclusive" {
		t.Errorf("condition = %q, want inconclusive", res.Condition)
	}
}

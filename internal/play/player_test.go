package play

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/respirelab/respicapture/internal/audio"
)

func writeToneWAV(t *testing.T, path string, seconds float64, sampleRate int) {
	t.Helper()

	n := int(seconds * float64(sampleRate))
	data := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		v := int16(0.4 * 32767 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
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

func TestPlayFileCompletes(t *testing.T) {
	backend := audio.NewSimBackend()
	backend.PeriodMS = 10

	path := filepath.Join(t.TempDir(), "tone.wav")
	writeToneWAV(t, path, 0.1, 8000)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := New(backend).PlayFile(ctx, path); err != nil {
		t.Fatalf("PlayFile: %v", err)
	}
}

func TestPlayFileCancel(t *testing.T) {
	backend := audio.NewSimBackend()
	backend.PeriodMS = 10

	path := filepath.Join(t.TempDir(), "tone.wav")
	writeToneWAV(t, path, 30, 8000)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := New(backend).PlayFile(ctx, path)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("PlayFile = %v, want DeadlineExceeded", err)
	}
}

func TestPlayFileMissing(t *testing.T) {
	backend := audio.NewSimBackend()
	err := New(backend).PlayFile(context.Background(), filepath.Join(t.TempDir(), "nope.wav"))
	if err == nil {
		t.Fatal("PlayFile succeeded on a missing file")
	}
}

package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/respirelab/respicapture/internal/audio"
	"github.com/respirelab/respicapture/internal/store"
)

func newTestRig(t *testing.T) (*audio.Device, *store.Store) {
	t.Helper()
	backend := audio.NewSimBackend()
	backend.PeriodMS = 10
	dir := t.TempDir()
	device := audio.NewDevice(backend, audio.InputConfig{
		SampleRate:    8000,
		Channels:      1,
		TempDirectory: dir,
	})
	st := store.New(filepath.Join(dir, "media"), filepath.Join(dir, "index.json"))
	if err := st.EnsureReady(); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	return device, st
}

func TestBeginFinishSaves(t *testing.T) {
	device, st := newTestRig(t)

	var phases []Phase
	s := New(device, st, Options{
		Kind:    store.KindBreath,
		OnState: func(p Phase) { phases = append(phases, p) },
	})

	if got := s.Phase(); got != PhaseIdle {
		t.Fatalf("new session phase = %s, want %s", got, PhaseIdle)
	}
	if err := s.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if got := s.Phase(); got != PhaseRecording {
		t.Fatalf("phase after Begin = %s, want %s", got, PhaseRecording)
	}

	time.Sleep(300 * time.Millisecond)

	entry, err := s.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if got := s.Phase(); got != PhaseSaved {
		t.Fatalf("phase after Finish = %s, want %s", got, PhaseSaved)
	}
	if entry.Kind != store.KindBreath {
		t.Errorf("kind = %s, want %s", entry.Kind, store.KindBreath)
	}
	if entry.DurationSeconds <= 0 {
		t.Errorf("durationSeconds = %v, want > 0", entry.DurationSeconds)
	}
	if entry.FileSizeBytes <= 44 {
		t.Errorf("fileSizeBytes = %d, want audio beyond the header", entry.FileSizeBytes)
	}
	if _, err := os.Stat(entry.Path); err != nil {
		t.Errorf("saved file missing: %v", err)
	}

	entries, err := st.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != entry.ID {
		t.Fatalf("store contents = %+v, want exactly the saved entry", entries)
	}

	if res := s.Result(); res == nil || res.ID != entry.ID {
		t.Errorf("Result() = %+v, want saved entry", res)
	}

	want := []Phase{PhaseArmed, PhaseRecording, PhaseStopping, PhaseSaved}
	if len(phases) != len(want) {
		t.Fatalf("observed phases %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("observed phases %v, want %v", phases, want)
		}
	}
}

func TestInvalidTransitions(t *testing.T) {
	device, st := newTestRig(t)
	s := New(device, st, Options{Kind: store.KindBreath})

	if err := s.Pause(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Pause from idle = %v, want ErrInvalidState", err)
	}
	if err := s.Resume(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Resume from idle = %v, want ErrInvalidState", err)
	}
	if _, err := s.Finish(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Finish from idle = %v, want ErrInvalidState", err)
	}
	if got := s.Phase(); got != PhaseIdle {
		t.Fatalf("phase changed to %s after rejected transitions", got)
	}

	if err := s.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer s.Cancel()

	if err := s.Begin(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Begin = %v, want ErrInvalidState", err)
	}
	if err := s.Resume(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Resume while recording = %v, want ErrInvalidState", err)
	}
	if got := s.Phase(); got != PhaseRecording {
		t.Fatalf("phase changed to %s after rejected transitions", got)
	}
}

func TestPauseResume(t *testing.T) {
	device, st := newTestRig(t)
	s := New(device, st, Options{Kind: store.KindCough})

	if err := s.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := s.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if got := s.Phase(); got != PhasePaused {
		t.Fatalf("phase = %s, want %s", got, PhasePaused)
	}
	frozen := s.Elapsed()
	time.Sleep(100 * time.Millisecond)
	if got := s.Elapsed(); got != frozen {
		t.Errorf("elapsed advanced while paused: %v -> %v", frozen, got)
	}

	if err := s.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if got := s.Elapsed(); got <= frozen {
		t.Errorf("elapsed did not advance after resume: %v", got)
	}

	entry, err := s.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if entry.Kind != store.KindCough {
		t.Errorf("kind = %s, want %s", entry.Kind, store.KindCough)
	}
}

func TestFinishFromPaused(t *testing.T) {
	device, st := newTestRig(t)
	s := New(device, st, Options{Kind: store.KindBreath})

	if err := s.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := s.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if _, err := s.Finish(); err != nil {
		t.Fatalf("Finish from paused: %v", err)
	}
	if got := s.Phase(); got != PhaseSaved {
		t.Fatalf("phase = %s, want %s", got, PhaseSaved)
	}
}

func TestFinishTooShort(t *testing.T) {
	device, st := newTestRig(t)
	s := New(device, st, Options{
		Kind:        store.KindBreath,
		MinDuration: time.Hour,
	})

	if err := s.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if _, err := s.Finish(); !errors.Is(err, ErrTooShort) {
		t.Fatalf("Finish = %v, want ErrTooShort", err)
	}
	if got := s.Phase(); got != PhaseRecording {
		t.Fatalf("phase after rejected Finish = %s, want %s", got, PhaseRecording)
	}

	s.Cancel()
	entries, err := st.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("store has %d entries after cancel, want 0", len(entries))
	}
}

func TestCancel(t *testing.T) {
	device, st := newTestRig(t)
	s := New(device, st, Options{Kind: store.KindBreath})

	if err := s.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	s.Cancel()
	if got := s.Phase(); got != PhaseIdle {
		t.Fatalf("phase after Cancel = %s, want %s", got, PhaseIdle)
	}
	s.Cancel()

	entries, err := st.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("store has %d entries after cancel, want 0", len(entries))
	}

	// The device must be released for the next session.
	next := New(device, st, Options{Kind: store.KindBreath})
	if err := next.Begin(); err != nil {
		t.Fatalf("Begin after cancel: %v", err)
	}
	next.Cancel()
}

func TestPermissionDeniedReturnsToIdle(t *testing.T) {
	backend := audio.NewSimBackend()
	backend.DenyPermission = true
	dir := t.TempDir()
	device := audio.NewDevice(backend, audio.InputConfig{
		SampleRate:    8000,
		Channels:      1,
		TempDirectory: dir,
	})
	st := store.New(filepath.Join(dir, "media"), filepath.Join(dir, "index.json"))

	s := New(device, st, Options{Kind: store.KindBreath})
	err := s.Begin()
	if !errors.Is(err, audio.ErrPermissionDenied) {
		t.Fatalf("Begin = %v, want ErrPermissionDenied", err)
	}
	if got := s.Phase(); got != PhaseIdle {
		t.Fatalf("phase after denial = %s, want %s", got, PhaseIdle)
	}

	backend.DenyPermission = false
	if err := s.Begin(); err != nil {
		t.Fatalf("Begin after permission granted: %v", err)
	}
	s.Cancel()
}

func TestDeviceBusyFails(t *testing.T) {
	device, st := newTestRig(t)

	first := New(device, st, Options{Kind: store.KindBreath})
	if err := first.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer first.Cancel()

	second := New(device, st, Options{Kind: store.KindBreath})
	err := second.Begin()
	if !errors.Is(err, audio.ErrDeviceBusy) {
		t.Fatalf("second Begin = %v, want ErrDeviceBusy", err)
	}
	if got := second.Phase(); got != PhaseFailed {
		t.Fatalf("phase = %s, want %s", got, PhaseFailed)
	}
	if got := second.Reason(); got != ReasonDeviceBusy {
		t.Errorf("reason = %s, want %s", got, ReasonDeviceBusy)
	}
	if second.Err() == nil {
		t.Error("Err() = nil for a failed session")
	}

	// Terminal sessions reject everything.
	if err := second.Begin(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Begin on failed session = %v, want ErrInvalidState", err)
	}
}

func TestRejectsInvalidKind(t *testing.T) {
	device, st := newTestRig(t)
	s := New(device, st, Options{Kind: store.Kind("humming")})

	if err := s.Begin(); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("Begin = %v, want ErrInvalidInput", err)
	}
	if got := s.Phase(); got != PhaseIdle {
		t.Fatalf("phase = %s, want %s", got, PhaseIdle)
	}
}

func TestStatusTicksReachCallback(t *testing.T) {
	device, st := newTestRig(t)

	ticks := make(chan audio.StatusUpdate, 16)
	s := New(device, st, Options{
		Kind: store.KindBreath,
		OnStatus: func(u audio.StatusUpdate) {
			select {
			case ticks <- u:
			default:
			}
		},
	})

	if err := s.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer s.Cancel()

	select {
	case u := <-ticks:
		if u.Amplitude < 0 || u.Amplitude > 1 {
			t.Errorf("amplitude = %v, want within [0, 1]", u.Amplitude)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no status tick received")
	}
	if s.LastStatus().Elapsed < 0 {
		t.Errorf("LastStatus elapsed negative")
	}
}

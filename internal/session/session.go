// Package session orchestrates one recording end to end: it drives the
// capture device through its lifecycle and hands the finished file to the
// media store. A session is single-use; once it reaches Saved or Failed a
// new one must be created.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/respirelab/respicapture/internal/audio"
	"github.com/respirelab/respicapture/internal/store"
)

// Phase is the lifecycle phase of a session.
type Phase string

const (
	PhaseIdle      Phase = "IDLE"
	PhaseArmed     Phase = "ARMED"
	PhaseRecording Phase = "RECORDING"
	PhasePaused    Phase = "PAUSED"
	PhaseStopping  Phase = "STOPPING"
	PhaseSaved     Phase = "SAVED"
	PhaseFailed    Phase = "FAILED"
)

// Terminal reports whether the phase ends the session.
func (p Phase) Terminal() bool {
	return p == PhaseSaved || p == PhaseFailed
}

// FailureReason is the stable, typed reason attached to a failed session.
// Presentation is the caller's concern.
type FailureReason string

const (
	ReasonNone             FailureReason = ""
	ReasonPermissionDenied FailureReason = "permission_denied"
	ReasonDeviceBusy       FailureReason = "device_busy"
	ReasonInvalidState     FailureReason = "invalid_state"
	ReasonInvalidInput     FailureReason = "invalid_input"
	ReasonIOError          FailureReason = "io_error"
)

var (
	// ErrInvalidState means the requested transition is not legal from the
	// session's current phase. The phase is left unchanged.
	ErrInvalidState = errors.New("invalid session phase")

	// ErrTooShort means Finish was called before the minimum recording
	// duration elapsed. The session keeps recording; the caller may retry
	// later or cancel.
	ErrTooShort = errors.New("recording too short")
)

// Options configures a session.
type Options struct {
	// Kind is the capture modality stored with the recording. Required.
	Kind store.Kind
	// MinDuration is the shortest recording Finish accepts. Zero disables
	// the check.
	MinDuration time.Duration
	// OnState is invoked after every phase change. Optional.
	OnState func(Phase)
	// OnStatus receives the capture's periodic metering ticks. Optional;
	// must return promptly.
	OnStatus func(audio.StatusUpdate)
}

// Session is the recording orchestrator. All methods are safe for
// concurrent use.
type Session struct {
	device *audio.Device
	st     *store.Store
	opts   Options

	mu         sync.Mutex
	phase      Phase
	capture    *audio.Capture
	lastStatus audio.StatusUpdate
	result     *store.RecordingEntry
	failure    error
	reason     FailureReason
}

func New(device *audio.Device, st *store.Store, opts Options) *Session {
	return &Session{
		device: device,
		st:     st,
		opts:   opts,
		phase:  PhaseIdle,
	}
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Elapsed returns the recorded duration so far (or the final duration once
// saved), so callers can enforce their own length policies.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result != nil {
		return time.Duration(s.result.DurationSeconds * float64(time.Second))
	}
	if s.capture != nil {
		return s.capture.Elapsed()
	}
	return 0
}

// LastStatus returns the most recent metering tick.
func (s *Session) LastStatus() audio.StatusUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStatus
}

// Result returns the saved entry once the session reaches Saved.
func (s *Session) Result() *store.RecordingEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Err returns the failure that moved the session to Failed, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// Reason returns the typed failure reason for a Failed session.
func (s *Session) Reason() FailureReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Begin arms the session and starts capturing. Permission denial returns
// the session to Idle (user-correctable); any other failure is terminal.
func (s *Session) Begin() error {
	s.mu.Lock()
	if s.phase != PhaseIdle {
		phase := s.phase
		s.mu.Unlock()
		return fmt.Errorf("can only begin from %s, current phase %s: %w", PhaseIdle, phase, ErrInvalidState)
	}
	if !s.opts.Kind.Valid() {
		s.mu.Unlock()
		return fmt.Errorf("session requires a valid kind, got %q: %w", s.opts.Kind, store.ErrInvalidInput)
	}
	s.phase = PhaseArmed
	s.mu.Unlock()
	s.emit(PhaseArmed)

	capture, err := s.device.Start(s.statusTick)
	if err != nil {
		if errors.Is(err, audio.ErrPermissionDenied) {
			s.mu.Lock()
			s.phase = PhaseIdle
			s.mu.Unlock()
			s.emit(PhaseIdle)
			return err
		}
		s.fail(err)
		return err
	}

	s.mu.Lock()
	s.capture = capture
	s.phase = PhaseRecording
	s.mu.Unlock()
	s.emit(PhaseRecording)
	slog.Info("Recording session started", "kind", s.opts.Kind)
	return nil
}

// Pause freezes the recording and the duration timer.
func (s *Session) Pause() error {
	s.mu.Lock()
	if s.phase != PhaseRecording {
		phase := s.phase
		s.mu.Unlock()
		return fmt.Errorf("can only pause from %s, current phase %s: %w", PhaseRecording, phase, ErrInvalidState)
	}
	if err := s.capture.Pause(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.phase = PhasePaused
	s.mu.Unlock()
	s.emit(PhasePaused)
	return nil
}

// Resume continues a paused recording.
func (s *Session) Resume() error {
	s.mu.Lock()
	if s.phase != PhasePaused {
		phase := s.phase
		s.mu.Unlock()
		return fmt.Errorf("can only resume from %s, current phase %s: %w", PhasePaused, phase, ErrInvalidState)
	}
	if err := s.capture.Resume(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.phase = PhaseRecording
	s.mu.Unlock()
	s.emit(PhaseRecording)
	return nil
}

// Finish stops the capture and saves the recording, ending the session in
// Saved or Failed. Recordings shorter than the configured minimum are
// rejected with ErrTooShort and the session keeps recording.
func (s *Session) Finish() (*store.RecordingEntry, error) {
	s.mu.Lock()
	if s.phase != PhaseRecording && s.phase != PhasePaused {
		phase := s.phase
		s.mu.Unlock()
		return nil, fmt.Errorf("can only finish from %s or %s, current phase %s: %w",
			PhaseRecording, PhasePaused, phase, ErrInvalidState)
	}

	capture := s.capture
	if min := s.opts.MinDuration; min > 0 {
		if elapsed := capture.Elapsed(); elapsed < min {
			s.mu.Unlock()
			return nil, fmt.Errorf("recorded %v of minimum %v: %w", elapsed.Round(time.Millisecond), min, ErrTooShort)
		}
	}

	s.phase = PhaseStopping
	s.mu.Unlock()
	s.emit(PhaseStopping)

	res, err := capture.Stop()
	if err != nil {
		s.fail(err)
		return nil, err
	}

	entry, err := s.st.Save(res.Path, store.Seed{
		Kind:            s.opts.Kind,
		DurationSeconds: res.Duration.Seconds(),
	})
	if err != nil {
		if rmErr := os.Remove(res.Path); rmErr != nil && !os.IsNotExist(rmErr) {
			slog.Debug("Failed to remove unsaved capture file", "file", res.Path, "error", rmErr)
		}
		s.fail(err)
		return nil, err
	}

	s.mu.Lock()
	s.result = &entry
	s.capture = nil
	s.phase = PhaseSaved
	s.mu.Unlock()
	s.emit(PhaseSaved)
	slog.Info("Recording session saved", "id", entry.ID, "duration_seconds", entry.DurationSeconds)
	return &entry, nil
}

// Cancel abandons the session from any non-terminal phase, discarding any
// in-progress capture. It never fails and is a no-op on a finished session.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.phase.Terminal() {
		s.mu.Unlock()
		return
	}
	capture := s.capture
	s.capture = nil
	s.phase = PhaseIdle
	s.mu.Unlock()

	if capture != nil {
		capture.Discard()
	}
	s.emit(PhaseIdle)
	slog.Info("Recording session cancelled")
}

// fail moves the session to its terminal Failed phase, making sure no live
// capture handle is left dangling.
func (s *Session) fail(err error) {
	s.mu.Lock()
	capture := s.capture
	s.capture = nil
	s.failure = err
	s.reason = reasonFor(err)
	s.phase = PhaseFailed
	s.mu.Unlock()

	if capture != nil {
		capture.Discard()
	}
	s.emit(PhaseFailed)
	slog.Error("Recording session failed", "reason", s.Reason(), "error", err)
}

func (s *Session) statusTick(u audio.StatusUpdate) {
	s.mu.Lock()
	s.lastStatus = u
	s.mu.Unlock()
	if s.opts.OnStatus != nil {
		s.opts.OnStatus(u)
	}
}

func (s *Session) emit(p Phase) {
	if s.opts.OnState != nil {
		s.opts.OnState(p)
	}
}

func reasonFor(err error) FailureReason {
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return ReasonPermissionDenied
	case errors.Is(err, audio.ErrDeviceBusy):
		return ReasonDeviceBusy
	case errors.Is(err, audio.ErrInvalidState), errors.Is(err, ErrInvalidState):
		return ReasonInvalidState
	case errors.Is(err, store.ErrInvalidInput):
		return ReasonInvalidInput
	default:
		return ReasonIOError
	}
}

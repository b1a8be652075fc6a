// Package audio drives a microphone input through a capture lifecycle:
// Idle -> Recording <-> Paused -> Stopped, with discard as the escape hatch
// from any non-terminal state. The hardware itself sits behind the Backend
// interface.
package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// State is the lifecycle state of a Capture handle.
type State string

const (
	StateIdle      State = "IDLE"
	StateRecording State = "RECORDING"
	StatePaused    State = "PAUSED"
	StateStopped   State = "STOPPED"
)

// StatusUpdate is one periodic metering tick delivered while capturing.
type StatusUpdate struct {
	Elapsed   time.Duration `json:"elapsed"`
	Amplitude float64       `json:"amplitude"`
}

// StatusFunc receives status ticks. It runs on the capture's timer
// goroutine and must return promptly.
type StatusFunc func(StatusUpdate)

// Result describes a finalized capture: a playable WAV at a temporary
// location and the recorded duration (paused time excluded).
type Result struct {
	Path     string
	Duration time.Duration
}

// statusInterval is the tick period for status callbacks (~10 Hz).
const statusInterval = 100 * time.Millisecond

// Device owns access to one logical capture input. Only one Capture may be
// active at a time; a concurrent Start fails with ErrDeviceBusy instead of
// stealing the hardware handle.
type Device struct {
	backend Backend
	cfg     InputConfig

	mu     sync.Mutex
	active *Capture
}

func NewDevice(backend Backend, cfg InputConfig) *Device {
	return &Device{backend: backend, cfg: cfg}
}

// Backend exposes the underlying platform layer, for device enumeration.
func (d *Device) Backend() Backend { return d.backend }

// Start opens the input and begins recording into a temporary WAV file,
// returning the live capture handle.
func (d *Device) Start(onStatus StatusFunc) (*Capture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active != nil {
		return nil, fmt.Errorf("another capture is active: %w", ErrDeviceBusy)
	}

	if err := d.backend.RequestPermission(); err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}

	f, err := os.CreateTemp(d.cfg.TempDirectory, "respicapture-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create capture file: %w", err)
	}

	w, err := newWAVWriter(f, d.cfg.SampleRate, d.cfg.Channels)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}

	c := &Capture{
		device:    d,
		w:         w,
		path:      f.Name(),
		onStatus:  onStatus,
		state:     StateRecording,
		resumedAt: time.Now(),
		tickStop:  make(chan struct{}),
		tickDone:  make(chan struct{}),
	}

	stream, err := d.backend.OpenInput(d.cfg, c.ingest)
	if err != nil {
		w.Close()
		os.Remove(c.path)
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	c.stream = stream

	if err := stream.Start(); err != nil {
		stream.Stop()
		w.Close()
		os.Remove(c.path)
		return nil, fmt.Errorf("failed to start input: %w", err)
	}

	go c.tickLoop()

	d.active = c
	slog.Info("Capture started", "backend", d.backend.Name(), "sample_rate", d.cfg.SampleRate, "file", c.path)
	return c, nil
}

func (d *Device) release(c *Capture) {
	d.mu.Lock()
	if d.active == c {
		d.active = nil
	}
	d.mu.Unlock()
}

// Capture is a live recording handle. All methods are safe for concurrent
// use; after Stop or Discard the handle is terminal and only state queries
// remain meaningful.
type Capture struct {
	device   *Device
	stream   InputStream
	w        *wavWriter
	path     string
	onStatus StatusFunc

	tickStop chan struct{}
	tickDone chan struct{}

	mu        sync.Mutex
	state     State
	accrued   time.Duration
	resumedAt time.Time
	lastAmp   float64
	writeErr  error
}

// ingest receives PCM periods from the backend's audio thread.
func (c *Capture) ingest(samples []int16) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRecording || c.writeErr != nil {
		return
	}

	if err := c.w.WriteSamples(samples); err != nil {
		c.writeErr = err
		slog.Error("Capture write failed", "file", c.path, "error", err)
		return
	}

	var peak int16
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	c.lastAmp = float64(peak) / 32768
}

// State returns the current lifecycle state.
func (c *Capture) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Elapsed returns the recorded duration so far, excluding paused time.
func (c *Capture) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsedLocked()
}

func (c *Capture) elapsedLocked() time.Duration {
	if c.state == StateRecording {
		return c.accrued + time.Since(c.resumedAt)
	}
	return c.accrued
}

// Amplitude returns the peak level of the most recent period, 0..1.
func (c *Capture) Amplitude() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastAmp
}

// Pause freezes duration accrual and discards incoming data until Resume.
func (c *Capture) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRecording {
		return fmt.Errorf("can only pause while recording, current state %s: %w", c.state, ErrInvalidState)
	}

	c.accrued += time.Since(c.resumedAt)
	c.state = StatePaused
	slog.Debug("Capture paused", "elapsed", c.accrued)
	return nil
}

// Resume continues a paused capture.
func (c *Capture) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePaused {
		return fmt.Errorf("can only resume while paused, current state %s: %w", c.state, ErrInvalidState)
	}

	c.resumedAt = time.Now()
	c.state = StateRecording
	slog.Debug("Capture resumed", "elapsed", c.accrued)
	return nil
}

// Stop finalizes the WAV file and releases the input. The handle is
// terminal afterward.
func (c *Capture) Stop() (Result, error) {
	c.mu.Lock()
	if c.state != StateRecording && c.state != StatePaused {
		state := c.state
		c.mu.Unlock()
		return Result{}, fmt.Errorf("can only stop while recording or paused, current state %s: %w", state, ErrInvalidState)
	}
	if c.state == StateRecording {
		c.accrued += time.Since(c.resumedAt)
	}
	c.state = StateStopped
	duration := c.accrued
	writeErr := c.writeErr
	c.mu.Unlock()

	c.stopTicker()
	c.device.release(c)

	streamErr := c.stream.Stop()
	closeErr := c.w.Close()

	if writeErr != nil {
		return Result{}, fmt.Errorf("capture data was lost: %w", writeErr)
	}
	if streamErr != nil {
		return Result{}, fmt.Errorf("failed to stop input: %w", streamErr)
	}
	if closeErr != nil {
		return Result{}, fmt.Errorf("failed to finalize capture file: %w", closeErr)
	}

	slog.Info("Capture stopped", "file", c.path, "duration", duration)
	return Result{Path: c.path, Duration: duration}, nil
}

// Discard cancels the capture and removes its file. Best effort: safe to
// call from any state, including concurrently with other transitions, and
// never fails. After a successful Stop it does nothing.
func (c *Capture) Discard() {
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return
	}
	c.state = StateStopped
	c.mu.Unlock()

	c.stopTicker()
	c.device.release(c)

	if err := c.stream.Stop(); err != nil {
		slog.Debug("Discard: input stop failed", "error", err)
	}
	if err := c.w.Close(); err != nil {
		slog.Debug("Discard: file close failed", "error", err)
	}
	if err := os.Remove(c.path); err != nil {
		slog.Debug("Discard: file removal failed", "error", err)
	}
	slog.Info("Capture discarded", "file", c.path)
}

func (c *Capture) stopTicker() {
	select {
	case <-c.tickStop:
	default:
		close(c.tickStop)
	}
	<-c.tickDone
}

// tickLoop delivers status updates until the capture reaches a terminal
// state. Callbacks happen here, never on the audio thread.
func (c *Capture) tickLoop() {
	defer close(c.tickDone)

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.tickStop:
			return
		case <-ticker.C:
			if c.onStatus == nil {
				continue
			}
			c.mu.Lock()
			update := StatusUpdate{Elapsed: c.elapsedLocked(), Amplitude: c.lastAmp}
			c.mu.Unlock()
			c.onStatus(update)
		}
	}
}

package audio

import (
	"math"
	"sync"
	"time"
)

// SimBackend synthesizes capture input without hardware. It exists for
// tests and for running on machines with no audio stack; select it with
// backend "sim".
type SimBackend struct {
	// ToneHz is the frequency of the generated sine. Zero produces silence.
	ToneHz float64
	// Amplitude scales the tone, 0..1. Zero defaults to 0.5.
	Amplitude float64
	// DenyPermission makes RequestPermission fail, for exercising the
	// permission path.
	DenyPermission bool
	// PeriodMS overrides the synthetic period size. Zero defaults to
	// capturePeriodMS.
	PeriodMS int
}

func NewSimBackend() *SimBackend {
	return &SimBackend{ToneHz: 440}
}

func (b *SimBackend) Name() string { return "sim" }

func (b *SimBackend) RequestPermission() error {
	if b.DenyPermission {
		return ErrPermissionDenied
	}
	return nil
}

func (b *SimBackend) Close() error { return nil }

func (b *SimBackend) ListCaptureDevices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "sim0", Name: "Simulated microphone", IsDefault: true}}, nil
}

func (b *SimBackend) OpenInput(cfg InputConfig, onData DataFunc) (InputStream, error) {
	periodMS := b.PeriodMS
	if periodMS <= 0 {
		periodMS = capturePeriodMS
	}
	amp := b.Amplitude
	if amp == 0 {
		amp = 0.5
	}
	return &simStream{
		onData:     onData,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		periodMS:   periodMS,
		toneHz:     b.ToneHz,
		amplitude:  amp,
	}, nil
}

// OpenOutput consumes playback data at real-time rate and discards it.
func (b *SimBackend) OpenOutput(cfg InputConfig, fill FillFunc) (OutputStream, error) {
	periodMS := b.PeriodMS
	if periodMS <= 0 {
		periodMS = capturePeriodMS
	}
	return &simOutStream{
		fill:       fill,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		periodMS:   periodMS,
	}, nil
}

type simStream struct {
	onData     DataFunc
	sampleRate int
	channels   int
	periodMS   int
	toneHz     float64
	amplitude  float64

	mu    sync.Mutex
	stop  chan struct{}
	done  chan struct{}
	phase float64
}

func (s *simStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.stop, s.done)
	return nil
}

func (s *simStream) Stop() error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}

func (s *simStream) run(stop chan struct{}, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(time.Duration(s.periodMS) * time.Millisecond)
	defer ticker.Stop()

	frames := s.sampleRate * s.periodMS / 1000
	step := 2 * math.Pi * s.toneHz / float64(s.sampleRate)

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			samples := make([]int16, frames*s.channels)
			for i := 0; i < frames; i++ {
				v := int16(s.amplitude * 32767 * math.Sin(s.phase))
				s.phase += step
				for c := 0; c < s.channels; c++ {
					samples[i*s.channels+c] = v
				}
			}
			s.onData(samples)
		}
	}
}

type simOutStream struct {
	fill       FillFunc
	sampleRate int
	channels   int
	periodMS   int

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func (s *simOutStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.stop, s.done)
	return nil
}

func (s *simOutStream) Stop() error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}

func (s *simOutStream) run(stop chan struct{}, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(time.Duration(s.periodMS) * time.Millisecond)
	defer ticker.Stop()

	frames := s.sampleRate * s.periodMS / 1000
	buf := make([]int16, frames*s.channels)

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.fill(buf)
		}
	}
}

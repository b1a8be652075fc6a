package audio

import (
	"fmt"
	"strings"
)

// InputConfig describes the capture format requested from a backend.
type InputConfig struct {
	SampleRate int
	Channels   int
	// DeviceID selects a specific capture device. Empty means the system
	// default.
	DeviceID string
	// TempDirectory is where in-progress capture files are written. Empty
	// means the OS temp dir.
	TempDirectory string
}

// DeviceInfo identifies one capture device known to the backend.
type DeviceInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
}

// DataFunc receives one period of captured PCM samples. It is called from
// the backend's audio thread and must not block.
type DataFunc func(samples []int16)

// InputStream is an open hardware input delivering data to a DataFunc.
type InputStream interface {
	Start() error
	// Stop halts delivery and releases the hardware input. It is safe to
	// call more than once.
	Stop() error
}

// FillFunc supplies playback samples. It fills out and returns how many
// samples were written; the remainder of the buffer plays as silence. It is
// called from the backend's audio thread and must not block.
type FillFunc func(out []int16) int

// OutputStream is an open hardware output pulling data from a FillFunc.
type OutputStream interface {
	Start() error
	// Stop halts playback and releases the hardware output. It is safe to
	// call more than once.
	Stop() error
}

// OutputBackend is implemented by backends that can also play audio back.
type OutputBackend interface {
	OpenOutput(cfg InputConfig, fill FillFunc) (OutputStream, error)
}

// Backend abstracts the platform audio layer: permission, device
// enumeration, and raw PCM input streams.
type Backend interface {
	Name() string
	RequestPermission() error
	OpenInput(cfg InputConfig, onData DataFunc) (InputStream, error)
	ListCaptureDevices() ([]DeviceInfo, error)
	Close() error
}

// NewBackend creates the backend selected by name: "malgo" (or "auto") for
// the hardware backend, "sim" for the synthetic one.
func NewBackend(name string) (Backend, error) {
	switch strings.ToLower(name) {
	case "", "auto", "malgo":
		return newMalgoBackend()
	case "sim":
		return NewSimBackend(), nil
	default:
		return nil, fmt.Errorf("unknown audio backend: %s", name)
	}
}

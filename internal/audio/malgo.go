//go:build cgo

package audio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// malgoBackend drives real hardware through the malgo (miniaudio) bindings.
type malgoBackend struct {
	ctx *malgo.AllocatedContext
}

func newMalgoBackend() (Backend, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}
	return &malgoBackend{ctx: ctx}, nil
}

func (b *malgoBackend) Name() string { return "malgo" }

// RequestPermission is a no-op on desktop hosts; the context init already
// failed if the audio subsystem is unreachable.
func (b *malgoBackend) RequestPermission() error { return nil }

func (b *malgoBackend) Close() error {
	if err := b.ctx.Uninit(); err != nil {
		return err
	}
	b.ctx.Free()
	return nil
}

func (b *malgoBackend) OpenInput(cfg InputConfig, onData DataFunc) (InputStream, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = capturePeriodMS
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.Alsa.NoMMap = 1

	malgoDeviceID := toMalgoDeviceID(cfg.DeviceID)
	if malgoDeviceID != emptyDeviceID {
		deviceConfig.Capture.DeviceID = malgoDeviceID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			samples := make([]int16, len(input)/2)
			for i := range samples {
				samples[i] = int16(uint16(input[2*i]) | uint16(input[2*i+1])<<8)
			}
			onData(samples)
		},
	}

	device, err := malgo.InitDevice(b.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture device: %w", err)
	}
	return &malgoStream{device: device}, nil
}

func (b *malgoBackend) OpenOutput(cfg InputConfig, fill FillFunc) (OutputStream, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = capturePeriodMS
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(cfg.Channels)
	deviceConfig.Alsa.NoMMap = 1

	malgoDeviceID := toMalgoDeviceID(cfg.DeviceID)
	if malgoDeviceID != emptyDeviceID {
		deviceConfig.Playback.DeviceID = malgoDeviceID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			samples := make([]int16, len(output)/2)
			n := fill(samples)
			for i := 0; i < n; i++ {
				output[2*i] = byte(samples[i])
				output[2*i+1] = byte(samples[i] >> 8)
			}
			for i := 2 * n; i < len(output); i++ {
				output[i] = 0
			}
		},
	}

	device, err := malgo.InitDevice(b.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("failed to open playback device: %w", err)
	}
	return &malgoStream{device: device}, nil
}

func (b *malgoBackend) ListCaptureDevices() ([]DeviceInfo, error) {
	devices, err := b.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, err
	}

	res := make([]DeviceInfo, 0, len(devices))
	seen := make(map[string]struct{}, len(devices))
	for _, dev := range devices {
		full, err := b.ctx.DeviceInfo(malgo.Capture, dev.ID, malgo.Shared)
		if err != nil {
			continue
		}

		id := string(append([]byte(nil), full.ID[:]...))
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		res = append(res, DeviceInfo{
			ID:        id,
			Name:      full.Name(),
			IsDefault: full.IsDefault == 1,
		})
	}
	return res, nil
}

// emptyDeviceID is an unset malgo device id.
var emptyDeviceID malgo.DeviceID

func toMalgoDeviceID(id string) malgo.DeviceID {
	var res malgo.DeviceID
	copy(res[:], id)
	return res
}

// malgoStream wraps one initialized capture device.
type malgoStream struct {
	device *malgo.Device

	mu      sync.Mutex
	stopped bool
}

func (s *malgoStream) Start() error {
	return s.device.Start()
}

func (s *malgoStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true

	err := s.device.Stop()
	s.device.Uninit()
	return err
}

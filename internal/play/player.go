// Package play renders stored recordings through the audio backend's
// playback side.
package play

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/respirelab/respicapture/internal/audio"
)

// Player plays WAV files on a backend that supports output.
type Player struct {
	backend audio.Backend
}

func New(backend audio.Backend) *Player {
	return &Player{backend: backend}
}

// PlayFile plays the file to completion or until ctx is cancelled.
func (p *Player) PlayFile(ctx context.Context, path string) error {
	out, ok := p.backend.(audio.OutputBackend)
	if !ok {
		return fmt.Errorf("audio backend %s does not support playback", p.backend.Name())
	}

	samples, sampleRate, err := audio.ReadWAV(path)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}

	pcm := make([]int16, len(samples))
	for i, v := range samples {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		pcm[i] = int16(v * 32767)
	}

	// pos is only touched from the backend's audio thread.
	var pos int
	var once sync.Once
	drained := make(chan struct{})
	fill := func(buf []int16) int {
		n := copy(buf, pcm[pos:])
		pos += n
		if pos >= len(pcm) {
			once.Do(func() { close(drained) })
		}
		return n
	}

	stream, err := out.OpenOutput(audio.InputConfig{
		SampleRate: sampleRate,
		Channels:   1,
	}, fill)
	if err != nil {
		return fmt.Errorf("failed to open playback: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Stop()
		return fmt.Errorf("failed to start playback: %w", err)
	}
	defer stream.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-drained:
		// Let the last buffered period reach the speaker.
		time.Sleep(200 * time.Millisecond)
		return nil
	}
}

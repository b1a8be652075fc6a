package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// wavHeaderSize is the fixed PCM header: RIFF chunk + fmt chunk + data
// chunk header.
const wavHeaderSize = 44

// wavWriter streams 16-bit PCM into a file, patching the RIFF sizes on
// Close. The file is not a valid WAV until Close succeeds.
type wavWriter struct {
	f          *os.File
	sampleRate int
	channels   int
	dataBytes  uint32
}

func newWAVWriter(f *os.File, sampleRate, channels int) (*wavWriter, error) {
	w := &wavWriter{f: f, sampleRate: sampleRate, channels: channels}
	// Placeholder header; sizes are rewritten on Close.
	if err := w.writeHeader(); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	return w, nil
}

func (w *wavWriter) writeHeader() error {
	var hdr [wavHeaderSize]byte
	byteRate := w.sampleRate * w.channels * 2
	blockAlign := w.channels * 2

	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], 36+w.dataBytes)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(hdr[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(w.channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(w.sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(hdr[34:36], 16) // bits per sample
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], w.dataBytes)

	if _, err := w.f.WriteAt(hdr[:], 0); err != nil {
		return err
	}
	return nil
}

func (w *wavWriter) WriteSamples(samples []int16) error {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
	}
	if _, err := w.f.WriteAt(buf, int64(wavHeaderSize+w.dataBytes)); err != nil {
		return err
	}
	w.dataBytes += uint32(len(buf))
	return nil
}

// Close finalizes the header and closes the file.
func (w *wavWriter) Close() error {
	if err := w.writeHeader(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// ReadWAV loads a 16-bit PCM WAV file, downmixing multi-channel audio to
// mono, and returns samples normalized into [-1, 1] plus the sample rate.
func ReadWAV(path string) ([]float64, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read WAV file: %w", err)
	}
	if len(data) < wavHeaderSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("%s: not a RIFF/WAVE file", path)
	}

	var (
		sampleRate int
		channels   int
		bits       int
		pcm        []byte
	)

	// Walk the chunk list; fmt must precede data.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			return nil, 0, fmt.Errorf("%s: truncated %q chunk", path, id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("%s: short fmt chunk", path)
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return nil, 0, fmt.Errorf("%s: unsupported WAV format %d (want PCM)", path, format)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcm = data[body : body+size]
		}

		// Chunks are word-aligned.
		off = body + size + size%2
	}

	if sampleRate == 0 || channels == 0 {
		return nil, 0, fmt.Errorf("%s: missing fmt chunk", path)
	}
	if bits != 16 {
		return nil, 0, fmt.Errorf("%s: unsupported bit depth %d (want 16)", path, bits)
	}
	if pcm == nil {
		return nil, 0, fmt.Errorf("%s: missing data chunk: %w", path, io.ErrUnexpectedEOF)
	}

	frameCount := len(pcm) / (2 * channels)
	samples := make([]float64, frameCount)
	for i := 0; i < frameCount; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			v := int16(binary.LittleEndian.Uint16(pcm[(i*channels+c)*2:]))
			sum += float64(v)
		}
		samples[i] = sum / float64(channels) / 32768
	}

	return samples, sampleRate, nil
}

// Package audio encodes generated waveforms as WAV files and applies
// optional post-processing to the float PCM before encoding.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/cwbudde/wav"
	goaudio "github.com/go-audio/audio"
)

const (
	// BitDepth is the output PCM bit depth.
	BitDepth = 16
	// Channels is the output channel count; generation is mono.
	Channels = 1

	// pcmScale converts between full-scale float samples and int16 PCM.
	// The encoder maps +/-1.0 to +/-32767, leaving the extra negative int16
	// step unused, so decode divides by the same value to stay symmetric.
	pcmScale = 32767
)

// EncodeWAV encodes float32 PCM samples as a mono 16-bit WAV byte slice.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if sampleRate < 1 {
		return nil, fmt.Errorf("audio: invalid sample rate %d", sampleRate)
	}

	if len(samples) == 0 {
		return nil, errors.New("audio: no samples to encode")
	}

	var buf bytes.Buffer

	// wav.NewEncoder requires an io.WriteSeeker; bytes.Buffer is not one.
	// Use a seekable wrapper.
	sw := &seekBuffer{buf: &buf}

	enc := wav.NewEncoder(sw, sampleRate, BitDepth, Channels, 1) // 1 = PCM

	pcmBuf := &goaudio.Float32Buffer{
		Data:           samples,
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: Channels},
		SourceBitDepth: BitDepth,
	}

	if err := enc.Write(pcmBuf); err != nil {
		return nil, fmt.Errorf("audio: writing PCM: %w", err)
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("audio: closing encoder: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteWAVFile encodes samples and writes them to path.
func WriteWAVFile(path string, samples []float32, sampleRate int) error {
	data, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("audio: write %s: %w", path, err)
	}

	return nil
}

// DecodeWAVPCM16 parses a mono 16-bit PCM WAV byte slice back into float
// samples and its sample rate.
func DecodeWAVPCM16(data []byte) ([]float32, int, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, errors.New("audio: not a RIFF/WAVE payload")
	}

	var (
		sampleRate int
		pcm        []byte
	)

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])

		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		pos += 8

		if pos+size > len(data) {
			return nil, 0, fmt.Errorf("audio: chunk %q exceeds payload", id)
		}

		chunk := data[pos : pos+size]

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("audio: fmt chunk too short (%d bytes)", size)
			}

			format := binary.LittleEndian.Uint16(chunk[0:2])
			channels := binary.LittleEndian.Uint16(chunk[2:4])
			bits := binary.LittleEndian.Uint16(chunk[14:16])

			if format != 1 || channels != Channels || bits != BitDepth {
				return nil, 0, fmt.Errorf("audio: want mono 16-bit PCM, got format=%d channels=%d bits=%d", format, channels, bits)
			}

			sampleRate = int(binary.LittleEndian.Uint32(chunk[4:8]))
		case "data":
			pcm = chunk
		}

		// Chunks are word aligned.
		pos += size + size%2
	}

	if sampleRate == 0 || pcm == nil {
		return nil, 0, errors.New("audio: missing fmt or data chunk")
	}

	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = float32(v) / pcmScale
	}

	return samples, sampleRate, nil
}

// seekBuffer wraps a bytes.Buffer to satisfy io.WriteSeeker.
type seekBuffer struct {
	buf *bytes.Buffer
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	// If writing at the end, just append.
	if s.pos == s.buf.Len() {
		n, err := s.buf.Write(p)
		s.pos += n

		return n, err
	}

	// Writing in the middle: overwrite existing bytes.
	data := s.buf.Bytes()

	n := copy(data[s.pos:], p)
	if n < len(p) {
		// Extend the buffer for the remainder.
		data = append(data, p[n:]...)
		s.buf.Reset()
		s.buf.Write(data)
		n = len(p)
	}

	s.pos += n

	return n, nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var newPos int

	switch whence {
	case 0: // io.SeekStart
		newPos = int(offset)
	case 1: // io.SeekCurrent
		newPos = s.pos + int(offset)
	case 2: // io.SeekEnd
		newPos = s.buf.Len() + int(offset)
	}

	if newPos < 0 {
		return 0, fmt.Errorf("seek before start")
	}

	s.pos = newPos

	return int64(newPos), nil
}

package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	bitDepth      = 16
	pcmFormat     = 1 // WAVE_FORMAT_PCM
	monoChannels  = 1
	maxSampleRate = 384000
)

// ErrNotWAV is returned when a file has no valid RIFF/WAVE header.
var ErrNotWAV = errors.New("not a valid WAV file")

// PCM is a decoded 16-bit waveform.
type PCM struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// WriteWAV writes mono 16-bit PCM samples to path. The file is created in
// the same directory under a temporary name and renamed into place once the
// header is finalized.
func WriteWAV(path string, samples []int16, sampleRate int) error {
	if sampleRate <= 0 || sampleRate > maxSampleRate {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".narrate-*.wav")
	if err != nil {
		return fmt.Errorf("failed to create WAV file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	enc := wav.NewEncoder(tmp, sampleRate, bitDepth, monoChannels, pcmFormat)

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: monoChannels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}

	if err := enc.Write(buf); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to finalize WAV header: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close WAV file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move WAV into place: %w", err)
	}
	return nil
}

// ReadWAV decodes a 16-bit PCM WAV file.
func ReadWAV(path string) (*PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s: %w", path, ErrNotWAV)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if dec.BitDepth != bitDepth {
		return nil, fmt.Errorf("%s: unsupported bit depth %d", path, dec.BitDepth)
	}

	samples := make([]int16, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = int16(s)
	}
	return &PCM{
		Samples:    samples,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}, nil
}

// Duration returns the playing time of the waveform in seconds.
func (p *PCM) Duration() float64 {
	if p.SampleRate <= 0 || p.Channels <= 0 {
		return 0
	}
	return float64(len(p.Samples)) / float64(p.Channels) / float64(p.SampleRate)
}

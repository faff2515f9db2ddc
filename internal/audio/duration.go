package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 always decodes to 16-bit stereo.
const mp3BytesPerFrame = 4

// MP3Duration returns the length of an MP3 file in seconds.
func MP3Duration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return 0, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	length := dec.Length()
	if length < 0 || dec.SampleRate() <= 0 {
		return 0, fmt.Errorf("%s: length unknown", path)
	}
	return float64(length) / mp3BytesPerFrame / float64(dec.SampleRate()), nil
}

// Prober measures audio files by extension.
type Prober struct{}

// Duration returns the length of an MP3 or WAV file in seconds.
func (Prober) Duration(path string) (float64, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		pcm, err := ReadWAV(path)
		if err != nil {
			return 0, err
		}
		return pcm.Duration(), nil
	}
	return MP3Duration(path)
}

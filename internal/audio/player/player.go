//go:build cgo && !nocgo

package player

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"

	"github.com/dgnsrekt/narrate/internal/audio"
)

// oto allows a single context per process, fixed to its first format.
var (
	otoOnce     sync.Once
	otoCtx      *oto.Context
	otoErr      error
	otoRate     int
	otoChannels int
)

func otoContext(sampleRate, channels int) (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready
		otoCtx, otoRate, otoChannels = ctx, sampleRate, channels
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if sampleRate != otoRate || channels != otoChannels {
		return nil, fmt.Errorf("audio device already opened at %d Hz/%d ch", otoRate, otoChannels)
	}
	return otoCtx, nil
}

// Play plays an MP3 or WAV file and blocks until it ends or ctx is done.
func Play(ctx context.Context, path string) error {
	stream, rate, channels, closer, err := openStream(path)
	if err != nil {
		return err
	}
	defer closer.Close()

	octx, err := otoContext(rate, channels)
	if err != nil {
		return err
	}

	player := octx.NewPlayer(stream)
	defer player.Close()
	player.Play()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return player.Err()
}

func openStream(path string) (io.Reader, int, int, io.Closer, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		pcm, err := audio.ReadWAV(path)
		if err != nil {
			return nil, 0, 0, nil, err
		}
		var buf bytes.Buffer
		if err := binary.Write(&buf, binary.LittleEndian, pcm.Samples); err != nil {
			return nil, 0, 0, nil, err
		}
		return &buf, pcm.SampleRate, pcm.Channels, io.NopCloser(nil), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, nil, err
	}
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, 0, 0, nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return dec, dec.SampleRate(), 2, f, nil
}

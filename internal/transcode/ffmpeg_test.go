package transcode

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/dgnsrekt/narrate/internal/audio"
	"github.com/dgnsrekt/narrate/tts"
)

var _ tts.Transcoder = (*FFmpeg)(nil)

func TestArgs(t *testing.T) {
	f := New(tts.FFmpegConfig{Bitrate: "128k"}, nil)
	got := f.Args("in.wav", "out.mp3")
	want := []string{"-y", "-loglevel", "error", "-i", "in.wav", "-codec:a", "libmp3lame", "-b:a", "128k", "-f", "mp3", "out.mp3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Args() = %v, want %v", got, want)
	}
}

func TestNewDefaults(t *testing.T) {
	f := New(tts.FFmpegConfig{}, nil)
	if f.bitrate != "192k" {
		t.Errorf("default bitrate = %s, want 192k", f.bitrate)
	}
	if f.executor.config.Timeout != DefaultTimeoutConfig().Timeout {
		t.Errorf("default timeout = %v", f.executor.config.Timeout)
	}
}

func TestDetectMissing(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	if _, err := exec.LookPath("/usr/bin/ffmpeg"); err == nil {
		t.Skip("ffmpeg installed in a common location")
	}
	if _, err := exec.LookPath("/usr/local/bin/ffmpeg"); err == nil {
		t.Skip("ffmpeg installed in a common location")
	}
	if _, err := exec.LookPath("/opt/homebrew/bin/ffmpeg"); err == nil {
		t.Skip("ffmpeg installed in a common location")
	}

	_, err := Detect("/nowhere/ffmpeg")
	if !errors.Is(err, tts.ErrTranscoderNotFound) {
		t.Fatalf("expected ErrTranscoderNotFound, got %v", err)
	}
	if !tts.IsKind(err, tts.KindIO) {
		t.Errorf("expected IO kind, got %v", tts.KindOf(err))
	}
}

func requireFFmpeg(t *testing.T) string {
	t.Helper()
	path, err := Detect("")
	if err != nil {
		t.Skip("ffmpeg not available")
	}
	return path
}

func TestConvert(t *testing.T) {
	requireFFmpeg(t)

	dir := t.TempDir()
	wavPath := filepath.Join(dir, "in.wav")
	mp3Path := filepath.Join(dir, "out.mp3")

	samples := make([]int16, 24000)
	for i := range samples {
		samples[i] = int16((i % 100) * 300)
	}
	if err := audio.WriteWAV(wavPath, samples, 24000); err != nil {
		t.Fatal(err)
	}

	f := New(tts.FFmpegConfig{Bitrate: "64k", Timeout: 30 * time.Second}, nil)
	if err := f.Convert(context.Background(), wavPath, mp3Path); err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	d, err := audio.MP3Duration(mp3Path)
	if err != nil {
		t.Fatalf("output is not a readable mp3: %v", err)
	}
	if d < 0.9 || d > 1.2 {
		t.Errorf("duration = %v, want about 1s", d)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("expected only in.wav and out.mp3, got %v", entries)
	}
}

func TestConvertBadInput(t *testing.T) {
	requireFFmpeg(t)

	dir := t.TempDir()
	wavPath := filepath.Join(dir, "bad.wav")
	mp3Path := filepath.Join(dir, "out.mp3")
	if err := os.WriteFile(wavPath, []byte("not audio"), 0o600); err != nil {
		t.Fatal(err)
	}

	f := New(tts.FFmpegConfig{Bitrate: "64k", Timeout: 30 * time.Second}, nil)
	err := f.Convert(context.Background(), wavPath, mp3Path)
	if !tts.IsKind(err, tts.KindIO) {
		t.Fatalf("expected IO error, got %v", err)
	}
	if _, statErr := os.Stat(mp3Path); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("failed conversion left an output file behind")
	}
}

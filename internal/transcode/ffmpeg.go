// Package transcode converts intermediate WAV files to MP3 with ffmpeg.
package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/narrate/tts"
)

// candidatePaths lists where ffmpeg usually lives when it is not on PATH.
var candidatePaths = []string{
	"ffmpeg",
	"/usr/local/bin/ffmpeg",
	"/usr/bin/ffmpeg",
	"/opt/homebrew/bin/ffmpeg", // macOS ARM
}

// FFmpeg implements tts.Transcoder by shelling out to ffmpeg with libmp3lame.
type FFmpeg struct {
	binary   string
	bitrate  string
	executor *TimeoutExecutor
	logger   *log.Logger

	once     sync.Once
	resolved string
	err      error
}

// New creates an FFmpeg transcoder. The binary is located on first use.
func New(cfg tts.FFmpegConfig, logger *log.Logger) *FFmpeg {
	if logger == nil {
		logger = log.Default()
	}
	timeouts := DefaultTimeoutConfig()
	if cfg.Timeout > 0 {
		timeouts.Timeout = cfg.Timeout
	}
	bitrate := cfg.Bitrate
	if bitrate == "" {
		bitrate = "192k"
	}
	return &FFmpeg{
		binary:   cfg.Binary,
		bitrate:  bitrate,
		executor: NewTimeoutExecutor(timeouts, logger),
		logger:   logger,
	}
}

// Args returns the ffmpeg arguments used to encode wavPath into mp3Path.
func (f *FFmpeg) Args(wavPath, mp3Path string) []string {
	return []string{
		"-y",
		"-loglevel", "error",
		"-i", wavPath,
		"-codec:a", "libmp3lame",
		"-b:a", f.bitrate,
		"-f", "mp3",
		mp3Path,
	}
}

// Convert encodes wavPath to mp3Path. The MP3 is written under a temporary
// name and renamed, so a failed run never leaves a truncated file at mp3Path.
func (f *FFmpeg) Convert(ctx context.Context, wavPath, mp3Path string) error {
	binary, err := f.Binary()
	if err != nil {
		return err
	}

	tmp := filepath.Join(filepath.Dir(mp3Path), "."+filepath.Base(mp3Path)+".part")
	defer os.Remove(tmp)

	var stderr bytes.Buffer
	cmd := exec.Command(binary, f.Args(wavPath, tmp)...)
	cmd.Stderr = &stderr

	start := time.Now()
	if err := f.executor.Run(ctx, cmd); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		f.logger.Error("ffmpeg conversion failed", "input", wavPath, "error", err, "stderr", msg)
		if msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return tts.NewError(tts.KindIO, "transcoder", "convert", err).WithContext("input", wavPath)
	}

	if err := os.Rename(tmp, mp3Path); err != nil {
		return tts.NewError(tts.KindIO, "transcoder", "rename", err)
	}
	f.logger.Debug("Transcoded", "output", mp3Path, "bitrate", f.bitrate, "took", time.Since(start))
	return nil
}

// Binary returns the resolved ffmpeg path, detecting it on first call.
func (f *FFmpeg) Binary() (string, error) {
	f.once.Do(func() {
		f.resolved, f.err = Detect(f.binary)
		if f.err == nil {
			f.logger.Debug("Found ffmpeg", "path", f.resolved)
		}
	})
	return f.resolved, f.err
}

// Detect locates a working ffmpeg. A preferred binary, if given, is tried
// first; then PATH and common install locations.
func Detect(preferred string) (string, error) {
	candidates := candidatePaths
	if preferred != "" && preferred != "ffmpeg" {
		candidates = append([]string{preferred}, candidatePaths...)
	}

	for _, c := range candidates {
		path, err := exec.LookPath(c)
		if err != nil {
			continue
		}
		if _, err := Version(path); err == nil {
			return path, nil
		}
	}
	return "", tts.NewError(tts.KindIO, "transcoder", "detect",
		fmt.Errorf("%w: install ffmpeg with your package manager (apt/brew/etc)", tts.ErrTranscoderNotFound))
}

// Version returns the first line of `ffmpeg -version`.
func Version(binary string) (string, error) {
	out, err := exec.Command(binary, "-version").CombinedOutput()
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(out), "\n")
	if !strings.Contains(line, "ffmpeg") {
		return "", errors.New("not an ffmpeg binary")
	}
	return strings.TrimSpace(line), nil
}

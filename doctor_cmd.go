package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/narrate/internal/transcode"
	"github.com/dgnsrekt/narrate/tts"
	"github.com/dgnsrekt/narrate/tts/engines/fastapi"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that ffmpeg, Python and the model files are usable",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

// check is one doctor line. Warnings do not fail the command.
type check struct {
	name   string
	detail string
	err    error
	warn   bool
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printChecks([]check{{name: "configuration", err: err}})
		return err
	}

	checks := []check{{name: "configuration", detail: fmt.Sprintf("engine %s, voice %s, lang %s", cfg.Engine, cfg.Voice, cfg.Lang)}}
	checks = append(checks, checkFFmpeg(cfg.FFmpeg))
	switch cfg.Engine {
	case "fastapi":
		checks = append(checks, checkFastAPI(cmd.Context(), cfg.FastAPI))
	default:
		checks = append(checks, checkPython(cmd.Context(), cfg.ONNX))
		checks = append(checks, checkModels(cfg.Models)...)
	}
	checks = append(checks, checkCacheDir(cfg.CacheDir))

	printChecks(checks)
	for _, c := range checks {
		if c.err != nil && !c.warn {
			return errors.New("some checks failed")
		}
	}
	return nil
}

func printChecks(checks []check) {
	for _, c := range checks {
		switch {
		case c.err != nil && c.warn:
			fmt.Printf("%s %-14s %s\n", warnMark, c.name, c.err)
		case c.err != nil:
			fmt.Printf("%s %-14s %s\n", failMark, c.name, c.err)
		default:
			fmt.Printf("%s %-14s %s\n", okMark, c.name, faint(c.detail))
		}
	}
}

func checkFFmpeg(cfg tts.FFmpegConfig) check {
	c := check{name: "ffmpeg"}
	path, err := transcode.Detect(cfg.Binary)
	if err != nil {
		c.err = err
		return c
	}
	version, err := transcode.Version(path)
	if err != nil {
		c.err = err
		return c
	}
	c.detail = fmt.Sprintf("%s (%s)", path, version)
	return c
}

func checkPython(ctx context.Context, cfg tts.ONNXConfig) check {
	c := check{name: "kokoro-onnx"}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, cfg.Python, "-c",
		"import importlib.metadata as m, numpy, kokoro_onnx; print(m.version('kokoro-onnx'))").CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if i := strings.LastIndex(msg, "\n"); i >= 0 {
			msg = msg[i+1:]
		}
		if msg == "" {
			msg = err.Error()
		}
		c.err = fmt.Errorf("%s: %s (pip install kokoro-onnx)", cfg.Python, msg)
		return c
	}
	c.detail = fmt.Sprintf("%s, kokoro-onnx %s", cfg.Python, strings.TrimSpace(string(out)))
	return c
}

func checkModels(cfg tts.ModelsConfig) []check {
	modelPath, voicesPath := cfg.ModelFiles()
	var checks []check
	for _, path := range []string{modelPath, voicesPath} {
		c := check{name: "model file"}
		info, err := os.Stat(path)
		if err != nil {
			// Downloaded on first use.
			c.err = fmt.Errorf("%s missing, run narrate assets", path)
			c.warn = true
		} else {
			c.detail = fmt.Sprintf("%s (%s)", path, humanize.Bytes(uint64(info.Size())))
		}
		checks = append(checks, c)
	}
	return checks
}

func checkFastAPI(ctx context.Context, cfg tts.FastAPIConfig) check {
	c := check{name: "fastapi"}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := strings.TrimRight(cfg.Endpoint, "/") + "/v1/audio/voices"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.err = err
		return c
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.err = fmt.Errorf("%s unreachable: %w", cfg.Endpoint, err)
		return c
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.err = fmt.Errorf("%s: %s", url, resp.Status)
		return c
	}
	c.detail = fmt.Sprintf("%s (%d Hz pcm)", cfg.Endpoint, fastapi.SampleRate)
	return c
}

func checkCacheDir(dir string) check {
	c := check{name: "cache dir", detail: dir}
	if err := tts.ValidateCacheDir(dir); err != nil {
		c.err = err
		return c
	}
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		c.detail = dir + " (created on first narration)"
	}
	return c
}

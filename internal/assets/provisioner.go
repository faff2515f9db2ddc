// Package assets downloads the Kokoro model files on first use.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/narrate/tts"
)

// ReleaseURL is the kokoro-onnx release holding the model files.
const ReleaseURL = "https://github.com/thewh1teagle/kokoro-onnx/releases/download/model-files"

// ProgressFunc is called while a file downloads. It is only called when the
// server reports a Content-Length.
type ProgressFunc func(name string, downloaded, total int64)

// Recorder counts downloaded bytes.
type Recorder interface {
	Downloaded(name string, bytes int64)
}

// Options configures a Provisioner.
type Options struct {
	Client   *http.Client
	BaseURL  string        // defaults to ReleaseURL
	Progress ProgressFunc  // optional
	Interval time.Duration // minimum time between progress callbacks
	Recorder Recorder      // optional
	Logger   *log.Logger
}

// Provisioner implements tts.Provisioner over HTTP.
type Provisioner struct {
	client   *http.Client
	baseURL  string
	progress ProgressFunc
	interval time.Duration
	recorder Recorder
	logger   *log.Logger
}

// New creates a Provisioner.
func New(opts Options) *Provisioner {
	p := &Provisioner{
		client:   opts.Client,
		baseURL:  opts.BaseURL,
		progress: opts.Progress,
		interval: opts.Interval,
		recorder: opts.Recorder,
		logger:   opts.Logger,
	}
	if p.client == nil {
		// No overall timeout: the model is hundreds of megabytes.
		p.client = &http.Client{}
	}
	if p.baseURL == "" {
		p.baseURL = ReleaseURL
	}
	if p.interval <= 0 {
		p.interval = 250 * time.Millisecond
	}
	if p.logger == nil {
		p.logger = log.Default()
	}
	return p
}

// URL returns the download URL for a model file name.
func (p *Provisioner) URL(name string) string {
	return p.baseURL + "/" + name
}

// EnsureAssets returns the model and voice bank paths, downloading whichever
// is missing. Empty paths default to the release file names in the working
// directory. Files already present cause no network traffic.
func (p *Provisioner) EnsureAssets(ctx context.Context, modelPath, voicesPath string) (tts.ModelAssetPair, error) {
	if modelPath == "" {
		modelPath = tts.DefaultModelFile
	}
	if voicesPath == "" {
		voicesPath = tts.DefaultVoicesFile
	}

	for _, a := range []struct{ name, path string }{
		{tts.DefaultModelFile, modelPath},
		{tts.DefaultVoicesFile, voicesPath},
	} {
		if exists(a.path) {
			continue
		}
		p.logger.Info("Downloading model file", "file", a.name, "to", a.path)
		if err := p.Download(ctx, a.name, a.path); err != nil {
			return tts.ModelAssetPair{}, err
		}
	}

	return tts.ModelAssetPair{ModelPath: modelPath, VoicesPath: voicesPath}, nil
}

// Download streams the release file name to path. Bytes go to path+".part",
// which is renamed once the body is complete. No retry is attempted.
func (p *Provisioner) Download(ctx context.Context, name, path string) error {
	url := p.URL(name)
	fail := func(action string, err error) error {
		return tts.NewError(tts.KindAssetProvisioning, "assets", action,
			fmt.Errorf("%w: %s: %w", tts.ErrAssetDownload, name, err)).WithContext("url", url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fail("request", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fail("fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fail("fetch", fmt.Errorf("unexpected status %s", resp.Status))
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fail("mkdir", err)
		}
	}

	part := path + ".part"
	out, err := os.Create(part)
	if err != nil {
		return fail("create", err)
	}

	start := time.Now()
	counter := &progressWriter{
		name:      name,
		total:     resp.ContentLength,
		report:    p.progress,
		sometimes: rate.Sometimes{Interval: p.interval},
	}
	n, err := io.Copy(out, io.TeeReader(resp.Body, counter))
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && resp.ContentLength > 0 && n != resp.ContentLength {
		err = fmt.Errorf("short body: got %d of %d bytes", n, resp.ContentLength)
	}
	if err != nil {
		// The .part file stays behind for inspection; the next run starts over.
		return fail("write", err)
	}
	counter.finish()

	if err := os.Rename(part, path); err != nil {
		return fail("rename", err)
	}
	if p.recorder != nil {
		p.recorder.Downloaded(name, n)
	}
	p.logger.Info("Downloaded model file", "file", name, "bytes", n, "took", time.Since(start).Round(time.Millisecond))
	return nil
}

// AssetStatus describes one model file.
type AssetStatus struct {
	Name       string
	Path       string
	URL        string
	Present    bool
	LocalSize  int64
	RemoteSize int64 // -1 when unknown
}

// Status reports which files are present and how large the missing ones are.
// Remote sizes come from HEAD requests; a failing HEAD leaves the size at -1.
func (p *Provisioner) Status(ctx context.Context, modelPath, voicesPath string) ([]AssetStatus, error) {
	if modelPath == "" {
		modelPath = tts.DefaultModelFile
	}
	if voicesPath == "" {
		voicesPath = tts.DefaultVoicesFile
	}

	var statuses []AssetStatus
	for _, a := range []struct{ name, path string }{
		{tts.DefaultModelFile, modelPath},
		{tts.DefaultVoicesFile, voicesPath},
	} {
		st := AssetStatus{Name: a.name, Path: a.path, URL: p.URL(a.name), RemoteSize: -1}
		if info, err := os.Stat(a.path); err == nil {
			st.Present = true
			st.LocalSize = info.Size()
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		if !st.Present {
			st.RemoteSize = p.remoteSize(ctx, st.URL)
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

func (p *Provisioner) remoteSize(ctx context.Context, url string) int64 {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return -1
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("HEAD failed", "url", url, "error", err)
		return -1
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return -1
	}
	return resp.ContentLength
}

// progressWriter counts bytes and reports them at most once per interval.
type progressWriter struct {
	name      string
	total     int64
	written   int64
	report    ProgressFunc
	sometimes rate.Sometimes
}

func (w *progressWriter) Write(b []byte) (int, error) {
	w.written += int64(len(b))
	if w.report != nil && w.total > 0 {
		w.sometimes.Do(func() {
			w.report(w.name, w.written, w.total)
		})
	}
	return len(b), nil
}

// finish reports the final count so callers always see 100%.
func (w *progressWriter) finish() {
	if w.report != nil && w.total > 0 {
		w.report(w.name, w.written, w.total)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

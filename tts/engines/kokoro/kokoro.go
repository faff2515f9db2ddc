// Package kokoro runs Kokoro ONNX synthesis in a long-lived Python worker
// (kokoro-onnx) and exchanges JSON lines with it over stdin/stdout.
package kokoro

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/narrate/tts"
)

//go:embed worker.py
var workerSource string

// WorkerSource returns the embedded worker script.
func WorkerSource() string {
	return workerSource
}

// Options configures the worker.
type Options struct {
	Python         string        // interpreter, default python3
	Script         string        // worker script path; empty runs the embedded one
	StartupTimeout time.Duration // model load budget
	RequestTimeout time.Duration // per-request budget
	Logger         *log.Logger

	// command builds the worker process; tests replace it.
	command func(model, voices string) *exec.Cmd
}

// OptionsFromConfig maps the onnx section of the configuration.
func OptionsFromConfig(cfg tts.ONNXConfig, logger *log.Logger) Options {
	return Options{
		Python:         cfg.Python,
		Script:         cfg.Script,
		StartupTimeout: cfg.StartupTimeout,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	}
}

func (o *Options) setDefaults() {
	if o.Python == "" {
		o.Python = "python3"
	}
	if o.StartupTimeout <= 0 {
		o.StartupTimeout = 2 * time.Minute
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 5 * time.Minute
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	if o.command == nil {
		python, script := o.Python, o.Script
		o.command = func(model, voices string) *exec.Cmd {
			if script != "" {
				return exec.Command(python, "-u", script, model, voices)
			}
			return exec.Command(python, "-u", "-c", workerSource, model, voices)
		}
	}
}

// Factory returns a tts.EngineFactory that starts a worker for the assets.
func Factory(opts Options) tts.EngineFactory {
	return func(ctx context.Context, assets tts.ModelAssetPair) (tts.Engine, error) {
		return New(ctx, assets, opts)
	}
}

type handshake struct {
	Ready      bool   `json:"ready"`
	SampleRate int    `json:"sample_rate"`
	Error      string `json:"error"`
}

type request struct {
	ID    uint64  `json:"id"`
	Text  string  `json:"text"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
	Lang  string  `json:"lang"`
}

type response struct {
	ID         uint64 `json:"id"`
	OK         bool   `json:"ok"`
	SampleRate int    `json:"sample_rate"`
	Samples    string `json:"samples"`
	Error      string `json:"error"`
}

// Engine implements tts.Engine on top of the worker process.
type Engine struct {
	opts   Options
	logger *log.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan []byte
	done   chan struct{} // closed when stdout ends
	quit   chan struct{} // closed when the engine shuts down
	stop   sync.Once
	stderr *tailBuffer

	mu      sync.Mutex // one request in flight
	nextID  uint64
	closed  bool // no further requests
	stopped bool // Close has run
}

// New starts the worker and waits for it to load the model. A missing
// interpreter, a missing kokoro_onnx package or unreadable model files fail
// here.
func New(ctx context.Context, assets tts.ModelAssetPair, opts Options) (*Engine, error) {
	opts.setDefaults()

	cmd := opts.command(assets.ModelPath, assets.VoicesPath)
	stderr := newTailBuffer(8 << 10)
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start kokoro worker: %w", err)
	}

	e := &Engine{
		opts:   opts,
		logger: opts.Logger,
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan []byte),
		done:   make(chan struct{}),
		quit:   make(chan struct{}),
		stderr: stderr,
	}
	go e.readLoop(stdout)

	start := time.Now()
	line, err := e.next(ctx, opts.StartupTimeout)
	if err != nil {
		e.kill()
		return nil, e.startupError(err)
	}
	var hs handshake
	if err := json.Unmarshal(line, &hs); err != nil {
		e.kill()
		return nil, e.startupError(fmt.Errorf("bad handshake %q: %w", truncate(string(line), 120), err))
	}
	if !hs.Ready {
		e.kill()
		return nil, e.startupError(errors.New(hs.Error))
	}

	e.logger.Debug("Kokoro worker ready", "pid", cmd.Process.Pid, "took", time.Since(start))
	return e, nil
}

// Create synthesizes text. Requests are serialized; the worker handles one
// at a time.
func (e *Engine) Create(ctx context.Context, text, voice string, speed float64, lang string) (*tts.Samples, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, tts.ErrEngineShutdown
	}

	e.nextID++
	id := e.nextID
	payload, err := json.Marshal(request{ID: id, Text: text, Voice: voice, Speed: speed, Lang: lang})
	if err != nil {
		return nil, err
	}
	if _, err := e.stdin.Write(append(payload, '\n')); err != nil {
		return nil, e.workerGone(err)
	}

	for {
		line, err := e.next(ctx, e.opts.RequestTimeout)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, e.workerGone(err)
			}
			return nil, err
		}

		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			return nil, fmt.Errorf("bad worker response: %w", err)
		}
		if resp.ID != id {
			// Left over from a request whose caller gave up.
			e.logger.Debug("Discarding stale worker response", "id", resp.ID, "want", id)
			continue
		}
		if !resp.OK {
			return nil, fmt.Errorf("kokoro: %s", strings.TrimSpace(resp.Error))
		}

		data, err := decodeSamples(resp.Samples)
		if err != nil {
			return nil, err
		}
		return &tts.Samples{Data: data, SampleRate: resp.SampleRate}, nil
	}
}

// Close stops the worker: stdin is closed so it exits on its own, then it
// is interrupted and finally killed.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	e.closed = true
	e.mu.Unlock()

	e.stop.Do(func() { close(e.quit) })
	e.stdin.Close()

	waited := make(chan error, 1)
	go func() { waited <- e.cmd.Wait() }()

	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		e.cmd.Process.Signal(os.Interrupt)
		select {
		case <-waited:
		case <-time.After(time.Second):
			e.cmd.Process.Kill()
			<-waited
		}
	}
	return nil
}

// readLoop forwards stdout lines until the worker exits or the engine stops.
func (e *Engine) readLoop(stdout io.Reader) {
	defer close(e.done)
	r := bufio.NewReaderSize(stdout, 1<<20)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			select {
			case e.lines <- line:
			case <-e.quit:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// next waits for one stdout line.
func (e *Engine) next(ctx context.Context, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case line := <-e.lines:
		return line, nil
	case <-e.done:
		return nil, io.EOF
	case <-timer.C:
		return nil, fmt.Errorf("kokoro worker did not answer within %v", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) kill() {
	e.stop.Do(func() { close(e.quit) })
	e.stdin.Close()
	e.cmd.Process.Kill()
	e.cmd.Wait()
}

func (e *Engine) startupError(err error) error {
	if tail := e.stderr.String(); tail != "" {
		err = fmt.Errorf("%w\n%s", err, tail)
	}
	return fmt.Errorf("kokoro worker failed to start: %w", err)
}

func (e *Engine) workerGone(err error) error {
	e.closed = true
	msg := strings.TrimSpace(e.stderr.String())
	if msg != "" {
		return fmt.Errorf("%w: kokoro worker exited: %s", tts.ErrEngineNotAvailable, truncate(msg, 400))
	}
	return fmt.Errorf("%w: kokoro worker exited: %v", tts.ErrEngineNotAvailable, err)
}

func decodeSamples(b64 string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode samples: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("decode samples: %d bytes is not a whole number of float32", len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}

// Package fastapi talks to a Kokoro-FastAPI server
// (https://github.com/remsky/Kokoro-FastAPI) over its OpenAI-compatible
// speech endpoint.
package fastapi

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/narrate/tts"
)

// SampleRate is the rate of the server's raw pcm output.
const SampleRate = 24000

// SpeechPath is appended to the endpoint.
const SpeechPath = "/v1/audio/speech"

// Options configures the client.
type Options struct {
	Endpoint string // server base URL
	Model    string // default "kokoro"
	Client   *http.Client
	Timeout  time.Duration // per request; ignored when Client is set
	Logger   *log.Logger
}

// OptionsFromConfig maps the fastapi section of the configuration.
func OptionsFromConfig(cfg tts.FastAPIConfig, logger *log.Logger) Options {
	return Options{
		Endpoint: cfg.Endpoint,
		Model:    cfg.Model,
		Timeout:  cfg.Timeout,
		Logger:   logger,
	}
}

// Factory returns a tts.EngineFactory. The model files are not used: the
// server owns its own.
func Factory(opts Options) tts.EngineFactory {
	return func(ctx context.Context, _ tts.ModelAssetPair) (tts.Engine, error) {
		return New(opts)
	}
}

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	Speed          float64 `json:"speed"`
	LangCode       string  `json:"lang_code,omitempty"`
	ResponseFormat string  `json:"response_format"`
	Stream         bool    `json:"stream"`
}

// Engine implements tts.Engine against a remote server.
type Engine struct {
	url    string
	model  string
	client *http.Client
	logger *log.Logger

	mu     sync.RWMutex
	closed bool
}

// New creates a client. No request is made until Create.
func New(opts Options) (*Engine, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("fastapi: %w: endpoint is required", tts.ErrInvalidConfig)
	}
	if opts.Model == "" {
		opts.Model = "kokoro"
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Engine{
		url:    strings.TrimRight(opts.Endpoint, "/") + SpeechPath,
		model:  opts.Model,
		client: opts.Client,
		logger: opts.Logger,
	}, nil
}

// Create posts one speech request and decodes the pcm body.
func (e *Engine) Create(ctx context.Context, text, voice string, speed float64, lang string) (*tts.Samples, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, tts.ErrEngineShutdown
	}

	body, err := json.Marshal(speechRequest{
		Model:          e.model,
		Input:          text,
		Voice:          voice,
		Speed:          speed,
		LangCode:       langCode(lang),
		ResponseFormat: "pcm",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", tts.ErrEngineNotAvailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("fastapi: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fastapi: read body: %w", err)
	}
	data, err := decodePCM(raw)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("FastAPI synthesis", "voice", voice, "samples", len(data), "took", time.Since(start))
	return &tts.Samples{Data: data, SampleRate: SampleRate}, nil
}

// Close marks the engine closed. The server is left alone.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// decodePCM converts little-endian int16 to float32 in [-1, 1).
func decodePCM(raw []byte) ([]float32, error) {
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("fastapi: odd pcm length %d", len(raw))
	}
	out := make([]float32, len(raw)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768
	}
	return out, nil
}

// langCode maps espeak style languages to the single letter codes the server
// uses. Unknown languages are left for the server to infer from the voice.
func langCode(lang string) string {
	switch strings.ToLower(lang) {
	case "en-us":
		return "a"
	case "en-gb":
		return "b"
	case "es":
		return "e"
	case "fr-fr":
		return "f"
	case "hi":
		return "h"
	case "it":
		return "i"
	case "ja":
		return "j"
	case "pt-br":
		return "p"
	case "cmn", "zh":
		return "z"
	}
	return ""
}

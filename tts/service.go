package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/dgnsrekt/narrate/internal/audio"
)

// Recorder receives pipeline measurements. A nil Recorder discards them.
type Recorder interface {
	CacheLookup(hit bool)
	Synthesis(elapsed time.Duration, err error)
}

// Dependencies are the collaborators a Service drives.
type Dependencies struct {
	// Provisioner fetches model files. Nil skips provisioning, for engines
	// that need no local model.
	Provisioner Provisioner
	NewEngine   EngineFactory
	Transcoder  Transcoder
	Store       Store
	Prober      DurationProber // optional
	Recorder    Recorder       // optional
	Logger      *log.Logger    // nil uses log.Default()
}

// Service turns narration text into cached MP3 files.
type Service struct {
	cfg    Config
	assets ModelAssetPair

	engine     Engine
	transcoder Transcoder
	store      Store
	prober     DurationProber
	recorder   Recorder
	logger     *log.Logger

	group singleflight.Group

	mu     sync.Mutex
	closed bool
}

// NewService provisions the model assets and constructs the engine once.
// Missing or unloadable models fail here, before any synthesis.
func NewService(ctx context.Context, cfg Config, deps Dependencies) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.NewEngine == nil || deps.Transcoder == nil || deps.Store == nil {
		return nil, NewError(KindConfiguration, "service", "init",
			fmt.Errorf("%w: engine factory, transcoder and store are required", ErrInvalidConfig))
	}

	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}

	modelPath, voicesPath := cfg.Models.ModelFiles()
	assets := ModelAssetPair{ModelPath: modelPath, VoicesPath: voicesPath}
	if deps.Provisioner != nil {
		var err error
		assets, err = deps.Provisioner.EnsureAssets(ctx, modelPath, voicesPath)
		if err != nil {
			return nil, asKind(err, KindAssetProvisioning, "assets", "ensure")
		}
	}

	start := time.Now()
	engine, err := deps.NewEngine(ctx, assets)
	if err != nil {
		return nil, asKind(err, KindAssetProvisioning, "engine", "load")
	}
	logger.Debug("Engine ready", "engine", cfg.Engine, "model", assets.ModelPath, "took", time.Since(start))

	s := &Service{
		cfg:        cfg,
		assets:     assets,
		engine:     engine,
		transcoder: deps.Transcoder,
		store:      deps.Store,
		prober:     deps.Prober,
		recorder:   deps.Recorder,
		logger:     logger,
	}
	return s, nil
}

// Config returns the validated configuration the service runs with.
func (s *Service) Config() Config {
	return s.cfg
}

// Assets returns the model files the engine was built from.
func (s *Service) Assets() ModelAssetPair {
	return s.assets
}

// Synthesize narrates text with the configured voice, language and speed.
// An empty cacheDir falls back to the configured one. A non-empty outputPath
// replaces the hash-derived file name but not the cache key: a later request
// for the same text, voice and language returns this entry whatever path it
// asks for.
func (s *Service) Synthesize(ctx context.Context, text, cacheDir, outputPath string) (*CacheEntry, error) {
	req := NewRequest(text, s.cfg.Voice, s.cfg.Lang, s.cfg.Speed)
	return s.SynthesizeRequest(ctx, req, cacheDir, outputPath)
}

// SynthesizeRequest is Synthesize with per-request voice, language and speed.
func (s *Service) SynthesizeRequest(ctx context.Context, req NarrationRequest, cacheDir, outputPath string) (*CacheEntry, error) {
	if s.isClosed() {
		return nil, NewError(KindSynthesis, "service", "synthesize", ErrEngineShutdown)
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, NewError(KindSynthesis, "service", "synthesize", ErrEmptyText)
	}
	if cacheDir == "" {
		cacheDir = s.cfg.CacheDir
	}
	if err := ValidateCacheDir(cacheDir); err != nil {
		return nil, err
	}

	key := req.Key()
	entry, hit, err := s.store.Get(cacheDir, key)
	if err != nil {
		return nil, asKind(err, KindIO, "cache", "lookup")
	}
	if s.recorder != nil {
		s.recorder.CacheLookup(hit)
	}
	if hit {
		s.logger.Debug("Cache hit", "key", key[:12], "audio", entry.OriginalAudio)
		return entry, nil
	}

	// Concurrent misses for the same file share one synthesis. The flight
	// runs under its leader's context; when the leader gives up, waiters
	// that are still live start a new flight of their own.
	for {
		ch := s.group.DoChan(cacheDir+"\x00"+key, func() (any, error) {
			entry, err := s.render(ctx, req, key, cacheDir, outputPath)
			if err != nil && ctx.Err() != nil {
				return nil, &abandonedError{err: err}
			}
			return entry, err
		})
		select {
		case res := <-ch:
			var abandoned *abandonedError
			if errors.As(res.Err, &abandoned) {
				if ctx.Err() == nil {
					s.logger.Debug("Shared synthesis abandoned, retrying", "key", key[:12])
					continue
				}
				return nil, abandoned.err
			}
			if res.Err != nil {
				return nil, res.Err
			}
			return res.Val.(*CacheEntry), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// abandonedError marks a shared synthesis that failed because the caller
// running it went away.
type abandonedError struct {
	err error
}

func (e *abandonedError) Error() string { return e.err.Error() }
func (e *abandonedError) Unwrap() error { return e.err }

func (s *Service) render(ctx context.Context, req NarrationRequest, key, cacheDir, outputPath string) (*CacheEntry, error) {
	// Another caller may have finished while we waited for the group.
	if entry, hit, err := s.store.Get(cacheDir, key); err == nil && hit {
		return entry, nil
	}

	audioPath := outputPath
	if audioPath == "" {
		audioPath = key + ".mp3"
	}
	mp3Path := resolve(cacheDir, audioPath)
	wavPath := resolve(cacheDir, WAVPath(audioPath))

	start := time.Now()
	samples, err := s.create(ctx, req)
	if s.recorder != nil {
		s.recorder.Synthesis(time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Synthesized", "key", key[:12], "samples", len(samples.Data),
		"rate", samples.SampleRate, "took", time.Since(start))

	pcm := Quantize(Normalize(samples.Data))

	if err := os.MkdirAll(filepath.Dir(mp3Path), 0o755); err != nil {
		return nil, NewError(KindIO, "service", "mkdir", err)
	}
	if err := audio.WriteWAV(wavPath, pcm, samples.SampleRate); err != nil {
		os.Remove(wavPath)
		return nil, NewError(KindIO, "wav", "write", err).WithContext("path", wavPath)
	}

	if err := s.transcoder.Convert(ctx, wavPath, mp3Path); err != nil {
		os.Remove(mp3Path)
		if !s.cfg.KeepWAV {
			os.Remove(wavPath)
		}
		return nil, asKind(err, KindIO, "transcoder", "convert")
	}
	if !s.cfg.KeepWAV {
		if err := os.Remove(wavPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Failed to remove intermediate WAV", "path", wavPath, "error", err)
		}
	}

	entry := &CacheEntry{
		InputText:     req.Text,
		InputData:     req.Data(),
		OriginalAudio: audioPath,
	}
	if s.prober != nil {
		if d, err := s.prober.Duration(mp3Path); err == nil {
			entry.Duration = d
		} else {
			s.logger.Warn("Could not measure duration", "path", mp3Path, "error", err)
		}
	}

	if err := s.store.Put(cacheDir, key, entry); err != nil {
		return nil, asKind(err, KindIO, "cache", "store")
	}
	s.logger.Info("Narration cached", "audio", audioPath, "voice", req.Voice, "lang", req.Language)
	return entry, nil
}

// create calls the engine with bookmark tags removed and checks its output.
func (s *Service) create(ctx context.Context, req NarrationRequest) (*Samples, error) {
	text := StripBookmarks(req.Text)
	if strings.TrimSpace(text) == "" {
		return nil, NewError(KindSynthesis, "service", "synthesize", ErrEmptyText)
	}

	samples, err := s.engine.Create(ctx, text, req.Voice, req.Speed, req.Language)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		nerr := asKind(err, KindSynthesis, "engine", "create")
		var ne *NarrationError
		if errors.As(nerr, &ne) && !IsKnownVoice(req.Voice) {
			if suggestion, ok := SuggestVoice(req.Voice); ok {
				ne.WithContext("suggestion", suggestion)
			}
		}
		return nil, nerr
	}
	if samples == nil || len(samples.Data) == 0 {
		return nil, NewError(KindSynthesis, "engine", "create", ErrEmptyAudio)
	}
	if samples.SampleRate <= 0 {
		return nil, NewError(KindSynthesis, "engine", "create",
			fmt.Errorf("%w: %d", ErrInvalidSampleRate, samples.SampleRate))
	}
	return samples, nil
}

// Close releases the engine. Further synthesis fails.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.engine.Close()
}

func (s *Service) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// WAVPath derives the intermediate WAV name for an MP3 path: a trailing
// ".mp3" becomes ".wav", anything else gets ".wav" appended.
func WAVPath(mp3Path string) string {
	if base, ok := strings.CutSuffix(mp3Path, ".mp3"); ok {
		return base + ".wav"
	}
	return mp3Path + ".wav"
}

func resolve(cacheDir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(cacheDir, p)
}

// asKind keeps an existing NarrationError and wraps anything else.
func asKind(err error, kind ErrorKind, component, action string) error {
	var ne *NarrationError
	if errors.As(err, &ne) {
		return err
	}
	return NewError(kind, component, action, err)
}

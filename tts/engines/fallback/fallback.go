// Package fallback wraps a primary synthesis engine with a secondary one that
// takes over once the primary keeps failing.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/narrate/tts"
)

// DefaultMaxFailures is how many consecutive primary outages trigger the switch.
const DefaultMaxFailures = 2

// Engine routes requests to the primary engine until it has failed
// maxFailures times in a row, then to the secondary for the rest of its life
// (or until Reset). Only outages count as failures; rejected input is
// returned to the caller untouched.
type Engine struct {
	primary     tts.Engine
	secondary   tts.Engine
	maxFailures int
	logger      *log.Logger

	mu            sync.Mutex
	failures      int
	usingFallback bool
}

// New creates an engine with automatic fallback. A nil primary starts on the
// secondary.
func New(primary, secondary tts.Engine, maxFailures int, logger *log.Logger) *Engine {
	if maxFailures < 1 {
		maxFailures = DefaultMaxFailures
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		primary:       primary,
		secondary:     secondary,
		maxFailures:   maxFailures,
		logger:        logger,
		usingFallback: primary == nil,
	}
}

// Factory builds both engines. A primary that fails to start is logged and
// skipped; only when both fail is an error returned.
func Factory(primary, secondary tts.EngineFactory, maxFailures int, logger *log.Logger) tts.EngineFactory {
	if logger == nil {
		logger = log.Default()
	}
	return func(ctx context.Context, assets tts.ModelAssetPair) (tts.Engine, error) {
		p, primaryErr := primary(ctx, assets)
		if primaryErr != nil {
			logger.Warn("Primary engine failed to start, using fallback", "err", primaryErr)
			p = nil
		}

		s, err := secondary(ctx, assets)
		if err != nil {
			if primaryErr != nil {
				return nil, fmt.Errorf("both engines failed: %w", errors.Join(primaryErr, err))
			}
			// Without a secondary there is nothing to wrap.
			logger.Warn("Fallback engine unavailable", "err", err)
			return p, nil
		}
		return New(p, s, maxFailures, logger), nil
	}
}

// Create synthesizes with the active engine, switching over when the primary
// has run out of chances.
func (f *Engine) Create(ctx context.Context, text, voice string, speed float64, lang string) (*tts.Samples, error) {
	f.mu.Lock()
	useFallback := f.usingFallback
	f.mu.Unlock()

	if useFallback {
		return f.secondary.Create(ctx, text, voice, speed, lang)
	}

	samples, err := f.primary.Create(ctx, text, voice, speed, lang)
	if err == nil {
		f.mu.Lock()
		if f.failures > 0 {
			f.logger.Info("Primary engine recovered", "failures", f.failures)
			f.failures = 0
		}
		f.mu.Unlock()
		return samples, nil
	}
	if !isOutage(err) || ctx.Err() != nil {
		return nil, err
	}

	f.mu.Lock()
	f.failures++
	failures := f.failures
	f.logger.Warn("Primary engine failed", "attempt", failures, "max", f.maxFailures, "err", err)
	if failures >= f.maxFailures && !f.usingFallback {
		f.logger.Warn("Switching to fallback engine", "failures", failures)
		f.usingFallback = true
	}
	switched := f.usingFallback
	f.mu.Unlock()

	if !switched {
		return nil, err
	}
	samples, fbErr := f.secondary.Create(ctx, text, voice, speed, lang)
	if fbErr != nil {
		return nil, fmt.Errorf("both engines failed: %w", errors.Join(err, fbErr))
	}
	return samples, nil
}

// isOutage reports whether err means the engine itself is gone, as opposed
// to the request being rejected.
func isOutage(err error) bool {
	return errors.Is(err, tts.ErrEngineNotAvailable) || errors.Is(err, tts.ErrEngineShutdown)
}

// Close shuts down both engines.
func (f *Engine) Close() error {
	var errs []error
	if f.primary != nil {
		if err := f.primary.Close(); err != nil {
			errs = append(errs, fmt.Errorf("primary shutdown: %w", err))
		}
	}
	if err := f.secondary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("fallback shutdown: %w", err))
	}
	return errors.Join(errs...)
}

// Reset returns to the primary engine, if there is one.
func (f *Engine) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.primary == nil {
		return
	}
	f.failures = 0
	f.usingFallback = false
	f.logger.Info("Reset to primary engine")
}

// Status describes which engine is serving requests.
func (f *Engine) Status() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usingFallback {
		return fmt.Sprintf("Using fallback engine (primary failed %d times)", f.failures)
	}
	return fmt.Sprintf("Using primary engine (failures: %d/%d)", f.failures, f.maxFailures)
}

// Package mock provides a deterministic synthesis engine for testing.
package mock

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/dgnsrekt/narrate/tts"
)

// SampleRate matches Kokoro's output rate.
const SampleRate = 24000

// Call records the arguments of one Create call.
type Call struct {
	Text  string
	Voice string
	Speed float64
	Lang  string
}

// MockEngine implements tts.Engine. It renders a quiet sine tone whose length
// follows the text, so normalization and duration logic have real work to do.
type MockEngine struct {
	mu sync.Mutex

	delay     time.Duration // Simulated processing delay
	amplitude float32
	silent    bool

	// Control for testing
	shouldFail   bool
	failureError error

	closed bool
	calls  []Call
}

// New creates a new mock engine.
func New() *MockEngine {
	return &MockEngine{amplitude: 0.5}
}

// Factory returns a tts.EngineFactory that always hands out e.
func (e *MockEngine) Factory() tts.EngineFactory {
	return func(context.Context, tts.ModelAssetPair) (tts.Engine, error) {
		return e, nil
	}
}

// Create simulates synthesis.
func (e *MockEngine) Create(ctx context.Context, text, voice string, speed float64, lang string) (*tts.Samples, error) {
	e.mu.Lock()
	e.calls = append(e.calls, Call{Text: text, Voice: voice, Speed: speed, Lang: lang})
	delay, fail, failErr, closed := e.delay, e.shouldFail, e.failureError, e.closed
	amplitude, silent := e.amplitude, e.silent
	e.mu.Unlock()

	if closed {
		return nil, tts.ErrEngineShutdown
	}
	if fail {
		return nil, failErr
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	n := int(EstimateDuration(text, speed).Seconds() * SampleRate)
	data := make([]float32, n)
	if !silent {
		for i := range data {
			data[i] = amplitude * float32(math.Sin(2*math.Pi*440*float64(i)/SampleRate))
		}
	}

	return &tts.Samples{Data: data, SampleRate: SampleRate}, nil
}

// Close marks the engine as shut down.
func (e *MockEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Test control methods

// SetDelay sets the simulated processing delay.
func (e *MockEngine) SetDelay(delay time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delay = delay
}

// SetAmplitude sets the peak of the generated tone.
func (e *MockEngine) SetAmplitude(a float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.amplitude = a
}

// SetSilent makes the engine return all-zero samples.
func (e *MockEngine) SetSilent(silent bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.silent = silent
}

// SetFailure configures the engine to fail with the given error.
func (e *MockEngine) SetFailure(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shouldFail = true
	e.failureError = err
}

// ClearFailure resets the engine to normal operation.
func (e *MockEngine) ClearFailure() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shouldFail = false
	e.failureError = nil
}

// Calls returns a copy of the recorded calls.
func (e *MockEngine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// CallCount returns the number of Create calls.
func (e *MockEngine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

// Closed reports whether Close was called.
func (e *MockEngine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// EstimateDuration estimates speaking duration for text at ~150 words per
// minute, scaled by speed.
func EstimateDuration(text string, speed float64) time.Duration {
	words := len(text) / 5 // Rough estimate: 5 chars per word
	if words < 1 {
		words = 1
	}
	if speed <= 0 {
		speed = 1
	}
	seconds := float64(words) * 60.0 / 150.0 / speed
	return time.Duration(seconds * float64(time.Second))
}

package tts

import (
	"context"
)

// Engine defines the interface for neural text-to-speech engines.
type Engine interface {
	// Create synthesizes text into a floating point waveform.
	Create(ctx context.Context, text, voice string, speed float64, lang string) (*Samples, error)

	// Close stops the engine and releases resources.
	Close() error
}

// Transcoder converts an uncompressed waveform file into a compressed container.
type Transcoder interface {
	Convert(ctx context.Context, wavPath, mp3Path string) error
}

// Store persists cache entries keyed by CacheKey, rooted at a cache directory.
type Store interface {
	// Get returns the entry for key, if any.
	Get(cacheDir, key string) (*CacheEntry, bool, error)

	// Put records entry under key.
	Put(cacheDir, key string, entry *CacheEntry) error
}

// Provisioner makes sure the engine's model files exist locally.
type Provisioner interface {
	EnsureAssets(ctx context.Context, modelPath, voicesPath string) (ModelAssetPair, error)
}

// DurationProber measures the playback length of an encoded audio file.
type DurationProber interface {
	Duration(path string) (float64, error)
}

// EngineFactory constructs an engine once the model files are in place.
type EngineFactory func(ctx context.Context, assets ModelAssetPair) (Engine, error)

// Samples is raw engine output.
type Samples struct {
	Data       []float32 // Mono waveform, nominally in [-1, 1]
	SampleRate int       // Sample rate in Hz
}

// ModelAssetPair holds the two binary files required by the Kokoro engine.
type ModelAssetPair struct {
	ModelPath  string `json:"model_path"`
	VoicesPath string `json:"voices_path"`
}

// CacheEntry is the metadata recorded for one synthesized narration.
// Entries are never mutated after creation.
type CacheEntry struct {
	InputText     string      `json:"input_text"`
	InputData     RequestData `json:"input_data"`
	OriginalAudio string      `json:"original_audio"`     // Relative to the cache directory
	Duration      float64     `json:"duration,omitempty"` // Seconds
}

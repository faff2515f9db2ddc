package tts

import (
	"errors"
	"fmt"
)

// Common errors for the narration system.
var (
	// Request errors
	ErrEmptyText = errors.New("narration text is empty")

	// Engine errors
	ErrEngineNotAvailable = errors.New("synthesis engine is not available")
	ErrEngineShutdown     = errors.New("synthesis engine has been shut down")
	ErrEmptyAudio         = errors.New("synthesis engine returned no samples")
	ErrInvalidSampleRate  = errors.New("invalid sample rate")

	// Asset errors
	ErrAssetDownload = errors.New("model asset download failed")

	// Transcoder errors
	ErrTranscoderNotFound = errors.New("audio transcoder not found")

	// Configuration errors
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrInvalidCacheDir = errors.New("invalid cache directory")
)

// ErrorKind classifies a narration failure. Every kind is fatal for the
// request that produced it; callers decide whether to abort or skip.
type ErrorKind int

const (
	// KindAssetProvisioning covers missing, undownloadable or unloadable model files.
	KindAssetProvisioning ErrorKind = iota + 1
	// KindSynthesis covers engine rejections (bad text, voice or language).
	KindSynthesis
	// KindIO covers filesystem writes and transcoding.
	KindIO
	// KindConfiguration covers malformed settings such as an unusable cache directory.
	KindConfiguration
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindAssetProvisioning:
		return "asset provisioning"
	case KindSynthesis:
		return "synthesis"
	case KindIO:
		return "io"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// NarrationError provides detailed error information.
type NarrationError struct {
	Kind      ErrorKind      // Failure class
	Component string         // Component that generated the error
	Action    string         // Action being performed when error occurred
	Err       error          // The underlying error
	Context   map[string]any // Additional context
}

// Error implements the error interface.
func (e *NarrationError) Error() string {
	msg := "unknown narration error"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Action != "" {
		msg = e.Action + ": " + msg
	}
	if e.Component != "" {
		msg = e.Component + ": " + msg
	}
	if hint, ok := e.Context["suggestion"]; ok {
		msg = fmt.Sprintf("%s (did you mean %v?)", msg, hint)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *NarrationError) Unwrap() error {
	return e.Err
}

// NewError creates a new narration error.
func NewError(kind ErrorKind, component, action string, err error) *NarrationError {
	return &NarrationError{
		Kind:      kind,
		Component: component,
		Action:    action,
		Err:       err,
		Context:   make(map[string]any),
	}
}

// WithContext adds context to the error.
func (e *NarrationError) WithContext(key string, value any) *NarrationError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// KindOf returns the kind of the first NarrationError in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var ne *NarrationError
	if errors.As(err, &ne) {
		return ne.Kind
	}
	return 0
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

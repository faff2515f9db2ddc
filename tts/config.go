package tts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Default model file names and the manim-voiceover cache location.
const (
	DefaultModelFile  = "kokoro-v0_19.onnx"
	DefaultVoicesFile = "voices.bin"
	DefaultCacheDir   = "media/voiceovers"
)

// Config contains all narration settings.
type Config struct {
	// Engine selects the synthesis backend: "onnx" or "fastapi".
	Engine string `yaml:"engine" mapstructure:"engine"`

	// Narration defaults
	Voice string  `yaml:"voice" mapstructure:"voice"`
	Lang  string  `yaml:"lang" mapstructure:"lang"`
	Speed float64 `yaml:"speed" mapstructure:"speed"`

	// Cache settings
	CacheDir string `yaml:"cache_dir" mapstructure:"cache_dir"`
	KeepWAV  bool   `yaml:"keep_wav" mapstructure:"keep_wav"`

	Models  ModelsConfig  `yaml:"models" mapstructure:"models"`
	ONNX    ONNXConfig    `yaml:"onnx" mapstructure:"onnx"`
	FastAPI FastAPIConfig `yaml:"fastapi" mapstructure:"fastapi"`
	FFmpeg  FFmpegConfig  `yaml:"ffmpeg" mapstructure:"ffmpeg"`
}

// ModelsConfig locates the Kokoro model files.
type ModelsConfig struct {
	// Directory holding the model files when no explicit path is set.
	Dir        string `yaml:"dir" mapstructure:"dir"`
	ModelPath  string `yaml:"model_path" mapstructure:"model_path"`
	VoicesPath string `yaml:"voices_path" mapstructure:"voices_path"`
}

// ONNXConfig configures the local kokoro-onnx worker.
type ONNXConfig struct {
	Python         string        `yaml:"python" mapstructure:"python"`
	Script         string        `yaml:"script" mapstructure:"script"`
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
}

// FastAPIConfig configures a remote Kokoro-FastAPI server.
type FastAPIConfig struct {
	Endpoint string        `yaml:"endpoint" mapstructure:"endpoint"`
	Model    string        `yaml:"model" mapstructure:"model"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// Fallback sends onnx requests here once the local worker keeps failing.
	Fallback bool `yaml:"fallback" mapstructure:"fallback"`
}

// FFmpegConfig configures MP3 transcoding.
type FFmpegConfig struct {
	Binary  string        `yaml:"binary" mapstructure:"binary"`
	Bitrate string        `yaml:"bitrate" mapstructure:"bitrate"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Engine:   "onnx",
		Voice:    "af_bella",
		Lang:     "en-us",
		Speed:    1.0,
		CacheDir: DefaultCacheDir,
		ONNX: ONNXConfig{
			Python:         "python3",
			StartupTimeout: 2 * time.Minute,
			RequestTimeout: 5 * time.Minute,
		},
		FastAPI: FastAPIConfig{
			Endpoint: "http://localhost:8880",
			Model:    "kokoro",
			Timeout:  2 * time.Minute,
		},
		FFmpeg: FFmpegConfig{
			Binary:  "ffmpeg",
			Bitrate: "192k",
			Timeout: time.Minute,
		},
	}
}

var bitratePattern = regexp.MustCompile(`^[1-9][0-9]*k$`)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	validEngines := []string{"onnx", "fastapi"}
	engineValid := false
	for _, e := range validEngines {
		if strings.EqualFold(c.Engine, e) {
			engineValid = true
			c.Engine = strings.ToLower(c.Engine)
			break
		}
	}
	if !engineValid {
		return configError(fmt.Errorf("invalid engine '%s': must be one of %v", c.Engine, validEngines))
	}

	if strings.TrimSpace(c.Voice) == "" {
		return configError(errors.New("voice cannot be empty"))
	}
	if strings.TrimSpace(c.Lang) == "" {
		return configError(errors.New("lang cannot be empty"))
	}
	if c.Speed < 0.5 || c.Speed > 2.0 {
		return configError(fmt.Errorf("speed must be between 0.5 and 2.0, got %.2f", c.Speed))
	}

	if err := ValidateCacheDir(c.CacheDir); err != nil {
		return err
	}

	switch c.Engine {
	case "onnx":
		if err := c.ONNX.Validate(); err != nil {
			return configError(fmt.Errorf("onnx config: %w", err))
		}
		if c.FastAPI.Fallback {
			if err := c.FastAPI.Validate(); err != nil {
				return configError(fmt.Errorf("fastapi fallback config: %w", err))
			}
		}
	case "fastapi":
		if err := c.FastAPI.Validate(); err != nil {
			return configError(fmt.Errorf("fastapi config: %w", err))
		}
	}

	if err := c.FFmpeg.Validate(); err != nil {
		return configError(fmt.Errorf("ffmpeg config: %w", err))
	}
	return nil
}

// Validate checks if the ONNX worker configuration is valid.
func (c *ONNXConfig) Validate() error {
	if c.Python == "" {
		return errors.New("python interpreter cannot be empty")
	}
	if c.StartupTimeout < time.Second {
		return fmt.Errorf("startup_timeout must be at least 1 second, got %v", c.StartupTimeout)
	}
	if c.RequestTimeout < time.Second {
		return fmt.Errorf("request_timeout must be at least 1 second, got %v", c.RequestTimeout)
	}
	return nil
}

// Validate checks if the Kokoro-FastAPI configuration is valid.
func (c *FastAPIConfig) Validate() error {
	if !strings.HasPrefix(c.Endpoint, "http://") && !strings.HasPrefix(c.Endpoint, "https://") {
		return fmt.Errorf("endpoint must be an http(s) URL, got %q", c.Endpoint)
	}
	if c.Timeout < time.Second {
		return fmt.Errorf("timeout must be at least 1 second, got %v", c.Timeout)
	}
	return nil
}

// Validate checks if the ffmpeg configuration is valid.
func (c *FFmpegConfig) Validate() error {
	if c.Binary == "" {
		return errors.New("binary cannot be empty")
	}
	if !bitratePattern.MatchString(c.Bitrate) {
		return fmt.Errorf("bitrate must look like 192k, got %q", c.Bitrate)
	}
	if c.Timeout < time.Second {
		return fmt.Errorf("timeout must be at least 1 second, got %v", c.Timeout)
	}
	return nil
}

// ValidateCacheDir rejects cache directories that cannot hold files: empty
// paths and paths that exist but are not directories. A missing directory is
// fine; it is created on first write.
func ValidateCacheDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return configError(fmt.Errorf("%w: empty path", ErrInvalidCacheDir))
	}
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return configError(fmt.Errorf("%w: %v", ErrInvalidCacheDir, err))
	}
	if !info.IsDir() {
		return configError(fmt.Errorf("%w: %s is not a directory", ErrInvalidCacheDir, dir))
	}
	return nil
}

// ModelFiles resolves the model and voice bank paths. Explicit paths win;
// otherwise the default file names are placed in Dir (or the working
// directory when Dir is empty).
func (c ModelsConfig) ModelFiles() (model, voices string) {
	model, voices = c.ModelPath, c.VoicesPath
	if model == "" {
		model = filepath.Join(c.Dir, DefaultModelFile)
	}
	if voices == "" {
		voices = filepath.Join(c.Dir, DefaultVoicesFile)
	}
	return model, voices
}

func configError(err error) error {
	return NewError(KindConfiguration, "config", "validate", fmt.Errorf("%w: %w", ErrInvalidConfig, err))
}

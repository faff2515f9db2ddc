package tts

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

// TestDefaultConfig tests that default configuration is valid.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}

	if cfg.Engine != "onnx" {
		t.Errorf("Default engine should be onnx, got %s", cfg.Engine)
	}
	if cfg.Lang != "en-us" {
		t.Errorf("Default lang should be en-us, got %s", cfg.Lang)
	}
	if cfg.Speed != 1.0 {
		t.Errorf("Default speed should be 1.0, got %v", cfg.Speed)
	}
}

// TestConfigValidation tests configuration validation.
func TestConfigValidation(t *testing.T) {
	notADir := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(notADir, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid engine",
			modify: func(c *Config) {
				c.Engine = "piper"
			},
			wantErr: true,
			errMsg:  "invalid engine",
		},
		{
			name: "case insensitive engine",
			modify: func(c *Config) {
				c.Engine = "FastAPI"
			},
			wantErr: false,
		},
		{
			name: "speed too high",
			modify: func(c *Config) {
				c.Speed = 3.0
			},
			wantErr: true,
			errMsg:  "speed must be between",
		},
		{
			name: "speed too low",
			modify: func(c *Config) {
				c.Speed = 0.1
			},
			wantErr: true,
			errMsg:  "speed must be between",
		},
		{
			name: "empty voice",
			modify: func(c *Config) {
				c.Voice = " "
			},
			wantErr: true,
			errMsg:  "voice cannot be empty",
		},
		{
			name: "empty lang",
			modify: func(c *Config) {
				c.Lang = ""
			},
			wantErr: true,
			errMsg:  "lang cannot be empty",
		},
		{
			name: "cache dir is a file",
			modify: func(c *Config) {
				c.CacheDir = notADir
			},
			wantErr: true,
			errMsg:  "not a directory",
		},
		{
			name: "missing cache dir is fine",
			modify: func(c *Config) {
				c.CacheDir = filepath.Join(t.TempDir(), "later")
			},
			wantErr: false,
		},
		{
			name: "bad bitrate",
			modify: func(c *Config) {
				c.FFmpeg.Bitrate = "192"
			},
			wantErr: true,
			errMsg:  "bitrate",
		},
		{
			name: "worker timeout too short",
			modify: func(c *Config) {
				c.ONNX.RequestTimeout = 10 * time.Millisecond
			},
			wantErr: true,
			errMsg:  "request_timeout",
		},
		{
			name: "fastapi endpoint ignored for onnx",
			modify: func(c *Config) {
				c.FastAPI.Endpoint = "nope"
			},
			wantErr: false,
		},
		{
			name: "fastapi endpoint checked for fastapi",
			modify: func(c *Config) {
				c.Engine = "fastapi"
				c.FastAPI.Endpoint = "nope"
			},
			wantErr: true,
			errMsg:  "endpoint",
		},
		{
			name: "fastapi endpoint checked for onnx fallback",
			modify: func(c *Config) {
				c.FastAPI.Fallback = true
				c.FastAPI.Endpoint = "nope"
			},
			wantErr: true,
			errMsg:  "fastapi fallback",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if tt.wantErr {
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Expected error containing '%s', got '%s'", tt.errMsg, err.Error())
				}
				if !IsKind(err, KindConfiguration) {
					t.Errorf("Expected configuration error, got kind %v", KindOf(err))
				}
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("Expected ErrInvalidConfig in chain: %v", err)
				}
			}
		})
	}
}

func TestValidateCacheDirSentinel(t *testing.T) {
	err := ValidateCacheDir("")
	if !errors.Is(err, ErrInvalidCacheDir) {
		t.Errorf("expected ErrInvalidCacheDir, got %v", err)
	}
}

func TestModelFiles(t *testing.T) {
	tests := []struct {
		name       string
		cfg        ModelsConfig
		wantModel  string
		wantVoices string
	}{
		{
			name:       "defaults in working directory",
			cfg:        ModelsConfig{},
			wantModel:  DefaultModelFile,
			wantVoices: DefaultVoicesFile,
		},
		{
			name:       "defaults in dir",
			cfg:        ModelsConfig{Dir: "/models"},
			wantModel:  "/models/" + DefaultModelFile,
			wantVoices: "/models/" + DefaultVoicesFile,
		},
		{
			name:       "explicit paths win",
			cfg:        ModelsConfig{Dir: "/models", ModelPath: "/x/m.onnx", VoicesPath: "/y/v.bin"},
			wantModel:  "/x/m.onnx",
			wantVoices: "/y/v.bin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, voices := tt.cfg.ModelFiles()
			if model != tt.wantModel || voices != tt.wantVoices {
				t.Errorf("ModelFiles() = %q, %q; want %q, %q", model, voices, tt.wantModel, tt.wantVoices)
			}
		})
	}
}

// TestLoadConfigFromViper tests loading configuration from Viper.
func TestLoadConfigFromViper(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("tts.engine", "fastapi")
	viper.Set("tts.voice", "bf_emma")
	viper.Set("tts.lang", "en-gb")
	viper.Set("tts.speed", 1.25)
	viper.Set("tts.keep_wav", true)
	viper.Set("tts.fastapi.endpoint", "http://tts.local:8880")
	viper.Set("tts.fastapi.timeout", "45s")
	viper.Set("tts.ffmpeg.bitrate", "128k")
	viper.Set("tts.models.dir", "/opt/kokoro")

	cfg, err := LoadConfigFromViper()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Engine != "fastapi" {
		t.Errorf("Expected engine fastapi, got %s", cfg.Engine)
	}
	if cfg.Voice != "bf_emma" || cfg.Lang != "en-gb" {
		t.Errorf("Unexpected voice/lang %s/%s", cfg.Voice, cfg.Lang)
	}
	if cfg.Speed != 1.25 {
		t.Errorf("Expected speed 1.25, got %v", cfg.Speed)
	}
	if !cfg.KeepWAV {
		t.Error("Expected keep_wav to be true")
	}
	if cfg.FastAPI.Endpoint != "http://tts.local:8880" {
		t.Errorf("Unexpected endpoint %s", cfg.FastAPI.Endpoint)
	}
	if cfg.FastAPI.Timeout != 45*time.Second {
		t.Errorf("Expected 45s timeout, got %v", cfg.FastAPI.Timeout)
	}
	if cfg.FFmpeg.Bitrate != "128k" {
		t.Errorf("Expected bitrate 128k, got %s", cfg.FFmpeg.Bitrate)
	}
	if cfg.Models.Dir != "/opt/kokoro" {
		t.Errorf("Expected models dir /opt/kokoro, got %s", cfg.Models.Dir)
	}

	// Unset keys keep their defaults.
	if cfg.ONNX.Python != "python3" {
		t.Errorf("Expected default python, got %s", cfg.ONNX.Python)
	}
}

func TestLoadConfigFromViperInvalid(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("tts.speed", 9.0)

	if _, err := LoadConfigFromViper(); !IsKind(err, KindConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestSetDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	SetDefaults()

	cfg, err := LoadConfigFromViper()
	if err != nil {
		t.Fatalf("defaults should load: %v", err)
	}
	if cfg.ONNX.StartupTimeout != 2*time.Minute {
		t.Errorf("Expected 2m startup timeout, got %v", cfg.ONNX.StartupTimeout)
	}
	if cfg.FFmpeg.Timeout != time.Minute {
		t.Errorf("Expected 1m ffmpeg timeout, got %v", cfg.FFmpeg.Timeout)
	}
}

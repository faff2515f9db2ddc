package tts

import (
	"fmt"

	"github.com/spf13/viper"
)

// LoadConfigFromViper loads narration configuration from Viper. Only keys
// that are set (config file, environment or a changed flag) override the
// defaults.
func LoadConfigFromViper() (Config, error) {
	cfg := DefaultConfig()

	if viper.IsSet("tts.engine") {
		cfg.Engine = viper.GetString("tts.engine")
	}
	if viper.IsSet("tts.voice") {
		cfg.Voice = viper.GetString("tts.voice")
	}
	if viper.IsSet("tts.lang") {
		cfg.Lang = viper.GetString("tts.lang")
	}
	if viper.IsSet("tts.speed") {
		cfg.Speed = viper.GetFloat64("tts.speed")
	}
	if viper.IsSet("tts.cache_dir") {
		cfg.CacheDir = viper.GetString("tts.cache_dir")
	}
	if viper.IsSet("tts.keep_wav") {
		cfg.KeepWAV = viper.GetBool("tts.keep_wav")
	}

	cfg.Models = loadModelsConfig(cfg.Models)
	cfg.ONNX = loadONNXConfig(cfg.ONNX)
	cfg.FastAPI = loadFastAPIConfig(cfg.FastAPI)
	cfg.FFmpeg = loadFFmpegConfig(cfg.FFmpeg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid narration configuration: %w", err)
	}

	return cfg, nil
}

func loadModelsConfig(cfg ModelsConfig) ModelsConfig {
	if viper.IsSet("tts.models.dir") {
		cfg.Dir = viper.GetString("tts.models.dir")
	}
	if viper.IsSet("tts.models.model_path") {
		cfg.ModelPath = viper.GetString("tts.models.model_path")
	}
	if viper.IsSet("tts.models.voices_path") {
		cfg.VoicesPath = viper.GetString("tts.models.voices_path")
	}
	return cfg
}

func loadONNXConfig(cfg ONNXConfig) ONNXConfig {
	if viper.IsSet("tts.onnx.python") {
		cfg.Python = viper.GetString("tts.onnx.python")
	}
	if viper.IsSet("tts.onnx.script") {
		cfg.Script = viper.GetString("tts.onnx.script")
	}
	if viper.IsSet("tts.onnx.startup_timeout") {
		cfg.StartupTimeout = viper.GetDuration("tts.onnx.startup_timeout")
	}
	if viper.IsSet("tts.onnx.request_timeout") {
		cfg.RequestTimeout = viper.GetDuration("tts.onnx.request_timeout")
	}
	return cfg
}

func loadFastAPIConfig(cfg FastAPIConfig) FastAPIConfig {
	if viper.IsSet("tts.fastapi.endpoint") {
		cfg.Endpoint = viper.GetString("tts.fastapi.endpoint")
	}
	if viper.IsSet("tts.fastapi.model") {
		cfg.Model = viper.GetString("tts.fastapi.model")
	}
	if viper.IsSet("tts.fastapi.timeout") {
		cfg.Timeout = viper.GetDuration("tts.fastapi.timeout")
	}
	if viper.IsSet("tts.fastapi.fallback") {
		cfg.Fallback = viper.GetBool("tts.fastapi.fallback")
	}
	return cfg
}

func loadFFmpegConfig(cfg FFmpegConfig) FFmpegConfig {
	if viper.IsSet("tts.ffmpeg.binary") {
		cfg.Binary = viper.GetString("tts.ffmpeg.binary")
	}
	if viper.IsSet("tts.ffmpeg.bitrate") {
		cfg.Bitrate = viper.GetString("tts.ffmpeg.bitrate")
	}
	if viper.IsSet("tts.ffmpeg.timeout") {
		cfg.Timeout = viper.GetDuration("tts.ffmpeg.timeout")
	}
	return cfg
}

// SetDefaults sets default values in Viper for narration configuration.
func SetDefaults() {
	defaults := DefaultConfig()

	viper.SetDefault("tts.engine", defaults.Engine)
	viper.SetDefault("tts.voice", defaults.Voice)
	viper.SetDefault("tts.lang", defaults.Lang)
	viper.SetDefault("tts.speed", defaults.Speed)
	viper.SetDefault("tts.cache_dir", defaults.CacheDir)
	viper.SetDefault("tts.keep_wav", defaults.KeepWAV)

	viper.SetDefault("tts.onnx.python", defaults.ONNX.Python)
	viper.SetDefault("tts.onnx.startup_timeout", defaults.ONNX.StartupTimeout.String())
	viper.SetDefault("tts.onnx.request_timeout", defaults.ONNX.RequestTimeout.String())

	viper.SetDefault("tts.fastapi.endpoint", defaults.FastAPI.Endpoint)
	viper.SetDefault("tts.fastapi.model", defaults.FastAPI.Model)
	viper.SetDefault("tts.fastapi.timeout", defaults.FastAPI.Timeout.String())
	viper.SetDefault("tts.fastapi.fallback", defaults.FastAPI.Fallback)

	viper.SetDefault("tts.ffmpeg.binary", defaults.FFmpeg.Binary)
	viper.SetDefault("tts.ffmpeg.bitrate", defaults.FFmpeg.Bitrate)
	viper.SetDefault("tts.ffmpeg.timeout", defaults.FFmpeg.Timeout.String())
}

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# Narration settings. Every key can be overridden with an environment
# variable, e.g. NARRATE_TTS_VOICE=am_adam, or the matching flag.
tts:
  # Synthesis engine: onnx (local kokoro-onnx worker) or fastapi
  engine: "onnx"
  # Kokoro voice id, see: narrate voices
  voice: "af_bella"
  # Language code passed to the phonemizer
  lang: "en-us"
  # Speaking rate, 0.5 to 2.0. Not part of the cache key.
  speed: 1.0
  # Directory holding cache.json and the narrations
  cache_dir: "media/voiceovers"
  # Keep the intermediate WAV next to each MP3
  keep_wav: false

  # Kokoro model files, downloaded on first use
  models:
    # dir: "~/.local/share/narrate"
    # model_path: "/path/to/kokoro-v0_19.onnx"
    # voices_path: "/path/to/voices.bin"

  # Local kokoro-onnx worker
  onnx:
    python: "python3"
    # script: "/path/to/worker.py"
    startup_timeout: "2m"
    request_timeout: "5m"

  # Remote Kokoro-FastAPI server
  fastapi:
    endpoint: "http://localhost:8880"
    model: "kokoro"
    timeout: "2m"
    # Use this server when the local onnx worker keeps failing
    fallback: false

  # MP3 transcoding
  ffmpeg:
    binary: "ffmpeg"
    bitrate: "192k"
    timeout: "1m"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the narrate config file",
	Long:    paragraph(fmt.Sprintf("\n%s the narrate config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("narrate config\nnarrate config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Narrate", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}
	configFile = expandPath(configFile)

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}

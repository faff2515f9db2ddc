// Package main provides the entry point for the narrate CLI application.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/narrate/internal/assets"
	"github.com/dgnsrekt/narrate/internal/audio"
	"github.com/dgnsrekt/narrate/internal/cache"
	"github.com/dgnsrekt/narrate/internal/metrics"
	"github.com/dgnsrekt/narrate/internal/transcode"
	"github.com/dgnsrekt/narrate/tts"
	"github.com/dgnsrekt/narrate/tts/engines/fallback"
	"github.com/dgnsrekt/narrate/tts/engines/fastapi"
	"github.com/dgnsrekt/narrate/tts/engines/kokoro"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile  string
	debug       bool
	metricsFile string

	// rtEnv holds process switches read from the environment.
	rtEnv runtimeEnv
	// stats is shared by every service the command builds.
	stats = metrics.New(nil)

	rootCmd = &cobra.Command{
		Use:   "narrate",
		Short: "Cached Kokoro narration for animation voiceovers",
		Long: paragraph(
			fmt.Sprintf("\nTurn narration text into %s MP3 files with Kokoro.", keyword("cached")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
	}
)

// runtimeEnv carries switches that are not narration settings.
type runtimeEnv struct {
	LogFile     string        `env:"NARRATE_LOG_FILE"`
	NoProgress  bool          `env:"NARRATE_NO_PROGRESS"`
	HTTPTimeout time.Duration `env:"NARRATE_HTTP_TIMEOUT"`
}

func validateOptions(cmd *cobra.Command) error {
	if debug || viper.GetBool("debug") {
		enableDebugLog()
	}

	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(expandPath(configFile))
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
	}

	if metricsFile != "" {
		metricsFile = expandPath(metricsFile)
	}
	return nil
}

// loadConfig reads the narration settings with flag > env > file > default
// precedence and expands user paths.
func loadConfig() (tts.Config, error) {
	cfg, err := tts.LoadConfigFromViper()
	if err != nil {
		return cfg, err
	}
	cfg.CacheDir = expandPath(cfg.CacheDir)
	cfg.Models.Dir = expandPath(cfg.Models.Dir)
	cfg.Models.ModelPath = expandPath(cfg.Models.ModelPath)
	cfg.Models.VoicesPath = expandPath(cfg.Models.VoicesPath)
	cfg.ONNX.Script = expandPath(cfg.ONNX.Script)
	return cfg, nil
}

// newProvisioner builds the model downloader with terminal progress.
func newProvisioner() *assets.Provisioner {
	return assets.New(assets.Options{
		Client:   &http.Client{Timeout: rtEnv.HTTPTimeout},
		Progress: downloadProgress(),
		Recorder: stats,
		Logger:   log.Default(),
	})
}

// newService wires the configured engine, ffmpeg and the disk cache.
func newService(ctx context.Context, cfg tts.Config) (*tts.Service, error) {
	deps := tts.Dependencies{
		Transcoder: transcode.New(cfg.FFmpeg, log.Default()),
		Store:      cache.NewDiskStore(),
		Prober:     audio.Prober{},
		Recorder:   stats,
		Logger:     log.Default(),
	}

	switch cfg.Engine {
	case "fastapi":
		deps.NewEngine = fastapi.Factory(fastapi.OptionsFromConfig(cfg.FastAPI, log.Default()))
	default:
		deps.Provisioner = newProvisioner()
		deps.NewEngine = kokoro.Factory(kokoro.OptionsFromConfig(cfg.ONNX, log.Default()))
		if cfg.FastAPI.Fallback {
			deps.NewEngine = fallback.Factory(deps.NewEngine,
				fastapi.Factory(fastapi.OptionsFromConfig(cfg.FastAPI, log.Default())),
				fallback.DefaultMaxFailures, log.Default())
		}
	}

	return tts.NewService(ctx, cfg, deps)
}

// audioPath resolves an entry's audio file against its cache directory.
func audioPath(cacheDir string, entry *tts.CacheEntry) string {
	if filepath.IsAbs(entry.OriginalAudio) {
		return entry.OriginalAudio
	}
	p := filepath.Join(cacheDir, entry.OriginalAudio)
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func writeMetrics() error {
	if metricsFile == "" {
		return nil
	}
	return stats.WriteTextfile(metricsFile)
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err = rootCmd.ExecuteContext(ctx)
	stop()

	if merr := writeMetrics(); merr != nil {
		log.Warn("Could not write metrics", "error", merr)
	}
	_ = closer()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	// A missing .env is the common case.
	_ = godotenv.Load()

	var err error
	rtEnv, err = env.ParseAs[runtimeEnv]()
	if err != nil {
		fmt.Println("Could not parse environment:", err)
		os.Exit(1)
	}

	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	flags.String("cache-dir", tts.DefaultCacheDir, "directory holding cache.json and the audio files")
	flags.String("voice", "af_bella", "Kokoro voice id")
	flags.String("lang", "en-us", "language code")
	flags.Float64("speed", 1.0, "speaking rate (0.5-2.0)")
	flags.String("engine", "onnx", "synthesis engine (onnx or fastapi)")
	flags.BoolVar(&debug, "debug", false, "log debug output to stderr")
	flags.StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile on exit")

	// Config bindings
	_ = viper.BindPFlag("tts.cache_dir", flags.Lookup("cache-dir"))
	_ = viper.BindPFlag("tts.voice", flags.Lookup("voice"))
	_ = viper.BindPFlag("tts.lang", flags.Lookup("lang"))
	_ = viper.BindPFlag("tts.speed", flags.Lookup("speed"))
	_ = viper.BindPFlag("tts.engine", flags.Lookup("engine"))
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))

	tts.SetDefaults()

	rootCmd.AddCommand(
		sayCmd,
		renderCmd,
		assetsCmd,
		cacheCmd,
		voicesCmd,
		doctorCmd,
		playCmd,
		configCmd,
		manCmd,
	)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "narrate")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "narrate")}, dirs...)
	}

	if c := os.Getenv("NARRATE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("narrate")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("narrate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	configFile = filepath.Join(dirs[0], "narrate.yml")
}

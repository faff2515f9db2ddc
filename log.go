package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
)

// logFile receives every log line; stderr only sees them with --debug.
var logFile io.Writer = io.Discard

func getLogFilePath() (string, error) {
	if rtEnv.LogFile != "" {
		return expandPath(rtEnv.LogFile), nil
	}
	dir, err := gap.NewScope(gap.User, "narrate").CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "narrate.log"), nil
}

func setupLog() (func() error, error) {
	log.SetOutput(io.Discard)

	// Log to file, if set
	path, err := getLogFilePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	logFile = f
	log.SetOutput(f)
	log.SetLevel(log.InfoLevel)
	log.SetReportTimestamp(true)
	return f.Close, nil
}

func enableDebugLog() {
	log.SetOutput(io.MultiWriter(logFile, os.Stderr))
	log.SetLevel(log.DebugLevel)
}

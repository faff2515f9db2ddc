package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// expandPath expands ~ and environment variables. Empty stays empty.
func expandPath(path string) string {
	if path == "" {
		return ""
	}
	s, err := homedir.Expand(path)
	if err == nil {
		return os.ExpandEnv(s)
	}
	return path
}

// expandOutput expands ~ in an audio output name. Environment variables are
// left alone: "$" is a legal file name character.
func expandOutput(name string) string {
	if s, err := homedir.Expand(name); err == nil {
		return s
	}
	return name
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

// readText joins args, or reads stdin when there are none and it is piped.
func readText(args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	if yes, err := stdinIsPipe(); err != nil {
		return "", err
	} else if !yes && len(args) == 0 {
		return "", nil
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("unable to read from stdin: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// truncate shortens s to n runes.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// shortKey is the first 12 hex digits of a cache key.
func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}

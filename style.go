package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

var (
	keyword = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#04B575")).
		Render

	paragraph = lipgloss.NewStyle().
			Width(78).
			Padding(0, 0, 0, 2).
			Render

	faint = lipgloss.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"}).
		Render

	okMark   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Render("✓")
	failMark = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4672")).Render("✗")
	warnMark = lipgloss.NewStyle().Foreground(lipgloss.Color("#ECFD65")).Render("!")
)

// downloadProgress prints a single updating line on a terminal and nothing
// otherwise.
func downloadProgress() func(name string, done, total int64) {
	if rtEnv.NoProgress || !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	return func(name string, done, total int64) {
		pct := float64(done) / float64(total) * 100
		fmt.Fprintf(os.Stderr, "\r  %s %s %3.0f%% %s",
			keyword("↓"), name, pct,
			faint(fmt.Sprintf("(%s / %s)", humanize.Bytes(uint64(done)), humanize.Bytes(uint64(total)))))
		if done >= total {
			fmt.Fprintln(os.Stderr)
		}
	}
}

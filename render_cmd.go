package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/narrate/internal/script"
	"github.com/dgnsrekt/narrate/tts"
)

var (
	renderJobs     int
	renderContinue bool

	renderCmd = &cobra.Command{
		Use:   "render SCRIPT",
		Short: "Narrate every line of a YAML or Markdown script",
		Long: paragraph(fmt.Sprintf("\n%s every line of a script. YAML scripts list lines with optional "+
			"voice, lang, speed and output; in Markdown scripts every paragraph is a line.", keyword("Narrate"))),
		Example: paragraph("narrate render lecture.yml\nnarrate render --jobs 4 notes.md"),
		Args:    cobra.ExactArgs(1),
		RunE:    runRender,
	}
)

type renderResult struct {
	item  script.Item
	entry *tts.CacheEntry
	err   error
	took  time.Duration
}

func runRender(cmd *cobra.Command, args []string) error {
	s, err := script.Load(expandPath(args[0]))
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	items := s.Items(cfg)
	if len(items) == 0 {
		fmt.Println(faint("script has no lines"))
		return nil
	}

	svc, err := newService(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer svc.Close() //nolint:errcheck

	results := make([]renderResult, len(items))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(max(renderJobs, 1))
	for i, item := range items {
		g.Go(func() error {
			start := time.Now()
			entry, err := svc.SynthesizeRequest(ctx, item.Request, "", expandOutput(item.Output))
			results[i] = renderResult{item: item, entry: entry, err: err, took: time.Since(start)}
			if err != nil {
				log.Error("Narration failed", "line", i+1, "error", err)
				if !renderContinue {
					return err
				}
			}
			return nil
		})
	}
	runErr := g.Wait()

	failed := 0
	for i, r := range results {
		switch {
		case r.entry != nil:
			fmt.Printf("%s %s %s\n", okMark, audioPath(cfg.CacheDir, r.entry),
				faint(fmt.Sprintf("%.1fs in %s %q", r.entry.Duration, r.took.Round(time.Millisecond), truncate(r.item.Request.Text, 40))))
		case r.err != nil:
			failed++
			fmt.Printf("%s line %d: %v\n", failMark, i+1, r.err)
		default:
			fmt.Printf("%s line %d: skipped\n", warnMark, i+1)
		}
	}

	if runErr != nil {
		return runErr
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d lines failed", failed, len(items))
	}
	return nil
}

func init() {
	renderCmd.Flags().IntVarP(&renderJobs, "jobs", "j", 1, "lines narrated in parallel")
	renderCmd.Flags().BoolVarP(&renderContinue, "keep-going", "k", false, "continue after a failed line")
}

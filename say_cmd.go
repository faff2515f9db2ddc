package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/narrate/internal/audio/player"
)

var (
	sayOutput string
	sayCopy   bool
	sayPlay   bool
	sayJSON   bool

	sayCmd = &cobra.Command{
		Use:   "say [TEXT...]",
		Short: "Narrate text and print the path of the MP3",
		Long: paragraph(fmt.Sprintf("\n%s text with Kokoro and print the path of the MP3. "+
			"Identical text, voice and language reuse the cached file. Text is read from stdin when no argument is given.",
			keyword("Narrate"))),
		Example: paragraph("narrate say \"Hello world\"\n" +
			"narrate say --voice am_adam --output intro.mp3 \"Welcome back\"\n" +
			"echo \"Piped text\" | narrate say --play"),
		RunE: runSay,
	}
)

func runSay(cmd *cobra.Command, args []string) error {
	text, err := readText(args)
	if err != nil {
		return err
	}
	if text == "" {
		return errors.New("nothing to say: pass text as arguments or on stdin")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	svc, err := newService(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close() //nolint:errcheck

	entry, err := svc.Synthesize(ctx, text, "", expandOutput(sayOutput))
	if err != nil {
		return err
	}
	path := audioPath(cfg.CacheDir, entry)

	if sayJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "    ")
		if err := enc.Encode(entry); err != nil {
			return err
		}
	} else {
		fmt.Println(path)
	}

	if sayCopy {
		if err := clipboard.WriteAll(path); err != nil {
			log.Warn("Could not copy path to clipboard", "error", err)
		}
	}
	if sayPlay {
		if err := player.Play(ctx, path); err != nil {
			return fmt.Errorf("unable to play %s: %w", path, err)
		}
	}
	return nil
}

func init() {
	sayCmd.Flags().StringVarP(&sayOutput, "output", "o", "", "audio file name, relative to the cache dir (default <key>.mp3)")
	sayCmd.Flags().BoolVarP(&sayCopy, "copy", "c", false, "copy the audio path to the clipboard")
	sayCmd.Flags().BoolVarP(&sayPlay, "play", "p", false, "play the narration")
	sayCmd.Flags().BoolVar(&sayJSON, "json", false, "print the cache entry as JSON")
}

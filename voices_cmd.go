package main

import (
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/narrate/tts"
)

var (
	voicesLang string

	voicesCmd = &cobra.Command{
		Use:     "voices [QUERY]",
		Short:   "List the Kokoro voices",
		Example: paragraph("narrate voices\nnarrate voices bella\nnarrate voices --lang en-gb"),
		Args:    cobra.MaximumNArgs(1),
		RunE:    runVoices,
	}
)

// voiceList adapts voices to fuzzy.Source.
type voiceList []tts.Voice

func (v voiceList) String(i int) string { return v[i].ID }
func (v voiceList) Len() int            { return len(v) }

func filterVoices(query, lang string) []tts.Voice {
	var voices voiceList
	for _, v := range tts.KnownVoices() {
		if lang == "" || strings.EqualFold(v.Language, lang) {
			voices = append(voices, v)
		}
	}
	if query == "" {
		return voices
	}

	var out []tts.Voice
	for _, m := range fuzzy.FindFrom(strings.ToLower(query), voices) {
		out = append(out, voices[m.Index])
	}
	return out
}

func runVoices(_ *cobra.Command, args []string) error {
	query := ""
	if len(args) == 1 {
		query = args[0]
	}

	current := ""
	if cfg, err := loadConfig(); err == nil {
		current = cfg.Voice
	}

	voices := filterVoices(query, voicesLang)
	if len(voices) == 0 {
		return fmt.Errorf("no voice matches %q", query)
	}
	for _, v := range voices {
		mark := " "
		if v.ID == current {
			mark = okMark
		}
		fmt.Printf("%s %-14s %-6s %s\n", mark, v.ID, v.Language, faint(v.Gender))
	}
	return nil
}

func init() {
	voicesCmd.Flags().StringVarP(&voicesLang, "lang", "l", "", "only voices for this language")
}

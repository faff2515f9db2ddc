// Package script reads narration scripts: batches of lines to synthesize
// with shared defaults.
//
// YAML scripts look like:
//
//	voice: af_bella
//	lang: en-us
//	speed: 1.0
//	lines:
//	  - Welcome to the lecture.
//	  - text: Today we cover <bookmark mark="A"/> derivatives.
//	    output: scene1/intro.mp3
//	    voice: am_adam
//
// Markdown scripts narrate every paragraph; see ParseMarkdown.
package script

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/narrate/tts"
)

// ErrUnknownFormat is returned for files that are neither YAML nor Markdown.
var ErrUnknownFormat = errors.New("unknown script format")

// Line is one narration.
type Line struct {
	Text   string  `yaml:"text"`
	Output string  `yaml:"output,omitempty"`
	Voice  string  `yaml:"voice,omitempty"`
	Lang   string  `yaml:"lang,omitempty"`
	Speed  float64 `yaml:"speed,omitempty"`
}

// UnmarshalYAML accepts a bare string as shorthand for {text: ...}.
func (l *Line) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		l.Text = node.Value
		return nil
	}
	// node.Decode does not inherit the decoder's KnownFields setting.
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			k := node.Content[i]
			if !lineFields[k.Value] {
				return fmt.Errorf("line %d: field %s not found in type script.Line", k.Line, k.Value)
			}
		}
	}
	type plain Line
	return node.Decode((*plain)(l))
}

var lineFields = map[string]bool{"text": true, "output": true, "voice": true, "lang": true, "speed": true}

// Script is a list of lines with defaults.
type Script struct {
	Voice string  `yaml:"voice,omitempty"`
	Lang  string  `yaml:"lang,omitempty"`
	Speed float64 `yaml:"speed,omitempty"`
	Lines []Line  `yaml:"lines"`
}

// Item is a line resolved against the script and configuration defaults.
type Item struct {
	Request tts.NarrationRequest
	Output  string
}

// Load reads a script, picking the parser from the file extension.
func Load(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var s *Script
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		s, err = ParseYAML(f)
	case ".md", ".markdown":
		s, err = ParseMarkdown(f)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseYAML decodes a YAML script.
func ParseYAML(r io.Reader) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return &s, nil
		}
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate rejects lines without text and out of range speeds.
func (s *Script) Validate() error {
	if s.Speed != 0 && (s.Speed < 0.5 || s.Speed > 2.0) {
		return fmt.Errorf("script speed %.2f out of range 0.5-2.0", s.Speed)
	}
	for i, l := range s.Lines {
		if strings.TrimSpace(l.Text) == "" {
			return fmt.Errorf("line %d: empty text", i+1)
		}
		if l.Speed != 0 && (l.Speed < 0.5 || l.Speed > 2.0) {
			return fmt.Errorf("line %d: speed %.2f out of range 0.5-2.0", i+1, l.Speed)
		}
	}
	return nil
}

// Items resolves every line: line settings win over script defaults, which
// win over cfg.
func (s *Script) Items(cfg tts.Config) []Item {
	items := make([]Item, 0, len(s.Lines))
	for _, l := range s.Lines {
		voice := first(l.Voice, s.Voice, cfg.Voice)
		lang := first(l.Lang, s.Lang, cfg.Lang)
		speed := cfg.Speed
		if s.Speed != 0 {
			speed = s.Speed
		}
		if l.Speed != 0 {
			speed = l.Speed
		}
		items = append(items, Item{
			Request: tts.NewRequest(l.Text, voice, lang, speed),
			Output:  l.Output,
		})
	}
	return items
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

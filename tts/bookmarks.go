package tts

import (
	"regexp"
	"strings"
)

// bookmarkPattern matches manim-voiceover bookmark tags such as <bookmark mark="A"/>.
var bookmarkPattern = regexp.MustCompile(`<bookmark\s*mark\s*=\s*['"]\w*['"]\s*/>`)

// StripBookmarks removes bookmark tags so they are not spoken. Runs of spaces
// left behind by a removed tag collapse to one.
func StripBookmarks(text string) string {
	if !strings.Contains(text, "<bookmark") {
		return text
	}
	out := bookmarkPattern.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(out), " ")
}

// Bookmarks returns the mark names in the order they appear.
func Bookmarks(text string) []string {
	var marks []string
	for _, tag := range bookmarkPattern.FindAllString(text, -1) {
		start := strings.IndexAny(tag, `'"`)
		end := strings.LastIndexAny(tag, `'"`)
		if start >= 0 && end > start {
			marks = append(marks, tag[start+1:end])
		}
	}
	return marks
}

package tts

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

// Voice describes a Kokoro voice pack entry.
type Voice struct {
	ID       string // Voice identifier, e.g. "af_bella"
	Language string // Default language code for the voice
	Gender   string
}

// languageByPrefix maps the first letter of a Kokoro voice id to its language.
var languageByPrefix = map[byte]string{
	'a': "en-us",
	'b': "en-gb",
	'e': "es",
	'f': "fr-fr",
	'h': "hi",
	'i': "it",
	'j': "ja",
	'p': "pt-br",
	'z': "cmn",
}

var voiceIDs = []string{
	"af", "af_alloy", "af_aoede", "af_bella", "af_heart", "af_jessica", "af_kore",
	"af_nicole", "af_nova", "af_river", "af_sarah", "af_sky",
	"am_adam", "am_echo", "am_eric", "am_fenrir", "am_liam", "am_michael", "am_onyx", "am_puck",
	"bf_alice", "bf_emma", "bf_isabella", "bf_lily",
	"bm_daniel", "bm_fable", "bm_george", "bm_lewis",
	"ef_dora", "em_alex", "em_santa",
	"ff_siwis",
	"hf_alpha", "hf_beta", "hm_omega", "hm_psi",
	"if_sara", "im_nicola",
	"jf_alpha", "jf_gongitsune", "jf_nezumi", "jf_tebukuro", "jm_kumo",
	"pf_dora", "pm_alex", "pm_santa",
	"zf_xiaobei", "zf_xiaoni", "zf_xiaoxiao", "zf_xiaoyi",
	"zm_yunjian", "zm_yunxi", "zm_yunxia", "zm_yunyang",
}

// KnownVoices returns the voices shipped in the Kokoro voice packs, sorted by id.
func KnownVoices() []Voice {
	voices := make([]Voice, 0, len(voiceIDs))
	for _, id := range voiceIDs {
		voices = append(voices, Voice{
			ID:       id,
			Language: VoiceLanguage(id),
			Gender:   voiceGender(id),
		})
	}
	sort.Slice(voices, func(i, j int) bool { return voices[i].ID < voices[j].ID })
	return voices
}

// IsKnownVoice reports whether id is a shipped voice.
func IsKnownVoice(id string) bool {
	for _, v := range voiceIDs {
		if v == id {
			return true
		}
	}
	return false
}

// VoiceLanguage returns the default language for a voice id, or "" when the
// prefix is not recognised.
func VoiceLanguage(id string) string {
	if id == "" {
		return ""
	}
	return languageByPrefix[id[0]]
}

func voiceGender(id string) string {
	if len(id) < 2 {
		return ""
	}
	switch id[1] {
	case 'f':
		return "female"
	case 'm':
		return "male"
	}
	return ""
}

// SuggestVoice returns the closest known voice id for a misspelt name.
func SuggestVoice(name string) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || IsKnownVoice(name) {
		return "", false
	}

	matches := fuzzy.Find(name, voiceIDs)
	if len(matches) > 0 {
		return matches[0].Str, true
	}

	// Fall back to the longest shared prefix, e.g. "af_bellx" -> "af_bella".
	best, bestLen := "", 0
	for _, id := range voiceIDs {
		n := commonPrefix(name, id)
		if n > bestLen {
			best, bestLen = id, n
		}
	}
	if bestLen >= 3 {
		return best, true
	}
	return "", false
}

func commonPrefix(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

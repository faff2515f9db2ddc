package tts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"unicode/utf16"
)

// ServiceID identifies this synthesis service inside cache keys. It matches the
// identifier used by existing manim-voiceover caches so those stay valid.
const ServiceID = "kokoro_self"

// NarrationRequest describes one narration line.
type NarrationRequest struct {
	Text     string
	Service  string
	Voice    string
	Language string
	Speed    float64
}

// NewRequest returns a request for this service.
func NewRequest(text, voice, lang string, speed float64) NarrationRequest {
	return NarrationRequest{
		Text:     text,
		Service:  ServiceID,
		Voice:    voice,
		Language: lang,
		Speed:    speed,
	}
}

// RequestData is the four-field mapping stored with every cache entry and
// hashed into its key. Speed is not part of it.
type RequestData struct {
	InputText string `json:"input_text"`
	Service   string `json:"service"`
	Voice     string `json:"voice"`
	Lang      string `json:"lang"`
}

// Data returns the request's cache mapping.
func (r NarrationRequest) Data() RequestData {
	return RequestData{
		InputText: r.Text,
		Service:   r.Service,
		Voice:     r.Voice,
		Lang:      r.Language,
	}
}

// Key returns the request's CacheKey.
func (r NarrationRequest) Key() string {
	return r.Data().Key()
}

// fields returns the mapping keyed by its JSON names.
func (d RequestData) fields() map[string]string {
	return map[string]string{
		"input_text": d.InputText,
		"service":    d.Service,
		"voice":      d.Voice,
		"lang":       d.Lang,
	}
}

// Canonical renders the mapping with sorted keys in the exact form produced by
// Python's json.dumps(sort_keys=True).
func (d RequestData) Canonical() string {
	return canonicalJSON(d.fields())
}

// Key returns the lowercase hex SHA-256 of the canonical form.
func (d RequestData) Key() string {
	sum := sha256.Sum256([]byte(d.Canonical()))
	return hex.EncodeToString(sum[:])
}

func canonicalJSON(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		writeASCIIString(&b, k)
		b.WriteString(": ")
		writeASCIIString(&b, m[k])
	}
	b.WriteByte('}')
	return b.String()
}

// writeASCIIString quotes s with every byte outside printable ASCII escaped
// as \uXXXX, code points above U+FFFF as surrogate pairs.
func writeASCIIString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			switch {
			case r >= 0x20 && r <= 0x7e:
				b.WriteRune(r)
			case r > 0xffff:
				hi, lo := utf16.EncodeRune(r)
				fmt.Fprintf(b, `\u%04x\u%04x`, hi, lo)
			default:
				fmt.Fprintf(b, `\u%04x`, r)
			}
		}
	}
	b.WriteByte('"')
}

// Package player previews narrations on the local audio device through
// oto/v3. It is separate from package audio so the narration pipeline never
// links the audio device library; builds without cgo get a stub Play.
package player

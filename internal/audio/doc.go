// Package audio reads and writes the audio files narrate produces: 16-bit
// mono WAV intermediates and MP3 durations. Playback lives in the player
// subpackage.
package audio

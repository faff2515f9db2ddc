// Package cache stores narration cache entries. Each cache directory holds
// its audio files next to a cache.json index in the format manim-voiceover
// reads, so directories can be shared with it. Directories can be packed
// into zstd-compressed tarballs and restored elsewhere.
package cache

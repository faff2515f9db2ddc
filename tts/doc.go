// Package tts turns narration text into cached MP3 files.
//
// A Service derives a cache key from the text, service id, voice and
// language, returns the stored entry when one exists, and otherwise drives an
// Engine, normalizes and quantizes its waveform, writes an intermediate WAV,
// hands it to a Transcoder and records the result in a Store.
//
// Keys match the ones manim-voiceover's Kokoro service writes, so existing
// cache.json indexes keep working:
//
//	req := tts.NewRequest("Hello world", "af_bella", "en-us", 1.0)
//	key := req.Key() // sha256 of {"input_text": ..., "lang": ..., "service": "kokoro_self", "voice": ...}
//
// Engines live under tts/engines; stores, transcoding and model download
// under internal/.
package tts

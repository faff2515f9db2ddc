package cache

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/dgnsrekt/narrate/tts"
)

// PackOptions controls Pack.
type PackOptions struct {
	// Level is a zstd level from 1 (fastest) to 22; 0 uses the default.
	Level int
}

// Pack writes cacheDir as a zstd-compressed tar stream. Only the index and
// the audio files it references are included, which leaves out leftover
// intermediates and temp files.
func Pack(cacheDir string, w io.Writer, opts PackOptions) (int, error) {
	store := NewDiskStore()
	records, err := store.List(cacheDir)
	if err != nil {
		return 0, err
	}

	level := zstd.SpeedDefault
	if opts.Level > 0 {
		level = zstd.EncoderLevelFromZstd(opts.Level)
	}
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(level))
	if err != nil {
		return 0, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	tw := tar.NewWriter(zw)

	// Audio outside the directory stays behind; Unpack would refuse it.
	files := []string{IndexFile}
	for _, rec := range records {
		if rec.Missing || !filepath.IsLocal(rec.OriginalAudio) {
			continue
		}
		files = append(files, rec.OriginalAudio)
	}

	count := 0
	for _, name := range files {
		if err := addFile(tw, cacheDir, name); err != nil {
			if errors.Is(err, fs.ErrNotExist) && name == IndexFile {
				continue
			}
			zw.Close()
			return count, err
		}
		count++
	}

	if err := tw.Close(); err != nil {
		zw.Close()
		return count, err
	}
	return count, zw.Close()
}

func addFile(tw *tar.Writer, dir, name string) error {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(name)

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

// Unpack extracts a stream produced by Pack into cacheDir. Entries in an
// existing index are merged with the archived ones; archived entries win.
func Unpack(r io.Reader, cacheDir string) (int, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer zr.Close()

	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return 0, err
	}

	var archivedIndex []byte
	count := 0
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to read archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := filepath.FromSlash(hdr.Name)
		if !filepath.IsLocal(name) {
			return count, fmt.Errorf("%w: %s", ErrUnsafeArchivePath, hdr.Name)
		}

		if name == IndexFile {
			archivedIndex, err = io.ReadAll(tr)
			if err != nil {
				return count, err
			}
			count++
			continue
		}

		if err := extractFile(tr, filepath.Join(cacheDir, name), hdr.FileInfo().Mode()); err != nil {
			return count, err
		}
		count++
	}

	if archivedIndex != nil {
		if err := mergeIndex(cacheDir, archivedIndex); err != nil {
			return count, err
		}
	}
	return count, nil
}

func extractFile(r io.Reader, path string, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm()|0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func mergeIndex(cacheDir string, archived []byte) error {
	var incoming []json.RawMessage
	if strings.TrimSpace(string(archived)) != "" {
		if err := json.Unmarshal(archived, &incoming); err != nil {
			return fmt.Errorf("%w: archived %s: %v", ErrCacheCorrupted, IndexFile, err)
		}
	}

	store := NewDiskStore()
	current, err := store.load(cacheDir)
	if err != nil {
		return err
	}
	for _, raw := range incoming {
		var entry tts.CacheEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			// Not ours to interpret; keep it once.
			if !containsRaw(current.raw, raw) {
				current.raw = append(current.raw, raw)
			}
			continue
		}
		key := entry.InputData.Key()
		if pos, ok := current.byKey[key]; ok {
			current.raw[pos] = raw
			continue
		}
		current.byKey[key] = len(current.raw)
		current.raw = append(current.raw, raw)
	}
	return store.save(cacheDir, current)
}

func containsRaw(list []json.RawMessage, raw json.RawMessage) bool {
	var want bytes.Buffer
	if err := json.Compact(&want, raw); err != nil {
		return false
	}
	for _, r := range list {
		var got bytes.Buffer
		if json.Compact(&got, r) == nil && bytes.Equal(got.Bytes(), want.Bytes()) {
			return true
		}
	}
	return false
}

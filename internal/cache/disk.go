package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgnsrekt/narrate/tts"
)

// DiskStore implements tts.Store on top of per-directory cache.json files.
// Indexes are loaded on first use and reloaded when the file changes on disk.
// Entries written by other tools are kept verbatim.
type DiskStore struct {
	mu    sync.Mutex
	dirs  map[string]*dirIndex
	stats CacheStats
}

// dirIndex is the in-memory copy of one cache.json.
type dirIndex struct {
	raw   []json.RawMessage // file order, preserved on rewrite
	byKey map[string]int    // CacheKey -> position in raw

	modTime time.Time
	size    int64
}

// NewDiskStore creates an empty store.
func NewDiskStore() *DiskStore {
	return &DiskStore{dirs: make(map[string]*dirIndex)}
}

// Get returns the entry recorded under key in cacheDir. An entry whose audio
// file no longer exists is reported as a miss.
func (s *DiskStore) Get(cacheDir, key string) (*tts.CacheEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.load(cacheDir)
	if err != nil {
		return nil, false, err
	}

	pos, ok := idx.byKey[key]
	if !ok {
		s.stats.Misses++
		return nil, false, nil
	}

	var entry tts.CacheEntry
	if err := json.Unmarshal(idx.raw[pos], &entry); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}
	if _, err := os.Stat(resolve(cacheDir, entry.OriginalAudio)); err != nil {
		s.stats.Misses++
		return nil, false, nil
	}

	s.stats.Hits++
	return &entry, true, nil
}

// Put records entry under key and rewrites the index atomically. An existing
// entry for the same key is replaced in place.
func (s *DiskStore) Put(cacheDir, key string, entry *tts.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.load(cacheDir)
	if err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	if pos, ok := idx.byKey[key]; ok {
		idx.raw[pos] = data
	} else {
		idx.byKey[key] = len(idx.raw)
		idx.raw = append(idx.raw, data)
	}

	return s.save(cacheDir, idx)
}

// Delete removes the entry for key and its audio file.
func (s *DiskStore) Delete(cacheDir, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.load(cacheDir)
	if err != nil {
		return err
	}
	pos, ok := idx.byKey[key]
	if !ok {
		return nil
	}

	var entry tts.CacheEntry
	if err := json.Unmarshal(idx.raw[pos], &entry); err == nil && entry.OriginalAudio != "" {
		if err := os.Remove(resolve(cacheDir, entry.OriginalAudio)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	idx.raw = append(idx.raw[:pos], idx.raw[pos+1:]...)
	idx.reindex()
	return s.save(cacheDir, idx)
}

// List returns the entries of cacheDir in index order. Entries that are not
// narration records are skipped.
func (s *DiskStore) List(cacheDir string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.load(cacheDir)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(idx.raw))
	for _, raw := range idx.raw {
		var entry tts.CacheEntry
		if err := json.Unmarshal(raw, &entry); err != nil || entry.OriginalAudio == "" {
			continue
		}
		rec := Record{
			Key:        entry.InputData.Key(),
			CacheEntry: entry,
			AudioPath:  resolve(cacheDir, entry.OriginalAudio),
		}
		if info, err := os.Stat(rec.AudioPath); err == nil {
			rec.Size = info.Size()
			rec.ModTime = info.ModTime()
		} else {
			rec.Missing = true
		}
		records = append(records, rec)
	}
	return records, nil
}

// Stats returns lookup counters.
func (s *DiskStore) Stats() CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats
	for _, idx := range s.dirs {
		stats.ItemCount += int64(len(idx.raw))
	}
	return stats
}

// Private helper methods

func (s *DiskStore) load(cacheDir string) (*dirIndex, error) {
	dirKey, err := filepath.Abs(cacheDir)
	if err != nil {
		return nil, err
	}
	indexPath := filepath.Join(cacheDir, IndexFile)

	info, err := os.Stat(indexPath)
	if errors.Is(err, fs.ErrNotExist) {
		// No index file yet
		idx, ok := s.dirs[dirKey]
		if !ok || !idx.modTime.IsZero() {
			idx = &dirIndex{byKey: make(map[string]int)}
			s.dirs[dirKey] = idx
		}
		return idx, nil
	}
	if err != nil {
		return nil, err
	}

	if idx, ok := s.dirs[dirKey]; ok && idx.modTime.Equal(info.ModTime()) && idx.size == info.Size() {
		return idx, nil
	}

	data, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, err
	}
	idx := &dirIndex{modTime: info.ModTime(), size: info.Size()}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &idx.raw); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCacheCorrupted, indexPath, err)
		}
	}
	idx.reindex()
	s.dirs[dirKey] = idx
	return idx, nil
}

func (s *DiskStore) save(cacheDir string, idx *dirIndex) error {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.MarshalIndent(idx.raw, "", "    ")
	if err != nil {
		return err
	}

	indexPath := filepath.Join(cacheDir, IndexFile)
	if err := writeFile(indexPath, data); err != nil {
		return fmt.Errorf("failed to write cache index: %w", err)
	}

	if info, err := os.Stat(indexPath); err == nil {
		idx.modTime, idx.size = info.ModTime(), info.Size()
	}
	return nil
}

func (idx *dirIndex) reindex() {
	idx.byKey = make(map[string]int, len(idx.raw))
	for i, raw := range idx.raw {
		var entry tts.CacheEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		// Later duplicates win, matching a last-write-wins append log.
		idx.byKey[entry.InputData.Key()] = i
	}
}

func writeFile(path string, data []byte) error {
	// Write to temp file first, then rename (atomic on most systems)
	file, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tempPath := file.Name()

	_, err = file.Write(data)
	closeErr := file.Close()

	if err != nil {
		os.Remove(tempPath)
		return err
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return closeErr
	}

	return os.Rename(tempPath, path)
}

func resolve(cacheDir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(cacheDir, p)
}

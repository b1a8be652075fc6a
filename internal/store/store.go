// Package store is the durable home of recordings: a managed media
// directory plus a single JSON index of metadata. The filesystem is the
// source of truth for existence, the index for metadata; every read path
// reconciles the two instead of trusting the index blindly.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound means no entry with the given id exists.
	ErrNotFound = errors.New("recording not found")

	// ErrInvalidInput means the caller supplied unusable metadata.
	ErrInvalidInput = errors.New("invalid input")
)

// mediaExtension is the fixed extension for stored recordings.
const mediaExtension = ".wav"

// Store owns the managed media directory and the metadata index. Save,
// Update, Delete and ClearAll serialize on a single writer lock because the
// index is one document, not per-record storage.
type Store struct {
	dir       string
	indexPath string

	mu    sync.Mutex
	ready bool
}

// New creates a store over the given media directory and index file path.
// The index must live outside the media directory.
func New(mediaDir, indexPath string) *Store {
	return &Store{dir: mediaDir, indexPath: indexPath}
}

// Dir returns the managed media directory.
func (s *Store) Dir() string { return s.dir }

// EnsureReady creates the managed directory and the index parent if absent.
// Idempotent and safe to call concurrently; every operation calls it
// internally.
func (s *Store) EnsureReady() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureReadyLocked()
}

func (s *Store) ensureReadyLocked() error {
	if s.ready {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create media directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.indexPath), 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	s.ready = true
	return nil
}

// Save relocates a finished capture file into the managed directory and
// appends its metadata to the index, returning the finalized entry. The id
// and creation time are assigned here unless the seed carries them.
func (s *Store) Save(tempPath string, seed Seed) (RecordingEntry, error) {
	if !seed.Kind.Valid() {
		return RecordingEntry{}, fmt.Errorf("seed requires a valid kind, got %q: %w", seed.Kind, ErrInvalidInput)
	}
	if _, err := os.Stat(tempPath); err != nil {
		return RecordingEntry{}, fmt.Errorf("capture file unreadable: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureReadyLocked(); err != nil {
		return RecordingEntry{}, err
	}

	entries, err := s.readIndex()
	if err != nil {
		return RecordingEntry{}, err
	}

	id := seed.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := seed.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	// Filenames derive from timestamp + id, so they are collision-free and
	// never reused.
	name := fmt.Sprintf("%s-%s%s", createdAt.UTC().Format("20060102-150405"), id, mediaExtension)
	dest := filepath.Join(s.dir, name)

	if err := moveFile(tempPath, dest); err != nil {
		return RecordingEntry{}, fmt.Errorf("failed to relocate capture file: %w", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return RecordingEntry{}, fmt.Errorf("failed to stat stored file: %w", err)
	}

	entry := RecordingEntry{
		ID:              id,
		Path:            dest,
		DurationSeconds: seed.DurationSeconds,
		CreatedAt:       createdAt,
		FileSizeBytes:   info.Size(),
		Kind:            seed.Kind,
	}

	entries = append(entries, entry)
	if err := s.writeIndex(entries); err != nil {
		// Do not leave a file the index cannot account for.
		if rmErr := os.Remove(dest); rmErr != nil {
			slog.Warn("Failed to remove stored file after index failure", "file", dest, "error", rmErr)
		}
		return RecordingEntry{}, err
	}

	slog.Info("Recording saved", "id", id, "kind", seed.Kind, "file", dest, "size", info.Size())
	return entry, nil
}

// List returns all live entries newest-first. Entries whose backing file
// has gone missing are pruned from the index before returning; the
// reconciliation is idempotent.
func (s *Store) List() ([]RecordingEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureReadyLocked(); err != nil {
		return nil, err
	}

	entries, err := s.reconcileLocked()
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}

// Get returns the entry with the given id, or ErrNotFound. Orphaned
// entries are pruned rather than surfaced.
func (s *Store) Get(id string) (RecordingEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureReadyLocked(); err != nil {
		return RecordingEntry{}, err
	}

	entries, err := s.reconcileLocked()
	if err != nil {
		return RecordingEntry{}, err
	}

	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return RecordingEntry{}, fmt.Errorf("id %q: %w", id, ErrNotFound)
}

// Update applies a merge-patch to the entry with the given id. ID, path and
// creation time are immutable.
func (s *Store) Update(id string, patch Patch) (RecordingEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureReadyLocked(); err != nil {
		return RecordingEntry{}, err
	}

	entries, err := s.readIndex()
	if err != nil {
		return RecordingEntry{}, err
	}

	for i := range entries {
		if entries[i].ID != id {
			continue
		}
		if patch.DurationSeconds != nil {
			entries[i].DurationSeconds = *patch.DurationSeconds
		}
		if patch.Analyzed != nil {
			entries[i].Analyzed = *patch.Analyzed
		}
		if patch.AnalysisResult != nil {
			result := *patch.AnalysisResult
			entries[i].AnalysisResult = &result
		}
		if err := s.writeIndex(entries); err != nil {
			return RecordingEntry{}, err
		}
		return entries[i], nil
	}

	return RecordingEntry{}, fmt.Errorf("id %q: %w", id, ErrNotFound)
}

// Delete removes the entry's file and its index record together. A file
// that is already gone is tolerated; an unknown id is ErrNotFound.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureReadyLocked(); err != nil {
		return err
	}

	entries, err := s.readIndex()
	if err != nil {
		return err
	}

	for i := range entries {
		if entries[i].ID != id {
			continue
		}
		if err := os.Remove(entries[i].Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", entries[i].Path, err)
		}
		entries = append(entries[:i], entries[i+1:]...)
		if err := s.writeIndex(entries); err != nil {
			return err
		}
		slog.Info("Recording deleted", "id", id)
		return nil
	}

	return fmt.Errorf("id %q: %w", id, ErrNotFound)
}

// ClearAll deletes every managed file and empties the index. Individual
// file removal failures are swallowed so the index always ends up empty.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureReadyLocked(); err != nil {
		return err
	}

	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read media directory: %w", err)
	}
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		path := filepath.Join(s.dir, de.Name())
		if err := os.Remove(path); err != nil {
			slog.Warn("Failed to remove media file during clear", "file", path, "error", err)
		}
	}

	if err := s.writeIndex(nil); err != nil {
		return err
	}
	slog.Info("Media store cleared", "dir", s.dir)
	return nil
}

// reconcileLocked drops index entries whose backing file is missing,
// rewriting the index when anything changed.
func (s *Store) reconcileLocked() ([]RecordingEntry, error) {
	entries, err := s.readIndex()
	if err != nil {
		return nil, err
	}

	live := entries[:0]
	for _, e := range entries {
		if _, err := os.Stat(e.Path); err == nil {
			live = append(live, e)
		} else {
			slog.Warn("Pruning orphaned index entry", "id", e.ID, "file", e.Path)
		}
	}

	if len(live) != len(entries) {
		if err := s.writeIndex(live); err != nil {
			return nil, err
		}
	}

	out := make([]RecordingEntry, len(live))
	copy(out, live)
	return out, nil
}

func (s *Store) readIndex() ([]RecordingEntry, error) {
	data, err := os.ReadFile(s.indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var entries []RecordingEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse index: %w", err)
	}
	return entries, nil
}

// writeIndex rewrites the whole index atomically so a crash mid-write
// leaves the previous document intact.
func (s *Store) writeIndex(entries []RecordingEntry) error {
	if entries == nil {
		entries = []RecordingEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}

	tmp := s.indexPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := os.Rename(tmp, s.indexPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace index: %w", err)
	}
	return nil
}

// moveFile renames src to dst, falling back to copy+remove when they live
// on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}

	if err := os.Remove(src); err != nil {
		slog.Debug("Failed to remove source after copy", "file", src, "error", err)
	}
	return nil
}

// Package store persists a deduplicated, growing collection of records as a
// single JSON document, checkpointing after every chunk of new candidates.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// DefaultChunkSize is the number of candidates processed between checkpoints.
const DefaultChunkSize = 100

// ErrCorrupt is returned when the existing document is not a JSON array of records.
var ErrCorrupt = errors.New("stored document is corrupt")

// Store reads and overwrites one JSON document. It does no locking: callers
// must not save to the same document from more than one goroutine.
type Store[T any] struct {
	fs   afero.Fs
	path string
	key  func(T) string
	log  log.FieldLogger
}

// New returns a store for the document at path. key extracts the unique key of a record.
func New[T any](fs afero.Fs, path string, key func(T) string, logger log.FieldLogger) *Store[T] {
	return &Store[T]{
		fs:   fs,
		path: path,
		key:  key,
		log:  logger.WithField("file", path),
	}
}

func (s *Store[T]) Path() string {
	return s.path
}

// Load returns the persisted records. A missing document is an empty collection.
func (s *Store[T]) Load() ([]T, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.log.Warn("File does not exist, starting with an empty collection")
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []T{}, nil
	}

	var records []T
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	if records == nil {
		records = []T{}
	}
	return records, nil
}

// Save atomically replaces the document with records.
func (s *Store[T]) Save(records []T) error {
	data, err := Encode(records)
	if err != nil {
		return fmt.Errorf("failed to marshal records for %s: %w", s.path, err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}

	s.log.WithField("records", len(records)).Debug("Saved collection")
	return nil
}

// Encode renders records the way they are stored: a 4-space indented JSON
// array with non-ASCII and HTML characters left unescaped.
func Encode[T any](records []T) ([]byte, error) {
	if records == nil {
		records = []T{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Transform turns a raw candidate into a record. An error skips the candidate.
type Transform[C, T any] func(ctx context.Context, candidate C) (T, error)

// ChunkStats summarizes a SaveChunked call.
type ChunkStats struct {
	Added       int
	Duplicates  int
	Failed      int
	Checkpoints int
}

// SaveChunked merges candidates into the store. Candidates whose key is
// already persisted (or seen earlier in this call) are skipped; the rest are
// transformed and appended. After each chunk of chunkSize candidates the
// whole collection is written back.
func SaveChunked[C, T any](
	ctx context.Context,
	s *Store[T],
	candidates []C,
	chunkSize int,
	key func(C) string,
	transform Transform[C, T],
) (ChunkStats, error) {
	var stats ChunkStats
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	records, err := s.Load()
	if err != nil {
		return stats, err
	}
	seen := make(map[string]struct{}, len(records)+len(candidates))
	for _, r := range records {
		seen[s.key(r)] = struct{}{}
	}

	for start := 0; start < len(candidates); start += chunkSize {
		end := min(start+chunkSize, len(candidates))
		chunkLog := s.log.WithField("chunk", start/chunkSize+1)

		for _, candidate := range candidates[start:end] {
			if err := ctx.Err(); err != nil {
				if saveErr := s.Save(records); saveErr != nil {
					return stats, saveErr
				}
				stats.Checkpoints++
				return stats, err
			}

			k := key(candidate)
			if k == "" {
				chunkLog.Error("Candidate has no key, skipping")
				stats.Failed++
				continue
			}
			if _, ok := seen[k]; ok {
				stats.Duplicates++
				continue
			}

			record, err := transform(ctx, candidate)
			if err != nil {
				chunkLog.WithError(err).WithField("key", k).Error("Error processing candidate")
				stats.Failed++
				continue
			}

			records = append(records, record)
			seen[k] = struct{}{}
			if rk := s.key(record); rk != "" {
				seen[rk] = struct{}{}
			}
			stats.Added++
		}

		if err := s.Save(records); err != nil {
			return stats, err
		}
		stats.Checkpoints++
		chunkLog.WithField("records", len(records)).Info("Chunk saved")
	}

	return stats, nil
}

// Package storage stores raw and converted segment audio on the local
// filesystem, one directory per session. Files are process-lifetime
// temporaries: deleting a session removes its whole directory.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Store is a local filesystem store for session audio files.
type Store struct {
	basePath string
}

// NewStore creates a store rooted at basePath, creating it if needed.
func NewStore(basePath string) (*Store, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("storage: create base directory: %w", err)
	}
	return &Store{basePath: abs}, nil
}

// BasePath returns the absolute root directory of the store.
func (s *Store) BasePath() string { return s.basePath }

// SegmentPath returns the canonical path for a segment file:
// <base>/<sessionID>/<sessionID>_<segmentNumber>.<ext>.
func (s *Store) SegmentPath(sessionID string, segmentNumber int, ext string) string {
	name := fmt.Sprintf("%s_%d.%s", sessionID, segmentNumber, ext)
	return filepath.Join(s.basePath, sessionID, name)
}

// SaveSegment writes data from reader to the canonical segment path and
// returns the absolute path of the written file.
func (s *Store) SaveSegment(_ context.Context, sessionID string, segmentNumber int, ext string, reader io.Reader) (string, error) {
	fullPath := s.SegmentPath(sessionID, segmentNumber, ext)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("storage: create session directory: %w", err)
	}

	f, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("storage: create file: %w", err)
	}
	defer f.Close() //nolint:errcheck // Error on close is safe to ignore for read operations

	if _, err := io.Copy(f, reader); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	return fullPath, nil
}

// Remove deletes a single file. Returns nil if the file does not exist.
func (s *Store) Remove(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: delete file: %w", err)
	}
	return nil
}

// RemoveSession deletes a session's directory and everything in it.
func (s *Store) RemoveSession(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("storage: session id is required")
	}
	dir := filepath.Join(s.basePath, sessionID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("storage: delete session directory: %w", err)
	}
	return nil
}

// FileSize returns the size of a file in bytes.
func (s *Store) FileSize(_ context.Context, path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("storage: stat file: %w", err)
	}
	return info.Size(), nil
}

// Exists checks whether a file exists.
func (s *Store) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("storage: stat file: %w", err)
	}
	return true, nil
}

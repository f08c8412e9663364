package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Store persists one schedule file per calendar date under a data directory.
// Corrupt or unreadable files are treated as absent so a bad write never
// wedges the refresh cycle.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates the data directory if needed.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("schedule: create data dir %s: %w", dir, err)
	}
	return &Store{dir: dir, logger: logger.With("component", "schedule_store")}, nil
}

func (s *Store) path(date time.Time) string {
	return filepath.Join(s.dir, "schedule_"+date.Format("2006-01-02")+".json")
}

// Load returns the persisted slots for date, or nil when no usable file
// exists. A corrupt file is logged and reported as absent.
func (s *Store) Load(date time.Time) []Slot {
	path := s.path(date)
	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Error("read schedule file failed", "path", path, "error", err)
		}
		return nil
	}

	var slots []Slot
	if err := json.Unmarshal(raw, &slots); err != nil {
		s.logger.Warn("schedule file is corrupt, treating as absent", "path", path, "error", err)
		return nil
	}
	return slots
}

// Remove deletes the persisted schedule for date. A missing file is not an
// error.
func (s *Store) Remove(date time.Time) error {
	if err := os.Remove(s.path(date)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("schedule: remove %s: %w", s.path(date), err)
	}
	return nil
}

// Save writes the slots atomically: a temp file in the same directory is
// written, fsynced, and renamed over the target so readers never observe a
// partial file.
func (s *Store) Save(date time.Time, slots []Slot) error {
	data, err := json.MarshalIndent(slots, "", "  ")
	if err != nil {
		return fmt.Errorf("schedule: marshal slots: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "schedule_*.json.tmp")
	if err != nil {
		return fmt.Errorf("schedule: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("schedule: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("schedule: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("schedule: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path(date)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("schedule: rename temp file: %w", err)
	}
	return nil
}

// Package store persists configuration snapshots: automatic backups taken
// before every write, the fixed "latest" and "pre-restore" slots, and
// user-named presets. Backups and presets are plain files, one per snapshot.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	backupPrefix = "backup-"
	snapshotExt  = ".json"

	// Fixed-identity slots, distinct from timestamped backups.
	LatestID     = "latest"
	PreRestoreID = "pre-restore"
)

// ErrNotFound is returned when a requested backup or preset does not exist.
var ErrNotFound = errors.New("not found")

// Store writes snapshots under backupDir and presets under presetDir. Paths
// are injected at construction; there are no package-level path globals.
type Store struct {
	backupDir string
	presetDir string
	now       func() time.Time
	logger    *zap.SugaredLogger
}

// New creates a store rooted at the given directories.
func New(backupDir, presetDir string, logger *zap.SugaredLogger) *Store {
	return &Store{
		backupDir: backupDir,
		presetDir: presetDir,
		now:       time.Now,
		logger:    logger,
	}
}

// timestampID formats t so that lexicographic order of identifiers equals
// chronological order, with colons and periods replaced by a filesystem-safe
// separator.
func timestampID(t time.Time) string {
	ts := t.Format("2006-01-02T15:04:05.000000000")
	return strings.NewReplacer(":", "-", ".", "-").Replace(ts)
}

// Snapshot writes a timestamped backup of raw and returns its identifier.
func (s *Store) Snapshot(raw []byte) (string, error) {
	id := backupPrefix + timestampID(s.now())
	if err := s.writeSnapshot(s.backupDir, id, raw); err != nil {
		return "", err
	}
	s.logger.Debugw("Created backup", "id", id)
	return id, nil
}

// SnapshotLatest overwrites the fixed "latest" slot. It is taken before every
// write-back, unconditionally.
func (s *Store) SnapshotLatest(raw []byte) error {
	return s.writeSnapshot(s.backupDir, LatestID, raw)
}

// SnapshotPreRestore overwrites the fixed "pre-restore" slot, making a
// restore undoable by one more restore.
func (s *Store) SnapshotPreRestore(raw []byte) error {
	return s.writeSnapshot(s.backupDir, PreRestoreID, raw)
}

// List returns timestamped backup identifiers, newest first.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, snapshotExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, snapshotExt))
	}

	// Identifiers sort chronologically, so descending order is newest first.
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

// Restore returns the raw bytes of the identified backup. The fixed ids
// "latest" and "pre-restore" are valid identifiers.
func (s *Store) Restore(id string) ([]byte, error) {
	path, err := s.snapshotPath(id)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("backup %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read backup %q: %w", id, err)
	}
	return raw, nil
}

// Delete removes one timestamped backup.
func (s *Store) Delete(id string) error {
	path, err := s.snapshotPath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("backup %q: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to delete backup %q: %w", id, err)
	}
	return nil
}

// DeleteAll removes every timestamped backup. The "latest" and "pre-restore"
// slots are never touched.
func (s *Store) DeleteAll() (int, error) {
	ids, err := s.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range ids {
		if err := s.Delete(id); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// SavePreset stores raw under the given user-supplied name. Reusing a name
// overwrites the previous preset silently.
func (s *Store) SavePreset(name string, raw []byte) error {
	id, err := presetID(name)
	if err != nil {
		return err
	}
	if err := s.writeSnapshot(s.presetDir, id, raw); err != nil {
		return err
	}
	s.logger.Debugw("Saved preset", "name", name)
	return nil
}

// LoadPreset returns the raw bytes of a named preset.
func (s *Store) LoadPreset(name string) ([]byte, error) {
	id, err := presetID(name)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(filepath.Join(s.presetDir, id+snapshotExt))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("preset %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read preset %q: %w", name, err)
	}
	return raw, nil
}

// ListPresets returns preset names sorted alphabetically.
func (s *Store) ListPresets() ([]string, error) {
	entries, err := os.ReadDir(s.presetDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read preset directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, snapshotExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(name, snapshotExt))
	}
	sort.Strings(names)
	return names, nil
}

// DeletePreset removes a named preset.
func (s *Store) DeletePreset(name string) error {
	id, err := presetID(name)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.presetDir, id+snapshotExt)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("preset %q: %w", name, ErrNotFound)
		}
		return fmt.Errorf("failed to delete preset %q: %w", name, err)
	}
	return nil
}

func (s *Store) writeSnapshot(dir, id string, raw []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, id+snapshotExt)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot %q: %w", id, err)
	}
	return nil
}

func (s *Store) snapshotPath(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("invalid backup id %q", id)
	}
	return filepath.Join(s.backupDir, id+snapshotExt), nil
}

func presetID(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("preset name must not be empty")
	}
	if strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid preset name %q", name)
	}
	return name, nil
}

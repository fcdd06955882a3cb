// Package app wires the configuration model, repair pipeline, backup store
// and history journal into the operation cycle the menu exposes: read the
// file fresh, mutate in memory, back up, write back.
package app

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/eversonl/claude-config-manager/internal/config"
	"github.com/eversonl/claude-config-manager/internal/history"
	"github.com/eversonl/claude-config-manager/internal/ops"
	"github.com/eversonl/claude-config-manager/internal/repair"
	"github.com/eversonl/claude-config-manager/internal/store"
)

// Session executes operations against the live configuration file. It holds
// no cached configuration: every operation re-reads the file.
type Session struct {
	loader  *config.Loader
	store   *store.Store
	journal *history.Manager // optional; nil disables journaling
	logger  *zap.SugaredLogger
}

// NewSession creates a session over the given collaborators.
func NewSession(loader *config.Loader, st *store.Store, journal *history.Manager, logger *zap.SugaredLogger) *Session {
	return &Session{
		loader:  loader,
		store:   st,
		journal: journal,
		logger:  logger,
	}
}

// LoadResult is what a fresh read of the config file produced.
type LoadResult struct {
	Config   *config.Configuration
	Raw      []byte // bytes currently on disk, used for pre-write backups
	Repaired bool
	Issues   []config.StructureIssue
}

// ServerInfo is one row of the server listing.
type ServerInfo struct {
	Name    string
	Enabled bool
}

// Load reads and parses the live file. If strict parsing fails the repair
// pipeline runs once; an unrepairable file surfaces the parse diagnostic
// (offset plus text window) and the session stays usable for restores.
func (s *Session) Load() (*LoadResult, error) {
	cfg, raw, err := s.loader.Load()
	if err == nil {
		return &LoadResult{Config: cfg, Raw: raw, Issues: cfg.Issues()}, nil
	}
	if raw == nil {
		return nil, err
	}

	s.logger.Warnw("Configuration failed strict parsing, attempting repair", "error", err)

	repaired, rerr := repair.Repair(string(raw))
	if rerr != nil {
		return nil, fmt.Errorf("configuration is corrupt: %w", rerr)
	}

	cfg, err = config.Parse([]byte(repaired))
	if err != nil {
		return nil, fmt.Errorf("configuration repaired but still unusable: %w", err)
	}

	s.logger.Infow("Configuration repaired", "path", s.loader.Path())
	return &LoadResult{Config: cfg, Raw: raw, Repaired: true, Issues: cfg.Issues()}, nil
}

// StartWatching begins reporting external edits of the config file through
// onChange. The session's own writes are flagged and never reported.
func (s *Session) StartWatching(onChange func()) error {
	return s.loader.StartWatching(func(*config.Configuration) { onChange() })
}

// Servers returns the current entries sorted by name.
func (s *Session) Servers() ([]ServerInfo, *LoadResult, error) {
	res, err := s.Load()
	if err != nil {
		return nil, nil, err
	}

	names := res.Config.Names()
	infos := make([]ServerInfo, 0, len(names))
	for _, name := range names {
		infos = append(infos, ServerInfo{
			Name:    name,
			Enabled: res.Config.StateOf(name) == config.StateEnabled,
		})
	}
	return infos, res, nil
}

// Toggle flips one server between buckets and writes the result back.
func (s *Session) Toggle(name string) error {
	res, err := s.Load()
	if err != nil {
		return err
	}

	next, err := ops.Toggle(res.Config, name)
	if err != nil {
		return err
	}

	if err := s.writeBack(res.Raw, next); err != nil {
		return err
	}
	s.record("toggle", []string{name}, "")
	return nil
}

// EnableAll moves every disabled server into the enabled bucket and returns
// how many moved.
func (s *Session) EnableAll() (int, error) {
	res, err := s.Load()
	if err != nil {
		return 0, err
	}

	moved := len(res.Config.Disabled)
	next, err := ops.EnableAll(res.Config)
	if err != nil {
		return 0, err
	}

	if err := s.writeBack(res.Raw, next); err != nil {
		return 0, err
	}
	s.record("enable_all", nil, fmt.Sprintf("%d server(s) enabled", moved))
	return moved, nil
}

// SelectExactly enables exactly the selected names and disables the rest.
// Unknown names come back as warnings.
func (s *Session) SelectExactly(selected []string) ([]string, error) {
	res, err := s.Load()
	if err != nil {
		return nil, err
	}

	next, unknown, err := ops.SelectExactly(res.Config, selected)
	if err != nil {
		return nil, err
	}

	if err := s.writeBack(res.Raw, next); err != nil {
		return unknown, err
	}
	s.record("select", selected, "")
	return unknown, nil
}

// Normalize materializes missing or mistyped buckets and writes the result.
func (s *Session) Normalize() error {
	res, err := s.Load()
	if err != nil {
		return err
	}

	next := res.Config.Clone()
	next.Normalize()

	if err := s.writeBack(res.Raw, next); err != nil {
		return err
	}
	s.record("normalize", nil, "")
	return nil
}

// SavePreset stores the current configuration under the given name.
func (s *Session) SavePreset(name string) error {
	res, err := s.Load()
	if err != nil {
		return err
	}
	if err := s.store.SavePreset(name, res.Raw); err != nil {
		return err
	}
	s.record("preset_save", nil, name)
	return nil
}

// LoadPreset applies a named preset. In smart mode existing entries are
// repositioned per the preset and the newly discovered names are returned;
// in replace mode the preset becomes the configuration wholesale.
func (s *Session) LoadPreset(name string, smart bool) ([]string, error) {
	res, err := s.Load()
	if err != nil {
		return nil, err
	}

	raw, err := s.store.LoadPreset(name)
	if err != nil {
		return nil, err
	}
	presetCfg, err := config.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("preset %q is not a valid configuration: %w", name, err)
	}
	for _, issue := range presetCfg.Issues() {
		if issue.Kind == config.EnabledBucketWrongType || issue.Kind == config.DisabledBucketWrongType {
			return nil, fmt.Errorf("preset %q is not a valid configuration: %s", name, issue)
		}
	}

	var next *config.Configuration
	var discovered []string
	if smart {
		next, discovered, err = ops.SmartMerge(res.Config, presetCfg)
		if err != nil {
			return nil, err
		}
	} else {
		next = presetCfg.Clone()
		next.Normalize()
	}

	if err := s.writeBack(res.Raw, next); err != nil {
		return discovered, err
	}

	mode := "replace"
	if smart {
		mode = "smart"
	}
	s.record("preset_load", nil, fmt.Sprintf("%s (%s)", name, mode))
	return discovered, nil
}

// RestoreBackup overwrites the live file with a stored snapshot. The
// pre-restore slot captures the outgoing state first, so a restore is itself
// undoable by one more restore.
func (s *Session) RestoreBackup(id string) error {
	raw, err := s.store.Restore(id)
	if err != nil {
		return err
	}

	// The live file may be corrupt here; that is exactly when restores
	// happen, so read it raw rather than through the parser.
	current, readErr := os.ReadFile(s.loader.Path())
	if readErr == nil {
		if err := s.store.SnapshotPreRestore(current); err != nil {
			return fmt.Errorf("pre-restore backup failed, aborting restore: %w", err)
		}
	} else if !os.IsNotExist(readErr) {
		return fmt.Errorf("failed to read current config: %w", readErr)
	}

	s.loader.MarkProgrammaticWrite()
	if err := os.WriteFile(s.loader.Path(), raw, 0o644); err != nil {
		return fmt.Errorf("failed to write restored config: %w", err)
	}

	s.record("restore", nil, id)
	return nil
}

// Backups lists timestamped backups, newest first.
func (s *Session) Backups() ([]string, error) {
	return s.store.List()
}

// DeleteBackup removes one timestamped backup.
func (s *Session) DeleteBackup(id string) error {
	if err := s.store.Delete(id); err != nil {
		return err
	}
	s.record("backup_delete", nil, id)
	return nil
}

// DeleteAllBackups removes every timestamped backup, keeping the fixed slots.
func (s *Session) DeleteAllBackups() (int, error) {
	removed, err := s.store.DeleteAll()
	if err != nil {
		return removed, err
	}
	s.record("backup_clear", nil, fmt.Sprintf("%d removed", removed))
	return removed, nil
}

// Presets lists saved preset names.
func (s *Session) Presets() ([]string, error) {
	return s.store.ListPresets()
}

// DeletePreset removes a named preset.
func (s *Session) DeletePreset(name string) error {
	if err := s.store.DeletePreset(name); err != nil {
		return err
	}
	s.record("preset_delete", nil, name)
	return nil
}

// History returns the most recent journal entries, newest first.
func (s *Session) History(n int) ([]*history.Record, error) {
	if s.journal == nil {
		return nil, nil
	}
	return s.journal.Recent(n)
}

// writeBack persists cfg after backing up the outgoing bytes. Both the
// "latest" slot and a timestamped snapshot must land before the live file is
// overwritten; a failed backup aborts the write.
func (s *Session) writeBack(prevRaw []byte, cfg *config.Configuration) error {
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}

	if err := s.store.SnapshotLatest(prevRaw); err != nil {
		return fmt.Errorf("backup failed, aborting write: %w", err)
	}
	if _, err := s.store.Snapshot(prevRaw); err != nil {
		return fmt.Errorf("backup failed, aborting write: %w", err)
	}

	s.loader.MarkProgrammaticWrite()
	if err := os.WriteFile(s.loader.Path(), data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (s *Session) record(op string, servers []string, detail string) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Record(&history.Record{Operation: op, Servers: servers, Detail: detail}); err != nil {
		s.logger.Warnw("Failed to journal operation", "operation", op, "error", err)
	}
}

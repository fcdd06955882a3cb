package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eversonl/claude-config-manager/internal/config"
	"github.com/eversonl/claude-config-manager/internal/history"
	"github.com/eversonl/claude-config-manager/internal/ops"
	"github.com/eversonl/claude-config-manager/internal/store"
)

type testEnv struct {
	session    *Session
	store      *store.Store
	configPath string
	backupDir  string
}

func newTestEnv(t *testing.T, initial string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(initial), 0o644))

	logger := zap.NewNop()
	loader, err := config.NewLoader(configPath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { loader.Stop() })

	backupDir := filepath.Join(dir, "backups")
	st := store.New(backupDir, filepath.Join(dir, "presets"), logger.Sugar())

	journal, err := history.NewManager(filepath.Join(dir, "data"), logger.Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	return &testEnv{
		session:    NewSession(loader, st, journal, logger.Sugar()),
		store:      st,
		configPath: configPath,
		backupDir:  backupDir,
	}
}

func (e *testEnv) readConfig(t *testing.T) *config.Configuration {
	t.Helper()
	raw, err := os.ReadFile(e.configPath)
	require.NoError(t, err)
	cfg, err := config.Parse(raw)
	require.NoError(t, err)
	return cfg
}

func TestToggle_EndToEnd(t *testing.T) {
	env := newTestEnv(t, `{"enabled": {"alpha": {"command": "npx"}}, "disabled": {}}`)

	require.NoError(t, env.session.Toggle("alpha"))

	cfg := env.readConfig(t)
	assert.Equal(t, config.StateDisabled, cfg.StateOf("alpha"))
	assert.Empty(t, cfg.Enabled)

	require.NoError(t, env.session.Toggle("alpha"))

	cfg = env.readConfig(t)
	assert.Equal(t, config.StateEnabled, cfg.StateOf("alpha"))

	// One timestamped backup per write, plus the latest slot.
	backups, err := env.store.List()
	require.NoError(t, err)
	assert.Len(t, backups, 2)

	_, err = env.store.Restore(store.LatestID)
	assert.NoError(t, err)
}

func TestToggle_UnknownDoesNotWrite(t *testing.T) {
	initial := `{"enabled": {"alpha": 1}, "disabled": {}}`
	env := newTestEnv(t, initial)

	err := env.session.Toggle("ghost")
	require.Error(t, err)

	raw, readErr := os.ReadFile(env.configPath)
	require.NoError(t, readErr)
	assert.Equal(t, initial, string(raw))

	backups, err := env.store.List()
	require.NoError(t, err)
	assert.Empty(t, backups, "aborted operation must not create backups")
}

func TestLoad_RepairsMalformedConfig(t *testing.T) {
	env := newTestEnv(t, `{"enabled": {"alpha": 1,}, "disabled": {},}`)

	res, err := env.session.Load()
	require.NoError(t, err)
	assert.True(t, res.Repaired)
	assert.Equal(t, config.StateEnabled, res.Config.StateOf("alpha"))
}

func TestLoad_UnrepairableSurfacesDiagnostic(t *testing.T) {
	env := newTestEnv(t, `{"enabled": {"alpha": "unterminated`)

	_, err := env.session.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt")
}

func TestEnableAll(t *testing.T) {
	env := newTestEnv(t, `{"enabled": {}, "disabled": {"a": 1, "b": 2}}`)

	moved, err := env.session.EnableAll()
	require.NoError(t, err)
	assert.Equal(t, 2, moved)

	moved, err = env.session.EnableAll()
	require.NoError(t, err)
	assert.Equal(t, 0, moved)

	cfg := env.readConfig(t)
	assert.Len(t, cfg.Enabled, 2)
	assert.Empty(t, cfg.Disabled)
}

func TestSelectExactly_ReportsUnknown(t *testing.T) {
	env := newTestEnv(t, `{"enabled": {"a": 1}, "disabled": {"b": 2}}`)

	unknown, err := env.session.SelectExactly([]string{"b", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ghost"}, unknown)

	cfg := env.readConfig(t)
	assert.Equal(t, config.StateEnabled, cfg.StateOf("b"))
	assert.Equal(t, config.StateDisabled, cfg.StateOf("a"))
}

func TestPresets_SaveAndSmartLoad(t *testing.T) {
	env := newTestEnv(t, `{"enabled": {"X": {"v": "live"}, "Y": 1}, "disabled": {"Z": 2}}`)

	require.NoError(t, env.session.SavePreset("work"))

	// Drift from the preset: disable X, enable Z.
	require.NoError(t, env.session.Toggle("X"))
	require.NoError(t, env.session.Toggle("Z"))

	discovered, err := env.session.LoadPreset("work", true)
	require.NoError(t, err)
	assert.Empty(t, discovered)

	cfg := env.readConfig(t)
	assert.Equal(t, config.StateEnabled, cfg.StateOf("X"))
	assert.Equal(t, config.StateEnabled, cfg.StateOf("Y"))
	assert.Equal(t, config.StateDisabled, cfg.StateOf("Z"))

	// The live definition survives the merge.
	assert.JSONEq(t, `{"v": "live"}`, string(cfg.Enabled["X"]))
}

func TestLoadPreset_NotFound(t *testing.T) {
	env := newTestEnv(t, `{"enabled": {}, "disabled": {}}`)

	_, err := env.session.LoadPreset("nope", false)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestRestore_WritesPreRestoreSlot(t *testing.T) {
	env := newTestEnv(t, `{"enabled": {"a": 1}, "disabled": {}}`)

	require.NoError(t, env.session.Toggle("a"))
	backups, err := env.store.List()
	require.NoError(t, err)
	require.Len(t, backups, 1)

	beforeRestore, err := os.ReadFile(env.configPath)
	require.NoError(t, err)

	require.NoError(t, env.session.RestoreBackup(backups[0]))

	cfg := env.readConfig(t)
	assert.Equal(t, config.StateEnabled, cfg.StateOf("a"))

	pre, err := env.store.Restore(store.PreRestoreID)
	require.NoError(t, err)
	assert.Equal(t, string(beforeRestore), string(pre))
}

func TestWriteBack_AbortsWhenBackupFails(t *testing.T) {
	env := newTestEnv(t, `{"enabled": {"a": 1}, "disabled": {}}`)

	// Turn the backup directory path into a file so snapshot writes fail.
	require.NoError(t, os.WriteFile(env.backupDir, []byte("not a dir"), 0o644))

	initial, err := os.ReadFile(env.configPath)
	require.NoError(t, err)

	err = env.session.Toggle("a")
	require.Error(t, err)

	after, readErr := os.ReadFile(env.configPath)
	require.NoError(t, readErr)
	assert.Equal(t, string(initial), string(after), "live file must be untouched when the backup fails")
}

func TestNormalize_ResolvesIssues(t *testing.T) {
	env := newTestEnv(t, `{"disabled": "broken", "keep": true}`)

	res, err := env.session.Load()
	require.NoError(t, err)
	assert.NotEmpty(t, res.Issues)

	require.NoError(t, env.session.Normalize())

	cfg := env.readConfig(t)
	assert.Empty(t, cfg.Issues())
	assert.NotNil(t, cfg.Enabled)
	assert.NotNil(t, cfg.Disabled)
	assert.Contains(t, cfg.Extra, "keep")
}

func TestMutatingOps_RefuseMistypedBucket(t *testing.T) {
	initial := `{"enabled": {"a": 1}, "disabled": "broken"}`
	env := newTestEnv(t, initial)

	err := env.session.Toggle("a")
	require.Error(t, err)

	var needs *ops.ErrNeedsNormalize
	require.ErrorAs(t, err, &needs)

	// The refused operation leaves the file, mistyped value included,
	// exactly as it was, and creates no backups.
	raw, readErr := os.ReadFile(env.configPath)
	require.NoError(t, readErr)
	assert.Equal(t, initial, string(raw))

	backups, err := env.store.List()
	require.NoError(t, err)
	assert.Empty(t, backups)

	// An explicit normalize unblocks the same operation.
	require.NoError(t, env.session.Normalize())
	require.NoError(t, env.session.Toggle("a"))

	cfg := env.readConfig(t)
	assert.Equal(t, config.StateDisabled, cfg.StateOf("a"))
}

func TestHistory_RecordsOperations(t *testing.T) {
	env := newTestEnv(t, `{"enabled": {"a": 1}, "disabled": {}}`)

	require.NoError(t, env.session.Toggle("a"))
	_, err := env.session.EnableAll()
	require.NoError(t, err)

	records, err := env.session.History(10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "enable_all", records[0].Operation)
	assert.Equal(t, "toggle", records[1].Operation)
}

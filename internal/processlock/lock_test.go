package processlock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAcquireRelease(t *testing.T) {
	dir := t.TempDir()
	lock := New(dir, zap.NewNop())

	require.NoError(t, lock.Acquire())
	assert.FileExists(t, filepath.Join(dir, defaultPIDFile))

	require.NoError(t, lock.Release())
	assert.NoFileExists(t, filepath.Join(dir, defaultPIDFile))
}

func TestAcquire_RejectsRunningInstance(t *testing.T) {
	dir := t.TempDir()

	first := New(dir, zap.NewNop())
	require.NoError(t, first.Acquire())
	defer first.Release()

	// Same PID is alive, so a second acquire must fail.
	second := New(dir, zap.NewNop())
	require.Error(t, second.Acquire())
}

func TestAcquire_RemovesStaleLock(t *testing.T) {
	dir := t.TempDir()

	// A PID that cannot be a live process.
	require.NoError(t, os.WriteFile(filepath.Join(dir, defaultPIDFile), []byte("999999999\n"), 0o644))

	lock := New(dir, zap.NewNop())
	require.NoError(t, lock.Acquire())
	defer lock.Release()
}

func TestAcquire_RemovesCorruptLock(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, defaultPIDFile), []byte("not-a-pid"), 0o644))

	lock := New(dir, zap.NewNop())
	require.NoError(t, lock.Acquire())
	defer lock.Release()
}

func TestRelease_NoLockIsFine(t *testing.T) {
	lock := New(t.TempDir(), zap.NewNop())
	assert.NoError(t, lock.Release())
}

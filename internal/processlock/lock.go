// Package processlock ensures only one instance edits the configuration at a
// time. Two concurrent sessions would race on the backup-then-overwrite
// cycle, so a second instance refuses to start.
package processlock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"
)

const defaultPIDFile = "claude-config-manager.pid"

// ProcessLock manages process-level locking to ensure only one instance runs
type ProcessLock struct {
	pidFile string
	logger  *zap.Logger
}

// New creates a new ProcessLock instance
func New(dataDir string, logger *zap.Logger) *ProcessLock {
	return &ProcessLock{
		pidFile: filepath.Join(dataDir, defaultPIDFile),
		logger:  logger,
	}
}

// Acquire attempts to acquire the process lock
func (p *ProcessLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(p.pidFile), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// Check if PID file exists
	if _, err := os.Stat(p.pidFile); err == nil {
		pid, err := p.readPID()
		if err != nil {
			p.logger.Warn("Failed to read PID file, removing stale lock",
				zap.String("pid_file", p.pidFile),
				zap.Error(err))
			os.Remove(p.pidFile)
		} else if p.isProcessRunning(pid) {
			return fmt.Errorf("another claude-config-manager instance is already running (PID: %d)", pid)
		} else {
			p.logger.Warn("Removing stale PID file from dead process",
				zap.Int("pid", pid),
				zap.String("pid_file", p.pidFile))
			os.Remove(p.pidFile)
		}
	}

	if err := p.writePID(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	p.logger.Info("Process lock acquired",
		zap.Int("pid", os.Getpid()),
		zap.String("pid_file", p.pidFile))

	return nil
}

// Release releases the process lock
func (p *ProcessLock) Release() error {
	if err := os.Remove(p.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}

	p.logger.Info("Process lock released",
		zap.Int("pid", os.Getpid()),
		zap.String("pid_file", p.pidFile))

	return nil
}

// readPID reads the PID from the PID file
func (p *ProcessLock) readPID() (int, error) {
	data, err := os.ReadFile(p.pidFile)
	if err != nil {
		return 0, err
	}

	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %s", pidStr)
	}

	return pid, nil
}

// writePID writes the current PID to the PID file
func (p *ProcessLock) writePID() error {
	pid := os.Getpid()
	return os.WriteFile(p.pidFile, []byte(fmt.Sprintf("%d\n", pid)), 0o644)
}

// isProcessRunning checks if a process with the given PID is running
func (p *ProcessLock) isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix systems, FindProcess always succeeds, so we need to send a signal
	err = process.Signal(syscall.Signal(0))
	if err != nil {
		return false
	}

	return true
}

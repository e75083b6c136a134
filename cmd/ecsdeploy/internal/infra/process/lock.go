// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Locker guards a working directory against concurrent ecsdeploy runs.
//
// # Description
//
// Two invocations against the same Terraform directory would race on the
// selected workspace and on the checked-out git ref. Mutating commands take
// the lock first and fail fast if another process holds it.
//
// # Thread Safety
//
// Implementations must be safe for use from a single goroutine. The lock
// itself provides inter-process synchronization, not intra-process.
type Locker interface {
	// Acquire attempts to get an exclusive lock without blocking.
	Acquire() error

	// Release releases the lock if held. Safe to call multiple times.
	Release() error
}

// LockConfig configures lock file placement.
type LockConfig struct {
	// LockDir is the directory for lock files.
	// Default: system temp directory
	LockDir string

	// LockName is the base name for lock files.
	// Default: "ecsdeploy"
	LockName string
}

// LockConfigFor returns a LockConfig whose name is derived from the absolute
// path of workDir, so that runs against different checkouts never contend.
//
// # Example
//
//	cfg, err := LockConfigFor("", "./terraform")
//	// cfg.LockName == "ecsdeploy-3f9a0c1b2d4e"
func LockConfigFor(lockDir, workDir string) (LockConfig, error) {
	abs, err := filepath.Abs(workDir)
	if err != nil {
		return LockConfig{}, fmt.Errorf("resolve lock directory %s: %w", workDir, err)
	}
	sum := sha256.Sum256([]byte(abs))
	return LockConfig{
		LockDir:  lockDir,
		LockName: "ecsdeploy-" + hex.EncodeToString(sum[:6]),
	}, nil
}

// Lock implements Locker using flock(2).
//
// # How It Works
//
//  1. Creates a lock file at {LockDir}/{LockName}.lock
//  2. Attempts a non-blocking exclusive flock on the file
//  3. Writes its PID to {LockDir}/{LockName}.pid for diagnostics
//  4. On release, removes the PID file and releases the flock
//
// # Limitations
//
//   - Advisory lock only
//   - NFS and some network filesystems don't support flock properly
//   - The OS drops the flock if the process dies, but a stale PID file may
//     remain
//
// # Example
//
//	lock := NewLock(cfg)
//	if err := lock.Acquire(); err != nil {
//	    return err
//	}
//	defer lock.Release()
type Lock struct {
	config   LockConfig
	lockPath string
	pidPath  string
	lockFile *os.File
	held     bool
}

// NewLock creates a lock. It does not acquire it.
func NewLock(config LockConfig) *Lock {
	if config.LockDir == "" {
		config.LockDir = os.TempDir()
	}
	if config.LockName == "" {
		config.LockName = "ecsdeploy"
	}

	return &Lock{
		config:   config,
		lockPath: filepath.Join(config.LockDir, config.LockName+".lock"),
		pidPath:  filepath.Join(config.LockDir, config.LockName+".pid"),
	}
}

// Acquire attempts to get an exclusive lock.
//
// # Outputs
//
//   - error: nil if acquired; *ErrLockHeld if another process holds it;
//     a wrapped OS error otherwise
func (p *Lock) Acquire() error {
	if p.held {
		return nil
	}

	if err := os.MkdirAll(p.config.LockDir, 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory %s: %w", p.config.LockDir, err)
	}

	f, err := os.OpenFile(p.lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create lock file %s: %w", p.lockPath, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return &ErrLockHeld{HolderPID: p.readHolderPID(), LockPath: p.lockPath}
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	p.lockFile = f
	p.held = true

	// PID file is diagnostic only; the flock is what matters.
	_ = p.writePID()

	return nil
}

// Release removes the PID file and releases the flock.
func (p *Lock) Release() error {
	if !p.held || p.lockFile == nil {
		return nil
	}

	os.Remove(p.pidPath)

	err := unix.Flock(int(p.lockFile.Fd()), unix.LOCK_UN)
	p.lockFile.Close()
	p.lockFile = nil
	p.held = false

	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

func (p *Lock) writePID() error {
	return os.WriteFile(p.pidPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644)
}

func (p *Lock) readHolderPID() int {
	data, err := os.ReadFile(p.pidPath)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// ErrLockHeld is returned when another process holds the lock.
type ErrLockHeld struct {
	HolderPID int
	LockPath  string
}

// Error implements the error interface.
func (e *ErrLockHeld) Error() string {
	if e.HolderPID > 0 {
		return fmt.Sprintf("another ecsdeploy run is in progress for this directory (PID %d)", e.HolderPID)
	}
	return fmt.Sprintf("another ecsdeploy run is in progress for this directory (check: lsof %s)", e.LockPath)
}

// NopLocker is a Locker that always succeeds. Used for read-only commands
// and in tests.
type NopLocker struct{}

func (NopLocker) Acquire() error { return nil }
func (NopLocker) Release() error { return nil }

var (
	_ Locker = (*Lock)(nil)
	_ Locker = NopLocker{}
)

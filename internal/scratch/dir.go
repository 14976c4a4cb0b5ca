// Package scratch keeps short-lived files such as screenshots waiting to be
// downloaded, and removes them once they expire.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Dir is a directory of transient files with TTL cleanup.
type Dir struct {
	path   string
	ttl    time.Duration
	logger *zap.Logger

	started     atomic.Bool
	stopOnce    sync.Once
	stopCleanup chan struct{}
	done        chan struct{}
}

// New creates the directory if needed. Relative paths are resolved against
// the working directory.
func New(path string, ttl time.Duration, logger *zap.Logger) (*Dir, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve scratch dir %q: %w", path, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir %q: %w", abs, err)
	}
	return &Dir{
		path:        abs,
		ttl:         ttl,
		logger:      logger.Named("scratch"),
		stopCleanup: make(chan struct{}),
		done:        make(chan struct{}),
	}, nil
}

// Path returns the absolute directory path.
func (d *Dir) Path() string {
	return d.path
}

// WriteImage stores a PNG under a unique name and returns its absolute path.
func (d *Dir) WriteImage(prefix string, data []byte) (string, error) {
	name := fmt.Sprintf("%s_%s.png", prefix, uuid.NewString())
	path := filepath.Join(d.path, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return path, nil
}

// Remove deletes a file previously written to the directory.
func (d *Dir) Remove(path string) {
	if !strings.HasPrefix(path, d.path+string(filepath.Separator)) {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		d.logger.Warn("failed to remove scratch file", zap.String("path", path), zap.Error(err))
	}
}

// Sweep removes regular files older than the TTL and returns how many were deleted.
func (d *Dir) Sweep(now time.Time) int {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		d.logger.Warn("failed to list scratch dir", zap.Error(err))
		return 0
	}

	deleted := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < d.ttl {
			continue
		}
		if err := os.Remove(filepath.Join(d.path, e.Name())); err != nil {
			d.logger.Warn("failed to remove expired scratch file", zap.String("name", e.Name()), zap.Error(err))
			continue
		}
		deleted++
	}

	if deleted > 0 {
		d.logger.Info("removed expired scratch files", zap.Int("count", deleted))
	}
	return deleted
}

// Start sweeps on every interval until Stop is called.
func (d *Dir) Start(interval time.Duration) {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	ticker := time.NewTicker(interval)

	go func() {
		defer close(d.done)
		for {
			select {
			case now := <-ticker.C:
				d.Sweep(now)
			case <-d.stopCleanup:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop ends the sweeper started by Start and waits for it to exit.
func (d *Dir) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCleanup)
	})
	if d.started.Load() {
		<-d.done
	}
}

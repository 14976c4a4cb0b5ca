package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"go.uber.org/zap"
)

const reapTimeout = 5 * time.Second

// ProcessReaper kills browser processes whose command line contains a marker,
// normally the dedicated user data directory of this service.
type ProcessReaper struct {
	marker string
	logger *zap.Logger
}

// NewProcessReaper creates a reaper for processes matching marker.
func NewProcessReaper(marker string, logger *zap.Logger) *ProcessReaper {
	return &ProcessReaper{
		marker: marker,
		logger: logger.Named("reaper"),
	}
}

// Reap kills matching processes. Finding none is not an error.
func (r *ProcessReaper) Reap(ctx context.Context) error {
	if r.marker == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, reapTimeout)
	defer cancel()

	name, args := r.command()
	path, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("process kill facility unavailable: %w", err)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err = cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == noMatchExitCode() {
		r.logger.Debug("no stray browser processes")
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s %v failed: %w\n%s", name, args, err, out.String())
	}

	r.logger.Info("killed stray browser processes", zap.String("marker", r.marker))
	return nil
}

func (r *ProcessReaper) command() (string, []string) {
	// taskkill cannot match on command line, so Windows falls back to the image name.
	if runtime.GOOS == "windows" {
		return "taskkill", []string{"/F", "/IM", "chrome.exe"}
	}
	return "pkill", []string{"-9", "-f", r.marker}
}

func noMatchExitCode() int {
	if runtime.GOOS == "windows" {
		return 128
	}
	return 1
}

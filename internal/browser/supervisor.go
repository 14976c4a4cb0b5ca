package browser

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Supervisor owns the single browser process.
//
// It is not safe for concurrent use on its own: every call is made while
// holding the Session lease.
type Supervisor struct {
	launcher   Launcher
	reaper     Reaper
	waiter     *Waiter
	defaultURL string
	readyAfter time.Duration
	driver     Driver
	logger     *zap.Logger
}

func newSupervisor(launcher Launcher, reaper Reaper, waiter *Waiter, opts Options, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		launcher:   launcher,
		reaper:     reaper,
		waiter:     waiter,
		defaultURL: opts.DefaultURL,
		readyAfter: opts.LaunchReadyTimeout,
		logger:     logger.Named("supervisor"),
	}
}

// Start launches the browser unless one is already running.
// On failure the partial process is terminated and no handle is kept.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.driver != nil {
		return nil
	}

	s.reapOrphans(ctx)

	d, err := s.launcher.Launch(ctx)
	if err != nil {
		s.logger.Error("failed to launch browser", zap.Error(err))
		return opError("start", ErrLaunchFailed, err)
	}

	if err := s.initialize(ctx, d); err != nil {
		s.logger.Error("failed to initialize browser", zap.Error(err))
		if quitErr := d.Quit(); quitErr != nil {
			s.logger.Warn("failed to terminate partially started browser", zap.Error(quitErr))
		}
		return opError("start", ErrLaunchFailed, err)
	}

	s.driver = d
	s.logger.Info("browser started", zap.String("url", s.defaultURL))
	return nil
}

func (s *Supervisor) initialize(ctx context.Context, d Driver) error {
	if s.defaultURL == "" {
		return nil
	}
	if err := d.Navigate(s.defaultURL); err != nil {
		return fmt.Errorf("failed to open %s: %w", s.defaultURL, err)
	}
	if state := s.waiter.awaitDocument(ctx, d, s.readyAfter); state != StateComplete {
		return fmt.Errorf("%s not ready after %s (%s)", s.defaultURL, s.readyAfter, state)
	}
	return nil
}

// reapOrphans kills browsers leaked by earlier runs. A failure here is logged
// and deliberately not propagated: a missing kill facility or an empty process
// table must not prevent a fresh launch.
func (s *Supervisor) reapOrphans(ctx context.Context) {
	if s.reaper == nil {
		return
	}
	if err := s.reaper.Reap(ctx); err != nil {
		s.logger.Warn("stray browser cleanup failed, continuing", zap.Error(err))
	}
}

// Stop terminates the browser if one is running. The handle is cleared even
// when the process does not quit cleanly.
func (s *Supervisor) Stop() error {
	if s.driver == nil {
		return nil
	}

	d := s.driver
	s.driver = nil
	if err := d.Quit(); err != nil {
		s.logger.Warn("failed to quit browser cleanly", zap.Error(err))
		return nil
	}

	s.logger.Info("browser stopped")
	return nil
}

// Get returns the live handle.
func (s *Supervisor) Get() (Driver, error) {
	if s.driver == nil {
		return nil, ErrNotRunning
	}
	return s.driver, nil
}

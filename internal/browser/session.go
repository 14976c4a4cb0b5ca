package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ahrdadan/headctl/internal/events"
	"go.uber.org/zap"
)

// Session serializes every operation against the browser handle.
//
// The driver protocol is not safe for concurrent callers, so a single lease
// guards the supervisor and the handle it owns. Acquisition blocks without a
// timeout; operations are bounded by the driver's own timeouts.
type Session struct {
	mu       sync.Mutex
	sup      *Supervisor
	seq      uint64
	notifier events.Notifier
	logger   *zap.Logger
}

func newSession(sup *Supervisor, notifier events.Notifier, logger *zap.Logger) *Session {
	if notifier == nil {
		notifier = events.Discard
	}
	return &Session{
		sup:      sup,
		notifier: notifier,
		logger:   logger.Named("session"),
	}
}

// Start launches the browser under the lease.
func (s *Session) Start(ctx context.Context) error {
	_, err := leaseOn(s, "start", func() (struct{}, error) {
		return struct{}{}, s.sup.Start(ctx)
	})
	return err
}

// Stop terminates the browser under the lease. Used by the shutdown path too,
// so an operation still in flight finishes before the process goes away.
func (s *Session) Stop() error {
	_, err := leaseOn(s, "stop", func() (struct{}, error) {
		return struct{}{}, s.sup.Stop()
	})
	return err
}

// inspect runs fn under the lease with whatever handle exists, possibly nil.
func inspect[T any](s *Session, op string, fn func(d Driver) (T, error)) (T, error) {
	return leaseOn(s, op, func() (T, error) {
		d, _ := s.sup.Get()
		return fn(d)
	})
}

// withExclusiveAccess runs fn against the live handle while holding the lease.
// Domain errors pass through unchanged; anything else, panics included,
// becomes an OperationFailed error.
func withExclusiveAccess[T any](s *Session, op string, fn func(d Driver) (T, error)) (T, error) {
	return leaseOn(s, op, func() (T, error) {
		d, err := s.sup.Get()
		if err != nil {
			var zero T
			return zero, err
		}
		return fn(d)
	})
}

func leaseOn[T any](s *Session, op string, fn func() (T, error)) (result T, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	seq := s.seq
	started := time.Now()
	s.notifier.Notify(events.Event{
		Seq:       seq,
		Operation: op,
		Status:    events.StatusStarted,
		Time:      started,
	})

	defer func() {
		if r := recover(); r != nil {
			var zero T
			result = zero
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			err = s.translate(op, err)
		}
		s.finish(seq, op, started, err)
	}()

	return fn()
}

// translate wraps infrastructure errors and drops a handle whose connection is gone.
func (s *Session) translate(op string, err error) error {
	if isConnectionError(err) {
		s.logger.Warn("browser connection lost, dropping handle", zap.String("operation", op), zap.Error(err))
		if stopErr := s.sup.Stop(); stopErr != nil {
			s.logger.Warn("failed to stop disconnected browser", zap.Error(stopErr))
		}
	}
	if isDomainError(err) {
		return err
	}
	return opError(op, ErrOperationFailed, err)
}

func (s *Session) finish(seq uint64, op string, started time.Time, err error) {
	ev := events.Event{
		Seq:        seq,
		Operation:  op,
		Status:     events.StatusSucceeded,
		DurationMS: time.Since(started).Milliseconds(),
		Time:       time.Now(),
	}
	if err != nil {
		ev.Status = events.StatusFailed
		ev.Error = err.Error()
		s.logger.Debug("operation failed", zap.String("operation", op), zap.Uint64("seq", seq), zap.Error(err))
	}
	s.notifier.Notify(ev)
}

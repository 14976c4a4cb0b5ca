package browser

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ReadyState is the observed outcome of waiting for a page.
type ReadyState string

const (
	StateLoading  ReadyState = "loading"
	StateComplete ReadyState = "complete"
	StateTimedOut ReadyState = "timed_out"
)

const (
	documentReadyJS = `() => document.readyState === "complete"`
	imagesLoadedJS  = `() => Array.from(document.images).every(img => img.complete)`
)

// Waiter polls page readiness with bounded timeouts. Timeouts and evaluation
// errors are never fatal: they degrade to StateTimedOut.
type Waiter struct {
	interval   time.Duration
	settle     time.Duration
	safeSettle time.Duration
	logger     *zap.Logger
}

func newWaiter(opts Options, logger *zap.Logger) *Waiter {
	return &Waiter{
		interval:   opts.PollInterval,
		settle:     opts.LayoutSettle,
		safeSettle: opts.SafeSettle,
		logger:     logger.Named("waiter"),
	}
}

// AwaitReady waits for the document, lets layout settle, then waits for images.
func (w *Waiter) AwaitReady(ctx context.Context, d Driver, primary, secondary time.Duration) ReadyState {
	if state := w.awaitDocument(ctx, d, primary); state != StateComplete {
		return state
	}
	if !w.sleep(ctx, w.settle) {
		return StateLoading
	}

	ok, err := w.poll(ctx, d, imagesLoadedJS, secondary)
	switch {
	case err != nil:
		w.logger.Warn("image readiness check failed, continuing", zap.Error(err))
		return StateTimedOut
	case !ok:
		w.logger.Warn("timed out waiting for images, continuing", zap.Duration("timeout", secondary))
		return StateTimedOut
	}
	return StateComplete
}

// AwaitReadySafe waits for the document only, then pauses briefly. It skips the
// image check so a slow page cannot compound an earlier failure.
func (w *Waiter) AwaitReadySafe(ctx context.Context, d Driver, timeout time.Duration) ReadyState {
	state := w.awaitDocument(ctx, d, timeout)
	if state == StateComplete && !w.sleep(ctx, w.safeSettle) {
		return StateLoading
	}
	return state
}

func (w *Waiter) awaitDocument(ctx context.Context, d Driver, timeout time.Duration) ReadyState {
	ok, err := w.poll(ctx, d, documentReadyJS, timeout)
	switch {
	case err != nil:
		w.logger.Warn("document readiness check failed, continuing", zap.Error(err))
		return StateTimedOut
	case ctx.Err() != nil:
		return StateLoading
	case !ok:
		w.logger.Warn("timed out waiting for document, continuing", zap.Duration("timeout", timeout))
		return StateTimedOut
	}
	return StateComplete
}

// poll evaluates predicate until it returns true or timeout elapses.
// It always evaluates at least once.
func (w *Waiter) poll(ctx context.Context, d Driver, predicate string, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		v, err := d.Eval(predicate)
		if err != nil {
			return false, fmt.Errorf("evaluate readiness predicate: %w", err)
		}
		if ok, _ := v.(bool); ok {
			return true, nil
		}

		wait := w.interval
		if remaining := time.Until(deadline); remaining <= 0 {
			return false, nil
		} else if remaining < wait {
			wait = remaining
		}
		if !w.sleep(ctx, wait) {
			return false, nil
		}
	}
}

// sleep pauses for d and reports false if ctx ended first.
func (w *Waiter) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// Error kinds reported by the operation surface. Callers match them with errors.Is.
var (
	ErrNotRunning      = errors.New("browser is not running")
	ErrLaunchFailed    = errors.New("browser launch failed")
	ErrTabNotFound     = errors.New("tab not found")
	ErrLastTab         = errors.New("cannot close the last tab")
	ErrOperationFailed = errors.New("operation failed")
	ErrCaptureFailed   = errors.New("screenshot capture failed")

	// ErrPageLoadTimeout is returned by drivers when a navigation outlives the page load timeout.
	ErrPageLoadTimeout = errors.New("page load timed out")
)

// OperationError attaches an operation name and error kind to an underlying cause.
type OperationError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *OperationError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func opError(op string, kind, err error) error {
	return &OperationError{Op: op, Kind: kind, Err: err}
}

// isDomainError reports whether err already carries one of the surface error kinds.
func isDomainError(err error) bool {
	for _, kind := range []error{
		ErrNotRunning,
		ErrLaunchFailed,
		ErrTabNotFound,
		ErrLastTab,
		ErrOperationFailed,
		ErrCaptureFailed,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// isConnectionError reports whether err means the CDP connection is gone.
// Only typed transport errors count; messages are never inspected because
// they carry URLs and script text.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	for _, target := range []error{
		io.EOF,
		io.ErrUnexpectedEOF,
		net.ErrClosed,
		syscall.ECONNRESET,
		syscall.EPIPE,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

package render

import (
	"errors"
	"fmt"
	"time"

	"brickkit/internal/services"
)

var (
	// ErrRendererUnavailable means no working LeoCAD executable was found.
	ErrRendererUnavailable = fmt.Errorf("%w: LeoCAD CLI not found; install LeoCAD or set renderer.executable", services.ErrConfiguration)
	// ErrLibraryMissing means no LDraw parts library is configured or installed.
	ErrLibraryMissing = fmt.Errorf("%w: LDraw library not found; install LDraw or set LDRAW_PATH", services.ErrConfiguration)
	// ErrSourceMissing means the model file does not exist.
	ErrSourceMissing = fmt.Errorf("%w: model file not found", services.ErrNotFound)
)

// TimeoutError reports a frame job that exceeded its time limit.
type TimeoutError struct {
	Limit   time.Duration
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("LeoCAD process timed out after %d seconds", int(e.Limit.Round(time.Second)/time.Second))
	if e.Elapsed > 0 {
		msg += fmt.Sprintf(" (elapsed %s)", e.Elapsed.Round(100*time.Millisecond))
	}
	return msg
}

// Unwrap exposes the timeout marker.
func (e *TimeoutError) Unwrap() error {
	return services.ErrTimeout
}

// ExitError reports a renderer run that finished without usable output.
type ExitError struct {
	// Code is the process exit status; zero when the process exited cleanly
	// but produced no valid artifacts.
	Code   int
	Stderr string
	Reason string
}

func (e *ExitError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	if e.Stderr != "" {
		return fmt.Sprintf("LeoCAD export failed: %s", e.Stderr)
	}
	return fmt.Sprintf("LeoCAD export failed with exit code %d", e.Code)
}

// Unwrap exposes the external-tool marker.
func (e *ExitError) Unwrap() error {
	return services.ErrExternalTool
}

// IsTimeout reports whether err is a render timeout.
func IsTimeout(err error) bool {
	var timeout *TimeoutError
	return errors.As(err, &timeout)
}

package download

import (
	"errors"
	"fmt"
	"net/http"

	"brickkit/internal/services"
)

// ErrNoModelInArchive reports an archive variant without an .mpd or .ldr entry.
var ErrNoModelInArchive = fmt.Errorf("%w: archive contains no .mpd or .ldr file", services.ErrNotFound)

// Error reports a download that ended with a non-2xx response.
type Error struct {
	URL        string
	StatusCode int
}

func (e *Error) Error() string {
	return fmt.Sprintf("Failed to download file: HTTP %d", e.StatusCode)
}

// Unwrap classifies the status for services.FailureStatus.
func (e *Error) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone:
		return services.ErrNotFound
	case transientStatus(e.StatusCode):
		return services.ErrTransient
	default:
		return services.ErrExternalTool
	}
}

// StatusCode extracts the HTTP status from a download error, or 0.
func StatusCode(err error) int {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.StatusCode
	}
	return 0
}

// transientStatus reports throttling and server-side statuses.
func transientStatus(status int) bool {
	return status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status >= http.StatusInternalServerError
}

package copilot

import (
	"errors"

	"interview-copilot-service/internal/service/ai"
)

// Error taxonomy.
var (
	// ErrSourceUnavailable - no audio track, or the source failed. Fatal to
	// session start, never retried.
	ErrSourceUnavailable = errors.New("audio source unavailable")
	// ErrTransport - network or remote session failure.
	ErrTransport = errors.New("transport error")
	// ErrMalformedResponse - the AI collaborator returned an unusable result.
	ErrMalformedResponse = ai.ErrMalformedResponse

	ErrSessionActive = errors.New("session already running")
	ErrNotRunning    = errors.New("session not running")
	ErrUnsupported   = errors.New("not supported by this backend")
)

// ErrorKind returns a stable label for err, used in status payloads and
// metrics. It returns "" for nil.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrSessionActive):
		return "session_active"
	case errors.Is(err, ErrNotRunning):
		return "not_running"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	default:
		return "internal"
	}
}

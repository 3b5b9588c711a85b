// Package metrics implements the in-memory aggregation engine: counter
// tables keyed by request/error signatures, drained atomically into
// snapshots by the sync loop.
package metrics

import "strings"

// RequestKey identifies one row in the request counter table. Comparable
// by value; the method is normalized to uppercase and the path is the
// route template, not the raw URL.
type RequestKey struct {
	Consumer   string
	Method     string
	Path       string
	StatusCode int
}

// NewRequestKey normalizes the method and returns a value key.
func NewRequestKey(consumer, method, path string, statusCode int) RequestKey {
	return RequestKey{
		Consumer:   consumer,
		Method:     strings.ToUpper(method),
		Path:       path,
		StatusCode: statusCode,
	}
}

// ValidationErrorKey identifies a distinct client validation failure
// signature, independent of the response status code.
type ValidationErrorKey struct {
	Consumer string
	Method   string
	Path     string
	Loc      string
	Msg      string
	Type     string
}

// NewValidationErrorKey normalizes the method and returns a value key.
func NewValidationErrorKey(consumer, method, path, loc, msg, errType string) ValidationErrorKey {
	return ValidationErrorKey{
		Consumer: consumer,
		Method:   strings.ToUpper(method),
		Path:     path,
		Loc:      loc,
		Msg:      msg,
		Type:     errType,
	}
}

// ServerErrorKey identifies a distinct server error signature. Msg and
// StackTrace are expected to be pre-truncated via TruncateErrorMessage
// and TruncateStackTrace so that equal errors collapse onto one key.
type ServerErrorKey struct {
	Consumer   string
	Method     string
	Path       string
	Type       string
	Msg        string
	StackTrace string
}

// NewServerErrorKey normalizes the method and truncates the message and
// stack trace to their wire limits.
func NewServerErrorKey(consumer, method, path, errType, msg, stackTrace string) ServerErrorKey {
	return ServerErrorKey{
		Consumer:   consumer,
		Method:     strings.ToUpper(method),
		Path:       path,
		Type:       errType,
		Msg:        TruncateErrorMessage(msg),
		StackTrace: TruncateStackTrace(stackTrace),
	}
}

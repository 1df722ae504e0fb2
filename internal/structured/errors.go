package structured

import (
	"errors"
	"fmt"
)

// ErrNoJSONObject is returned when a completion contains no {...} span.
var ErrNoJSONObject = errors.New("structured: completion contains no JSON object")

// ValidationError reports a parsed value that does not meet its schema.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("structured: %s: %s", e.Field, e.Reason)
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("structured: no valid result after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// IsExhausted reports whether err means the retry budget ran out.
func IsExhausted(err error) bool {
	var e *ExhaustedError
	return errors.As(err, &e)
}

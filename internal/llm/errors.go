package llm

import "errors"

// dependencyUnavailableError signals a missing external dependency (e.g., llama.cpp)
// so callers can report it instead of retrying.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing/failed runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var d dependencyUnavailableError
	return errors.As(err, &d)
}

// ErrEmptyPrompt is returned when a request has no prompt text.
var ErrEmptyPrompt = errors.New("llm: empty prompt")

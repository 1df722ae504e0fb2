package batch

import "errors"

var (
	// ErrNotEvaluated is returned by Sample when the conversation has tokens
	// appended since its last evaluation, or has never been evaluated.
	ErrNotEvaluated = errors.New("conversation has not been evaluated since its last prompt")
	// ErrEmptyPrompt is returned by Prompt when called with no tokens.
	ErrEmptyPrompt = errors.New("prompt requires at least one token")
	// ErrDisposed is returned by any operation on a disposed conversation.
	ErrDisposed = errors.New("conversation is disposed")
	// ErrForkPending is returned by Fork while the conversation awaits inference.
	ErrForkPending = errors.New("cannot fork a conversation that requires inference")
	// ErrTickInProgress is returned by cache maintenance called during Infer.
	ErrTickInProgress = errors.New("cache maintenance is not allowed during a tick")
)

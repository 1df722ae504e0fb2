//go:build !llama

package llm

// This file provides a no-CGO stub for the llama generator. It is compiled when
// the 'llama' build tag is NOT set, keeping default builds CGO-free.

import "context"

const llamaBuilt = false

// Llama is a stub that refuses to generate without the 'llama' build tag.
type Llama struct{}

func NewLlama(cfg LlamaConfig) (*Llama, error) {
	return nil, ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}

func (l *Llama) Generate(ctx context.Context, req Request) (Completion, error) {
	select {
	case <-ctx.Done():
		return Completion{}, ctx.Err()
	default:
	}
	return Completion{}, ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}

func (l *Llama) Close() error { return nil }

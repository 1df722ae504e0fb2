// Package llm provides stateless single-sequence text generation. Each
// Generate call is independent of any batch in flight.
package llm

import "context"

// Finish reasons reported in Completion.
const (
	FinishEOS    = "eos"
	FinishStop   = "stop"
	FinishLength = "length"
)

// Generator produces one completion per call.
type Generator interface {
	Generate(ctx context.Context, req Request) (Completion, error)
}

// Request captures generation parameters for a single call.
type Request struct {
	Prompt string
	// Grammar is GBNF text constraining the output; empty disables it.
	Grammar     string
	Temperature float32
	MaxTokens   int
	Stop        []string
	Seed        int64
}

// Completion is the generated text with its accounting.
type Completion struct {
	Text         string
	PromptTokens int
	Tokens       int
	FinishReason string
}

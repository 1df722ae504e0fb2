// Package engine declares the contracts of the external inference runtime that
// batchd drives: a batched forward pass over a shared KV cache, and a
// tokenizer. Nothing in this package performs inference itself.
package engine

import "fmt"

// Token is a vocabulary id.
type Token int32

// SeqID identifies a sequence slot inside the shared KV cache.
type SeqID int

// DecodeResult is the status code returned by a batched decode.
type DecodeResult int

const (
	DecodeOK DecodeResult = 0
	// DecodeNoKVSlot means the cache could not fit the batch.
	DecodeNoKVSlot DecodeResult = 1
	// DecodeComputeFailed covers any other runtime failure.
	DecodeComputeFailed DecodeResult = -3
)

func (r DecodeResult) String() string {
	switch r {
	case DecodeOK:
		return "ok"
	case DecodeNoKVSlot:
		return "no_kv_slot"
	case DecodeComputeFailed:
		return "compute_failed"
	default:
		return fmt.Sprintf("decode_result(%d)", int(r))
	}
}

// Err converts a non-OK result into a DecodeError. It returns nil for DecodeOK.
func (r DecodeResult) Err() error {
	if r == DecodeOK {
		return nil
	}
	return DecodeError{Code: r}
}

// DecodeError wraps a failed decode so it can travel through error returns.
type DecodeError struct{ Code DecodeResult }

func (e DecodeError) Error() string { return "decode failed: " + e.Code.String() }

// IsDecodeError reports whether err is a DecodeError and returns its code.
func IsDecodeError(err error) (DecodeResult, bool) {
	de, ok := err.(DecodeError)
	if !ok {
		return DecodeOK, false
	}
	return de.Code, true
}

// BatchEntry is the set of new tokens to evaluate for one sequence.
// Pos is the cache position of the first token.
type BatchEntry struct {
	Seq    SeqID
	Pos    int
	Tokens []Token
}

// Engine is the shared forward pass plus its KV cache. Decode evaluates every
// entry in one step and returns the logits of the last token of each entry,
// in entry order. On a non-OK result no logits are returned and the cache is
// left as it was before the call.
//
// Maintenance methods must only be called between decodes.
type Engine interface {
	Decode(batch []BatchEntry) ([][]float32, DecodeResult)
	VocabSize() int

	KVCacheCountCells() int
	KVCacheCountTokens() int
	KVCacheDefrag()
	KVCacheUpdate()
	KVCacheClear()
	// KVCacheSeqCopy shares cells [0, n) of src with dst.
	KVCacheSeqCopy(src, dst SeqID, n int)
	KVCacheSeqRemove(seq SeqID)

	SaveState(path string) error
	LoadState(path string) error
}

// Tokenizer converts between text and tokens for the engine's vocabulary.
type Tokenizer interface {
	Tokenize(text string, addBOS bool) []Token
	Detokenize(tokens []Token) string
	// Piece returns the text a single token contributes when detokenized.
	Piece(t Token) string
	IsEndOfGeneration(t Token) bool
}

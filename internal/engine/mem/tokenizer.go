package mem

import (
	"strings"

	"batchd/internal/engine"
)

// Byte-level vocabulary: token 0 is end-of-sequence, token b+1 is byte b.
const (
	EOS       engine.Token = 0
	VocabSize              = 257
)

// Tokenizer is the byte-level tokenizer matching Engine's vocabulary.
type Tokenizer struct{}

// TokenOf returns the token for a single byte.
func TokenOf(b byte) engine.Token { return engine.Token(b) + 1 }

func (Tokenizer) Tokenize(text string, _ bool) []engine.Token {
	out := make([]engine.Token, len(text))
	for i := 0; i < len(text); i++ {
		out[i] = TokenOf(text[i])
	}
	return out
}

func (t Tokenizer) Detokenize(tokens []engine.Token) string {
	var b strings.Builder
	for _, tok := range tokens {
		b.WriteString(t.Piece(tok))
	}
	return b.String()
}

func (Tokenizer) Piece(t engine.Token) string {
	if t <= EOS || int(t) >= VocabSize {
		return ""
	}
	return string([]byte{byte(t - 1)})
}

func (Tokenizer) IsEndOfGeneration(t engine.Token) bool { return t == EOS }

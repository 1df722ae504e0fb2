package mem

import (
	"hash/fnv"
	"math/rand"

	"batchd/internal/engine"
)

const (
	hot  = 10
	cold = -10
)

// Hash returns a pseudo-random model: logits depend only on the last few
// tokens of a sequence, printable ASCII is preferred, and end-of-sequence
// becomes steadily more likely as generation grows.
func Hash(seed int64) Model {
	return func(c Context) []float32 {
		h := fnv.New64a()
		tail := c.History[max(0, len(c.History)-3):]
		for _, t := range tail {
			_, _ = h.Write([]byte{byte(t), byte(t >> 8)})
		}
		rng := rand.New(rand.NewSource(int64(h.Sum64()) ^ seed))
		out := make([]float32, VocabSize)
		for i := range out {
			b := i - 1
			if b >= ' ' && b <= '~' {
				out[i] = float32(rng.NormFloat64())
			} else {
				out[i] = cold
			}
		}
		out[EOS] = float32(len(c.Generated()))/32 - 2
		return out
	}
}

// Peaked returns logits with next set hot and everything else cold.
func Peaked(next engine.Token) []float32 {
	out := make([]float32, VocabSize)
	for i := range out {
		out[i] = cold
	}
	out[next] = hot
	return out
}

// Reply returns a model that, for each sequence, spells out reply(prompt)
// byte by byte and then emits end-of-sequence.
func Reply(reply func(prompt string) string) Model {
	var tok Tokenizer
	return func(c Context) []float32 {
		prompt := tok.Detokenize(c.History[:min(c.PromptLen, len(c.History))])
		text := reply(prompt)
		n := len(c.Generated())
		if n >= len(text) {
			return Peaked(EOS)
		}
		return Peaked(TokenOf(text[n]))
	}
}

// Scripted spells out text for every sequence, then ends.
func Scripted(text string) Model {
	return Reply(func(string) string { return text })
}

// Endless never emits end-of-sequence; it repeats fill forever.
func Endless(fill byte) Model {
	return func(Context) []float32 { return Peaked(TokenOf(fill)) }
}

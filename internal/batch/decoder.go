package batch

import (
	"strings"
	"unicode/utf8"

	"batchd/internal/engine"
)

// Decoder turns a stream of sampled tokens into text. Bytes of a character
// split across tokens are held back until the character is complete.
type Decoder struct {
	tok     engine.Tokenizer
	pending []byte
	out     strings.Builder
	tokens  int
}

func NewDecoder(tok engine.Tokenizer) *Decoder { return &Decoder{tok: tok} }

// Add appends the text of t.
func (d *Decoder) Add(t engine.Token) {
	d.tokens++
	d.pending = append(d.pending, d.tok.Piece(t)...)
	n := len(d.pending)
	if s := lastRuneStart(d.pending); n > 0 && !utf8.FullRune(d.pending[s:]) {
		n = s
	}
	d.out.Write(d.pending[:n])
	d.pending = append(d.pending[:0], d.pending[n:]...)
}

func lastRuneStart(b []byte) int {
	i := len(b) - 1
	for i > 0 && !utf8.RuneStart(b[i]) {
		i--
	}
	return max(i, 0)
}

// Read returns the text decoded since the previous Read.
func (d *Decoder) Read() string {
	s := d.out.String()
	d.out.Reset()
	return s
}

// Tokens returns how many tokens have been added.
func (d *Decoder) Tokens() int { return d.tokens }

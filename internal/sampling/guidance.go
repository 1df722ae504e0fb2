package sampling

import (
	"errors"
	"math"

	"batchd/internal/engine"
)

// ErrPairDisposed is returned when either side of a GuidedPair is gone.
var ErrPairDisposed = errors.New("sampling: guided pair has a disposed sequence")

// Blend applies classifier-free guidance: g + w*(g-u) for every index. It
// returns a new slice; at w == 0 the result equals g. Tokens masked out of g
// stay masked, and where u is not finite g passes through unblended.
func Blend(g, u []float32, w float32) []float32 {
	out := make([]float32, len(g))
	if w == 0 {
		copy(out, g)
		return out
	}
	for i := range g {
		if math.IsInf(float64(g[i]), -1) || math.IsInf(float64(u[i]), 0) || math.IsNaN(float64(u[i])) {
			out[i] = g[i]
			continue
		}
		out[i] = g[i] + w*(g[i]-u[i])
	}
	return out
}

// Sequence is the part of a conversation a GuidedPair drives.
type Sequence interface {
	Prompt(tokens ...engine.Token) error
	Sample() ([]float32, error)
	Disposed() bool
}

// GuidedPair couples a guided sequence with its guidance sequence so both
// are always advanced with the same token.
type GuidedPair struct {
	guided   Sequence
	guidance Sequence
}

func NewGuidedPair(guided, guidance Sequence) *GuidedPair {
	return &GuidedPair{guided: guided, guidance: guidance}
}

// GuidanceLogits implements GuidanceSource.
func (g *GuidedPair) GuidanceLogits() ([]float32, error) { return g.guidance.Sample() }

// Logits returns the guided sequence's current logits.
func (g *GuidedPair) Logits() ([]float32, error) { return g.guided.Sample() }

// Attach makes p blend against this pair's guidance sequence at weight w.
func (g *GuidedPair) Attach(p *Pipeline, w float32) { p.SetGuidance(g, w) }

// Advance appends tok to both sequences. Neither is touched if either has
// been disposed.
func (g *GuidedPair) Advance(tok engine.Token) error {
	if g.guided.Disposed() || g.guidance.Disposed() {
		return ErrPairDisposed
	}
	if err := g.guided.Prompt(tok); err != nil {
		return err
	}
	return g.guidance.Prompt(tok)
}

// Step samples the guided sequence through p, accepts the token and advances
// both sequences with it. p should have been attached to this pair.
func (g *GuidedPair) Step(p *Pipeline) (engine.Token, error) {
	logits, err := g.guided.Sample()
	if err != nil {
		return 0, err
	}
	tok, err := p.Sample(logits)
	if err != nil {
		return 0, err
	}
	if err := p.Accept(tok); err != nil {
		return 0, err
	}
	return tok, g.Advance(tok)
}

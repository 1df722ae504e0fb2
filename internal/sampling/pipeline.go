package sampling

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"batchd/internal/engine"
	"batchd/internal/grammar"
)

var (
	// ErrCloneNotSupported is returned by Clone when the pipeline holds a
	// grammar cursor or guidance source.
	ErrCloneNotSupported = errors.New("sampling: clone not supported with grammar or guidance attached")
	// ErrNoCandidates is returned when every token has been filtered out.
	ErrNoCandidates = errors.New("sampling: no candidate tokens left")
)

// GuidanceSource supplies the logits of the guidance sequence for the
// current step.
type GuidanceSource interface {
	GuidanceLogits() ([]float32, error)
}

type candidate struct {
	tok   engine.Token
	logit float32
	p     float64
}

// Pipeline is stateful and must serve exactly one conversation.
type Pipeline struct {
	cfg      Config
	tok      engine.Tokenizer
	pcg      *rand.PCG
	rng      *rand.Rand
	grammar  *grammar.Handle
	guidance GuidanceSource
	weight   float32
	history  []engine.Token
	cands    []candidate
	seen     map[engine.Token]struct{}
}

// New returns a pipeline. tok is used by the grammar filter to map tokens to
// text and to recognise end-of-generation tokens.
func New(cfg Config, tok engine.Tokenizer) *Pipeline {
	if cfg.RepeatLastN <= 0 {
		cfg.RepeatLastN = 64
	}
	pcg := rand.NewPCG(uint64(cfg.Seed), 0x9e3779b97f4a7c15)
	return &Pipeline{cfg: cfg, tok: tok, pcg: pcg, rng: rand.New(pcg), seen: make(map[engine.Token]struct{})}
}

func (p *Pipeline) Config() Config { return p.cfg }

// SetTemperature changes the temperature used by subsequent samples.
func (p *Pipeline) SetTemperature(t float32) { p.cfg.Temperature = t }

// SetGrammar attaches a grammar cursor. The pipeline takes ownership of h;
// pass a clone if the caller keeps using its own cursor.
func (p *Pipeline) SetGrammar(h *grammar.Handle) { p.grammar = h }

func (p *Pipeline) Grammar() *grammar.Handle { return p.grammar }

// SetGuidance blends every sample with src's logits at weight w. A nil src
// or a zero weight disables the stage.
func (p *Pipeline) SetGuidance(src GuidanceSource, w float32) {
	p.guidance, p.weight = src, w
}

// History returns the accepted tokens, oldest first.
func (p *Pipeline) History() []engine.Token { return slices.Clone(p.history) }

// Reset clears accepted history and rewinds the grammar cursor.
func (p *Pipeline) Reset() {
	p.history = p.history[:0]
	if p.grammar != nil {
		p.grammar.Reset()
	}
}

// Clone returns an independent pipeline with the same configuration, history
// and random state.
func (p *Pipeline) Clone() (*Pipeline, error) {
	if p.grammar != nil || p.guidance != nil {
		return nil, ErrCloneNotSupported
	}
	pcg := *p.pcg
	return &Pipeline{
		cfg:     p.cfg,
		tok:     p.tok,
		pcg:     &pcg,
		rng:     rand.New(&pcg),
		history: slices.Clone(p.history),
		seen:    make(map[engine.Token]struct{}),
	}, nil
}

// Sample chooses a token from logits. logits is not modified. Grammar state
// only moves on Accept.
func (p *Pipeline) Sample(logits []float32) (engine.Token, error) {
	work := slices.Clone(logits)
	if p.guidance != nil && p.weight != 0 {
		u, err := p.guidance.GuidanceLogits()
		if err != nil {
			return 0, fmt.Errorf("sampling: guidance logits: %w", err)
		}
		if len(u) != len(work) {
			return 0, fmt.Errorf("sampling: guidance vocab %d != %d", len(u), len(work))
		}
		work = Blend(work, u, p.weight)
	}
	if p.grammar != nil {
		p.filterGrammar(work)
	}
	p.penalize(work)
	return p.draw(work)
}

// Accept records tok as chosen and advances the grammar cursor.
func (p *Pipeline) Accept(tok engine.Token) error {
	p.history = append(p.history, tok)
	if p.grammar == nil || p.tok.IsEndOfGeneration(tok) {
		return nil
	}
	if err := p.grammar.Accept(p.tok.Piece(tok)); err != nil {
		return fmt.Errorf("sampling: accept token %d: %w", tok, err)
	}
	return nil
}

func (p *Pipeline) filterGrammar(logits []float32) {
	negInf := float32(math.Inf(-1))
	end := p.grammar.AllowsEnd()
	for i := range logits {
		if math.IsInf(float64(logits[i]), -1) {
			continue
		}
		t := engine.Token(i)
		if p.tok.IsEndOfGeneration(t) {
			if !end {
				logits[i] = negInf
			}
			continue
		}
		piece := p.tok.Piece(t)
		if piece == "" || !p.grammar.Allows(piece) {
			logits[i] = negInf
		}
	}
}

// penalize divides positive logits and multiplies negative ones for every
// token in the recent history window.
func (p *Pipeline) penalize(logits []float32) {
	pen := p.cfg.RepeatPenalty
	if pen <= 0 || pen == 1 || len(p.history) == 0 {
		return
	}
	clear(p.seen)
	start := max(len(p.history)-p.cfg.RepeatLastN, 0)
	for _, t := range p.history[start:] {
		if int(t) < 0 || int(t) >= len(logits) {
			continue
		}
		if _, dup := p.seen[t]; dup {
			continue
		}
		p.seen[t] = struct{}{}
		if logits[t] > 0 {
			logits[t] /= pen
		} else {
			logits[t] *= pen
		}
	}
}

func (p *Pipeline) draw(logits []float32) (engine.Token, error) {
	temp := max(p.cfg.Temperature, minTemperature)
	cands := p.cands[:0]
	for i, l := range logits {
		if math.IsInf(float64(l), -1) || math.IsNaN(float64(l)) {
			continue
		}
		cands = append(cands, candidate{tok: engine.Token(i), logit: l / temp})
	}
	p.cands = cands
	if len(cands) == 0 {
		return 0, ErrNoCandidates
	}
	slices.SortStableFunc(cands, func(a, b candidate) int {
		switch {
		case a.logit > b.logit:
			return -1
		case a.logit < b.logit:
			return 1
		}
		return 0
	})
	if k := p.cfg.TopK; k > 0 && k < len(cands) {
		cands = cands[:k]
	}
	softmax(cands)
	if tp := float64(p.cfg.TopP); tp > 0 && tp < 1 {
		var c float64
		for i := range cands {
			c += cands[i].p
			if c >= tp {
				cands = cands[:i+1]
				break
			}
		}
		renormalize(cands)
	}
	if mp := float64(p.cfg.MinP); mp > 0 {
		threshold := cands[0].p * mp
		n := 0
		for _, c := range cands {
			if c.p >= threshold {
				cands[n] = c
				n++
			}
		}
		cands = cands[:n]
		renormalize(cands)
	}
	r := p.rng.Float64()
	var c float64
	for _, cand := range cands {
		c += cand.p
		if r < c {
			return cand.tok, nil
		}
	}
	return cands[len(cands)-1].tok, nil
}

func softmax(cands []candidate) {
	maxv := float64(cands[0].logit)
	var sum float64
	for i := range cands {
		e := math.Exp(float64(cands[i].logit) - maxv)
		cands[i].p = e
		sum += e
	}
	for i := range cands {
		cands[i].p /= sum
	}
}

func renormalize(cands []candidate) {
	var sum float64
	for _, c := range cands {
		sum += c.p
	}
	if sum == 0 {
		return
	}
	for i := range cands {
		cands[i].p /= sum
	}
}

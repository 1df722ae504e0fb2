package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"batchd/internal/batch"
	"batchd/internal/engine"
	"batchd/internal/grammar"
	"batchd/internal/sampling"
)

// Defaults applied when corresponding LocalConfig or Request fields are unset.
const (
	defaultMaxTokens = 256
)

// LocalConfig wires a Local generator.
type LocalConfig struct {
	// NewEngine returns a fresh engine for each call.
	NewEngine func() engine.Engine
	Tokenizer engine.Tokenizer
	// Grammars is shared with other consumers; nil creates a private cache.
	Grammars *grammar.Cache
	Sampling sampling.Config
	Logger   zerolog.Logger
}

// Local generates on its own executor, independent of any shared batch.
type Local struct {
	newEngine func() engine.Engine
	tok       engine.Tokenizer
	grammars  *grammar.Cache
	sampling  sampling.Config
	log       zerolog.Logger
}

func NewLocal(cfg LocalConfig) *Local {
	g := cfg.Grammars
	if g == nil {
		g = grammar.NewCache(cfg.Logger)
	}
	return &Local{newEngine: cfg.NewEngine, tok: cfg.Tokenizer, grammars: g, sampling: cfg.Sampling, log: cfg.Logger}
}

// Generate runs one constrained completion. Generation ends at an
// end-of-generation token, the first stop sequence, or MaxTokens.
func (l *Local) Generate(ctx context.Context, req Request) (Completion, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Completion{}, ErrEmptyPrompt
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	cfg := l.sampling
	cfg.Temperature = req.Temperature
	if req.Seed != 0 {
		cfg.Seed = req.Seed
	}
	p := sampling.New(cfg, l.tok)
	if req.Grammar != "" {
		h, err := l.grammars.Parse(req.Grammar)
		if err != nil {
			return Completion{}, fmt.Errorf("llm: grammar: %w", err)
		}
		p.SetGrammar(h)
	}

	x := batch.NewExecutor(l.newEngine(), batch.Options{Logger: l.log})
	conv := x.Create()
	defer conv.Dispose()
	prompt := l.tok.Tokenize(req.Prompt, true)
	if err := conv.Prompt(prompt...); err != nil {
		return Completion{}, err
	}

	stops := newStopMatcher(req.Stop)
	dec := batch.NewDecoder(l.tok)
	var text strings.Builder
	out := Completion{PromptTokens: len(prompt), FinishReason: FinishLength}
	for out.Tokens < maxTokens {
		if err := ctx.Err(); err != nil {
			return Completion{}, err
		}
		if res := x.Infer(); res != engine.DecodeOK {
			return Completion{}, res.Err()
		}
		logits, err := conv.Sample()
		if err != nil {
			return Completion{}, err
		}
		tok, err := p.Sample(logits)
		if err != nil {
			return Completion{}, err
		}
		if l.tok.IsEndOfGeneration(tok) {
			out.FinishReason = FinishEOS
			break
		}
		if err := p.Accept(tok); err != nil {
			return Completion{}, err
		}
		out.Tokens++
		dec.Add(tok)
		from := text.Len()
		text.WriteString(dec.Read())
		if i := stops.find(text.String(), from); i >= 0 {
			s := text.String()[:i]
			text.Reset()
			text.WriteString(s)
			out.FinishReason = FinishStop
			break
		}
		if err := conv.Prompt(tok); err != nil {
			return Completion{}, err
		}
	}
	out.Text = text.String()
	l.log.Debug().Int("tokens", out.Tokens).Str("finish", out.FinishReason).Msg("local generation done")
	return out, nil
}

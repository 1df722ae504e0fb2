package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"batchd/internal/batch"
	"batchd/internal/engine"
	"batchd/internal/grammar"
	"batchd/internal/sampling"
	"batchd/pkg/types"
)

// GuidanceOptions configures CompareGuidance.
type GuidanceOptions struct {
	Executor  *batch.Executor
	Tokenizer engine.Tokenizer
	Grammars  *grammar.Cache
	// Grammar constrains both transcripts; empty selects grammar.Answer.
	Grammar  string
	Positive string
	Negative string
	Weight   float32
	Tokens   int
	Seed     int64
	Logger   zerolog.Logger
}

// CompareGuidance generates the same prompt twice, once steered away from
// the negative prompt by classifier-free guidance and once without, and
// returns both transcripts. Generation stops after Tokens steps or when the
// guided transcript ends.
func CompareGuidance(ctx context.Context, o GuidanceOptions) (types.GuidanceResult, error) {
	if o.Executor == nil || o.Tokenizer == nil || o.Grammars == nil {
		return types.GuidanceResult{}, errors.New("pipeline: executor, tokenizer and grammar cache are required")
	}
	if strings.TrimSpace(o.Positive) == "" || strings.TrimSpace(o.Negative) == "" {
		return types.GuidanceResult{}, errors.New("pipeline: positive and negative prompts are required")
	}
	src := o.Grammar
	if src == "" {
		src = grammar.Answer
	}
	x, tok := o.Executor, o.Tokenizer

	guided := x.Create()
	defer guided.Dispose()
	guidance := x.Create()
	defer guidance.Dispose()
	if err := guided.Prompt(tok.Tokenize(o.Positive, true)...); err != nil {
		return types.GuidanceResult{}, err
	}
	if err := guidance.Prompt(tok.Tokenize(o.Negative, true)...); err != nil {
		return types.GuidanceResult{}, err
	}
	if res := x.Infer(); res != engine.DecodeOK {
		return types.GuidanceResult{}, res.Err()
	}
	unguided, err := guided.Fork()
	if err != nil {
		return types.GuidanceResult{}, err
	}
	defer unguided.Dispose()

	gh, err := o.Grammars.Parse(src)
	if err != nil {
		return types.GuidanceResult{}, err
	}
	uh, err := o.Grammars.Parse(src)
	if err != nil {
		return types.GuidanceResult{}, err
	}
	ucfg := sampling.DefaultConfig()
	ucfg.Seed = o.Seed
	us := sampling.New(ucfg, tok)
	us.SetGrammar(uh)
	gs := sampling.New(sampling.GuidedConfig(o.Seed), tok)
	gs.SetGrammar(gh)
	pair := sampling.NewGuidedPair(guided, guidance)
	pair.Attach(gs, o.Weight)

	udec, gdec := batch.NewDecoder(tok), batch.NewDecoder(tok)
	var utext, gtext strings.Builder
	udone := false
	steps := 0
	for i := 0; i < o.Tokens; i++ {
		if err := ctx.Err(); err != nil {
			return types.GuidanceResult{}, err
		}
		if i != 0 {
			if res := x.Infer(); res != engine.DecodeOK {
				return types.GuidanceResult{}, res.Err()
			}
		}
		if !udone {
			u, err := sampleAccept(us, unguided)
			if err != nil {
				return types.GuidanceResult{}, err
			}
			if tok.IsEndOfGeneration(u) {
				udone = true
			} else {
				udec.Add(u)
				utext.WriteString(udec.Read())
				if err := unguided.Prompt(u); err != nil {
					return types.GuidanceResult{}, err
				}
			}
		}
		g, err := sampleAccept(gs, guided)
		if err != nil {
			return types.GuidanceResult{}, err
		}
		steps++
		if tok.IsEndOfGeneration(g) {
			break
		}
		gdec.Add(g)
		gtext.WriteString(gdec.Read())
		if err := pair.Advance(g); err != nil {
			return types.GuidanceResult{}, err
		}
	}
	o.Logger.Debug().Int("steps", steps).Float32("weight", o.Weight).Msg("guidance comparison done")
	return types.GuidanceResult{
		Unguided: flatten(utext.String()),
		Guided:   flatten(gtext.String()),
		Weight:   o.Weight,
		Tokens:   steps,
	}, nil
}

func sampleAccept(p *sampling.Pipeline, c *batch.Conversation) (engine.Token, error) {
	logits, err := c.Sample()
	if err != nil {
		return 0, err
	}
	t, err := p.Sample(logits)
	if err != nil {
		return 0, err
	}
	return t, p.Accept(t)
}

// flatten replaces line endings with spaces for single-line display.
func flatten(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}

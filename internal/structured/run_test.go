package structured

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"batchd/internal/engine"
	"batchd/internal/engine/mem"
	"batchd/internal/grammar"
	"batchd/internal/llm"
	"batchd/internal/sampling"
)

// scriptedGen returns outputs in order, repeating the last one.
type scriptedGen struct {
	outputs []string
	errs    []error
	temps   []float32
	reqs    []llm.Request
}

func (g *scriptedGen) Generate(_ context.Context, req llm.Request) (llm.Completion, error) {
	n := len(g.reqs)
	g.reqs = append(g.reqs, req)
	g.temps = append(g.temps, req.Temperature)
	if n < len(g.errs) && g.errs[n] != nil {
		return llm.Completion{}, g.errs[n]
	}
	out := g.outputs[min(n, len(g.outputs)-1)]
	return llm.Completion{Text: out, Tokens: len(out)}, nil
}

func policy() Policy {
	return Policy{BaseTemperature: 0.5, EscalatedTemperature: 1.3, MaxRetries: 4, MaxTokens: 64, Stop: []string{"Q:"}}
}

func TestAlwaysFailingValidatorExhaustsBudget(t *testing.T) {
	gen := &scriptedGen{outputs: []string{`{"topic_sentence":"x","main_points":[]}`}}
	r := NewRunner(gen, policy(), Options{Logger: zerolog.Nop()})
	req := Request[Outline]{Name: "outline", Prompt: "p", Validate: func(Outline) error { return errors.New("never") }}
	res, err := Run(context.Background(), r, req)
	if !IsExhausted(err) {
		t.Fatalf("expected exhausted error, got %v", err)
	}
	var ex *ExhaustedError
	if !errors.As(err, &ex) || ex.Attempts != 4 {
		t.Fatalf("expected 4 attempts, got %v", err)
	}
	if len(gen.temps) != 4 || len(res.Attempts) != 4 {
		t.Fatalf("generator called %d times, %d attempts recorded", len(gen.temps), len(res.Attempts))
	}
	if gen.temps[0] != 0.5 {
		t.Fatalf("attempt 0 must use base temperature, got %v", gen.temps[0])
	}
	for i, tmp := range gen.temps[1:] {
		if tmp != 1.3 {
			t.Fatalf("attempt %d must use escalated temperature, got %v", i+1, tmp)
		}
	}
	seeds := map[int64]bool{}
	for _, req := range gen.reqs {
		seeds[req.Seed] = true
	}
	if len(seeds) != 4 || gen.reqs[0].Seed != 1 {
		t.Fatalf("every attempt needs its own seed: %+v", gen.reqs)
	}
	if gen.reqs[0].MaxTokens != 64 || gen.reqs[0].Stop[0] != "Q:" {
		t.Fatalf("policy not forwarded: %+v", gen.reqs[0])
	}
}

func TestSucceedsOnAttemptK(t *testing.T) {
	bad := `{"topic_sentence":"x","main_points":["a","b"]}`
	good := `{"topic_sentence":"x","main_points":["a","b","c"]}`
	gen := &scriptedGen{outputs: []string{bad, "not json", bad, good, bad}}
	var seen []Attempt
	r := NewRunner(gen, Policy{MaxRetries: 10}, Options{OnAttempt: func(a Attempt) { seen = append(seen, a) }})
	res, err := Run(context.Background(), r, OutlineRequest("p"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(gen.reqs) != 4 || len(res.Attempts) != 4 || len(seen) != 4 {
		t.Fatalf("expected exactly 4 attempts, got %d", len(gen.reqs))
	}
	if res.Value.TopicSentence != "x" || len(res.Value.MainPoints) != 3 {
		t.Fatalf("unexpected value %+v", res.Value)
	}
	if seen[3].Err != nil || seen[0].Err == nil {
		t.Fatalf("attempt verdicts wrong: %+v", seen)
	}
	if gen.reqs[0].Grammar != OutlineGrammar {
		t.Fatalf("grammar not forwarded")
	}
}

func TestOutlineValidation(t *testing.T) {
	two, err := Parse[Outline](`{"topic_sentence":"x","main_points":["a","b"]}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var ve *ValidationError
	if err := two.Validate(); !errors.As(err, &ve) || ve.Field != "main_points" {
		t.Fatalf("two entries must fail on main_points, got %v", err)
	}
	three, err := Parse[Outline](`{"topic_sentence":"x","main_points":["a","b","c"]}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := three.Validate(); err != nil {
		t.Fatalf("three entries must pass: %v", err)
	}
	blank := Outline{TopicSentence: "x", MainPoints: []string{"a", " ", "c"}}
	if err := blank.Validate(); err == nil {
		t.Fatalf("blank entry must fail")
	}
	if err := (MainPoint{SupportingPoints: []string{"a", "b", "c"}}).Validate(); err == nil {
		t.Fatalf("empty summary must fail")
	}
}

func TestParseExtractsObject(t *testing.T) {
	v, err := Parse[MainPoint]("Answer: {\"main_point_summary\":\"s\",\"supporting_points\":[\"a\"]}\nQ")
	if err != nil || v.MainPointSummary != "s" {
		t.Fatalf("parse: %+v %v", v, err)
	}
	if _, err := Parse[MainPoint]("nothing here"); !errors.Is(err, ErrNoJSONObject) {
		t.Fatalf("expected ErrNoJSONObject, got %v", err)
	}
}

func TestGenerationErrorsCountAsAttempts(t *testing.T) {
	good := `{"main_point_summary":"s","supporting_points":["a","b","c"]}`
	gen := &scriptedGen{outputs: []string{good}, errs: []error{engine.DecodeError{Code: engine.DecodeNoKVSlot}}}
	r := NewRunner(gen, policy(), Options{})
	res, err := Run(context.Background(), r, MainPointRequest(1, "p"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Attempts) != 2 || res.Attempts[0].Err == nil {
		t.Fatalf("decode failure should consume one attempt: %+v", res.Attempts)
	}
}

func TestCancellationStopsImmediately(t *testing.T) {
	gen := &scriptedGen{outputs: []string{"x"}, errs: []error{context.Canceled}}
	r := NewRunner(gen, policy(), Options{})
	if _, err := Run(context.Background(), r, OutlineRequest("p")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(gen.reqs) != 1 {
		t.Fatalf("cancelled run retried %d times", len(gen.reqs))
	}
}

func TestDefaultsApplied(t *testing.T) {
	r := NewRunner(&scriptedGen{outputs: []string{"x"}}, Policy{}, Options{})
	p := r.Policy()
	if p.MaxRetries != DefaultMaxRetries || p.BaseTemperature == p.EscalatedTemperature || len(p.Stop) == 0 {
		t.Fatalf("defaults not applied: %+v", p)
	}
}

func TestGrammarsCompile(t *testing.T) {
	for _, src := range []string{OutlineGrammar, MainPointGrammar} {
		if _, err := grammar.Compile(src); err != nil {
			t.Fatalf("compile: %v", err)
		}
	}
}

func TestLocalGeneratorEndToEnd(t *testing.T) {
	answer := `{"topic_sentence": "Go", "main_points": ["a", "b", "c"]}`
	gen := llm.NewLocal(llm.LocalConfig{
		NewEngine: func() engine.Engine { return mem.New(mem.Options{Model: mem.Scripted(answer)}) },
		Tokenizer: mem.Tokenizer{},
		Sampling:  sampling.Config{TopK: 1},
	})
	r := NewRunner(gen, policy(), Options{})
	res, err := Run(context.Background(), r, OutlineRequest("Outline the answer."))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Attempts) != 1 || res.Value.TopicSentence != "Go" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestEscalatedRetriesVaryOnLocalGenerator(t *testing.T) {
	gen := llm.NewLocal(llm.LocalConfig{
		NewEngine: func() engine.Engine { return mem.New(mem.Options{Model: mem.Hash(3)}) },
		Tokenizer: mem.Tokenizer{},
		Sampling:  sampling.DefaultConfig(),
		Logger:    zerolog.Nop(),
	})
	r := NewRunner(gen, Policy{MaxRetries: 5, MaxTokens: 48, Seed: 7}, Options{})
	req := Request[Outline]{
		Name:     "outline",
		Prompt:   "Outline the answer.",
		Grammar:  OutlineGrammar,
		Validate: func(Outline) error { return errors.New("never") },
	}
	res, err := Run(context.Background(), r, req)
	if !IsExhausted(err) {
		t.Fatalf("expected exhausted error, got %v", err)
	}
	texts := map[string]bool{}
	for _, a := range res.Attempts[1:] {
		texts[a.Text] = true
	}
	if len(texts) < 2 {
		t.Fatalf("escalated retries repeated one completion: %q", res.Attempts[1].Text)
	}
}

package sampling

import (
	"errors"
	"math"
	"slices"
	"testing"

	"batchd/internal/batch"
	"batchd/internal/engine"
	"batchd/internal/engine/mem"
	"batchd/internal/grammar"

	"github.com/rs/zerolog"
)

var tok mem.Tokenizer

func greedy() Config { return Config{Temperature: 1, TopK: 1} }

type fakeSeq struct {
	logits   []float32
	prompted []engine.Token
	disposed bool
}

func (f *fakeSeq) Prompt(tokens ...engine.Token) error {
	f.prompted = append(f.prompted, tokens...)
	return nil
}
func (f *fakeSeq) Sample() ([]float32, error) { return f.logits, nil }
func (f *fakeSeq) Disposed() bool             { return f.disposed }

func TestBlend(t *testing.T) {
	g := []float32{1, 2, 3}
	u := []float32{0, 2, 5}
	got := Blend(g, u, 0.5)
	want := []float32{1.5, 2, 2}
	if !slices.Equal(got, want) {
		t.Fatalf("blend got %v want %v", got, want)
	}
	if z := Blend(g, u, 0); !slices.Equal(z, g) {
		t.Fatalf("w=0 must return g exactly, got %v", z)
	}
	neg := float32(math.Inf(-1))
	if m := Blend([]float32{neg, 1}, []float32{0, 1}, 2); !math.IsInf(float64(m[0]), -1) {
		t.Fatalf("masked token must stay masked, got %v", m[0])
	}
	if m := Blend([]float32{0.5, 1}, []float32{neg, 1}, 2); m[0] != 0.5 {
		t.Fatalf("token masked only in guidance must pass through, got %v", m[0])
	}
}

func TestGuidanceMaskedTokenStillSamples(t *testing.T) {
	guided := &fakeSeq{logits: []float32{0, 1, 0.9}}
	guidance := &fakeSeq{logits: []float32{float32(math.Inf(-1)), 2, 0}}
	p := New(Config{Seed: 1, Temperature: 1, TopK: 3}, tok)
	NewGuidedPair(guided, guidance).Attach(p, 1)
	for range 20 {
		got, err := p.Sample(guided.logits)
		if err != nil || got < 0 || got > 2 {
			t.Fatalf("sample = %d, %v", got, err)
		}
	}
}

func TestGuidanceChangesChoice(t *testing.T) {
	guided := &fakeSeq{logits: []float32{0, 1, 0.9}}
	guidance := &fakeSeq{logits: []float32{0, 2, 0}}
	pair := NewGuidedPair(guided, guidance)

	plain := New(greedy(), tok)
	if got, _ := plain.Sample(guided.logits); got != 1 {
		t.Fatalf("unguided argmax should be 1, got %d", got)
	}
	p := New(greedy(), tok)
	pair.Attach(p, 1)
	got, err := pair.Step(p)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if got != 2 {
		t.Fatalf("guided choice should be 2, got %d", got)
	}
	if !slices.Equal(guided.prompted, []engine.Token{2}) || !slices.Equal(guidance.prompted, []engine.Token{2}) {
		t.Fatalf("both sequences must receive the chosen token: %v %v", guided.prompted, guidance.prompted)
	}
}

func TestAdvanceIsAllOrNothing(t *testing.T) {
	guided := &fakeSeq{}
	guidance := &fakeSeq{disposed: true}
	pair := NewGuidedPair(guided, guidance)
	if err := pair.Advance(5); !errors.Is(err, ErrPairDisposed) {
		t.Fatalf("expected ErrPairDisposed, got %v", err)
	}
	if len(guided.prompted) != 0 {
		t.Fatalf("guided side advanced alone")
	}
}

func TestCloneFailsFast(t *testing.T) {
	p := New(DefaultConfig(), tok)
	h, err := grammar.New(`root ::= "a"`)
	if err != nil {
		t.Fatal(err)
	}
	p.SetGrammar(h)
	if _, err := p.Clone(); !errors.Is(err, ErrCloneNotSupported) {
		t.Fatalf("expected ErrCloneNotSupported with grammar, got %v", err)
	}
	q := New(DefaultConfig(), tok)
	q.SetGuidance(NewGuidedPair(&fakeSeq{}, &fakeSeq{}), 1)
	if _, err := q.Clone(); !errors.Is(err, ErrCloneNotSupported) {
		t.Fatalf("expected ErrCloneNotSupported with guidance, got %v", err)
	}
}

func TestCloneReplaysRandomState(t *testing.T) {
	p := New(Config{Seed: 3, Temperature: 1.5}, tok)
	logits := []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}
	if _, err := p.Sample(logits); err != nil {
		t.Fatal(err)
	}
	c, err := p.Clone()
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		a, _ := p.Sample(logits)
		b, _ := c.Sample(logits)
		if a != b {
			t.Fatalf("draw %d diverged: %d vs %d", i, a, b)
		}
	}
}

func TestGrammarFilterAndAccept(t *testing.T) {
	h, err := grammar.New(`root ::= "ab"`)
	if err != nil {
		t.Fatal(err)
	}
	p := New(Config{Temperature: 1}, tok)
	p.SetGrammar(h)
	flat := make([]float32, mem.VocabSize)
	var out []engine.Token
	for i := 0; i < 3; i++ {
		got, err := p.Sample(flat)
		if err != nil {
			t.Fatalf("sample %d: %v", i, err)
		}
		if !h.AllowsEnd() && tok.IsEndOfGeneration(got) {
			t.Fatalf("end of generation offered before the grammar completed")
		}
		if err := p.Accept(got); err != nil {
			t.Fatalf("accept: %v", err)
		}
		out = append(out, got)
	}
	if s := tok.Detokenize(out); s != "ab" || !tok.IsEndOfGeneration(out[2]) {
		t.Fatalf("expected ab then EOS, got %q %v", s, out)
	}
}

func TestFilterDoesNotMoveCursor(t *testing.T) {
	h, _ := grammar.New(`root ::= "x" "y"`)
	p := New(greedy(), tok)
	p.SetGrammar(h)
	logits := make([]float32, mem.VocabSize)
	for i := 0; i < 3; i++ {
		if got, _ := p.Sample(logits); got != mem.TokenOf('x') {
			t.Fatalf("sampling without accept must not advance, got %d", got)
		}
	}
}

func TestRepeatPenalty(t *testing.T) {
	p := New(Config{Temperature: 1, TopK: 1, RepeatPenalty: 2}, tok)
	logits := []float32{2, 1.9, -1}
	if got, _ := p.Sample(logits); got != 0 {
		t.Fatalf("expected 0 before history, got %d", got)
	}
	if err := p.Accept(0); err != nil {
		t.Fatal(err)
	}
	if got, _ := p.Sample(logits); got != 1 {
		t.Fatalf("penalised token still chosen, got %d", got)
	}
	if logits[0] != 2 {
		t.Fatalf("caller's logits were modified")
	}
}

func TestTruncationStages(t *testing.T) {
	logits := []float32{10, 0, 0, 0, 0}
	for _, cfg := range []Config{
		{Seed: 1, Temperature: 1, TopP: 0.5},
		{Seed: 2, Temperature: 1, MinP: 0.1},
	} {
		p := New(cfg, tok)
		for i := 0; i < 20; i++ {
			if got, _ := p.Sample(logits); got != 0 {
				t.Fatalf("%+v: truncation let through %d", cfg, got)
			}
		}
	}
	p := New(Config{Temperature: 0}, tok)
	if got, _ := p.Sample([]float32{0, 0.5, 0.4}); got != 1 {
		t.Fatalf("zero temperature should behave greedily, got %d", got)
	}
}

func TestNoCandidates(t *testing.T) {
	neg := float32(math.Inf(-1))
	p := New(DefaultConfig(), tok)
	if _, err := p.Sample([]float32{neg, neg}); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}
}

func TestGuidedPairOverConversations(t *testing.T) {
	eng := mem.New(mem.Options{})
	x := batch.NewExecutor(eng, batch.Options{Logger: zerolog.Nop()})
	guided, guidance := x.Create(), x.Create()
	if err := guided.Prompt(tok.Tokenize("positive: ", false)...); err != nil {
		t.Fatal(err)
	}
	if err := guidance.Prompt(tok.Tokenize("negative: ", false)...); err != nil {
		t.Fatal(err)
	}
	if res := x.Infer(); res != engine.DecodeOK {
		t.Fatalf("infer: %v", res)
	}
	pair := NewGuidedPair(guided, guidance)
	p := New(GuidedConfig(9), tok)
	pair.Attach(p, 2)
	for i := 0; i < 4; i++ {
		if _, err := pair.Step(p); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if !guided.RequiresInference() || !guidance.RequiresInference() {
			t.Fatalf("both sides must be pending after a step")
		}
		if res := x.Infer(); res != engine.DecodeOK {
			t.Fatalf("infer: %v", res)
		}
	}
	if guided.TokenCount() != guidance.TokenCount() || guided.TokenCount() != 14 {
		t.Fatalf("pair drifted: %d vs %d", guided.TokenCount(), guidance.TokenCount())
	}
}

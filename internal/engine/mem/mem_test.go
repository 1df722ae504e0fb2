package mem

import (
	"path/filepath"
	"testing"

	"batchd/internal/engine"
)

func TestDecodeTracksCells(t *testing.T) {
	e := New(Options{Model: Scripted("ok")})
	var tok Tokenizer
	out, res := e.Decode([]engine.BatchEntry{
		{Seq: 0, Tokens: tok.Tokenize("hello", false)},
		{Seq: 1, Tokens: tok.Tokenize("hi", false)},
	})
	if res != engine.DecodeOK {
		t.Fatalf("decode: %v", res)
	}
	if len(out) != 2 || len(out[0]) != VocabSize {
		t.Fatalf("unexpected logits shape: %d", len(out))
	}
	if got := e.KVCacheCountCells(); got != 7 {
		t.Fatalf("expected 7 cells got %d", got)
	}
	e.KVCacheSeqCopy(0, 2, 5)
	if cells, toks := e.KVCacheCountCells(), e.KVCacheCountTokens(); cells != 7 || toks != 12 {
		t.Fatalf("fork should share cells: cells=%d tokens=%d", cells, toks)
	}
	e.KVCacheSeqRemove(0)
	if got := e.KVCacheCountCells(); got != 7 {
		t.Fatalf("child should take over shared cells, got %d", got)
	}
}

func TestDecodeCapacity(t *testing.T) {
	e := New(Options{Capacity: 4})
	_, res := e.Decode([]engine.BatchEntry{{Seq: 0, Tokens: []engine.Token{1, 2, 3, 4, 5}}})
	if res != engine.DecodeNoKVSlot {
		t.Fatalf("expected no_kv_slot got %v", res)
	}
	if e.KVCacheCountTokens() != 0 {
		t.Fatalf("failed decode must not touch the cache")
	}
}

func TestDecodeRejectsPositionMismatch(t *testing.T) {
	e := New(Options{})
	if _, res := e.Decode([]engine.BatchEntry{{Seq: 0, Tokens: []engine.Token{1}}}); res != engine.DecodeOK {
		t.Fatalf("decode: %v", res)
	}
	if _, res := e.Decode([]engine.BatchEntry{{Seq: 0, Pos: 3, Tokens: []engine.Token{1}}}); res != engine.DecodeComputeFailed {
		t.Fatalf("expected compute failure got %v", res)
	}
}

func TestFailNext(t *testing.T) {
	e := New(Options{})
	e.FailNext(engine.DecodeNoKVSlot, 1)
	batch := []engine.BatchEntry{{Seq: 0, Tokens: []engine.Token{1}}}
	if _, res := e.Decode(batch); res != engine.DecodeNoKVSlot {
		t.Fatalf("expected injected failure got %v", res)
	}
	if _, res := e.Decode(batch); res != engine.DecodeOK {
		t.Fatalf("expected recovery got %v", res)
	}
}

func TestScriptedModel(t *testing.T) {
	m := Scripted("ab")
	var tok Tokenizer
	hist := tok.Tokenize("q", false)
	if l := m(Context{History: hist, PromptLen: 1}); argmax(l) != TokenOf('a') {
		t.Fatalf("expected 'a'")
	}
	hist = append(hist, TokenOf('a'), TokenOf('b'))
	if l := m(Context{History: hist, PromptLen: 1}); argmax(l) != EOS {
		t.Fatalf("expected end of sequence")
	}
}

func TestSaveLoadState(t *testing.T) {
	e := New(Options{})
	if _, res := e.Decode([]engine.BatchEntry{{Seq: 3, Tokens: []engine.Token{1, 2}}}); res != engine.DecodeOK {
		t.Fatalf("decode: %v", res)
	}
	p := filepath.Join(t.TempDir(), "state.json")
	if err := e.SaveState(p); err != nil {
		t.Fatalf("save: %v", err)
	}
	e.KVCacheClear()
	if e.KVCacheCountTokens() != 0 {
		t.Fatalf("clear failed")
	}
	if err := e.LoadState(p); err != nil {
		t.Fatalf("load: %v", err)
	}
	if e.KVCacheCountTokens() != 2 {
		t.Fatalf("expected 2 tokens after load got %d", e.KVCacheCountTokens())
	}
}

func TestTokenizerRoundTrip(t *testing.T) {
	var tok Tokenizer
	ids := tok.Tokenize("{\"a\":1}", false)
	if got := tok.Detokenize(append(ids, EOS)); got != "{\"a\":1}" {
		t.Fatalf("round trip mismatch: %q", got)
	}
	if !tok.IsEndOfGeneration(EOS) || tok.IsEndOfGeneration(ids[0]) {
		t.Fatalf("end of generation predicate wrong")
	}
}

func argmax(x []float32) engine.Token {
	best := 0
	for i := range x {
		if x[i] > x[best] {
			best = i
		}
	}
	return engine.Token(best)
}

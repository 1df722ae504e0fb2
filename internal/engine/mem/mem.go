// Package mem is an in-process reference implementation of engine.Engine and
// engine.Tokenizer. Logits come from a pluggable Model callback so tests and
// dry runs get deterministic, scriptable output without a real network.
package mem

import (
	"fmt"
	"os"
	"sync"

	json "github.com/goccy/go-json"

	"batchd/internal/engine"
)

// Context is what a Model sees when asked for the next-token logits.
type Context struct {
	Seq       engine.SeqID
	History   []engine.Token
	PromptLen int
}

// Generated returns the tokens produced after the first decoded chunk.
func (c Context) Generated() []engine.Token {
	if c.PromptLen > len(c.History) {
		return nil
	}
	return c.History[c.PromptLen:]
}

// Model produces VocabSize logits for the last position of a sequence.
type Model func(c Context) []float32

// Options configures an Engine. Zero values select defaults.
type Options struct {
	// Capacity is the number of KV cells available; 0 means unlimited.
	Capacity int
	Model    Model
}

type sequence struct {
	Tokens    []engine.Token `json:"tokens"`
	PromptLen int            `json:"prompt_len"`
	Shared    int            `json:"shared"`
	Parent    engine.SeqID   `json:"parent"`
	HasParent bool           `json:"has_parent"`
}

// Engine is a single-process engine.Engine. It is safe for concurrent use,
// although batchd only drives it from one goroutine.
type Engine struct {
	mu       sync.Mutex
	capacity int
	model    Model
	seqs     map[engine.SeqID]*sequence

	failCode  engine.DecodeResult
	failCount int

	decodes int
	defrags int
	updates int
}

// New constructs an Engine.
func New(opts Options) *Engine {
	m := opts.Model
	if m == nil {
		m = Hash(0)
	}
	return &Engine{capacity: opts.Capacity, model: m, seqs: make(map[engine.SeqID]*sequence)}
}

func (e *Engine) VocabSize() int { return VocabSize }

// FailNext makes the next n decodes return code without touching the cache.
func (e *Engine) FailNext(code engine.DecodeResult, n int) {
	e.mu.Lock()
	e.failCode, e.failCount = code, n
	e.mu.Unlock()
}

func (e *Engine) cellsLocked() int {
	n := 0
	for _, s := range e.seqs {
		n += len(s.Tokens) - s.Shared
	}
	return n
}

func (e *Engine) Decode(batch []engine.BatchEntry) ([][]float32, engine.DecodeResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.decodes++
	if e.failCount > 0 {
		e.failCount--
		return nil, e.failCode
	}
	need := 0
	for _, be := range batch {
		if len(be.Tokens) == 0 {
			return nil, engine.DecodeComputeFailed
		}
		if s, ok := e.seqs[be.Seq]; ok && be.Pos != len(s.Tokens) {
			return nil, engine.DecodeComputeFailed
		}
		need += len(be.Tokens)
	}
	if e.capacity > 0 && e.cellsLocked()+need > e.capacity {
		return nil, engine.DecodeNoKVSlot
	}
	out := make([][]float32, len(batch))
	for i, be := range batch {
		s, ok := e.seqs[be.Seq]
		if !ok {
			s = &sequence{}
			e.seqs[be.Seq] = s
		}
		if len(s.Tokens) == 0 {
			s.PromptLen = len(be.Tokens)
		}
		s.Tokens = append(s.Tokens, be.Tokens...)
		hist := make([]engine.Token, len(s.Tokens))
		copy(hist, s.Tokens)
		logits := e.model(Context{Seq: be.Seq, History: hist, PromptLen: s.PromptLen})
		if len(logits) != VocabSize {
			return nil, engine.DecodeComputeFailed
		}
		out[i] = logits
	}
	return out, engine.DecodeOK
}

func (e *Engine) KVCacheCountCells() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cellsLocked()
}

func (e *Engine) KVCacheCountTokens() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, s := range e.seqs {
		n += len(s.Tokens)
	}
	return n
}

func (e *Engine) KVCacheDefrag() {
	e.mu.Lock()
	e.defrags++
	e.mu.Unlock()
}

func (e *Engine) KVCacheUpdate() {
	e.mu.Lock()
	e.updates++
	e.mu.Unlock()
}

func (e *Engine) KVCacheClear() {
	e.mu.Lock()
	e.seqs = make(map[engine.SeqID]*sequence)
	e.mu.Unlock()
}

func (e *Engine) KVCacheSeqCopy(src, dst engine.SeqID, n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.seqs[src]
	if !ok {
		return
	}
	n = min(n, len(s.Tokens))
	toks := make([]engine.Token, n)
	copy(toks, s.Tokens[:n])
	e.seqs[dst] = &sequence{Tokens: toks, PromptLen: s.PromptLen, Shared: n, Parent: src, HasParent: true}
}

func (e *Engine) KVCacheSeqRemove(seq engine.SeqID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.seqs[seq]; !ok {
		return
	}
	delete(e.seqs, seq)
	for _, s := range e.seqs {
		if s.HasParent && s.Parent == seq {
			// the child now owns the cells it shared
			s.Shared, s.HasParent = 0, false
		}
	}
}

// Maintenance reports how many defrag and update calls were made.
func (e *Engine) Maintenance() (defrags, updates int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.defrags, e.updates
}

// Decodes reports the number of Decode calls, including failed ones.
func (e *Engine) Decodes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.decodes
}

type snapshot struct {
	Seqs map[engine.SeqID]*sequence `json:"seqs"`
}

func (e *Engine) SaveState(path string) error {
	e.mu.Lock()
	b, err := json.Marshal(snapshot{Seqs: e.seqs})
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

func (e *Engine) LoadState(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var snap snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	if snap.Seqs == nil {
		snap.Seqs = make(map[engine.SeqID]*sequence)
	}
	e.mu.Lock()
	e.seqs = snap.Seqs
	e.mu.Unlock()
	return nil
}

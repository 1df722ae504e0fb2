package batch

import "batchd/internal/engine"

// Conversation is one logical sequence in the executor's shared cache. It
// holds no cache memory itself, only its sequence id and bookkeeping.
type Conversation struct {
	exec *Executor
	seq  engine.SeqID

	// tokens already in the cache
	tokens int
	// tokens appended but not yet evaluated
	queued []engine.Token

	requiresInference bool
	logits            []float32
	evalEpoch         uint64
	disposed          bool
}

// ID returns the conversation's sequence slot.
func (c *Conversation) ID() engine.SeqID { return c.seq }

// TokenCount is the number of tokens evaluated into the cache.
func (c *Conversation) TokenCount() int { return c.tokens }

// RequiresInference reports whether the conversation is waiting on a tick.
func (c *Conversation) RequiresInference() bool { return c.requiresInference }

// Disposed reports whether Dispose has been called.
func (c *Conversation) Disposed() bool { return c.disposed }

// Prompt appends tokens. They are evaluated by the next Infer; current
// logits are invalidated immediately.
func (c *Conversation) Prompt(tokens ...engine.Token) error {
	if c.disposed {
		return ErrDisposed
	}
	if len(tokens) == 0 {
		return ErrEmptyPrompt
	}
	c.queued = append(c.queued, tokens...)
	c.requiresInference = true
	c.logits = nil
	return nil
}

// Sample returns a copy of the logits produced by the most recent
// evaluation. It fails with ErrNotEvaluated after a Prompt that has not been
// evaluated yet.
func (c *Conversation) Sample() ([]float32, error) {
	if c.disposed {
		return nil, ErrDisposed
	}
	if c.requiresInference || c.logits == nil {
		return nil, ErrNotEvaluated
	}
	out := make([]float32, len(c.logits))
	copy(out, c.logits)
	return out, nil
}

// Fork creates a new conversation in a new sequence slot that shares the
// history up to now. Both sides diverge at their next Prompt. The fork
// inherits the current logits, so sampling either side right after the fork
// yields the same distribution.
func (c *Conversation) Fork() (*Conversation, error) {
	if c.disposed {
		return nil, ErrDisposed
	}
	if c.requiresInference {
		return nil, ErrForkPending
	}
	x := c.exec
	f := &Conversation{
		exec:      x,
		seq:       x.claimSeq(),
		tokens:    c.tokens,
		evalEpoch: c.evalEpoch,
	}
	if c.logits != nil {
		f.logits = make([]float32, len(c.logits))
		copy(f.logits, c.logits)
	}
	x.eng.KVCacheSeqCopy(c.seq, f.seq, c.tokens)
	x.convs[f.seq] = f
	return f, nil
}

// Dispose releases the conversation's cells. It is safe to call twice.
func (c *Conversation) Dispose() {
	if c.disposed {
		return
	}
	c.disposed = true
	c.queued = nil
	c.logits = nil
	c.requiresInference = false
	c.exec.eng.KVCacheSeqRemove(c.seq)
	c.exec.forget(c)
}

package batch

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"batchd/internal/engine"
)

// Options tunes an Executor. Zero values select defaults.
type Options struct {
	Logger zerolog.Logger
	// OnTick, if set, is called after every Infer with its result and duration.
	OnTick func(res engine.DecodeResult, tokens int, d time.Duration)
}

// Stats accumulates executor counters over its lifetime.
type Stats struct {
	Ticks           int
	FailedTicks     int
	TokensEvaluated int
	EvalTime        time.Duration
}

// Executor owns an engine and evaluates all pending conversations in one
// shared step per Infer call.
type Executor struct {
	eng     engine.Engine
	log     zerolog.Logger
	onTick  func(engine.DecodeResult, int, time.Duration)
	convs   map[engine.SeqID]*Conversation
	nextSeq engine.SeqID
	epoch   uint64
	inTick  bool
	stats   Stats
}

// NewExecutor wraps eng. The executor assumes exclusive ownership of the
// engine's cache from this point on.
func NewExecutor(eng engine.Engine, opts Options) *Executor {
	return &Executor{
		eng:    eng,
		log:    opts.Logger,
		onTick: opts.OnTick,
		convs:  make(map[engine.SeqID]*Conversation),
	}
}

// Engine returns the wrapped engine.
func (x *Executor) Engine() engine.Engine { return x.eng }

// Epoch is the number of successful ticks so far.
func (x *Executor) Epoch() uint64 { return x.epoch }

// Stats returns a copy of the executor counters.
func (x *Executor) Stats() Stats { return x.stats }

// Create starts a new, empty conversation in a fresh sequence slot.
func (x *Executor) Create() *Conversation {
	c := &Conversation{exec: x, seq: x.claimSeq()}
	x.convs[c.seq] = c
	return c
}

func (x *Executor) claimSeq() engine.SeqID {
	s := x.nextSeq
	x.nextSeq++
	return s
}

// Live returns the number of conversations that have not been disposed.
func (x *Executor) Live() int { return len(x.convs) }

// Pending returns the conversations that need inference, by sequence order.
func (x *Executor) Pending() []*Conversation {
	var out []*Conversation
	for _, c := range x.convs {
		if c.requiresInference {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Infer runs one tick: every conversation whose RequiresInference flag is set
// is evaluated in a single engine decode. On success their logits become
// valid and the flag clears. On failure nothing changes; every pending
// conversation is still pending and the caller decides what to do with it.
func (x *Executor) Infer() engine.DecodeResult {
	pending := x.Pending()
	if len(pending) == 0 {
		return engine.DecodeOK
	}
	batch := make([]engine.BatchEntry, len(pending))
	ntok := 0
	for i, c := range pending {
		batch[i] = engine.BatchEntry{Seq: c.seq, Pos: c.tokens, Tokens: c.queued}
		ntok += len(c.queued)
	}

	x.inTick = true
	start := time.Now()
	logits, res := x.eng.Decode(batch)
	dur := time.Since(start)
	x.inTick = false

	x.stats.Ticks++
	x.stats.EvalTime += dur
	if x.onTick != nil {
		x.onTick(res, ntok, dur)
	}
	if res != engine.DecodeOK {
		x.stats.FailedTicks++
		x.log.Warn().Str("result", res.String()).Int("conversations", len(pending)).Msg("tick failed")
		return res
	}
	x.epoch++
	x.stats.TokensEvaluated += ntok
	for i, c := range pending {
		c.tokens += len(c.queued)
		c.queued = nil
		c.requiresInference = false
		c.logits = logits[i]
		c.evalEpoch = x.epoch
	}
	x.log.Debug().Int("conversations", len(pending)).Int("tokens", ntok).Dur("took", dur).Msg("tick")
	return engine.DecodeOK
}

func (x *Executor) forget(c *Conversation) {
	delete(x.convs, c.seq)
}

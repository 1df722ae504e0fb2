package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"batchd/internal/batch"
	"batchd/internal/engine"
	"batchd/internal/metrics"
	"batchd/internal/sampling"
	"batchd/internal/structured"
	"batchd/pkg/types"
)

// Defaults applied when corresponding Budget fields are unset.
const (
	DefaultRoundTokens     = 128
	DefaultMaxRounds       = 4
	DefaultMaxDecodeErrors = 3
)

// Budget bounds a run. All limits are counters; there is no wall-clock limit.
type Budget struct {
	// RoundTokens is the per-record token budget for one round.
	RoundTokens int
	MaxRounds   int
	// MaxTotalTokens caps tokens sampled across all records; 0 disables it.
	MaxTotalTokens int
	// MaxDecodeErrors is the error count at which a record stays in Error.
	MaxDecodeErrors int
}

func (b Budget) withDefaults() Budget {
	if b.RoundTokens <= 0 {
		b.RoundTokens = DefaultRoundTokens
	}
	if b.MaxRounds <= 0 {
		b.MaxRounds = DefaultMaxRounds
	}
	if b.MaxDecodeErrors <= 0 {
		b.MaxDecodeErrors = DefaultMaxDecodeErrors
	}
	return b
}

// Guidance optionally steers every record away from a negative prompt.
type Guidance struct {
	NegativePrompt string
	Weight         float32
}

func (g Guidance) enabled() bool { return g.Weight != 0 && g.NegativePrompt != "" }

// Options wires a Run.
type Options struct {
	Executor   *batch.Executor
	Tokenizer  engine.Tokenizer
	Structured *structured.Runner
	Sampling   sampling.Config
	Budget     Budget
	Guidance   Guidance
	// SnapshotPath, if set, receives the cache state before the run and is
	// restored after it.
	SnapshotPath string
	Publisher    Publisher
	Logger       zerolog.Logger
}

// Run is the context object for one pipeline execution.
type Run struct {
	id   string
	opts Options
	exec *batch.Executor
	tok  engine.Tokenizer
	sr   *structured.Runner
	bud  Budget
	pub  Publisher
	log  zerolog.Logger

	mu      sync.RWMutex
	records []*Record
	round   int
	sampled int
	started time.Time
	done    bool
}

// NewRun creates one record per question.
func NewRun(opts Options, questions []string) (*Run, error) {
	if opts.Executor == nil || opts.Tokenizer == nil || opts.Structured == nil {
		return nil, errors.New("pipeline: executor, tokenizer and structured runner are required")
	}
	if len(questions) == 0 {
		return nil, errors.New("pipeline: no questions")
	}
	pub := opts.Publisher
	if pub == nil {
		pub = noopPublisher{}
	}
	r := &Run{
		id:   uuid.NewString(),
		opts: opts,
		exec: opts.Executor,
		tok:  opts.Tokenizer,
		sr:   opts.Structured,
		bud:  opts.Budget.withDefaults(),
		pub:  pub,
	}
	r.log = opts.Logger.With().Str("run", r.id).Logger()
	for i, q := range questions {
		r.records = append(r.records, &Record{ID: i, Question: q, State: State{Kind: GatherNotes, Pass: PassNotes}})
	}
	return r, nil
}

func (r *Run) ID() string { return r.id }

// Records returns the run's records. They must not be read while Execute is
// running; use Snapshot for that.
func (r *Run) Records() []*Record { return r.records }

// Snapshot returns the current status; safe to call concurrently with Execute.
func (r *Run) Snapshot() types.RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := types.RunStatus{
		RunID:         r.id,
		Round:         r.round,
		Done:          r.done,
		TokensSampled: r.sampled,
	}
	if !r.started.IsZero() {
		st.StartedUnix = r.started.Unix()
	}
	for _, rec := range r.records {
		st.Records = append(st.Records, rec.status())
	}
	return st
}

// Execute runs rounds until no record can be re-seeded or a budget is spent.
// Per-record failures never abort the run; only context cancellation and
// snapshot I/O errors are returned.
func (r *Run) Execute(ctx context.Context) (types.RunSummary, error) {
	r.mu.Lock()
	r.started = time.Now()
	r.mu.Unlock()
	if p := r.opts.SnapshotPath; p != "" {
		if err := r.exec.SaveState(p); err != nil {
			return types.RunSummary{}, fmt.Errorf("save snapshot: %w", err)
		}
	}

	r.mu.Lock()
	for _, rec := range r.records {
		r.seed(rec, NotesPrompt(rec.Question))
	}
	r.mu.Unlock()

	var runErr error
	for {
		r.mu.Lock()
		r.round++
		r.mu.Unlock()
		if runErr = r.gather(ctx); runErr != nil {
			break
		}
		if runErr = r.outlines(ctx); runErr != nil {
			break
		}
		r.mu.Lock()
		reseeded := r.endRound()
		sampled := r.sampled
		r.mu.Unlock()
		r.maintain()
		metrics.IncRounds()
		r.pub.Publish(Notice{Name: NoticeRoundEnd, RecordID: -1, Fields: map[string]any{"round": r.round, "reseeded": reseeded}})
		r.log.Info().Int("round", r.round).Int("reseeded", reseeded).Int("sampled", sampled).Msg("round finished")
		if reseeded == 0 || r.round >= r.bud.MaxRounds {
			break
		}
		if r.bud.MaxTotalTokens > 0 && sampled >= r.bud.MaxTotalTokens {
			r.log.Info().Int("sampled", sampled).Msg("total token budget spent")
			break
		}
	}

	r.mu.Lock()
	r.done = true
	r.mu.Unlock()
	sum := r.summarize()
	if p := r.opts.SnapshotPath; p != "" {
		if err := r.exec.LoadState(p); err != nil && runErr == nil {
			runErr = fmt.Errorf("load snapshot: %w", err)
		}
	}
	r.pub.Publish(Notice{Name: NoticeRunDone, RecordID: -1, Fields: map[string]any{"rounds": sum.Rounds}})
	return sum, runErr
}

// seed gives rec a fresh conversation primed with prompt and resets the
// per-round counter. Callers hold r.mu.
func (r *Run) seed(rec *Record, prompt string) {
	rec.release()
	rec.RoundTokens = 0
	rec.conv = r.exec.Create()
	cfg := r.opts.Sampling
	cfg.Seed += int64(rec.ID)*7919 + int64(r.round)
	rec.sampler = sampling.New(cfg, r.tok)
	rec.dec = batch.NewDecoder(r.tok)
	if err := rec.conv.Prompt(r.tok.Tokenize(prompt, true)...); err != nil {
		rec.LastError = err.Error()
		r.log.Error().Err(err).Int("record", rec.ID).Msg("seed prompt rejected")
		return
	}
	if g := r.opts.Guidance; g.enabled() {
		rec.guidance = r.exec.Create()
		if err := rec.guidance.Prompt(r.tok.Tokenize(g.NegativePrompt+"\n"+prompt, true)...); err != nil {
			r.log.Warn().Err(err).Int("record", rec.ID).Msg("guidance prompt rejected")
			rec.guidance.Dispose()
			rec.guidance = nil
			return
		}
		rec.pair = sampling.NewGuidedPair(rec.conv, rec.guidance)
		rec.pair.Attach(rec.sampler, g.Weight)
	}
}

// apply runs Next and records the transition. Callers hold r.mu.
func (r *Run) apply(rec *Record, ev Event) {
	next, err := Next(rec.State, ev)
	if err != nil {
		r.log.Error().Err(err).Int("record", rec.ID).Msg("ignored event")
		return
	}
	from := rec.State
	rec.State = next
	metrics.ObserveTransition(from.Kind.String(), next.Kind.String())
	r.pub.Publish(Notice{Name: NoticeTransition, RecordID: rec.ID, Fields: map[string]any{"from": from.String(), "to": next.String()}})
	r.log.Debug().Int("record", rec.ID).Str("state", next.String()).Str("from", from.String()).Msg("transition")
}

func (r *Run) gathering() []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Record
	for _, rec := range r.records {
		if rec.State.Kind == GatherNotes {
			out = append(out, rec)
		}
	}
	return out
}

// gather ticks until no record is left in GatherNotes.
func (r *Run) gather(ctx context.Context) error {
	for {
		active := r.gathering()
		if len(active) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		res := r.exec.Infer()
		r.mu.Lock()
		if res != engine.DecodeOK {
			for _, rec := range active {
				if rec.conv != nil && rec.conv.RequiresInference() {
					rec.LastError = res.Err().Error()
					r.log.Warn().Int("record", rec.ID).Str("state", rec.State.String()).Str("code", res.String()).Msg("decode failed")
					r.apply(rec, Event{Kind: DecodeFailed, Code: res})
				}
			}
			r.pub.Publish(Notice{Name: NoticeDecodeFailed, RecordID: -1, Fields: map[string]any{"code": res.String(), "records": len(active)}})
			r.mu.Unlock()
			continue
		}
		n := 0
		for _, rec := range active {
			if r.step(rec) {
				n++
			}
		}
		r.sampled += n
		r.mu.Unlock()
		metrics.AddTokensSampled(n)
	}
}

// step samples one token for rec and reports whether a token was added to
// its response. Callers hold r.mu.
func (r *Run) step(rec *Record) bool {
	fail := func(err error) bool {
		rec.LastError = err.Error()
		r.log.Warn().Err(err).Int("record", rec.ID).Str("state", rec.State.String()).Msg("sampling failed")
		r.apply(rec, Event{Kind: DecodeFailed, Code: engine.DecodeComputeFailed})
		return false
	}
	if rec.conv == nil {
		return fail(batch.ErrDisposed)
	}
	logits, err := rec.conv.Sample()
	if err != nil {
		return fail(err)
	}
	tok, err := rec.sampler.Sample(logits)
	if err != nil {
		return fail(err)
	}
	if r.tok.IsEndOfGeneration(tok) {
		r.apply(rec, Event{Kind: EndOfGeneration})
		return false
	}
	if err := rec.sampler.Accept(tok); err != nil {
		return fail(err)
	}
	rec.dec.Add(tok)
	if s := rec.dec.Read(); s != "" {
		rec.Response = append(rec.Response, s)
	}
	rec.RoundTokens++
	rec.TotalTokens++
	if rec.RoundTokens >= r.bud.RoundTokens {
		r.apply(rec, Event{Kind: BudgetExceeded})
		return true
	}
	if err := rec.advance(tok); err != nil {
		fail(err)
	}
	return true
}

func canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// outlines runs the structured asks for every NotesComplete record.
func (r *Run) outlines(ctx context.Context) error {
	for _, rec := range r.records {
		r.mu.RLock()
		ready := rec.State.Kind == NotesComplete
		r.mu.RUnlock()
		if !ready {
			continue
		}
		if err := r.outline(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (r *Run) outline(ctx context.Context, rec *Record) error {
	r.mu.Lock()
	notes := rec.Text()
	r.apply(rec, Event{Kind: StageDone})
	r.mu.Unlock()

	res, err := structured.Run(ctx, r.sr, structured.OutlineRequest(OutlinePrompt(rec.Question, notes)))
	if err != nil && canceled(err) {
		return err
	}
	r.mu.Lock()
	if err == nil {
		v := res.Value
		rec.Outline = &v
	} else {
		r.structuredFailed(rec, "outline", err)
	}
	r.apply(rec, Event{Kind: StageDone})
	outline := rec.Outline
	r.mu.Unlock()

	for i := 0; i < MainPoints; i++ {
		point := ""
		if outline != nil && i < len(outline.MainPoints) {
			point = outline.MainPoints[i]
		}
		res, err := structured.Run(ctx, r.sr, structured.MainPointRequest(i, MainPointPrompt(rec.Question, notes, i, point)))
		if err != nil && canceled(err) {
			return err
		}
		r.mu.Lock()
		if err == nil {
			v := res.Value
			rec.MainPoints[i] = &v
		} else {
			r.structuredFailed(rec, fmt.Sprintf("main_point_%d", i), err)
		}
		r.apply(rec, Event{Kind: StageDone})
		r.mu.Unlock()
	}
	return nil
}

func (r *Run) structuredFailed(rec *Record, ask string, err error) {
	rec.LastError = err.Error()
	r.log.Warn().Err(err).Int("record", rec.ID).Str("state", rec.State.String()).Str("ask", ask).Msg("structured ask failed; slot left empty")
	r.pub.Publish(Notice{Name: NoticeStructuredFailed, RecordID: rec.ID, Fields: map[string]any{"ask": ask, "error": err.Error()}})
}

// endRound re-seeds every record that can continue and returns how many
// were re-seeded. Callers hold r.mu.
func (r *Run) endRound() int {
	n := 0
	for _, rec := range r.records {
		switch rec.State.Kind {
		case WriteFirstDraft:
			r.apply(rec, Event{Kind: Reseed})
		case Error:
			if rec.State.Exhausted {
				continue
			}
			rec.Errors++
			r.apply(rec, Event{Kind: Recover, Errors: rec.Errors, Limit: r.bud.MaxDecodeErrors})
			if rec.State.Exhausted {
				r.log.Error().Int("record", rec.ID).Int("errors", rec.Errors).Msg("record gave up after repeated decode failures")
			}
		}
		if rec.State.Kind == GatherNotes {
			r.seed(rec, ReseedPrompt(rec.Question, rec.Text(), rec.State.Pass))
			r.pub.Publish(Notice{Name: NoticeReseed, RecordID: rec.ID, Fields: map[string]any{"pass": rec.State.Pass.String()}})
			n++
			continue
		}
		if rec.State.Terminal() {
			rec.release()
		}
	}
	return n
}

// maintain runs cache maintenance between rounds.
func (r *Run) maintain() {
	if err := r.exec.Defrag(); err != nil {
		r.log.Warn().Err(err).Msg("kv defrag failed")
	}
	if err := r.exec.Update(); err != nil {
		r.log.Warn().Err(err).Msg("kv update failed")
	}
	metrics.SetKVCells(r.exec.KVCacheCountCells())
}

// summarize reports run totals, then clears the cache and reports usage
// after the clear.
func (r *Run) summarize() types.RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.exec.Stats()
	elapsed := time.Since(r.started)
	sum := types.RunSummary{
		RunID:           r.id,
		Rounds:          r.round,
		Records:         len(r.records),
		Ticks:           st.Ticks,
		FailedTicks:     st.FailedTicks,
		TokensEvaluated: st.TokensEvaluated,
		TokensSampled:   r.sampled,
		EvalTime:        st.EvalTime,
		Elapsed:         elapsed,
		KVCellsBefore:   r.exec.KVCacheCountCells(),
		KVTokensBefore:  r.exec.KVCacheCountTokens(),
	}
	if s := elapsed.Seconds(); s > 0 {
		sum.TokensPerSecond = float64(r.sampled) / s
	}
	for _, rec := range r.records {
		switch {
		case rec.State.Kind == WriteFinalVersion:
			sum.Finished++
		case rec.State.Kind == MaxConversationTokensReached:
			sum.MaxTokens++
		case rec.State.Kind == Error:
			sum.Failed++
		}
		rec.conv, rec.guidance, rec.pair = nil, nil, nil
	}
	if err := r.exec.Clear(); err != nil {
		r.log.Warn().Err(err).Msg("kv clear failed")
	}
	sum.KVCellsAfter = r.exec.KVCacheCountCells()
	r.log.Info().
		Int("rounds", sum.Rounds).
		Int("tokens_sampled", sum.TokensSampled).
		Int("tokens_evaluated", sum.TokensEvaluated).
		Float64("tokens_per_sec", sum.TokensPerSecond).
		Int("kv_cells_before", sum.KVCellsBefore).
		Int("kv_cells_after", sum.KVCellsAfter).
		Msg("run finished")
	return sum
}

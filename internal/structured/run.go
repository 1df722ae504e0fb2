package structured

import (
	"context"
	"errors"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"batchd/internal/llm"
)

// Request is one structured ask for a value of type T.
type Request[T any] struct {
	// Name identifies the ask in logs and metrics, e.g. "outline".
	Name     string
	Prompt   string
	Grammar  string
	Validate func(T) error
}

// Attempt describes one generation attempt.
type Attempt struct {
	Name        string
	N           int
	Temperature float32
	Text        string
	Tokens      int
	Duration    time.Duration
	Err         error
}

// Result is a validated value and the attempts it took.
type Result[T any] struct {
	Value    T
	Attempts []Attempt
}

// Options configures a Runner.
type Options struct {
	Logger zerolog.Logger
	// OnAttempt, if set, observes every attempt after it is judged.
	OnAttempt func(Attempt)
}

// Runner executes structured requests against one generator.
type Runner struct {
	gen       llm.Generator
	policy    Policy
	log       zerolog.Logger
	onAttempt func(Attempt)
}

func NewRunner(gen llm.Generator, policy Policy, opts Options) *Runner {
	return &Runner{gen: gen, policy: policy.withDefaults(), log: opts.Logger, onAttempt: opts.OnAttempt}
}

// Policy returns the effective policy with defaults applied.
func (r *Runner) Policy() Policy { return r.policy }

// Run generates until req.Validate accepts a parsed completion or the retry
// budget is spent. Context cancellation ends the loop immediately.
func Run[T any](ctx context.Context, r *Runner, req Request[T]) (Result[T], error) {
	var res Result[T]
	var last error
	for n := 0; n < r.policy.MaxRetries; n++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		a := Attempt{Name: req.Name, N: n, Temperature: r.policy.temperature(n)}
		start := time.Now()
		c, err := r.gen.Generate(ctx, llm.Request{
			Prompt:      req.Prompt,
			Grammar:     req.Grammar,
			Temperature: a.Temperature,
			Seed:        r.policy.seed(n),
			MaxTokens:   r.policy.MaxTokens,
			Stop:        r.policy.Stop,
		})
		a.Duration = time.Since(start)
		a.Text, a.Tokens = c.Text, c.Tokens
		var v T
		switch {
		case err != nil:
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || llm.IsDependencyUnavailable(err) {
				return res, err
			}
			a.Err = err
		default:
			v, a.Err = Parse[T](c.Text)
			if a.Err == nil && req.Validate != nil {
				a.Err = req.Validate(v)
			}
		}
		res.Attempts = append(res.Attempts, a)
		if r.onAttempt != nil {
			r.onAttempt(a)
		}
		if a.Err == nil {
			res.Value = v
			r.log.Debug().Str("ask", req.Name).Int("attempts", n+1).Msg("structured result accepted")
			return res, nil
		}
		last = a.Err
		r.log.Debug().Str("ask", req.Name).Int("attempt", n).Float32("temperature", a.Temperature).Err(a.Err).Msg("structured attempt rejected")
	}
	r.log.Error().Str("ask", req.Name).Int("attempts", len(res.Attempts)).Err(last).Msg("structured retries exhausted")
	return res, &ExhaustedError{Attempts: len(res.Attempts), Last: last}
}

// Parse decodes the outermost JSON object in text into T.
func Parse[T any](text string) (T, error) {
	var v T
	i := strings.IndexByte(text, '{')
	j := strings.LastIndexByte(text, '}')
	if i < 0 || j < i {
		return v, ErrNoJSONObject
	}
	if err := json.Unmarshal([]byte(text[i:j+1]), &v); err != nil {
		return v, err
	}
	return v, nil
}

//go:build llama

package llm

import (
	"context"
	"errors"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"
)

// llamaBuilt indicates this binary was compiled with real llama support.
const llamaBuilt = true

// Llama generates with an in-process llama.cpp model. Calls are serialised.
type Llama struct {
	mu      sync.Mutex
	model   *llama.LLama
	threads int
}

// NewLlama loads the model at cfg.ModelPath.
func NewLlama(cfg LlamaConfig) (*Llama, error) {
	if strings.TrimSpace(cfg.ModelPath) == "" {
		return nil, errors.New("model path is empty")
	}
	m, err := llama.New(cfg.ModelPath, llama.SetContext(zn(cfg.CtxSize, 2048)))
	if err != nil {
		return nil, err
	}
	return &Llama{model: m, threads: zn(cfg.Threads, 4)}, nil
}

func (l *Llama) Generate(ctx context.Context, req Request) (Completion, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Completion{}, ErrEmptyPrompt
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.model == nil {
		return Completion{}, errors.New("llama model not initialized")
	}
	tokens := 0
	l.model.SetTokenCallback(func(string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		tokens++
		return true
	})
	text, err := l.model.Predict(req.Prompt, predictOptions(req, l.threads)...)
	if err != nil {
		if ctx.Err() != nil {
			return Completion{}, ctx.Err()
		}
		return Completion{}, err
	}
	out := Completion{Tokens: tokens, FinishReason: FinishEOS}
	if tokens >= zn(req.MaxTokens, defaultMaxTokens) {
		out.FinishReason = FinishLength
	}
	if trimmed, ok := newStopMatcher(req.Stop).trim(text); ok {
		text, out.FinishReason = trimmed, FinishStop
	}
	out.Text = text
	return out, nil
}

func (l *Llama) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.model != nil {
		l.model.Free()
		l.model = nil
	}
	return nil
}

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// predictOptions converts a Request into go-llama.cpp options.
func predictOptions(req Request, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(zn(req.MaxTokens, defaultMaxTokens)),
		llama.SetThreads(max(1, threads)),
		llama.SetTemperature(req.Temperature),
	}
	if req.Seed != 0 {
		po = append(po, llama.SetSeed(int(req.Seed)))
	}
	if len(req.Stop) > 0 {
		po = append(po, llama.SetStopWords(req.Stop...))
	}
	if req.Grammar != "" {
		po = append(po, llama.WithGrammar(req.Grammar))
	}
	return po
}

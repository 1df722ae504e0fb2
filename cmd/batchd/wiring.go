package main

import (
	"fmt"

	"batchd/internal/batch"
	"batchd/internal/config"
	"batchd/internal/engine"
	"batchd/internal/engine/mem"
	"batchd/internal/grammar"
	"batchd/internal/llm"
	"batchd/internal/metrics"
	"batchd/internal/registry"
	"batchd/internal/structured"
)

func (a *app) newEngine() engine.Engine {
	return mem.New(mem.Options{Capacity: a.cfg.Engine.ContextCells, Model: mem.Hash(a.cfg.Engine.VocabSeed)})
}

func (a *app) newExecutor() *batch.Executor {
	return batch.NewExecutor(a.newEngine(), batch.Options{
		Logger: a.log.With().Str("component", "executor").Logger(),
		OnTick: metrics.ObserveTick,
	})
}

// newGenerator builds the backend for structured asks. The returned close
// func is never nil.
func (a *app) newGenerator(grammars *grammar.Cache) (llm.Generator, func(), error) {
	g := a.cfg.Generator
	switch g.Backend {
	case config.BackendLocal:
		return llm.NewLocal(llm.LocalConfig{
			NewEngine: a.newEngine,
			Tokenizer: mem.Tokenizer{},
			Grammars:  grammars,
			Sampling:  a.cfg.SamplingOptions(),
			Logger:    a.log.With().Str("component", "generator").Logger(),
		}), func() {}, nil
	case config.BackendLlama:
		models, err := registry.LoadDir(g.ModelsDir)
		if err != nil && g.Model == "" {
			return nil, nil, fmt.Errorf("scan models: %w", err)
		}
		ref := g.Model
		if ref == "" && len(models) > 0 {
			ref = models[0].ID
		}
		m, err := registry.Resolve(models, ref)
		if err != nil {
			return nil, nil, err
		}
		l, err := llm.NewLlama(llm.LlamaConfig{ModelPath: m.Path, CtxSize: g.CtxSize, Threads: g.Threads})
		if err != nil {
			return nil, nil, err
		}
		a.log.Info().Str("model", m.ID).Str("quant", m.Quant).Msg("llama generator ready")
		return l, func() { _ = l.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown generator backend %q", g.Backend)
	}
}

func (a *app) newRunner(gen llm.Generator) *structured.Runner {
	return structured.NewRunner(gen, a.cfg.Policy(), structured.Options{
		Logger:    a.log.With().Str("component", "structured").Logger(),
		OnAttempt: metrics.ObserveAttempt,
	})
}

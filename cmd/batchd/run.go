package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"batchd/internal/common/fsutil"
	"batchd/internal/engine/mem"
	"batchd/internal/grammar"
	"batchd/internal/httpapi"
	"batchd/internal/pipeline"
	"batchd/internal/registry"
	"batchd/internal/store"
	"batchd/pkg/types"
)

type runFlags struct {
	conversations  int
	roundTokens    int
	maxRounds      int
	maxTotalTokens int
	questions      string
	seed           int64
	guidanceWeight float32
	negativePrompt string
	snapshot       string
	addr           string
	corsOrigins    string
	linger         bool
	storeBackend   string
	storeDir       string
	redisAddr      string
	generator      string
	model          string
}

func newRunCmd(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the batched notes, outline and draft pipeline",
		Example: "  batchd run --conversations 8 --round-tokens 96\n" +
			"  batchd run -c batchd.yaml --addr :8080 --store file",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.applyRunFlags(cmd, f)
			if err := a.cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(ctx, f)
		},
	}
	fl := cmd.Flags()
	fl.IntVarP(&f.conversations, "conversations", "n", 0, "Number of batched conversations")
	fl.IntVar(&f.roundTokens, "round-tokens", 0, "Per-round token budget for each conversation")
	fl.IntVar(&f.maxRounds, "max-rounds", 0, "Maximum number of rounds")
	fl.IntVar(&f.maxTotalTokens, "max-total-tokens", 0, "Stop after this many sampled tokens across all conversations (0=unlimited)")
	fl.StringVarP(&f.questions, "questions", "q", "", "Question corpus file, one per line (default: built-in questions)")
	fl.Int64Var(&f.seed, "seed", 0, "Base sampling seed")
	fl.Float32Var(&f.guidanceWeight, "guidance-weight", 0, "Negative-prompt guidance weight (0 disables)")
	fl.StringVar(&f.negativePrompt, "negative-prompt", "", "Negative prompt used for guidance")
	fl.StringVar(&f.snapshot, "snapshot", "", "Save the engine state here before the run and restore it after")
	fl.StringVar(&f.addr, "addr", "", "Serve live status on this address, e.g. :8080")
	fl.StringVar(&f.corsOrigins, "cors-origins", "", "Comma separated origins allowed by CORS on the status server")
	fl.BoolVar(&f.linger, "linger", false, "Keep the status server up after the run until interrupted")
	fl.StringVar(&f.storeBackend, "store", "", "Results store: none|file|redis")
	fl.StringVar(&f.storeDir, "store-dir", "", "Directory for the file store")
	fl.StringVar(&f.redisAddr, "redis-addr", "", "Redis address for the redis store")
	fl.StringVar(&f.generator, "generator", "", "Structured generator backend: local|llama")
	fl.StringVar(&f.model, "model", "", "Model id or path for the llama generator")
	return cmd
}

// applyRunFlags copies explicitly set flags over the loaded configuration.
func (a *app) applyRunFlags(cmd *cobra.Command, f runFlags) {
	c := &a.cfg
	set := cmd.Flags().Changed
	if set("conversations") {
		c.Pipeline.Conversations = f.conversations
	}
	if set("round-tokens") {
		c.Pipeline.RoundTokenBudget = f.roundTokens
	}
	if set("max-rounds") {
		c.Pipeline.MaxRounds = f.maxRounds
	}
	if set("max-total-tokens") {
		c.Pipeline.MaxTotalTokens = f.maxTotalTokens
	}
	if set("questions") {
		c.Pipeline.QuestionsFile = f.questions
	}
	if set("snapshot") {
		c.Pipeline.SnapshotPath = f.snapshot
	}
	if set("seed") {
		c.Sampling.Seed = f.seed
	}
	if set("guidance-weight") {
		c.Sampling.GuidanceWeight = f.guidanceWeight
	}
	if set("negative-prompt") {
		c.Sampling.NegativePrompt = f.negativePrompt
	}
	if set("addr") {
		c.Server.Addr = f.addr
	}
	if set("cors-origins") {
		c.Server.CORS = true
		c.Server.CORSOrigins = splitCSV(f.corsOrigins)
	}
	if set("store") {
		c.Store.Backend = f.storeBackend
	}
	if set("store-dir") {
		c.Store.Dir = f.storeDir
	}
	if set("redis-addr") {
		c.Store.RedisAddr = f.redisAddr
	}
	if set("generator") {
		c.Generator.Backend = f.generator
	}
	if set("model") {
		c.Generator.Model = f.model
	}
}

func (a *app) run(ctx context.Context, f runFlags) error {
	cfg := a.cfg
	questions := pipeline.DefaultQuestions
	if p := cfg.Pipeline.QuestionsFile; p != "" {
		path, err := fsutil.Resolve(p)
		if err != nil {
			return err
		}
		if questions, err = pipeline.LoadQuestions(path); err != nil {
			return err
		}
	}

	so := cfg.StoreOptions()
	if so.Backend == store.BackendFile {
		dir, err := fsutil.Resolve(so.Dir)
		if err != nil {
			return err
		}
		so.Dir = dir
	}
	st, err := store.Open(so)
	if err != nil {
		return err
	}
	defer st.Close()

	grammars := grammar.NewCache(a.log.With().Str("component", "grammar").Logger())
	gen, closeGen, err := a.newGenerator(grammars)
	if err != nil {
		return err
	}
	defer closeGen()

	r, err := pipeline.NewRun(pipeline.Options{
		Executor:     a.newExecutor(),
		Tokenizer:    mem.Tokenizer{},
		Structured:   a.newRunner(gen),
		Sampling:     cfg.SamplingOptions(),
		Budget:       cfg.Budget(),
		Guidance:     cfg.Guidance(),
		SnapshotPath: cfg.Pipeline.SnapshotPath,
		Logger:       a.log,
	}, pipeline.Cycle(questions, cfg.Pipeline.Conversations))
	if err != nil {
		return err
	}

	if cfg.Server.Addr != "" {
		svc := &statusService{store: st}
		if models, err := registry.LoadDir(cfg.Generator.ModelsDir); err == nil {
			svc.models = models
		} else {
			a.log.Debug().Err(err).Msg("models dir not scanned")
		}
		svc.run.Store(r)
		var opts []httpapi.Option
		if cfg.Server.CORS {
			origins := cfg.Server.CORSOrigins
			if len(origins) == 0 {
				origins = []string{"*"}
			}
			opts = append(opts, httpapi.WithCORS(origins...))
		}
		shutdown := startServer(ctx, cfg.Server.Addr, svc, a.log, opts...)
		defer shutdown()
	}

	a.log.Info().
		Str("run", r.ID()).
		Int("conversations", cfg.Pipeline.Conversations).
		Int("round_tokens", cfg.Pipeline.RoundTokenBudget).
		Str("generator", cfg.Generator.Backend).
		Msg("run starting")
	sum, runErr := r.Execute(ctx)

	res := types.RunResult{Status: r.Snapshot(), Summary: sum, SavedUnix: time.Now().Unix()}
	// a canceled run still gets its partial results saved
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := st.Save(sctx, res); err != nil {
		a.log.Error().Err(err).Str("run", r.ID()).Msg("saving results failed")
		runErr = errors.Join(runErr, err)
	}

	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return errors.Join(runErr, err)
	}
	fmt.Fprintln(a.out, string(b))

	if runErr == nil && f.linger && cfg.Server.Addr != "" {
		a.log.Info().Msg("run finished; status server stays up until interrupted")
		<-ctx.Done()
	}
	return runErr
}

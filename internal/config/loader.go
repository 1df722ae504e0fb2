package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"batchd/internal/pipeline"
	"batchd/internal/sampling"
	"batchd/internal/store"
	"batchd/internal/structured"
)

// Config holds runtime parameters for batchd.
// Zero values mean "unspecified" and are replaced by Defaults in ApplyDefaults.
type Config struct {
	Engine     EngineConfig     `json:"engine" yaml:"engine" toml:"engine"`
	Sampling   SamplingConfig   `json:"sampling" yaml:"sampling" toml:"sampling"`
	Structured StructuredConfig `json:"structured" yaml:"structured" toml:"structured"`
	Pipeline   PipelineConfig   `json:"pipeline" yaml:"pipeline" toml:"pipeline"`
	Generator  GeneratorConfig  `json:"generator" yaml:"generator" toml:"generator"`
	Server     ServerConfig     `json:"server" yaml:"server" toml:"server"`
	Store      StoreConfig      `json:"store" yaml:"store" toml:"store"`
}

// EngineConfig sizes the in-process engine.
type EngineConfig struct {
	ContextCells int   `json:"context_cells" yaml:"context_cells" toml:"context_cells"`
	VocabSeed    int64 `json:"vocab_seed" yaml:"vocab_seed" toml:"vocab_seed"`
}

type SamplingConfig struct {
	Seed           int64   `json:"seed" yaml:"seed" toml:"seed"`
	Temperature    float32 `json:"temperature" yaml:"temperature" toml:"temperature"`
	TopK           int     `json:"top_k" yaml:"top_k" toml:"top_k"`
	TopP           float32 `json:"top_p" yaml:"top_p" toml:"top_p"`
	MinP           float32 `json:"min_p" yaml:"min_p" toml:"min_p"`
	RepeatPenalty  float32 `json:"repeat_penalty" yaml:"repeat_penalty" toml:"repeat_penalty"`
	RepeatLastN    int     `json:"repeat_last_n" yaml:"repeat_last_n" toml:"repeat_last_n"`
	GuidanceWeight float32 `json:"guidance_weight" yaml:"guidance_weight" toml:"guidance_weight"`
	NegativePrompt string  `json:"negative_prompt" yaml:"negative_prompt" toml:"negative_prompt"`
}

type StructuredConfig struct {
	BaseTemperature      float32  `json:"base_temperature" yaml:"base_temperature" toml:"base_temperature"`
	EscalatedTemperature float32  `json:"escalated_temperature" yaml:"escalated_temperature" toml:"escalated_temperature"`
	MaxRetries           int      `json:"max_retries" yaml:"max_retries" toml:"max_retries"`
	MaxTokens            int      `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	Stop                 []string `json:"stop" yaml:"stop" toml:"stop"`
}

type PipelineConfig struct {
	Conversations    int    `json:"conversations" yaml:"conversations" toml:"conversations"`
	RoundTokenBudget int    `json:"round_token_budget" yaml:"round_token_budget" toml:"round_token_budget"`
	MaxRounds        int    `json:"max_rounds" yaml:"max_rounds" toml:"max_rounds"`
	MaxTotalTokens   int    `json:"max_total_tokens" yaml:"max_total_tokens" toml:"max_total_tokens"`
	MaxDecodeErrors  int    `json:"max_decode_errors" yaml:"max_decode_errors" toml:"max_decode_errors"`
	QuestionsFile    string `json:"questions_file" yaml:"questions_file" toml:"questions_file"`
	SnapshotPath     string `json:"snapshot_path" yaml:"snapshot_path" toml:"snapshot_path"`
}

// GeneratorConfig selects the backend used for structured asks.
type GeneratorConfig struct {
	Backend   string `json:"backend" yaml:"backend" toml:"backend"`
	Model     string `json:"model" yaml:"model" toml:"model"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	CtxSize   int    `json:"ctx_size" yaml:"ctx_size" toml:"ctx_size"`
	Threads   int    `json:"threads" yaml:"threads" toml:"threads"`
}

// ServerConfig configures the optional status server. An empty Addr disables it.
type ServerConfig struct {
	Addr        string   `json:"addr" yaml:"addr" toml:"addr"`
	CORS        bool     `json:"cors" yaml:"cors" toml:"cors"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

type StoreConfig struct {
	Backend    string `json:"backend" yaml:"backend" toml:"backend"`
	Dir        string `json:"dir" yaml:"dir" toml:"dir"`
	RedisAddr  string `json:"redis_addr" yaml:"redis_addr" toml:"redis_addr"`
	TTLSeconds int    `json:"ttl_seconds" yaml:"ttl_seconds" toml:"ttl_seconds"`
}

// Generator backends.
const (
	BackendLocal = "local"
	BackendLlama = "llama"
)

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// Defaults returns the configuration used when nothing is specified.
func Defaults() Config {
	sc := sampling.DefaultConfig()
	pol := structured.DefaultPolicy()
	return Config{
		Engine: EngineConfig{ContextCells: 4096},
		Sampling: SamplingConfig{
			Temperature:   sc.Temperature,
			TopK:          sc.TopK,
			TopP:          sc.TopP,
			MinP:          sc.MinP,
			RepeatPenalty: sc.RepeatPenalty,
			RepeatLastN:   sc.RepeatLastN,
		},
		Structured: StructuredConfig{
			BaseTemperature:      pol.BaseTemperature,
			EscalatedTemperature: pol.EscalatedTemperature,
			MaxRetries:           pol.MaxRetries,
			MaxTokens:            pol.MaxTokens,
			Stop:                 pol.Stop,
		},
		Pipeline: PipelineConfig{
			Conversations:    4,
			RoundTokenBudget: pipeline.DefaultRoundTokens,
			MaxRounds:        pipeline.DefaultMaxRounds,
			MaxDecodeErrors:  pipeline.DefaultMaxDecodeErrors,
		},
		Generator: GeneratorConfig{Backend: BackendLocal, ModelsDir: "~/models/llm", CtxSize: 2048, Threads: 4},
		Store:     StoreConfig{Backend: store.BackendNone, Dir: ".batchd/runs"},
	}
}

// ApplyDefaults fills every zero field of c from Defaults.
func (c *Config) ApplyDefaults() {
	d := Defaults()
	setInt(&c.Engine.ContextCells, d.Engine.ContextCells)

	setFloat(&c.Sampling.Temperature, d.Sampling.Temperature)
	setInt(&c.Sampling.TopK, d.Sampling.TopK)
	setFloat(&c.Sampling.TopP, d.Sampling.TopP)
	setFloat(&c.Sampling.MinP, d.Sampling.MinP)
	setFloat(&c.Sampling.RepeatPenalty, d.Sampling.RepeatPenalty)
	setInt(&c.Sampling.RepeatLastN, d.Sampling.RepeatLastN)

	setFloat(&c.Structured.BaseTemperature, d.Structured.BaseTemperature)
	setFloat(&c.Structured.EscalatedTemperature, d.Structured.EscalatedTemperature)
	setInt(&c.Structured.MaxRetries, d.Structured.MaxRetries)
	setInt(&c.Structured.MaxTokens, d.Structured.MaxTokens)
	if len(c.Structured.Stop) == 0 {
		c.Structured.Stop = d.Structured.Stop
	}

	setInt(&c.Pipeline.Conversations, d.Pipeline.Conversations)
	setInt(&c.Pipeline.RoundTokenBudget, d.Pipeline.RoundTokenBudget)
	setInt(&c.Pipeline.MaxRounds, d.Pipeline.MaxRounds)
	setInt(&c.Pipeline.MaxDecodeErrors, d.Pipeline.MaxDecodeErrors)

	setString(&c.Generator.Backend, d.Generator.Backend)
	setString(&c.Generator.ModelsDir, d.Generator.ModelsDir)
	setInt(&c.Generator.CtxSize, d.Generator.CtxSize)
	setInt(&c.Generator.Threads, d.Generator.Threads)

	setString(&c.Store.Backend, d.Store.Backend)
	setString(&c.Store.Dir, d.Store.Dir)
}

func setInt(p *int, v int) {
	if *p == 0 {
		*p = v
	}
}

func setFloat(p *float32, v float32) {
	if *p == 0 {
		*p = v
	}
}

func setString(p *string, v string) {
	if *p == "" {
		*p = v
	}
}

// Validate rejects configurations that cannot run. It expects defaults to
// have been applied.
func (c Config) Validate() error {
	var errs []error
	if c.Engine.ContextCells < 0 {
		errs = append(errs, errors.New("engine.context_cells must be >= 0"))
	}
	if c.Sampling.Temperature < 0 {
		errs = append(errs, errors.New("sampling.temperature must be >= 0"))
	}
	if c.Sampling.TopK < 0 {
		errs = append(errs, errors.New("sampling.top_k must be >= 0"))
	}
	if c.Sampling.TopP < 0 || c.Sampling.TopP > 1 {
		errs = append(errs, errors.New("sampling.top_p must be within [0,1]"))
	}
	if c.Sampling.MinP < 0 || c.Sampling.MinP > 1 {
		errs = append(errs, errors.New("sampling.min_p must be within [0,1]"))
	}
	if c.Sampling.GuidanceWeight != 0 && c.Sampling.NegativePrompt == "" {
		errs = append(errs, errors.New("sampling.guidance_weight requires sampling.negative_prompt"))
	}
	if c.Structured.MaxRetries < 1 {
		errs = append(errs, errors.New("structured.max_retries must be >= 1"))
	}
	if c.Pipeline.Conversations < 1 {
		errs = append(errs, errors.New("pipeline.conversations must be >= 1"))
	}
	if c.Pipeline.RoundTokenBudget < 1 {
		errs = append(errs, errors.New("pipeline.round_token_budget must be >= 1"))
	}
	if c.Pipeline.MaxRounds < 1 {
		errs = append(errs, errors.New("pipeline.max_rounds must be >= 1"))
	}
	if c.Pipeline.MaxTotalTokens < 0 {
		errs = append(errs, errors.New("pipeline.max_total_tokens must be >= 0"))
	}
	if c.Pipeline.MaxDecodeErrors < 1 {
		errs = append(errs, errors.New("pipeline.max_decode_errors must be >= 1"))
	}
	switch c.Generator.Backend {
	case BackendLocal, BackendLlama:
	default:
		errs = append(errs, fmt.Errorf("generator.backend %q is not one of local|llama", c.Generator.Backend))
	}
	switch c.Store.Backend {
	case store.BackendNone, store.BackendFile:
	case store.BackendRedis:
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("store.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend %q is not one of none|file|redis", c.Store.Backend))
	}
	if c.Store.TTLSeconds < 0 {
		errs = append(errs, errors.New("store.ttl_seconds must be >= 0"))
	}
	return errors.Join(errs...)
}

// SamplingOptions converts the sampling section.
func (c Config) SamplingOptions() sampling.Config {
	s := c.Sampling
	return sampling.Config{
		Seed:          s.Seed,
		Temperature:   s.Temperature,
		TopK:          s.TopK,
		TopP:          s.TopP,
		MinP:          s.MinP,
		RepeatPenalty: s.RepeatPenalty,
		RepeatLastN:   s.RepeatLastN,
	}
}

// Policy converts the structured section.
func (c Config) Policy() structured.Policy {
	s := c.Structured
	return structured.Policy{
		BaseTemperature:      s.BaseTemperature,
		EscalatedTemperature: s.EscalatedTemperature,
		MaxRetries:           s.MaxRetries,
		MaxTokens:            s.MaxTokens,
		Stop:                 s.Stop,
		Seed:                 c.Sampling.Seed,
	}
}

// Budget converts the pipeline section.
func (c Config) Budget() pipeline.Budget {
	p := c.Pipeline
	return pipeline.Budget{
		RoundTokens:     p.RoundTokenBudget,
		MaxRounds:       p.MaxRounds,
		MaxTotalTokens:  p.MaxTotalTokens,
		MaxDecodeErrors: p.MaxDecodeErrors,
	}
}

func (c Config) Guidance() pipeline.Guidance {
	return pipeline.Guidance{NegativePrompt: c.Sampling.NegativePrompt, Weight: c.Sampling.GuidanceWeight}
}

// StoreOptions converts the store section.
func (c Config) StoreOptions() store.Options {
	return store.Options{
		Backend:   c.Store.Backend,
		Dir:       c.Store.Dir,
		RedisAddr: c.Store.RedisAddr,
		TTL:       time.Duration(c.Store.TTLSeconds) * time.Second,
	}
}

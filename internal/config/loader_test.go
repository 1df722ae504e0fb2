package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func check(t *testing.T, cfg Config) {
	t.Helper()
	if cfg.Pipeline.Conversations != 8 || cfg.Pipeline.RoundTokenBudget != 64 {
		t.Fatalf("pipeline section not loaded: %+v", cfg.Pipeline)
	}
	if cfg.Sampling.TopK != 10 || cfg.Sampling.NegativePrompt != "be terse" {
		t.Fatalf("sampling section not loaded: %+v", cfg.Sampling)
	}
	if cfg.Store.Backend != "redis" || cfg.Store.RedisAddr != "127.0.0.1:6379" || cfg.Store.TTLSeconds != 60 {
		t.Fatalf("store section not loaded: %+v", cfg.Store)
	}
	if len(cfg.Structured.Stop) != 2 || cfg.Structured.Stop[1] != "Q:" {
		t.Fatalf("structured stop not loaded: %+v", cfg.Structured.Stop)
	}
}

func TestLoadYAML(t *testing.T) {
	p := writeTempFile(t, t.TempDir(), "cfg.yaml", `
pipeline:
  conversations: 8
  round_token_budget: 64
sampling:
  top_k: 10
  negative_prompt: be terse
structured:
  stop: ["Question:", "Q:"]
store:
  backend: redis
  redis_addr: 127.0.0.1:6379
  ttl_seconds: 60
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	check(t, cfg)
}

func TestLoadJSON(t *testing.T) {
	p := writeTempFile(t, t.TempDir(), "cfg.json", `{
  "pipeline": {"conversations": 8, "round_token_budget": 64},
  "sampling": {"top_k": 10, "negative_prompt": "be terse"},
  "structured": {"stop": ["Question:", "Q:"]},
  "store": {"backend": "redis", "redis_addr": "127.0.0.1:6379", "ttl_seconds": 60}
}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	check(t, cfg)
}

func TestLoadTOML(t *testing.T) {
	p := writeTempFile(t, t.TempDir(), "cfg.toml", `
[pipeline]
conversations = 8
round_token_budget = 64

[sampling]
top_k = 10
negative_prompt = "be terse"

[structured]
stop = ["Question:", "Q:"]

[store]
backend = "redis"
redis_addr = "127.0.0.1:6379"
ttl_seconds = 60
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	check(t, cfg)
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	if _, err := Load(filepath.Join(d, "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
	for name, body := range map[string]string{
		"bad.yaml": "pipeline: [",
		"bad.json": "{",
		"bad.toml": "pipeline = [",
	} {
		p := writeTempFile(t, d, name, body)
		if _, err := Load(p); err == nil || !strings.Contains(err.Error(), name) {
			t.Fatalf("%s: expected parse error naming the file, got %v", name, err)
		}
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	var cfg Config
	cfg.Pipeline.MaxRounds = 9
	cfg.Sampling.Temperature = 0.2
	cfg.ApplyDefaults()
	d := Defaults()
	if cfg.Pipeline.MaxRounds != 9 || cfg.Sampling.Temperature != 0.2 {
		t.Fatalf("explicit values overwritten: %+v", cfg)
	}
	if cfg.Pipeline.RoundTokenBudget != d.Pipeline.RoundTokenBudget || cfg.Structured.MaxRetries != 10 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"top_p":         func(c *Config) { c.Sampling.TopP = 1.5 },
		"guidance":      func(c *Config) { c.Sampling.GuidanceWeight = 2 },
		"max_rounds":    func(c *Config) { c.Pipeline.MaxRounds = -1 },
		"backend":       func(c *Config) { c.Generator.Backend = "remote" },
		"redis_addr":    func(c *Config) { c.Store.Backend = "redis" },
		"store.backend": func(c *Config) { c.Store.Backend = "s3" },
	}
	for want, mutate := range cases {
		cfg := Defaults()
		mutate(&cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("%s: expected validation error, got %v", want, err)
		}
	}
}

func TestConversions(t *testing.T) {
	cfg := Defaults()
	cfg.Store.TTLSeconds = 30
	cfg.Sampling.Seed = 5
	if cfg.StoreOptions().TTL != 30*time.Second {
		t.Fatalf("ttl not converted")
	}
	if cfg.SamplingOptions().Seed != 5 || cfg.SamplingOptions().TopK != cfg.Sampling.TopK {
		t.Fatalf("sampling not converted")
	}
	if cfg.Budget().RoundTokens != cfg.Pipeline.RoundTokenBudget || cfg.Policy().MaxRetries != cfg.Structured.MaxRetries || cfg.Policy().Seed != cfg.Sampling.Seed {
		t.Fatalf("budget or policy not converted")
	}
}

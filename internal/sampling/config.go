// Package sampling turns a logit vector into one token per step. A Pipeline
// applies, in order: guidance blend, grammar filter, repeat penalty,
// temperature, top-k, top-p, min-p and a seeded stochastic draw.
package sampling

// Config configures the behaviour of a Pipeline.
type Config struct {
	Seed          int64   `json:"seed" yaml:"seed" toml:"seed"`
	Temperature   float32 `json:"temperature" yaml:"temperature" toml:"temperature"`
	TopK          int     `json:"top_k" yaml:"top_k" toml:"top_k"`
	TopP          float32 `json:"top_p" yaml:"top_p" toml:"top_p"`
	MinP          float32 `json:"min_p" yaml:"min_p" toml:"min_p"`
	RepeatPenalty float32 `json:"repeat_penalty" yaml:"repeat_penalty" toml:"repeat_penalty"`
	RepeatLastN   int     `json:"repeat_last_n" yaml:"repeat_last_n" toml:"repeat_last_n"`
}

// minTemperature is the floor applied to Temperature.
const minTemperature = 1e-4

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		Temperature:   0.8,
		TopK:          40,
		TopP:          0.95,
		MinP:          0.05,
		RepeatPenalty: 1.1,
		RepeatLastN:   64,
	}
}

// GuidedConfig mirrors the fixed sampler used for guided generation:
// temperature 0.8, top-k 25, no nucleus or min-p truncation.
func GuidedConfig(seed int64) Config {
	return Config{Seed: seed, Temperature: 0.8, TopK: 25, TopP: 1}
}

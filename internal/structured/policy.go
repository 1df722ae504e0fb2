package structured

// Defaults applied when corresponding Policy fields are unset.
const (
	DefaultMaxRetries           = 10
	DefaultBaseTemperature      = 0.6
	DefaultEscalatedTemperature = 1.0
	DefaultMaxTokens            = 512
)

// DefaultStop ends a structured answer when the model starts a new question.
var DefaultStop = []string{"Question:"}

// Policy bounds one structured generation.
type Policy struct {
	BaseTemperature      float32  `json:"base_temperature" yaml:"base_temperature" toml:"base_temperature"`
	EscalatedTemperature float32  `json:"escalated_temperature" yaml:"escalated_temperature" toml:"escalated_temperature"`
	MaxRetries           int      `json:"max_retries" yaml:"max_retries" toml:"max_retries"`
	MaxTokens            int      `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	Stop                 []string `json:"stop" yaml:"stop" toml:"stop"`
	// Seed is the base sampling seed; attempt n samples with Seed+n+1.
	Seed int64 `json:"seed" yaml:"seed" toml:"seed"`
}

func DefaultPolicy() Policy {
	return Policy{
		BaseTemperature:      DefaultBaseTemperature,
		EscalatedTemperature: DefaultEscalatedTemperature,
		MaxRetries:           DefaultMaxRetries,
		MaxTokens:            DefaultMaxTokens,
		Stop:                 append([]string(nil), DefaultStop...),
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.BaseTemperature <= 0 {
		p.BaseTemperature = d.BaseTemperature
	}
	if p.EscalatedTemperature <= 0 {
		p.EscalatedTemperature = d.EscalatedTemperature
	}
	if p.MaxRetries <= 0 {
		p.MaxRetries = d.MaxRetries
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = d.MaxTokens
	}
	if p.Stop == nil {
		p.Stop = d.Stop
	}
	return p
}

// seed returns the sampling seed for zero-based attempt n. It is never zero
// for a non-negative base, so generators always see an explicit seed.
func (p Policy) seed(n int) int64 {
	return p.Seed + int64(n) + 1
}

// temperature returns the sampling temperature for zero-based attempt n.
func (p Policy) temperature(n int) float32 {
	if n == 0 {
		return p.BaseTemperature
	}
	return p.EscalatedTemperature
}

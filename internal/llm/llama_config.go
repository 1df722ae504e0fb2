package llm

// LlamaConfig configures the llama.cpp generator.
type LlamaConfig struct {
	ModelPath string
	CtxSize   int
	Threads   int
}

// LlamaBuilt reports whether this binary carries llama.cpp support.
func LlamaBuilt() bool { return llamaBuilt }

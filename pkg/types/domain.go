package types

// Model is a GGUF file the llama generator can load.
type Model struct {
	// File name, unique within the models directory.
	// example: tinyllama-1.1b.Q4_K_M.gguf
	ID string `json:"id" example:"tinyllama-1.1b.Q4_K_M.gguf"`
	// File name without extension or quantization suffix.
	// example: tinyllama-1.1b
	Name string `json:"name" example:"tinyllama-1.1b"`
	// Absolute path on disk.
	Path string `json:"path" example:"/home/user/models/llm/tinyllama-1.1b.Q4_K_M.gguf"`
	// Quantization inferred from the file name, if any.
	// example: Q4_K_M
	Quant string `json:"quant,omitempty" example:"Q4_K_M"`
	// Model family inferred from the file name, if any.
	// example: llama
	Family    string `json:"family,omitempty" example:"llama"`
	SizeBytes int64  `json:"size_bytes"`
}

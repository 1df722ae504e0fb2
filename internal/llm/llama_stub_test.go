//go:build !llama

package llm

import (
	"context"
	"testing"
)

func TestLlamaStubUnavailable(t *testing.T) {
	if LlamaBuilt() {
		t.Fatalf("stub build must report llama unavailable")
	}
	if _, err := NewLlama(LlamaConfig{ModelPath: "m.gguf"}); !IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
	var l Llama
	if _, err := l.Generate(context.Background(), Request{Prompt: "x"}); !IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
}

// Package batch runs many conversations through one shared engine. It is
// structured into small files by concern:
//
//   - executor.go: Executor, the single owner of the engine and its KV cache;
//     Infer evaluates every pending conversation in one tick.
//   - conversation.go: Conversation, one sequence slot (and its forks).
//   - cache.go: KV cache maintenance and snapshots, only legal between ticks.
//   - errors.go: sentinel errors for contract violations.
//
// Everything here is single-threaded by contract: one goroutine creates,
// prompts, samples and infers. Concurrency, if any, lives inside the engine.
package batch

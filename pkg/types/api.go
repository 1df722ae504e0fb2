package types

import "time"

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// List of available models.
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: run not found
	Error string `json:"error" example:"run not found"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}

// Outline is the structured top-level outline of a record's answer.
type Outline struct {
	// example: Go makes concurrency approachable.
	TopicSentence string `json:"topic_sentence" example:"Go makes concurrency approachable."`
	// example: ["goroutines","channels","select"]
	MainPoints []string `json:"main_points"`
}

// MainPoint is the structured detail for one main point.
type MainPoint struct {
	// example: Goroutines are cheap.
	MainPointSummary string `json:"main_point_summary" example:"Goroutines are cheap."`
	SupportingPoints []string `json:"supporting_points"`
}

// RecordStatus summarizes one pipeline record.
type RecordStatus struct {
	// example: 3
	ID int `json:"id" example:"3"`
	// example: What is a goroutine?
	Question string `json:"question" example:"What is a goroutine?"`
	// Current state (e.g., GatherNotes, WriteFinalVersion, Error).
	// example: GatherNotes
	State string `json:"state" example:"GatherNotes"`
	// Generation pass while gathering: notes or draft.
	// example: notes
	Pass string `json:"pass,omitempty" example:"notes"`
	// Decode failures observed so far.
	// example: 0
	Errors int `json:"errors" example:"0"`
	// Tokens sampled in the current round.
	// example: 42
	RoundTokens int `json:"round_tokens" example:"42"`
	// Tokens sampled over the whole run.
	// example: 120
	TotalTokens int `json:"total_tokens" example:"120"`
	// Accumulated response text.
	Response string `json:"response"`
	// Outline slot; null when the structured call failed or has not run.
	Outline *Outline `json:"outline,omitempty"`
	// Main point slots 0..2; null entries failed or have not run.
	MainPoints []*MainPoint `json:"main_points,omitempty"`
	// Last error observed for this record, if any.
	LastError string `json:"last_error,omitempty"`
}

// RunStatus is returned by GET /runs/current and persisted with results.
type RunStatus struct {
	// example: 5b7e0c1e-2f7d-4a8e-9a57-2f1b8e0f6a11
	RunID string `json:"run_id" example:"5b7e0c1e-2f7d-4a8e-9a57-2f1b8e0f6a11"`
	// Current round, starting at 1.
	// example: 2
	Round int `json:"round" example:"2"`
	// True once the round loop has terminated.
	Done bool `json:"done"`
	// example: 1700000000
	StartedUnix int64 `json:"started_unix" example:"1700000000"`
	// Tokens sampled across all records.
	// example: 4096
	TokensSampled int `json:"tokens_sampled" example:"4096"`
	// Records keyed by position in the batch.
	Records []RecordStatus `json:"records"`
}

// RunSummary reports throughput and cache usage for a finished run.
type RunSummary struct {
	RunID           string        `json:"run_id"`
	Rounds          int           `json:"rounds"`
	Records         int           `json:"records"`
	Finished        int           `json:"finished"`
	MaxTokens       int           `json:"max_tokens_reached"`
	Failed          int           `json:"failed"`
	Ticks           int           `json:"ticks"`
	FailedTicks     int           `json:"failed_ticks"`
	TokensEvaluated int           `json:"tokens_evaluated"`
	TokensSampled   int           `json:"tokens_sampled"`
	EvalTime        time.Duration `json:"eval_time_ns"`
	Elapsed         time.Duration `json:"elapsed_ns"`
	TokensPerSecond float64       `json:"tokens_per_second"`
	KVCellsBefore   int           `json:"kv_cells_before_clear"`
	KVTokensBefore  int           `json:"kv_tokens_before_clear"`
	KVCellsAfter    int           `json:"kv_cells_after_clear"`
}

// RunResult is what the results store persists for each run.
type RunResult struct {
	Status  RunStatus  `json:"status"`
	Summary RunSummary `json:"summary"`
	// example: 1700000300
	SavedUnix int64 `json:"saved_unix" example:"1700000300"`
}

// GuidanceResult holds the transcripts of a guidance comparison.
type GuidanceResult struct {
	Unguided string  `json:"unguided"`
	Guided   string  `json:"guided"`
	Weight   float32 `json:"weight"`
	Tokens   int     `json:"tokens"`
}

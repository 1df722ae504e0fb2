package pipeline

import (
	"strings"

	"batchd/internal/batch"
	"batchd/internal/engine"
	"batchd/internal/sampling"
	"batchd/internal/structured"
	"batchd/pkg/types"
)

// Record is one question moving through the pipeline.
type Record struct {
	ID       int
	Question string
	State    State
	// Response holds decoded text fragments in generation order.
	Response    []string
	Outline     *structured.Outline
	MainPoints  [MainPoints]*structured.MainPoint
	RoundTokens int
	TotalTokens int
	Errors      int
	LastError   string

	conv     *batch.Conversation
	guidance *batch.Conversation
	pair     *sampling.GuidedPair
	sampler  *sampling.Pipeline
	dec      *batch.Decoder
}

// Text returns the accumulated response.
func (r *Record) Text() string { return strings.Join(r.Response, "") }

func (r *Record) release() {
	if r.conv != nil {
		r.conv.Dispose()
		r.conv = nil
	}
	if r.guidance != nil {
		r.guidance.Dispose()
		r.guidance = nil
	}
	r.pair = nil
}

// advance appends tok to the record's conversation, and to its guidance
// sequence when one is attached.
func (r *Record) advance(tok engine.Token) error {
	if r.pair != nil {
		return r.pair.Advance(tok)
	}
	return r.conv.Prompt(tok)
}

func (r *Record) status() types.RecordStatus {
	s := types.RecordStatus{
		ID:          r.ID,
		Question:    r.Question,
		State:       r.State.Kind.String(),
		Errors:      r.Errors,
		RoundTokens: r.RoundTokens,
		TotalTokens: r.TotalTokens,
		Response:    r.Text(),
		LastError:   r.LastError,
	}
	if r.State.Kind == GatherNotes || r.State.Kind == Error {
		s.Pass = r.State.Pass.String()
	}
	if r.Outline != nil {
		s.Outline = &types.Outline{TopicSentence: r.Outline.TopicSentence, MainPoints: append([]string(nil), r.Outline.MainPoints...)}
	}
	for _, mp := range r.MainPoints {
		if mp == nil {
			s.MainPoints = append(s.MainPoints, nil)
			continue
		}
		s.MainPoints = append(s.MainPoints, &types.MainPoint{MainPointSummary: mp.MainPointSummary, SupportingPoints: append([]string(nil), mp.SupportingPoints...)})
	}
	return s
}

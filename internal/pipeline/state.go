package pipeline

import (
	"fmt"

	"batchd/internal/engine"
)

// Kind is the tag of a State.
type Kind int

const (
	GatherNotes Kind = iota
	NotesComplete
	WriteOutlineTopLevel
	WriteOutlineMainPoint
	WriteFirstDraft
	WriteFinalVersion
	Error
	MaxConversationTokensReached
)

var kindNames = [...]string{
	GatherNotes:                  "GatherNotes",
	NotesComplete:                "NotesComplete",
	WriteOutlineTopLevel:         "WriteOutlineTopLevel",
	WriteOutlineMainPoint:        "WriteOutlineMainPoint",
	WriteFirstDraft:              "WriteFirstDraft",
	WriteFinalVersion:            "WriteFinalVersion",
	Error:                        "Error",
	MaxConversationTokensReached: "MaxConversationTokensReached",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Pass says what a GatherNotes round is producing.
type Pass int

const (
	PassNotes Pass = iota
	PassDraft
)

func (p Pass) String() string {
	if p == PassDraft {
		return "draft"
	}
	return "notes"
}

// MainPoints is the number of main points expanded per outline.
const MainPoints = 3

// State is a tagged variant. Only the fields relevant to Kind are set:
// Pass for GatherNotes and Error, Point for WriteOutlineMainPoint, Code and
// Exhausted for Error.
type State struct {
	Kind      Kind
	Pass      Pass
	Point     int
	Code      engine.DecodeResult
	Exhausted bool
}

func (s State) String() string {
	switch s.Kind {
	case GatherNotes:
		return fmt.Sprintf("%s(%s)", s.Kind, s.Pass)
	case WriteOutlineMainPoint:
		return fmt.Sprintf("%s(%d)", s.Kind, s.Point)
	case Error:
		if s.Exhausted {
			return fmt.Sprintf("%s(%s, exhausted)", s.Kind, s.Code)
		}
		return fmt.Sprintf("%s(%s)", s.Kind, s.Code)
	}
	return s.Kind.String()
}

// Terminal reports whether no further round can change s.
func (s State) Terminal() bool {
	switch s.Kind {
	case WriteFinalVersion, MaxConversationTokensReached:
		return true
	case Error:
		return s.Exhausted
	}
	return false
}

// EventKind is the tag of an Event.
type EventKind int

const (
	// EndOfGeneration: the model produced an end-of-generation token.
	EndOfGeneration EventKind = iota
	// BudgetExceeded: the per-round token budget ran out.
	BudgetExceeded
	// DecodeFailed: the shared tick failed; Code carries the result.
	DecodeFailed
	// StageDone: the structured call for the current stage finished,
	// successfully or not.
	StageDone
	// Reseed: the round ended and the record gets a new conversation.
	Reseed
	// Recover: the round ended for a failed record; Errors is its error
	// count including this failure and Limit the bound.
	Recover
)

var eventNames = [...]string{"EndOfGeneration", "BudgetExceeded", "DecodeFailed", "StageDone", "Reseed", "Recover"}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventNames) {
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
	return eventNames[k]
}

// Event drives a transition.
type Event struct {
	Kind   EventKind
	Code   engine.DecodeResult
	Errors int
	Limit  int
}

// TransitionError reports an event that is not valid in a state.
type TransitionError struct {
	From  State
	Event EventKind
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("pipeline: no transition from %s on %s", e.From, e.Event)
}

// Next is the pipeline's transition function. It has no side effects.
func Next(s State, e Event) (State, error) {
	bad := func() (State, error) { return s, &TransitionError{From: s, Event: e.Kind} }
	switch s.Kind {
	case GatherNotes:
		switch e.Kind {
		case EndOfGeneration:
			if s.Pass == PassDraft {
				return State{Kind: WriteFinalVersion}, nil
			}
			return State{Kind: NotesComplete}, nil
		case BudgetExceeded:
			return State{Kind: MaxConversationTokensReached}, nil
		case DecodeFailed:
			return State{Kind: Error, Pass: s.Pass, Code: e.Code}, nil
		}
	case NotesComplete:
		if e.Kind == StageDone {
			return State{Kind: WriteOutlineTopLevel}, nil
		}
	case WriteOutlineTopLevel:
		if e.Kind == StageDone {
			return State{Kind: WriteOutlineMainPoint, Point: 0}, nil
		}
	case WriteOutlineMainPoint:
		if e.Kind == StageDone {
			if s.Point+1 < MainPoints {
				return State{Kind: WriteOutlineMainPoint, Point: s.Point + 1}, nil
			}
			return State{Kind: WriteFirstDraft}, nil
		}
	case WriteFirstDraft:
		if e.Kind == Reseed {
			return State{Kind: GatherNotes, Pass: PassDraft}, nil
		}
	case Error:
		if e.Kind == Recover && !s.Exhausted {
			if e.Errors < e.Limit {
				return State{Kind: GatherNotes, Pass: s.Pass}, nil
			}
			s.Exhausted = true
			return s, nil
		}
	}
	return bad()
}

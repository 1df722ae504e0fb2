package pipeline

import (
	"errors"
	"testing"

	"batchd/internal/engine"
)

func TestNextTransitions(t *testing.T) {
	notes := State{Kind: GatherNotes, Pass: PassNotes}
	draft := State{Kind: GatherNotes, Pass: PassDraft}
	cases := []struct {
		name string
		from State
		ev   Event
		want State
	}{
		{"eog in notes pass", notes, Event{Kind: EndOfGeneration}, State{Kind: NotesComplete}},
		{"eog in draft pass", draft, Event{Kind: EndOfGeneration}, State{Kind: WriteFinalVersion}},
		{"budget", notes, Event{Kind: BudgetExceeded}, State{Kind: MaxConversationTokensReached}},
		{"decode failure keeps pass", draft, Event{Kind: DecodeFailed, Code: engine.DecodeNoKVSlot}, State{Kind: Error, Pass: PassDraft, Code: engine.DecodeNoKVSlot}},
		{"notes to outline", State{Kind: NotesComplete}, Event{Kind: StageDone}, State{Kind: WriteOutlineTopLevel}},
		{"outline to point 0", State{Kind: WriteOutlineTopLevel}, Event{Kind: StageDone}, State{Kind: WriteOutlineMainPoint}},
		{"point 1 to 2", State{Kind: WriteOutlineMainPoint, Point: 1}, Event{Kind: StageDone}, State{Kind: WriteOutlineMainPoint, Point: 2}},
		{"point 2 to draft", State{Kind: WriteOutlineMainPoint, Point: 2}, Event{Kind: StageDone}, State{Kind: WriteFirstDraft}},
		{"reseed draft", State{Kind: WriteFirstDraft}, Event{Kind: Reseed}, draft},
		{"recover under bound", State{Kind: Error, Pass: PassNotes}, Event{Kind: Recover, Errors: 2, Limit: 3}, notes},
		{"recover at bound", State{Kind: Error, Code: engine.DecodeNoKVSlot}, Event{Kind: Recover, Errors: 3, Limit: 3}, State{Kind: Error, Code: engine.DecodeNoKVSlot, Exhausted: true}},
	}
	for _, tc := range cases {
		got, err := Next(tc.from, tc.ev)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}
}

func TestNextRejectsInvalidEvents(t *testing.T) {
	cases := []struct {
		from State
		ev   EventKind
	}{
		{State{Kind: WriteFinalVersion}, EndOfGeneration},
		{State{Kind: MaxConversationTokensReached}, Reseed},
		{State{Kind: Error, Exhausted: true}, Recover},
		{State{Kind: NotesComplete}, EndOfGeneration},
		{State{Kind: GatherNotes}, StageDone},
	}
	for _, tc := range cases {
		got, err := Next(tc.from, Event{Kind: tc.ev})
		var te *TransitionError
		if !errors.As(err, &te) {
			t.Fatalf("%s on %s: expected TransitionError, got %v", tc.from, tc.ev, err)
		}
		if got != tc.from {
			t.Fatalf("rejected event must not change state")
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []State{{Kind: WriteFinalVersion}, {Kind: MaxConversationTokensReached}, {Kind: Error, Exhausted: true}} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []State{{Kind: GatherNotes}, {Kind: Error}, {Kind: WriteFirstDraft}} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

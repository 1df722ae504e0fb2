// Package pipeline drives a batch of records through
// GatherNotes → NotesComplete → WriteOutlineTopLevel → WriteOutlineMainPoint(0..2)
// → WriteFirstDraft → WriteFinalVersion, with terminal Error and
// MaxConversationTokensReached states.
//
// Overview
//
//   - Every transition goes through Next, a pure function of (State, Event).
//   - A Run owns all orchestration state for one execution: records, round
//     counter, token totals. Nothing is kept in package variables.
//   - Gathering happens in shared ticks: one Executor.Infer per step for every
//     record still in GatherNotes. A failed tick moves every record pending in
//     it to Error.
//   - After the ticks of a round, each NotesComplete record runs four
//     structured asks (outline, then main points 0..2). A failed ask leaves
//     its slot empty and the record continues.
//   - At round end, WriteFirstDraft records and recoverable Error records get
//     a fresh conversation seeded with question + accumulated response. Cache
//     maintenance runs between rounds.
package pipeline

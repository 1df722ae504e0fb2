package grammar

import "errors"

// ErrRejected is returned by Accept when a piece cannot continue the grammar.
var ErrRejected = errors.New("grammar rejected input")

// Handle is a cursor over a compiled grammar. Handles are not safe for
// concurrent use; clone one per sampler.
type Handle struct {
	rules   *Rules
	stacks  []stack
	partial []byte
}

// New compiles src and returns a fresh handle positioned at the root rule.
func New(src string) (*Handle, error) {
	r, err := Compile(src)
	if err != nil {
		return nil, err
	}
	return NewHandle(r), nil
}

// NewHandle returns a handle over an already compiled rule table.
func NewHandle(r *Rules) *Handle {
	h := &Handle{rules: r}
	h.Reset()
	return h
}

// Rules returns the shared rule table.
func (h *Handle) Rules() *Rules { return h.rules }

// Reset moves the cursor back to the start of the root rule.
func (h *Handle) Reset() {
	h.stacks = h.rules.initial()
	h.partial = nil
}

// Clone returns an independent cursor at the same position.
func (h *Handle) Clone() *Handle {
	return &Handle{
		rules:   h.rules,
		stacks:  append([]stack(nil), h.stacks...),
		partial: append([]byte(nil), h.partial...),
	}
}

func (h *Handle) feed(piece string) ([]stack, []byte) {
	text := append(append([]byte(nil), h.partial...), piece...)
	stacks, rest := h.rules.consume(h.stacks, text)
	if len(rest) > 0 && !h.rules.partialMatches(stacks, rest) {
		return nil, nil
	}
	return stacks, rest
}

// Allows reports whether piece can be appended without leaving the grammar.
func (h *Handle) Allows(piece string) bool {
	stacks, _ := h.feed(piece)
	return len(stacks) > 0
}

// AllowsEnd reports whether the text accepted so far is a complete sentence.
func (h *Handle) AllowsEnd() bool {
	if len(h.partial) > 0 {
		return false
	}
	for _, s := range h.stacks {
		if len(s) == 0 {
			return true
		}
	}
	return false
}

// Accept advances the cursor past piece.
func (h *Handle) Accept(piece string) error {
	stacks, rest := h.feed(piece)
	if len(stacks) == 0 {
		return ErrRejected
	}
	h.stacks, h.partial = stacks, rest
	return nil
}

// Done reports whether no further input can be accepted.
func (h *Handle) Done() bool {
	for _, s := range h.stacks {
		if len(s) > 0 {
			return false
		}
	}
	return true
}

package grammar

import (
	"encoding/binary"
	"unicode/utf8"
)

type position struct {
	rule int32
	idx  int32
}

// stack is one way the grammar could continue: the innermost pending element
// is last. Stacks are never mutated once built, so clones may share them.
type stack []position

type stackSet struct {
	stacks []stack
	seen   map[string]struct{}
}

func key(s stack) string {
	b := make([]byte, 0, len(s)*8)
	for _, p := range s {
		b = binary.LittleEndian.AppendUint32(b, uint32(p.rule))
		b = binary.LittleEndian.AppendUint32(b, uint32(p.idx))
	}
	return string(b)
}

func (ss *stackSet) add(s stack) {
	k := key(s)
	if _, dup := ss.seen[k]; dup {
		return
	}
	ss.seen[k] = struct{}{}
	ss.stacks = append(ss.stacks, s)
}

func push(s stack, p ...position) stack {
	out := make(stack, len(s), len(s)+len(p))
	copy(out, s)
	return append(out, p...)
}

func (r *Rules) at(p position) element { return r.rules[p.rule][p.idx] }

// advance expands rule references at the top of s until every resulting
// stack is empty or has a character element on top.
func (r *Rules) advance(s stack, out *stackSet) {
	if len(s) == 0 {
		out.add(s)
		return
	}
	top := s[len(s)-1]
	el := r.at(top)
	switch el.typ {
	case elRuleRef:
		base := s[:len(s)-1]
		after := position{top.rule, top.idx + 1}
		for _, start := range r.alternatives(int(el.val)) {
			next := push(base)
			if !r.at(after).endsSequence() {
				next = append(next, after)
			}
			sub := position{int32(el.val), int32(start)}
			if !r.at(sub).endsSequence() {
				next = append(next, sub)
			}
			r.advance(next, out)
		}
	case elChar, elCharNot, elCharAny:
		out.add(s)
	}
}

// matchChar reports whether c matches the character element at p, and the
// index following the element and its alternates.
func (r *Rules) matchChar(p position, c rune) (bool, int32) {
	rule := r.rules[p.rule]
	i := p.idx
	first := rule[i]
	if first.typ == elCharAny {
		return true, i + 1
	}
	positive := first.typ == elChar
	found := false
	for {
		if rule[i+1].typ == elCharRngUpper {
			found = found || (uint32(c) >= rule[i].val && uint32(c) <= rule[i+1].val)
			i += 2
		} else {
			found = found || rule[i].val == uint32(c)
			i++
		}
		if rule[i].typ != elCharAlt {
			break
		}
	}
	return found == positive, i
}

func (r *Rules) initial() []stack {
	out := &stackSet{seen: make(map[string]struct{})}
	for _, start := range r.alternatives(r.root) {
		p := position{int32(r.root), int32(start)}
		if r.at(p).endsSequence() {
			out.add(stack{})
			continue
		}
		r.advance(stack{p}, out)
	}
	return out.stacks
}

func (r *Rules) acceptRune(stacks []stack, c rune) []stack {
	out := &stackSet{seen: make(map[string]struct{})}
	for _, s := range stacks {
		if len(s) == 0 {
			continue
		}
		top := s[len(s)-1]
		ok, next := r.matchChar(top, c)
		if !ok {
			continue
		}
		ns := push(s[:len(s)-1])
		if np := (position{top.rule, next}); !r.at(np).endsSequence() {
			ns = append(ns, np)
		}
		r.advance(ns, out)
	}
	return out.stacks
}

// consume feeds text through the grammar. A trailing incomplete UTF-8
// sequence is returned unconsumed so it can be completed by a later piece.
func (r *Rules) consume(stacks []stack, text []byte) ([]stack, []byte) {
	for len(text) > 0 {
		if !utf8.FullRune(text) {
			return stacks, text
		}
		c, size := utf8.DecodeRune(text)
		text = text[size:]
		stacks = r.acceptRune(stacks, c)
		if len(stacks) == 0 {
			return nil, nil
		}
	}
	return stacks, nil
}

// partialRange returns the smallest and largest code points that the
// incomplete UTF-8 prefix b could still decode to.
func partialRange(b []byte) (lo, hi uint32, ok bool) {
	lead := b[0]
	var n int
	var v uint32
	switch {
	case lead&0xE0 == 0xC0:
		n, v = 2, uint32(lead&0x1F)
	case lead&0xF0 == 0xE0:
		n, v = 3, uint32(lead&0x0F)
	case lead&0xF8 == 0xF0:
		n, v = 4, uint32(lead&0x07)
	default:
		return 0, 0, false
	}
	for _, c := range b[1:] {
		v = v<<6 | uint32(c&0x3F)
	}
	rest := uint(6 * (n - len(b)))
	return v << rest, v<<rest | (1<<rest - 1), true
}

// partialMatches reports whether any stack could accept a rune that starts
// with the incomplete prefix b.
func (r *Rules) partialMatches(stacks []stack, b []byte) bool {
	lo, hi, ok := partialRange(b)
	if !ok {
		return false
	}
	for _, s := range stacks {
		if len(s) == 0 {
			continue
		}
		top := s[len(s)-1]
		rule := r.rules[top.rule]
		i := top.idx
		switch rule[i].typ {
		case elCharAny, elCharNot:
			return true
		}
		for {
			a, z := rule[i].val, rule[i].val
			if rule[i+1].typ == elCharRngUpper {
				z = rule[i+1].val
				i += 2
			} else {
				i++
			}
			if a <= hi && z >= lo {
				return true
			}
			if rule[i].typ != elCharAlt {
				break
			}
		}
	}
	return false
}

// Package grammar compiles BNF-style grammars into rule tables and tracks a
// decoding cursor over them, so a sampler can mask tokens that would break the
// grammar.
//
// Syntax follows the llama.cpp GBNF dialect: `name ::= alternatives`,
// "literals", [character classes] including negation and ranges, `.` for any
// character, grouping with parentheses, the `*`, `+`, `?` and `{m,n}`
// repetition operators, and `#` comments. A rule named root is required.
package grammar

type elemType uint8

const (
	elEnd elemType = iota
	elAlt
	elRuleRef
	elChar
	elCharNot
	elCharRngUpper
	elCharAlt
	elCharAny
)

type element struct {
	typ elemType
	val uint32
}

func (e element) endsSequence() bool { return e.typ == elEnd || e.typ == elAlt }

// Rules is a compiled, immutable rule table. A single Rules value is shared
// by every Handle cloned from the same grammar.
type Rules struct {
	rules [][]element
	names []string
	root  int
}

// Len returns the number of rules, including generated ones.
func (r *Rules) Len() int { return len(r.rules) }

// Name returns the symbol name of rule i.
func (r *Rules) Name(i int) string { return r.names[i] }

// Root returns the index of the root rule.
func (r *Rules) Root() int { return r.root }

// alternatives returns the start index of every alternative of rule i.
func (r *Rules) alternatives(i int) []int {
	rule := r.rules[i]
	starts := []int{0}
	for j, e := range rule {
		if e.typ == elAlt {
			starts = append(starts, j+1)
		}
	}
	return starts
}

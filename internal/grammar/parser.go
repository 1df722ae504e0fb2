package grammar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMissingRoot is returned when a grammar has no rule named root.
var ErrMissingRoot = errors.New("grammar does not contain a root rule")

// SyntaxError reports a malformed grammar and where parsing stopped.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("grammar syntax error at offset %d: %s", e.Offset, e.Msg)
}

type parser struct {
	src     []rune
	pos     int
	symbols map[string]uint32
	names   []string
	rules   [][]element
}

// Compile parses src and returns its rule table.
func Compile(src string) (*Rules, error) {
	p := &parser{src: []rune(src), symbols: make(map[string]uint32)}
	if err := p.parse(); err != nil {
		return nil, err
	}
	for i, r := range p.rules {
		if r == nil {
			return nil, fmt.Errorf("undefined rule identifier %q", p.names[i])
		}
		for _, e := range r {
			if e.typ == elRuleRef && p.rules[e.val] == nil {
				return nil, fmt.Errorf("undefined rule identifier %q", p.names[e.val])
			}
		}
	}
	root, ok := p.symbols["root"]
	if !ok {
		return nil, ErrMissingRoot
	}
	rules := &Rules{rules: p.rules, names: p.names, root: int(root)}
	if err := checkLeftRecursion(rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (p *parser) fail(format string, args ...any) error {
	return &SyntaxError{Offset: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) symbol(name string) uint32 {
	if id, ok := p.symbols[name]; ok {
		return id
	}
	id := uint32(len(p.names))
	p.symbols[name] = id
	p.names = append(p.names, name)
	p.rules = append(p.rules, nil)
	return id
}

func (p *parser) generated(base string) uint32 {
	for i := len(p.names); ; i++ {
		name := base + "_" + strconv.Itoa(i)
		if _, taken := p.symbols[name]; !taken {
			return p.symbol(name)
		}
	}
}

func (p *parser) define(id uint32, rule []element) { p.rules[id] = rule }

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek(off int) rune {
	if p.pos+off >= len(p.src) {
		return 0
	}
	return p.src[p.pos+off]
}

func (p *parser) space(newlineOK bool) {
	for !p.eof() {
		switch c := p.src[p.pos]; {
		case c == ' ' || c == '\t':
			p.pos++
		case c == '#':
			for !p.eof() && p.src[p.pos] != '\n' && p.src[p.pos] != '\r' {
				p.pos++
			}
		case newlineOK && (c == '\n' || c == '\r'):
			p.pos++
		default:
			return
		}
	}
}

func isWordChar(c rune) bool {
	return c == '-' || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func (p *parser) name() (string, error) {
	start := p.pos
	for !p.eof() && isWordChar(p.src[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return "", p.fail("expecting name")
	}
	return string(p.src[start:p.pos]), nil
}

func (p *parser) parse() error {
	p.space(true)
	for !p.eof() {
		if err := p.rule(); err != nil {
			return err
		}
		p.space(true)
	}
	return nil
}

func (p *parser) rule() error {
	name, err := p.name()
	if err != nil {
		return err
	}
	p.space(false)
	if p.peek(0) != ':' || p.peek(1) != ':' || p.peek(2) != '=' {
		return p.fail("expecting ::= after %q", name)
	}
	p.pos += 3
	p.space(true)
	if err := p.alternates(name, p.symbol(name), false); err != nil {
		return err
	}
	if p.peek(0) == '\r' {
		p.pos++
	}
	if p.peek(0) == '\n' {
		p.pos++
	} else if !p.eof() {
		return p.fail("expecting newline or end of input")
	}
	return nil
}

func (p *parser) alternates(ruleName string, id uint32, nested bool) error {
	var rule []element
	if err := p.sequence(ruleName, &rule, nested); err != nil {
		return err
	}
	for p.peek(0) == '|' {
		p.pos++
		rule = append(rule, element{typ: elAlt})
		p.space(true)
		if err := p.sequence(ruleName, &rule, nested); err != nil {
			return err
		}
	}
	rule = append(rule, element{typ: elEnd})
	p.define(id, rule)
	return nil
}

func (p *parser) sequence(ruleName string, out *[]element, nested bool) error {
	last := len(*out)
	for !p.eof() {
		c := p.src[p.pos]
		switch {
		case c == '"':
			p.pos++
			last = len(*out)
			for p.peek(0) != '"' {
				if p.eof() {
					return p.fail("unexpected end of input in literal")
				}
				r, err := p.char()
				if err != nil {
					return err
				}
				*out = append(*out, element{typ: elChar, val: uint32(r)})
			}
			p.pos++
			p.space(nested)
		case c == '[':
			p.pos++
			typ := elChar
			if p.peek(0) == '^' {
				typ = elCharNot
				p.pos++
			}
			last = len(*out)
			first := true
			for p.peek(0) != ']' {
				if p.eof() {
					return p.fail("unexpected end of input in character class")
				}
				r, err := p.char()
				if err != nil {
					return err
				}
				t := elCharAlt
				if first {
					t = typ
				}
				*out = append(*out, element{typ: t, val: uint32(r)})
				if p.peek(0) == '-' && p.peek(1) != ']' && p.peek(1) != 0 {
					p.pos++
					hi, err := p.char()
					if err != nil {
						return err
					}
					*out = append(*out, element{typ: elCharRngUpper, val: uint32(hi)})
				}
				first = false
			}
			if first {
				return p.fail("empty character class")
			}
			p.pos++
			p.space(nested)
		case isWordChar(c):
			name, err := p.name()
			if err != nil {
				return err
			}
			last = len(*out)
			*out = append(*out, element{typ: elRuleRef, val: p.symbol(name)})
			p.space(nested)
		case c == '(':
			p.pos++
			p.space(true)
			sub := p.generated(ruleName)
			if err := p.alternates(ruleName, sub, true); err != nil {
				return err
			}
			if p.peek(0) != ')' {
				return p.fail("expecting ')'")
			}
			p.pos++
			last = len(*out)
			*out = append(*out, element{typ: elRuleRef, val: sub})
			p.space(nested)
		case c == '.':
			p.pos++
			last = len(*out)
			*out = append(*out, element{typ: elCharAny})
			p.space(nested)
		case c == '*' || c == '+' || c == '?':
			if last == len(*out) {
				return p.fail("expecting preceding item to %c", c)
			}
			p.pos++
			lo, hi := 0, -1
			switch c {
			case '+':
				lo = 1
			case '?':
				hi = 1
			}
			*out = p.repeat(ruleName, *out, last, lo, hi)
			p.space(nested)
		case c == '{':
			if last == len(*out) {
				return p.fail("expecting preceding item to {")
			}
			p.pos++
			lo, hi, err := p.bounds()
			if err != nil {
				return err
			}
			*out = p.repeat(ruleName, *out, last, lo, hi)
			p.space(nested)
		default:
			return nil
		}
	}
	return nil
}

// bounds parses the inside of {m}, {m,} or {m,n}; the opening brace has been consumed.
func (p *parser) bounds() (int, int, error) {
	p.space(false)
	lo, err := p.int()
	if err != nil {
		return 0, 0, err
	}
	p.space(false)
	hi := lo
	if p.peek(0) == ',' {
		p.pos++
		p.space(false)
		if p.peek(0) == '}' {
			hi = -1
		} else if hi, err = p.int(); err != nil {
			return 0, 0, err
		}
		p.space(false)
	}
	if p.peek(0) != '}' {
		return 0, 0, p.fail("expecting '}'")
	}
	p.pos++
	if hi >= 0 && hi < lo {
		return 0, 0, p.fail("invalid repetition bounds {%d,%d}", lo, hi)
	}
	return lo, hi, nil
}

func (p *parser) int() (int, error) {
	start := p.pos
	for !p.eof() && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	if start == p.pos {
		return 0, p.fail("expecting number")
	}
	return strconv.Atoi(string(p.src[start:p.pos]))
}

// repeat rewrites out[last:] to appear between lo and hi times (hi < 0 means
// unbounded) using generated right-recursive rules.
func (p *parser) repeat(ruleName string, out []element, last, lo, hi int) []element {
	item := append([]element(nil), out[last:]...)
	out = out[:last]
	for i := 0; i < lo; i++ {
		out = append(out, item...)
	}
	if hi == lo {
		return out
	}
	if hi < 0 {
		rec := p.generated(ruleName)
		rule := append(append([]element(nil), item...), element{typ: elRuleRef, val: rec}, element{typ: elAlt}, element{typ: elEnd})
		p.define(rec, rule)
		return append(out, element{typ: elRuleRef, val: rec})
	}
	var inner uint32
	for k := 0; k < hi-lo; k++ {
		id := p.generated(ruleName)
		rule := append([]element(nil), item...)
		if k > 0 {
			rule = append(rule, element{typ: elRuleRef, val: inner})
		}
		rule = append(rule, element{typ: elAlt}, element{typ: elEnd})
		p.define(id, rule)
		inner = id
	}
	return append(out, element{typ: elRuleRef, val: inner})
}

func hexValue(s []rune) (rune, bool) {
	v, err := strconv.ParseUint(string(s), 16, 32)
	return rune(v), err == nil
}

func (p *parser) char() (rune, error) {
	c := p.src[p.pos]
	if c != '\\' {
		p.pos++
		return c, nil
	}
	p.pos++
	if p.eof() {
		return 0, p.fail("unexpected end of input after escape")
	}
	e := p.src[p.pos]
	p.pos++
	switch e {
	case 'x', 'u', 'U':
		n := map[rune]int{'x': 2, 'u': 4, 'U': 8}[e]
		if p.pos+n > len(p.src) {
			return 0, p.fail("truncated \\%c escape", e)
		}
		r, ok := hexValue(p.src[p.pos : p.pos+n])
		if !ok {
			return 0, p.fail("invalid \\%c escape", e)
		}
		p.pos += n
		return r, nil
	case 't':
		return '\t', nil
	case 'n':
		return '\n', nil
	case 'r':
		return '\r', nil
	case '\\', '"', '[', ']', '-', '/':
		return e, nil
	default:
		return 0, p.fail("unknown escape \\%c", e)
	}
}

// Normalize canonicalises grammar text for cache lookups: CRLF line endings
// become LF and surrounding whitespace is trimmed.
func Normalize(src string) string {
	return strings.TrimSpace(strings.ReplaceAll(src, "\r\n", "\n"))
}

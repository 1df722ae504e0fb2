package grammar

import (
	"fmt"
	"strings"
)

// JSONRules holds the JSON value rules that object grammars build on.
const JSONRules = `value  ::= (object | array | string | number | boolean | null) ws

object ::=
  "{" ws (
    string ":" ws value
    ("," ws string ":" ws value)*
  )? "}"

array  ::=
  "[" ws01 (
    value
    ("," ws01 value)*
  )? "]"

string ::=
  "\"" (string-char)* "\""

string-char ::= [^"\\] | "\\" (["\\/bfnrt] | "u" [0-9a-fA-F] [0-9a-fA-F] [0-9a-fA-F] [0-9a-fA-F]) # escapes

number ::= integer ("." [0-9]+)? ([eE] [-+]? [0-9]+)?
integer ::= "-"? ([0-9] | [1-9] [0-9]*)
boolean ::= "true" | "false"
null ::= "null"

# Optional space: by convention, applied in this grammar after literal chars when allowed
ws ::= ([ \t\n] ws)?
ws01 ::= ([ \t\n])?
`

// Field is one required key of an object grammar.
type Field struct {
	Name string
	// Rule is the grammar rule matching the value, for example "string"
	// or "string-list".
	Rule string
}

// Object returns a grammar whose root is a single JSON object with exactly
// the given keys in order.
func Object(fields ...Field) string {
	var b strings.Builder
	b.WriteString(`root ::= "{" ws01 `)
	for i, f := range fields {
		if i > 0 {
			b.WriteString(` "," ws01 `)
		}
		fmt.Fprintf(&b, `root-%s`, f.Name)
	}
	b.WriteString(" \"}\" ws01\n")
	for _, f := range fields {
		fmt.Fprintf(&b, "root-%s ::= \"\\\"%s\\\"\" ws01 \":\" ws01 %s ws01\n", f.Name, f.Name, f.Rule)
	}
	b.WriteString("string-list ::= \"[\" ws01 (string ws01 (\",\" ws01 string ws01)*)? \"]\"\n\n")
	b.WriteString(JSONRules)
	return b.String()
}

// Answer is the single-field grammar {"answer": "..."}.
var Answer = Object(Field{Name: "answer", Rule: "string"})

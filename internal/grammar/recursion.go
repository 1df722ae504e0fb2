package grammar

import "fmt"

// LeftRecursionError names a rule that can reach itself without consuming input.
type LeftRecursionError struct{ Rule string }

func (e *LeftRecursionError) Error() string {
	return fmt.Sprintf("left recursion detected for rule %q", e.Rule)
}

func nullableRules(r *Rules) []bool {
	nullable := make([]bool, len(r.rules))
	for changed := true; changed; {
		changed = false
		for i := range r.rules {
			if nullable[i] {
				continue
			}
			for _, start := range r.alternatives(i) {
				if altNullable(r, nullable, i, start) {
					nullable[i], changed = true, true
					break
				}
			}
		}
	}
	return nullable
}

func altNullable(r *Rules, nullable []bool, rule, start int) bool {
	for _, e := range r.rules[rule][start:] {
		if e.endsSequence() {
			return true
		}
		if e.typ != elRuleRef || !nullable[e.val] {
			return false
		}
	}
	return true
}

func checkLeftRecursion(r *Rules) error {
	nullable := nullableRules(r)
	left := make([][]int, len(r.rules))
	for i := range r.rules {
		for _, start := range r.alternatives(i) {
			for _, e := range r.rules[i][start:] {
				if e.typ != elRuleRef {
					break
				}
				left[i] = append(left[i], int(e.val))
				if !nullable[e.val] {
					break
				}
			}
		}
	}
	const (
		unvisited = iota
		visiting
		done
	)
	mark := make([]int, len(r.rules))
	var visit func(i int) error
	visit = func(i int) error {
		switch mark[i] {
		case visiting:
			return &LeftRecursionError{Rule: r.names[i]}
		case done:
			return nil
		}
		mark[i] = visiting
		for _, j := range left[i] {
			if err := visit(j); err != nil {
				return err
			}
		}
		mark[i] = done
		return nil
	}
	for i := range r.rules {
		if err := visit(i); err != nil {
			return err
		}
	}
	return nil
}

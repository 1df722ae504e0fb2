package llm

import "strings"

// stopMatcher finds the first stop sequence in streamed text.
type stopMatcher struct {
	stops  []string
	maxLen int
}

func newStopMatcher(stops []string) stopMatcher {
	m := stopMatcher{}
	for _, s := range stops {
		if s == "" {
			continue
		}
		m.stops = append(m.stops, s)
		m.maxLen = max(m.maxLen, len(s))
	}
	return m
}

// find returns the index of the earliest stop sequence in text that ends at
// or after offset from, or -1. Only the tail that could contain a new match
// is searched.
func (m stopMatcher) find(text string, from int) int {
	if len(m.stops) == 0 {
		return -1
	}
	start := max(from-m.maxLen+1, 0)
	best := -1
	for _, s := range m.stops {
		if i := strings.Index(text[start:], s); i >= 0 && (best < 0 || start+i < best) {
			best = start + i
		}
	}
	return best
}

// trim cuts text at the first stop sequence, reporting whether one was found.
func (m stopMatcher) trim(text string) (string, bool) {
	if i := m.find(text, 0); i >= 0 {
		return text[:i], true
	}
	return text, false
}

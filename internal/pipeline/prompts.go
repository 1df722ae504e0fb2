package pipeline

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// DefaultQuestions is used when no corpus file is given.
var DefaultQuestions = []string{
	"What is a goroutine?",
	"Why do caches speed up programs?",
	"How does a hash map handle collisions?",
	"What makes a good unit test?",
	"Why is the sky blue?",
	"How do vaccines train the immune system?",
}

// NotesPrompt starts the first round for a question.
func NotesPrompt(question string) string {
	return fmt.Sprintf("Question: %s\nNotes:\n", question)
}

// ReseedPrompt continues a record from its question and accumulated
// response, ending with the heading of the pass being generated.
func ReseedPrompt(question, response string, pass Pass) string {
	heading := "Notes:"
	if pass == PassDraft {
		heading = "Draft:"
	}
	if response == "" {
		return fmt.Sprintf("Question: %s\n%s\n", question, heading)
	}
	return fmt.Sprintf("Question: %s\n%s\n%s\n", question, response, heading)
}

// OutlinePrompt asks for the top-level outline of notes.
func OutlinePrompt(question, notes string) string {
	return fmt.Sprintf("Question: %s\nNotes:\n%s\nWrite a JSON outline with a topic_sentence and three main_points.\n", question, notes)
}

// MainPointPrompt asks for the detail of main point i. point is empty when
// the outline slot could not be filled.
func MainPointPrompt(question, notes string, i int, point string) string {
	if point == "" {
		point = fmt.Sprintf("main point %d of the notes", i+1)
	}
	return fmt.Sprintf("Question: %s\nNotes:\n%s\nExpand %q as JSON with a main_point_summary and three supporting_points.\n", question, notes, point)
}

// LoadQuestions reads one question per non-blank line. Lines starting with
// # are skipped.
func LoadQuestions(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no questions in %s", path)
	}
	return out, nil
}

// Cycle assigns questions to n conversations round-robin.
func Cycle(questions []string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = questions[i%len(questions)]
	}
	return out
}

package structured

import (
	"fmt"
	"strings"

	"batchd/internal/grammar"
)

// MinListEntries is the fewest list entries a schema accepts.
const MinListEntries = 3

// Outline is the top-level outline of an answer.
type Outline struct {
	TopicSentence string   `json:"topic_sentence"`
	MainPoints    []string `json:"main_points"`
}

// MainPoint expands one main point of an Outline.
type MainPoint struct {
	MainPointSummary string   `json:"main_point_summary"`
	SupportingPoints []string `json:"supporting_points"`
}

var (
	OutlineGrammar = grammar.Object(
		grammar.Field{Name: "topic_sentence", Rule: "string"},
		grammar.Field{Name: "main_points", Rule: "string-list"},
	)
	MainPointGrammar = grammar.Object(
		grammar.Field{Name: "main_point_summary", Rule: "string"},
		grammar.Field{Name: "supporting_points", Rule: "string-list"},
	)
)

func (o Outline) Validate() error {
	if err := nonEmpty("topic_sentence", o.TopicSentence); err != nil {
		return err
	}
	return list("main_points", o.MainPoints)
}

func (m MainPoint) Validate() error {
	if err := nonEmpty("main_point_summary", m.MainPointSummary); err != nil {
		return err
	}
	return list("supporting_points", m.SupportingPoints)
}

func nonEmpty(field, s string) error {
	if strings.TrimSpace(s) == "" {
		return &ValidationError{Field: field, Reason: "empty"}
	}
	return nil
}

func list(field string, items []string) error {
	if len(items) < MinListEntries {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("%d entries, need at least %d", len(items), MinListEntries)}
	}
	for i, s := range items {
		if err := nonEmpty(fmt.Sprintf("%s[%d]", field, i), s); err != nil {
			return err
		}
	}
	return nil
}

// OutlineRequest asks for an Outline.
func OutlineRequest(prompt string) Request[Outline] {
	return Request[Outline]{Name: "outline", Prompt: prompt, Grammar: OutlineGrammar, Validate: Outline.Validate}
}

// MainPointRequest asks for the detail of main point i.
func MainPointRequest(i int, prompt string) Request[MainPoint] {
	return Request[MainPoint]{Name: fmt.Sprintf("main_point_%d", i), Prompt: prompt, Grammar: MainPointGrammar, Validate: MainPoint.Validate}
}

package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/inquiry-cli/internal/model"
	"github.com/sells-group/inquiry-cli/internal/stage"
)

// classifyInput is the context slice the classify stage declares.
type classifyInput struct {
	Query       string
	History     []model.SessionEntry
	Interactive bool
}

const classifySchemaHint = `{"category": "factual|comparative|exploratory|monitoring", "complexity": 1-10, "strategy": "quick-answer|multi-source|deep-dive", "topics": ["..."], "clarification": "optional follow-up question when the query is too ambiguous to classify"}`

// newClassifyAdapter builds the intelligence adapter for the classify stage.
func newClassifyAdapter(c stage.Completer, timeout time.Duration) *stage.Intelligence[classifyInput, model.Classification] {
	return &stage.Intelligence[classifyInput, model.Classification]{
		Name:      "classify",
		Completer: c,
		Timeout:   timeout,
		Prompt:    classifyPrompt,
		Validate:  validateClassification,
	}
}

func classifyPrompt(in classifyInput) (string, string) {
	var b strings.Builder
	b.WriteString("Classify this research question.\n\nQuestion: ")
	b.WriteString(in.Query)
	b.WriteString("\n")

	if len(in.History) > 0 {
		b.WriteString("\nThe user's recent questions, most recent first, for context only:\n")
		for i, entry := range in.History {
			if i >= 5 {
				break
			}
			fmt.Fprintf(&b, "- %s", entry.Query)
			if len(entry.Topics) > 0 {
				fmt.Fprintf(&b, " (topics: %s)", strings.Join(entry.Topics, ", "))
			}
			b.WriteString("\n")
		}
	}

	if in.Interactive {
		b.WriteString("\nIf the question is too ambiguous to research, set \"clarification\" to one short follow-up question instead of guessing.")
	} else {
		b.WriteString("\nDo not ask for clarification; pick the most likely reading.")
	}

	return b.String(), classifySchemaHint
}

func validateClassification(out model.Classification) error {
	if !out.ValidCategory() {
		return &stage.SchemaError{Stage: "classify", Detail: fmt.Sprintf("category %q outside allowed set", out.Category)}
	}
	if !out.ValidStrategy() {
		return &stage.SchemaError{Stage: "classify", Detail: fmt.Sprintf("strategy %q outside allowed set", out.Strategy)}
	}
	if out.Complexity < 1 || out.Complexity > 10 {
		return &stage.SchemaError{Stage: "classify", Detail: fmt.Sprintf("complexity %d outside 1-10", out.Complexity)}
	}
	return nil
}

package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/inquiry-cli/internal/model"
	"github.com/sells-group/inquiry-cli/internal/stage"
)

// formatInput is the context slice the format stage declares.
type formatInput struct {
	Query          string
	Classification model.Classification
	Facts          []model.ExtractedFact
	Conflicts      []model.Conflict
}

// formatOutput is the drafting record shape.
type formatOutput struct {
	Draft string `json:"draft"`
}

const formatSchemaHint = `{"draft": "organized findings as plain text, grouped by theme, noting source disagreements"}`

// newFormatAdapter builds the intelligence adapter for the draft stage.
func newFormatAdapter(c stage.Completer, timeout time.Duration) *stage.Intelligence[formatInput, formatOutput] {
	return &stage.Intelligence[formatInput, formatOutput]{
		Name:      "format",
		Completer: c,
		Timeout:   timeout,
		Prompt:    formatPrompt,
		Validate: func(out formatOutput) error {
			if strings.TrimSpace(out.Draft) == "" {
				return &stage.SchemaError{Stage: "format", Detail: "empty draft"}
			}
			return nil
		},
	}
}

func formatPrompt(in formatInput) (string, string) {
	var b strings.Builder
	b.WriteString("Organize the extracted facts below into a draft answering the research question. ")
	b.WriteString("Group related findings, keep every concrete figure, and call out where sources disagree.\n\nQuestion: ")
	b.WriteString(in.Query)
	fmt.Fprintf(&b, "\nCategory: %s, strategy: %s\n\nFacts:\n", in.Classification.Category, in.Classification.Strategy)

	for _, f := range in.Facts {
		fmt.Fprintf(&b, "- [%s] %s (sources: %s)\n", f.Attribute, f.Statement, strings.Join(f.Sources, ", "))
	}

	if len(in.Conflicts) > 0 {
		b.WriteString("\nDetected conflicts, with the recommended resolution:\n")
		for _, c := range in.Conflicts {
			fmt.Fprintf(&b, "- %s: recommended %s (%s)\n", c.Attribute, c.Recommended.String(), c.Rationale)
		}
	}

	return b.String(), formatSchemaHint
}

// noEvidenceDraft is the deterministic draft for the empty-fetch path. No
// intelligence call is made when there is nothing to summarize.
func noEvidenceDraft(query string) string {
	return fmt.Sprintf(
		"No sources could be retrieved for this query: %q. "+
			"The question could not be researched against live sources; no findings are reported. "+
			"Consider rephrasing the question or trying again later.",
		query,
	)
}

// fallbackDraft assembles a draft directly from facts when the format stage
// fails. Plain and uncited, but never empty.
func fallbackDraft(query string, facts []model.ExtractedFact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Findings for: %s\n\n", query)
	for _, f := range facts {
		fmt.Fprintf(&b, "- %s\n", f.Statement)
	}
	if len(facts) == 0 {
		b.WriteString("No usable findings were extracted from the retrieved sources.\n")
	}
	return b.String()
}

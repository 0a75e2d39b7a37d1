package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/inquiry-cli/internal/model"
	"github.com/sells-group/inquiry-cli/internal/stage"
)

// reportInput is the context slice the report stage declares.
type reportInput struct {
	Query          string
	Classification model.Classification
	Draft          string
	Scores         []model.CredibilityScore
}

// reportOutput is the synthesis record shape. Sources lists URLs in the
// order the model numbered them; indices are renumbered to first-use order
// afterward.
type reportOutput struct {
	Body       string                 `json:"body"`
	Sources    []string               `json:"sources"`
	Comparison *model.ComparisonTable `json:"comparison,omitempty"`
	FollowUps  []string               `json:"follow_ups,omitempty"`
}

const reportSchemaHint = `{"body": "final report with inline citation markers like [1]", "sources": ["url for marker 1", "url for marker 2"], "comparison": {"headers": ["..."], "rows": [["..."]]}, "follow_ups": ["..."]}`

// newReportAdapter builds the intelligence adapter for report synthesis.
func newReportAdapter(c stage.Completer, timeout time.Duration) *stage.Intelligence[reportInput, reportOutput] {
	return &stage.Intelligence[reportInput, reportOutput]{
		Name:      "report",
		Completer: c,
		Timeout:   timeout,
		Prompt:    reportPrompt,
		Validate: func(out reportOutput) error {
			if strings.TrimSpace(out.Body) == "" {
				return &stage.SchemaError{Stage: "report", Detail: "empty body"}
			}
			return nil
		},
	}
}

func reportPrompt(in reportInput) (string, string) {
	var b strings.Builder
	b.WriteString("Write the final research report from the draft below. ")
	b.WriteString("Cite every claim with an inline marker [n] where n indexes into the sources array you return. ")
	b.WriteString("Only cite the sources listed; prefer the higher-credibility ones.\n")
	if in.Classification.Category == model.CategoryComparative {
		b.WriteString("This is a comparative question: include a populated comparison table.\n")
	}
	fmt.Fprintf(&b, "\nQuestion: %s\n\nDraft:\n%s\n\nAvailable sources with credibility scores:\n", in.Query, in.Draft)
	for _, s := range in.Scores {
		fmt.Fprintf(&b, "- %s (credibility %.0f, %s)\n", s.SourceURL, s.Score, s.Band)
	}
	return b.String(), reportSchemaHint
}

var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

// buildReport converts a synthesis record into a Report with citation
// indices renumbered to first-use order. Markers pointing outside the
// sources array are left in the body for the validator to flag.
func buildReport(out reportOutput, scores []model.CredibilityScore) model.Report {
	credByURL := make(map[string]float64, len(scores))
	for _, s := range scores {
		credByURL[s.SourceURL] = s.Score
	}

	renumber := make(map[int]int)
	var citations []model.Citation

	body := citationMarker.ReplaceAllStringFunc(out.Body, func(marker string) string {
		old, err := strconv.Atoi(citationMarker.FindStringSubmatch(marker)[1])
		if err != nil || old < 1 || old > len(out.Sources) {
			return marker
		}
		next, seen := renumber[old]
		if !seen {
			next = len(citations) + 1
			renumber[old] = next
			url := out.Sources[old-1]
			citations = append(citations, model.Citation{
				Index:       next,
				SourceURL:   url,
				Credibility: credByURL[url],
			})
		}
		return fmt.Sprintf("[%d]", next)
	})

	return model.Report{
		Body:       body,
		Citations:  citations,
		Comparison: out.Comparison,
		FollowUps:  out.FollowUps,
	}
}

package pipeline

import (
	"github.com/sells-group/inquiry-cli/internal/model"
)

// Context is the append-only accumulation carried across stages. Each stage
// adapter receives only the slice of context it needs; only the controller
// goroutine appends to it, so no locking is required.
type Context struct {
	Query          model.Query
	Classification model.Classification
	URLs           []string
	Documents      []model.SourceDocument
	Facts          []model.ExtractedFact
	Scores         []model.CredibilityScore
	Conflicts      []model.Conflict
	Draft          string
	Report         *model.Report
	Quality        *model.QualityReport

	// NoEvidence marks the empty-fetch path: downstream stages treat it as
	// valid input and produce a report saying so directly.
	NoEvidence bool
}

// Options controls one pipeline invocation.
type Options struct {
	// Interactive allows the classifier to pause the pipeline with a
	// clarification question instead of guessing.
	Interactive bool

	// SessionID continues an existing session; empty starts a new one.
	SessionID string
}

// Outcome is the result of Run or Resume. When Status is
// RunStatusAwaiting, Clarification holds the question to put to the user and
// the caller resolves it via Resume; otherwise Report and Quality are set.
type Outcome struct {
	RunID          string
	SessionID      string
	Status         model.RunStatus
	Classification model.Classification
	Report         *model.Report
	Quality        *model.QualityReport
	Conflicts      []model.Conflict
	Clarification  string
	TotalTokens    int
	TotalCost      float64
}

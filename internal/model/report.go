package model

// Citation links an in-body marker [n] to its source. Indices are stable
// within one report and assigned in first-use order.
type Citation struct {
	Index       int     `json:"index"`
	SourceURL   string  `json:"source_url"`
	Credibility float64 `json:"credibility"` // score at report generation time
}

// ComparisonTable is the optional side-by-side matrix for comparative queries.
type ComparisonTable struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Populated reports whether the table has at least one data row and cell.
func (t *ComparisonTable) Populated() bool {
	if t == nil || len(t.Headers) == 0 || len(t.Rows) == 0 {
		return false
	}
	for _, row := range t.Rows {
		for _, cell := range row {
			if cell != "" {
				return true
			}
		}
	}
	return false
}

// Report is the finished research artifact. Immutable once validated.
type Report struct {
	Body           string           `json:"body"`
	Citations      []Citation       `json:"citations,omitempty"`
	Comparison     *ComparisonTable `json:"comparison,omitempty"`
	FollowUps      []string         `json:"follow_ups,omitempty"`
	Degraded       bool             `json:"degraded,omitempty"`
	DegradedReason string           `json:"degraded_reason,omitempty"`
}

// Grade is the letter band for an overall quality score.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// GradeFor maps a 0-100 overall score to a letter grade.
func GradeFor(score float64) Grade {
	switch {
	case score >= 90:
		return GradeA
	case score >= 80:
		return GradeB
	case score >= 70:
		return GradeC
	case score >= 60:
		return GradeD
	default:
		return GradeF
	}
}

// QualityComponents holds the validator's weighted component scores (0-100).
type QualityComponents struct {
	SourceQuality       float64 `json:"source_quality"`       // citation-weighted, 35%
	CitationCorrectness float64 `json:"citation_correctness"` // 25%
	Completeness        float64 `json:"completeness"`         // 20%
	ComparisonQuality   float64 `json:"comparison_quality"`   // 20% when applicable
	ComparisonScored    bool    `json:"comparison_scored"`
}

// QualityReport is the validator's read-only assessment of a Report.
type QualityReport struct {
	Overall         float64           `json:"overall"`
	Grade           Grade             `json:"grade"`
	Components      QualityComponents `json:"components"`
	Issues          []string          `json:"issues,omitempty"`
	Recommendations []string          `json:"recommendations,omitempty"`
}

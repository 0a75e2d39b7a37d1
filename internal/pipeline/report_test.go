package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/inquiry-cli/internal/model"
)

func testScores() []model.CredibilityScore {
	return []model.CredibilityScore{
		{SourceURL: "https://a.example", Score: 90},
		{SourceURL: "https://b.example", Score: 60},
		{SourceURL: "https://c.example", Score: 40},
	}
}

func TestBuildReport_RenumbersToFirstUseOrder(t *testing.T) {
	out := reportOutput{
		Body:    "Second source first [2], then the first [1], second again [2].",
		Sources: []string{"https://a.example", "https://b.example"},
	}

	report := buildReport(out, testScores())

	assert.Equal(t, "Second source first [1], then the first [2], second again [1].", report.Body)
	require.Len(t, report.Citations, 2)
	assert.Equal(t, model.Citation{Index: 1, SourceURL: "https://b.example", Credibility: 60}, report.Citations[0])
	assert.Equal(t, model.Citation{Index: 2, SourceURL: "https://a.example", Credibility: 90}, report.Citations[1])
}

func TestBuildReport_OutOfRangeMarkerLeftForValidator(t *testing.T) {
	out := reportOutput{
		Body:    "Cited [1] and fabricated [7].",
		Sources: []string{"https://a.example"},
	}

	report := buildReport(out, testScores())

	assert.Contains(t, report.Body, "[7]")
	require.Len(t, report.Citations, 1)
	assert.Equal(t, "https://a.example", report.Citations[0].SourceURL)
}

func TestBuildReport_UnknownSourceGetsZeroCredibility(t *testing.T) {
	out := reportOutput{
		Body:    "From an unscored source [1].",
		Sources: []string{"https://never-scored.example"},
	}

	report := buildReport(out, testScores())

	require.Len(t, report.Citations, 1)
	assert.Zero(t, report.Citations[0].Credibility)
}

func TestBuildReport_NoMarkers(t *testing.T) {
	out := reportOutput{
		Body:    "A body with no citations at all.",
		Sources: []string{"https://a.example"},
	}

	report := buildReport(out, testScores())

	assert.Empty(t, report.Citations)
	assert.Equal(t, out.Body, report.Body)
}

func TestBuildReport_CarriesComparisonAndFollowUps(t *testing.T) {
	out := reportOutput{
		Body:    "Compared [1].",
		Sources: []string{"https://a.example"},
		Comparison: &model.ComparisonTable{
			Headers: []string{"Source", "Price"},
			Rows:    [][]string{{"A", "248.00"}},
		},
		FollowUps: []string{"Does the price include shipping?"},
	}

	report := buildReport(out, testScores())

	require.NotNil(t, report.Comparison)
	assert.True(t, report.Comparison.Populated())
	assert.Equal(t, []string{"Does the price include shipping?"}, report.FollowUps)
}

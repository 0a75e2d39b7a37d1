// Package quality scores finished reports. The validator is a pure
// read-only pass; it never mutates the report it inspects.
package quality

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/sells-group/inquiry-cli/internal/model"
)

// Component weights. Comparison quality is redistributed proportionally to
// the other three when the query type does not call for a comparison.
const (
	weightSourceQuality       = 0.35
	weightCitationCorrectness = 0.25
	weightCompleteness        = 0.20
	weightComparison          = 0.20
)

const minBodyLength = 100

var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

// Validate scores a report against its classification and the credibility
// of its cited sources. Same inputs always produce the same QualityReport.
func Validate(report model.Report, classification model.Classification, scores []model.CredibilityScore) model.QualityReport {
	var issues, recommendations []string

	credByURL := make(map[string]float64, len(scores))
	for _, s := range scores {
		credByURL[s.SourceURL] = s.Score
	}

	occurrences := markerOccurrences(report.Body)

	sourceQuality, sqIssues := scoreSourceQuality(report, occurrences, credByURL)
	issues = append(issues, sqIssues...)

	correctness, ccIssues := scoreCitationCorrectness(report, occurrences)
	issues = append(issues, ccIssues...)

	comparative := classification.Category == model.CategoryComparative

	completeness, cpIssues := scoreCompleteness(report, comparative)
	issues = append(issues, cpIssues...)

	var comparison float64
	components := model.QualityComponents{
		SourceQuality:       round2(sourceQuality),
		CitationCorrectness: round2(correctness),
		Completeness:        round2(completeness),
	}

	var overall float64
	if comparative {
		var cmIssues []string
		comparison, cmIssues = scoreComparison(report)
		issues = append(issues, cmIssues...)
		components.ComparisonQuality = round2(comparison)
		components.ComparisonScored = true

		overall = sourceQuality*weightSourceQuality +
			correctness*weightCitationCorrectness +
			completeness*weightCompleteness +
			comparison*weightComparison
	} else {
		// Redistribute the comparison weight proportionally.
		scale := 1.0 / (1.0 - weightComparison)
		overall = (sourceQuality*weightSourceQuality +
			correctness*weightCitationCorrectness +
			completeness*weightCompleteness) * scale
	}

	if report.Degraded {
		issue := "report synthesis degraded"
		if report.DegradedReason != "" {
			issue += ": " + report.DegradedReason
		}
		issues = append(issues, issue)
	}

	recommendations = append(recommendations, recommend(report, occurrences, scores, sourceQuality)...)

	overall = math.Min(100, math.Max(0, overall))

	qr := model.QualityReport{
		Overall:         round2(overall),
		Grade:           model.GradeFor(overall),
		Components:      components,
		Issues:          issues,
		Recommendations: recommendations,
	}

	zap.L().Info("quality: report validated",
		zap.Float64("overall", qr.Overall),
		zap.String("grade", string(qr.Grade)),
		zap.Int("issues", len(qr.Issues)),
	)

	return qr
}

// markerOccurrences counts in-body citation marker frequency per index.
func markerOccurrences(body string) map[int]int {
	occ := make(map[int]int)
	for _, m := range citationMarker.FindAllStringSubmatch(body, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		occ[n]++
	}
	return occ
}

// scoreSourceQuality computes the citation-weighted credibility of the
// report: sum(occurrences_i * credibility_i) / sum(occurrences_i). Sources
// that were available but never cited contribute nothing.
func scoreSourceQuality(report model.Report, occurrences map[int]int, credByURL map[string]float64) (float64, []string) {
	if len(report.Citations) == 0 || len(occurrences) == 0 {
		return 0, []string{"report cites no sources"}
	}

	credByIndex := make(map[int]float64, len(report.Citations))
	for _, c := range report.Citations {
		cred := c.Credibility
		if cred == 0 {
			cred = credByURL[c.SourceURL]
		}
		credByIndex[c.Index] = cred
	}

	var weighted, total float64
	for index, count := range occurrences {
		cred, ok := credByIndex[index]
		if !ok {
			continue // fabricated index, charged under correctness
		}
		weighted += float64(count) * cred
		total += float64(count)
	}
	if total == 0 {
		return 0, []string{"no in-body citation resolves to a listed source"}
	}

	score := weighted / total
	var issues []string
	if score < 50 {
		issues = append(issues, "report leans on low-credibility sources")
	}
	return score, issues
}

// scoreCitationCorrectness checks the marker/list bijection: every in-body
// marker resolves to a listed citation and every listed citation is used.
func scoreCitationCorrectness(report model.Report, occurrences map[int]int) (float64, []string) {
	if len(report.Citations) == 0 && len(occurrences) == 0 {
		// Nothing to get wrong.
		return 100, nil
	}

	listed := make(map[int]bool, len(report.Citations))
	for _, c := range report.Citations {
		listed[c.Index] = true
	}

	var fabricated, unused []int
	for index := range occurrences {
		if !listed[index] {
			fabricated = append(fabricated, index)
		}
	}
	for index := range listed {
		if occurrences[index] == 0 {
			unused = append(unused, index)
		}
	}
	sort.Ints(fabricated)
	sort.Ints(unused)

	var issues []string
	for _, n := range fabricated {
		issues = append(issues, fmt.Sprintf("citation marker [%d] has no listed source", n))
	}
	for _, n := range unused {
		issues = append(issues, fmt.Sprintf("listed citation [%d] is never referenced in the body", n))
	}

	score := 100 - float64(len(fabricated)+len(unused))*20
	return math.Max(0, score), issues
}

// scoreCompleteness checks structural requirements for the report type.
func scoreCompleteness(report model.Report, comparative bool) (float64, []string) {
	score := 100.0
	var issues []string

	if len(report.Body) < minBodyLength {
		score -= 50
		issues = append(issues, "report body is too short")
	}
	if len(report.Citations) == 0 {
		score -= 30
		issues = append(issues, "report has no citation list")
	}
	if comparative && !report.Comparison.Populated() {
		score -= 40
		issues = append(issues, "comparative query is missing a comparison section")
	}

	return math.Max(0, score), issues
}

// scoreComparison judges the comparison matrix itself. Only called for
// comparative classifications.
func scoreComparison(report model.Report) (float64, []string) {
	if !report.Comparison.Populated() {
		return 0, nil // already flagged under completeness
	}

	score := 60.0
	var issues []string

	if len(report.Comparison.Headers) >= 2 {
		score += 10
	}
	if len(report.Comparison.Rows) >= 2 {
		score += 10
	}

	consistent := true
	for _, row := range report.Comparison.Rows {
		if len(row) != len(report.Comparison.Headers) {
			consistent = false
			break
		}
	}
	if consistent {
		score += 20
	} else {
		issues = append(issues, "comparison rows do not match the header width")
	}

	return math.Min(100, score), issues
}

// recommend produces actionable follow-ups, notably when high-credibility
// sources were available but underused.
func recommend(report model.Report, occurrences map[int]int, scores []model.CredibilityScore, sourceQuality float64) []string {
	var recs []string

	citedURLs := make(map[string]bool, len(report.Citations))
	for _, c := range report.Citations {
		if occurrences[c.Index] > 0 {
			citedURLs[c.SourceURL] = true
		}
	}

	var uncitedHigh int
	for _, s := range scores {
		if s.Score >= 80 && !citedURLs[s.SourceURL] {
			uncitedHigh++
		}
	}
	if uncitedHigh > 0 {
		recs = append(recs, fmt.Sprintf("%d high-credibility source(s) were retrieved but never cited", uncitedHigh))
	}
	if sourceQuality > 0 && sourceQuality < 60 {
		recs = append(recs, "rebalance citations toward higher-credibility sources")
	}

	return recs
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

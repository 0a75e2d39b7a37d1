// Package conflict compares normalized facts across sources and flags
// disagreements above a materiality threshold.
package conflict

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/inquiry-cli/internal/model"
)

// DefaultMateriality is the relative spread above which numeric values are
// considered in conflict. Exposed as configuration; this is only the default.
const DefaultMateriality = 0.15

// Detector finds material disagreements between sources.
type Detector struct {
	// Materiality is the minimum relative spread (max-min)/min for a
	// numeric conflict. Categorical attributes conflict on any
	// disagreement after normalization.
	Materiality float64
}

// NewDetector creates a Detector. A non-positive materiality falls back to
// the default.
func NewDetector(materiality float64) *Detector {
	if materiality <= 0 {
		materiality = DefaultMateriality
	}
	return &Detector{Materiality: materiality}
}

// Detect groups facts by normalized attribute and returns one Conflict per
// attribute whose values disagree materially. Single-source attributes never
// conflict. Each conflict recommends the value backed by the highest
// aggregate credibility, ties broken by fetch recency.
func (d *Detector) Detect(facts []model.ExtractedFact, docs []model.SourceDocument, scores []model.CredibilityScore) []model.Conflict {
	credByURL := make(map[string]float64, len(scores))
	for _, s := range scores {
		credByURL[s.SourceURL] = s.Score
	}
	fetchedByURL := make(map[string]time.Time, len(docs))
	for _, doc := range docs {
		fetchedByURL[doc.URL] = doc.FetchedAt
	}

	groups := groupByAttribute(facts)

	attrs := make([]string, 0, len(groups))
	for attr := range groups {
		attrs = append(attrs, attr)
	}
	sort.Strings(attrs) // deterministic output order

	var conflicts []model.Conflict
	for _, attr := range attrs {
		values := groups[attr]
		if len(values) < 2 {
			continue
		}

		c, ok := d.evaluate(attr, values, credByURL, fetchedByURL)
		if !ok {
			continue
		}
		conflicts = append(conflicts, c)

		zap.L().Info("conflict: material disagreement",
			zap.String("attribute", attr),
			zap.Int("values", len(c.Values)),
			zap.Float64("spread", c.Spread),
		)
	}

	return conflicts
}

// evaluate decides whether an attribute's distinct values constitute a
// conflict, and if so builds the Conflict record.
func (d *Detector) evaluate(attr string, values []model.ConflictValue, cred map[string]float64, fetched map[string]time.Time) (model.Conflict, bool) {
	numeric := true
	for _, v := range values {
		if !v.Value.Numeric() {
			numeric = false
			break
		}
	}

	var spread float64
	if numeric {
		min, max := values[0].Value.Number, values[0].Value.Number
		for _, v := range values[1:] {
			if v.Value.Number < min {
				min = v.Value.Number
			}
			if v.Value.Number > max {
				max = v.Value.Number
			}
		}
		if min <= 0 {
			return model.Conflict{}, false
		}
		spread = (max - min) / min
		if spread <= d.Materiality {
			return model.Conflict{}, false
		}
	}
	// Categorical: reaching here with >=2 distinct normalized values is a
	// conflict by definition.

	rec, recSource := recommend(values, cred, fetched)

	return model.Conflict{
		Attribute:         attr,
		Values:            values,
		Spread:            spread,
		Recommended:       rec,
		RecommendedSource: recSource,
		Rationale: fmt.Sprintf("backed by highest aggregate source credibility (%.0f)",
			aggregateCredibility(supportersOf(values, rec), cred)),
	}, true
}

// recommend picks the competing value with the highest aggregate supporter
// credibility; ties break toward the most recently fetched supporter.
func recommend(values []model.ConflictValue, cred map[string]float64, fetched map[string]time.Time) (model.NormalizedValue, string) {
	best := values[0]
	bestCred := aggregateCredibility(best.Sources, cred)
	bestTime := latestFetch(best.Sources, fetched)

	for _, v := range values[1:] {
		c := aggregateCredibility(v.Sources, cred)
		ts := latestFetch(v.Sources, fetched)
		if c > bestCred || (c == bestCred && ts.After(bestTime)) {
			best, bestCred, bestTime = v, c, ts
		}
	}

	source := ""
	if len(best.Sources) > 0 {
		source = best.Sources[0]
	}
	return best.Value, source
}

func aggregateCredibility(sources []string, cred map[string]float64) float64 {
	var sum float64
	for _, s := range sources {
		sum += cred[s]
	}
	return sum
}

func latestFetch(sources []string, fetched map[string]time.Time) time.Time {
	var latest time.Time
	for _, s := range sources {
		if ts := fetched[s]; ts.After(latest) {
			latest = ts
		}
	}
	return latest
}

func supportersOf(values []model.ConflictValue, v model.NormalizedValue) []string {
	for _, cv := range values {
		if cv.Value.Key() == v.Key() {
			return cv.Sources
		}
	}
	return nil
}

// groupByAttribute collapses facts into distinct values per attribute,
// merging the supporting sources of facts that agree after normalization.
func groupByAttribute(facts []model.ExtractedFact) map[string][]model.ConflictValue {
	groups := make(map[string][]model.ConflictValue)
	for _, f := range facts {
		if f.Attribute == "" {
			continue
		}
		key := f.Value.Key()
		values := groups[f.Attribute]

		merged := false
		for i, v := range values {
			if v.Value.Key() == key {
				values[i].Sources = appendUnique(v.Sources, f.Sources...)
				merged = true
				break
			}
		}
		if !merged {
			values = append(values, model.ConflictValue{
				Value:   f.Value,
				Sources: appendUnique(nil, f.Sources...),
			})
		}
		groups[f.Attribute] = values
	}
	return groups
}

func appendUnique(dst []string, items ...string) []string {
	for _, it := range items {
		seen := false
		for _, existing := range dst {
			if existing == it {
				seen = true
				break
			}
		}
		if !seen {
			dst = append(dst, it)
		}
	}
	return dst
}

package credibility

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/inquiry-cli/internal/model"
)

const (
	maxDomainAuthority = 40
	maxContentQuality  = 30
	maxConsistency     = 30

	defaultAuthority = 18 // uncategorized hosts
)

// Scorer computes credibility scores for source documents.
type Scorer struct {
	cfg Config
	now func() time.Time // injectable for testing
}

// NewScorer creates a Scorer from a config.
func NewScorer(cfg Config) *Scorer {
	if cfg.NeutralConsistency <= 0 {
		cfg.NeutralConsistency = DefaultConfig().NeutralConsistency
	}
	if len(cfg.Domains) == 0 {
		cfg.Domains = DefaultConfig().Domains
	}
	return &Scorer{cfg: cfg, now: time.Now}
}

// WithNow fixes the clock for testing.
func (s *Scorer) WithNow(t time.Time) *Scorer {
	s.now = func() time.Time { return t }
	return s
}

// Score computes the credibility of one document. Facts carry the
// normalized attribute values used for the cross-source consistency
// component; they may span all sources.
func (s *Scorer) Score(doc model.SourceDocument, facts []model.ExtractedFact) model.CredibilityScore {
	var factors []string

	authority, category := s.domainAuthority(doc.URL)
	factors = append(factors, fmt.Sprintf("domain category %s (%.0f/40)", category, authority))

	quality, qualityFactors := s.contentQuality(doc)
	factors = append(factors, qualityFactors...)

	consistency, consFactor := s.consistency(doc, facts)
	factors = append(factors, consFactor)

	total := math.Min(100, math.Max(0, authority+quality+consistency))

	return model.CredibilityScore{
		SourceURL: doc.URL,
		Score:     math.Round(total*100) / 100,
		Band:      model.BandFor(total),
		Components: model.CredibilityComponents{
			DomainAuthority: authority,
			ContentQuality:  quality,
			Consistency:     consistency,
		},
		Factors: factors,
	}
}

// ScoreAll scores every usable document in a batch, in input order.
func (s *Scorer) ScoreAll(docs []model.SourceDocument, facts []model.ExtractedFact) []model.CredibilityScore {
	scores := make([]model.CredibilityScore, 0, len(docs))
	for _, doc := range docs {
		score := s.Score(doc, facts)
		scores = append(scores, score)

		zap.L().Debug("credibility: scored source",
			zap.String("url", doc.URL),
			zap.Float64("score", score.Score),
			zap.String("band", string(score.Band)),
		)
	}
	return scores
}

// domainAuthority looks the document's host up in the category table.
func (s *Scorer) domainAuthority(rawURL string) (float64, string) {
	host := hostOf(rawURL)
	if host == "" {
		return defaultAuthority, "unknown"
	}

	for _, cat := range s.cfg.Domains {
		for _, d := range cat.Domains {
			if host == d || strings.HasSuffix(host, "."+strings.TrimPrefix(d, ".")) ||
				(strings.HasPrefix(d, ".") && strings.HasSuffix(host, d)) {
				return clampComponent(cat.Authority, maxDomainAuthority), cat.Name
			}
		}
		for _, kw := range cat.Keywords {
			if strings.Contains(host, kw) {
				return clampComponent(cat.Authority, maxDomainAuthority), cat.Name
			}
		}
	}

	return defaultAuthority, "uncategorized"
}

var numberPattern = regexp.MustCompile(`\d[\d,.]*`)

// contentQuality scores structure, specificity and recency signals (0-30).
func (s *Scorer) contentQuality(doc model.SourceDocument) (float64, []string) {
	var score float64
	var factors []string

	if doc.Content != "" {
		score += 10
	}
	if doc.Structured != nil {
		score += 8
		factors = append(factors, "structured product data present")
	}

	// Specificity: concrete figures in the content.
	if n := len(numberPattern.FindAllString(doc.Content, 20)); n > 0 {
		bonus := math.Min(float64(n)*0.5, 6)
		score += bonus
		factors = append(factors, fmt.Sprintf("specificity: %d numeric values", n))
	}

	if len(doc.Content) >= 800 {
		score += 3
		factors = append(factors, "substantial content length")
	}

	// Recency: content mentioning the current or previous year.
	year := s.now().Year()
	if strings.Contains(doc.Content, fmt.Sprintf("%d", year)) ||
		strings.Contains(doc.Content, fmt.Sprintf("%d", year-1)) {
		score += 3
		factors = append(factors, "recent date signals")
	}

	return clampComponent(score, maxContentQuality), factors
}

// consistency scores agreement with the peer majority per normalized
// attribute (0-30). No peer overlap on any attribute yields the neutral
// baseline; contradicting a majority formed by two or more other sources
// yields zero for that attribute.
func (s *Scorer) consistency(doc model.SourceDocument, facts []model.ExtractedFact) (float64, string) {
	byAttr := groupValuesByAttribute(facts)

	var total float64
	var scored int
	for _, entries := range byAttr {
		mine, ok := entries[doc.URL]
		if !ok {
			continue
		}

		// Count peer sources per value key.
		counts := make(map[string]int)
		var peerTotal int
		for src, key := range entries {
			if src == doc.URL {
				continue
			}
			counts[key]++
			peerTotal++
		}

		if peerTotal == 0 {
			// No peer overlap on this attribute: neutral.
			total += s.cfg.NeutralConsistency
			scored++
			continue
		}

		majorityKey, majorityCount := "", 0
		for key, n := range counts {
			if n > majorityCount {
				majorityKey, majorityCount = key, n
			}
		}

		switch {
		case mine == majorityKey:
			total += maxConsistency
		case majorityCount >= 2:
			// Contradicts a real majority.
			total += 0
		default:
			// One-on-one disagreement: split the difference.
			total += s.cfg.NeutralConsistency / 2
		}
		scored++
	}

	if scored == 0 {
		return s.cfg.NeutralConsistency, "no peer overlap: neutral consistency"
	}

	avg := clampComponent(total/float64(scored), maxConsistency)
	return avg, fmt.Sprintf("cross-source consistency over %d attributes (%.0f/30)", scored, avg)
}

// groupValuesByAttribute maps attribute -> source URL -> canonical value key.
func groupValuesByAttribute(facts []model.ExtractedFact) map[string]map[string]string {
	byAttr := make(map[string]map[string]string)
	for _, f := range facts {
		if f.Attribute == "" {
			continue
		}
		entries := byAttr[f.Attribute]
		if entries == nil {
			entries = make(map[string]string)
			byAttr[f.Attribute] = entries
		}
		key := f.Value.Key()
		for _, src := range f.Sources {
			if _, exists := entries[src]; !exists {
				entries[src] = key
			}
		}
	}
	return byAttr
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}

func clampComponent(v, max float64) float64 {
	return math.Min(max, math.Max(0, v))
}

package model

import "time"

// FetchStatus is the terminal outcome of one fetch attempt.
type FetchStatus string

const (
	FetchOK         FetchStatus = "ok"
	FetchHTTPError  FetchStatus = "http-error"
	FetchTimeout    FetchStatus = "timeout"
	FetchBlocked    FetchStatus = "blocked"
	FetchParseError FetchStatus = "parse-error"
)

// StructuredFields carries normalized product data from the shopping
// provider, attached to a SourceDocument when available.
type StructuredFields struct {
	Price    float64 `json:"price,omitempty"`
	Currency string  `json:"currency,omitempty"`
	Rating   float64 `json:"rating,omitempty"`
	Seller   string  `json:"seller,omitempty"`
}

// SourceDocument is one fetched piece of content plus provenance.
// Immutable after creation; each fetch attempt creates a new document.
type SourceDocument struct {
	URL        string            `json:"url"`
	Title      string            `json:"title,omitempty"`
	Content    string            `json:"content,omitempty"`
	Structured *StructuredFields `json:"structured,omitempty"`
	Status     FetchStatus       `json:"status"`
	Rank       int               `json:"rank"` // original position in the retrieved URL set
	FetchedAt  time.Time         `json:"fetched_at"`
}

// Usable reports whether the document carries evidence the pipeline can use.
func (d SourceDocument) Usable() bool {
	return d.Status == FetchOK && (d.Content != "" || d.Structured != nil)
}

// CredibilityBand labels a credibility score range.
type CredibilityBand string

const (
	BandHigh        CredibilityBand = "high"
	BandMedium      CredibilityBand = "medium"
	BandLow         CredibilityBand = "low"
	BandNotCredible CredibilityBand = "not-credible"
)

// BandFor maps a 0-100 credibility score into its band.
func BandFor(score float64) CredibilityBand {
	switch {
	case score >= 80:
		return BandHigh
	case score >= 60:
		return BandMedium
	case score >= 40:
		return BandLow
	default:
		return BandNotCredible
	}
}

// CredibilityComponents breaks a credibility score into its parts.
type CredibilityComponents struct {
	DomainAuthority float64 `json:"domain_authority"` // 0-40
	ContentQuality  float64 `json:"content_quality"`  // 0-30
	Consistency     float64 `json:"consistency"`      // 0-30
}

// CredibilityScore is the 0-100 trust estimate for one source document.
// Computed once, read-only afterward.
type CredibilityScore struct {
	SourceURL  string                `json:"source_url"`
	Score      float64               `json:"score"`
	Band       CredibilityBand       `json:"band"`
	Components CredibilityComponents `json:"components"`
	Factors    []string              `json:"factors,omitempty"`
}

package model

import (
	"fmt"
	"strings"
	"time"
)

// ValueKind types a normalized fact value.
type ValueKind string

const (
	KindCurrency ValueKind = "currency"
	KindRating   ValueKind = "rating"
	KindDate     ValueKind = "date"
	KindText     ValueKind = "text"
)

// NormalizedValue is a typed fact value comparable across sources.
type NormalizedValue struct {
	Kind     ValueKind  `json:"kind"`
	Number   float64    `json:"number,omitempty"`   // currency amount or rating
	Currency string     `json:"currency,omitempty"` // ISO code for KindCurrency
	Date     *time.Time `json:"date,omitempty"`
	Text     string     `json:"text,omitempty"`
}

// Numeric reports whether the value supports spread comparison.
func (v NormalizedValue) Numeric() bool {
	return v.Kind == KindCurrency || v.Kind == KindRating
}

// Key returns a canonical string used for categorical equality checks.
func (v NormalizedValue) Key() string {
	switch v.Kind {
	case KindCurrency:
		return fmt.Sprintf("%s:%.2f", v.Currency, v.Number)
	case KindRating:
		return fmt.Sprintf("rating:%.2f", v.Number)
	case KindDate:
		if v.Date == nil {
			return "date:"
		}
		return "date:" + v.Date.Format("2006-01-02")
	default:
		return strings.ToLower(strings.TrimSpace(v.Text))
	}
}

// String renders the value for report text.
func (v NormalizedValue) String() string {
	switch v.Kind {
	case KindCurrency:
		if v.Currency == "" {
			return fmt.Sprintf("%.2f", v.Number)
		}
		return fmt.Sprintf("%s %.2f", v.Currency, v.Number)
	case KindRating:
		return fmt.Sprintf("%.1f", v.Number)
	case KindDate:
		if v.Date == nil {
			return ""
		}
		return v.Date.Format("2006-01-02")
	default:
		return v.Text
	}
}

// ExtractedFact is one normalized statement backed by one or more sources.
type ExtractedFact struct {
	Attribute  string          `json:"attribute"` // normalized attribute key, e.g. "price"
	Statement  string          `json:"statement"`
	Value      NormalizedValue `json:"value"`
	Confidence float64         `json:"confidence"` // 0-100
	Sources    []string        `json:"sources"`    // source URLs
}

// ConflictValue is one competing value inside a Conflict.
type ConflictValue struct {
	Value   NormalizedValue `json:"value"`
	Sources []string        `json:"sources"`
}

// Conflict records a material disagreement between sources on one attribute.
type Conflict struct {
	Attribute         string          `json:"attribute"`
	Values            []ConflictValue `json:"values"`
	Spread            float64         `json:"spread"` // relative spread for numeric attributes
	Recommended       NormalizedValue `json:"recommended"`
	RecommendedSource string          `json:"recommended_source"`
	Rationale         string          `json:"rationale"`
}

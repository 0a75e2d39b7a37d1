package model

import "time"

// QueryCategory classifies the intent of a research question.
type QueryCategory string

const (
	CategoryFactual     QueryCategory = "factual"
	CategoryComparative QueryCategory = "comparative"
	CategoryExploratory QueryCategory = "exploratory"
	CategoryMonitoring  QueryCategory = "monitoring"
)

// AllQueryCategories returns every valid query category.
func AllQueryCategories() []QueryCategory {
	return []QueryCategory{
		CategoryFactual,
		CategoryComparative,
		CategoryExploratory,
		CategoryMonitoring,
	}
}

// Strategy selects how much research effort a query deserves.
type Strategy string

const (
	StrategyQuickAnswer Strategy = "quick-answer"
	StrategyMultiSource Strategy = "multi-source"
	StrategyDeepDive    Strategy = "deep-dive"
)

// AllStrategies returns every valid research strategy.
func AllStrategies() []Strategy {
	return []Strategy{StrategyQuickAnswer, StrategyMultiSource, StrategyDeepDive}
}

// Query is the raw research question. Immutable once accepted.
type Query struct {
	Text    string         `json:"text"`
	UserID  string         `json:"user_id,omitempty"`
	History []SessionEntry `json:"history,omitempty"`
}

// SessionEntry is one prior query in a user's session history.
type SessionEntry struct {
	Query     string        `json:"query"`
	Category  QueryCategory `json:"category,omitempty"`
	Topics    []string      `json:"topics,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Classification is the classify stage's output. Produced once per query,
// never mutated.
type Classification struct {
	Category   QueryCategory `json:"category"`
	Complexity int           `json:"complexity"` // 1-10
	Strategy   Strategy      `json:"strategy"`
	Topics     []string      `json:"topics,omitempty"`

	// Clarification holds a follow-up question for the user when the
	// classifier cannot pin the query down. Only acted on in interactive mode.
	Clarification string `json:"clarification,omitempty"`
}

// ValidCategory reports whether c.Category is one of the allowed values.
func (c Classification) ValidCategory() bool {
	for _, cat := range AllQueryCategories() {
		if c.Category == cat {
			return true
		}
	}
	return false
}

// ValidStrategy reports whether c.Strategy is one of the allowed values.
func (c Classification) ValidStrategy() bool {
	for _, s := range AllStrategies() {
		if c.Strategy == s {
			return true
		}
	}
	return false
}

// DefaultClassification is the fallback used when the classify stage fails
// outright: treat the query as a moderately complex factual question.
func DefaultClassification() Classification {
	return Classification{
		Category:   CategoryFactual,
		Complexity: 3,
		Strategy:   StrategyMultiSource,
	}
}

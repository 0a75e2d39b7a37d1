package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/inquiry-cli/internal/model"
	"github.com/sells-group/inquiry-cli/internal/stage"
)

// analyzeInput is the context slice the analyze stage declares. Documents
// are the usable subset only.
type analyzeInput struct {
	Query     string
	Documents []model.SourceDocument
}

// analyzeOutput is the extraction record shape.
type analyzeOutput struct {
	Facts []model.ExtractedFact `json:"facts"`
}

const analyzeSchemaHint = `{"facts": [{"attribute": "normalized key, e.g. price", "statement": "...", "value": {"kind": "currency|rating|date|text", "number": 0, "currency": "USD", "text": "..."}, "confidence": 0-100, "sources": ["url", "..."]}]}`

// excerptLimit bounds per-document content passed to the extraction prompt.
const excerptLimit = 2000

// newAnalyzeAdapter builds the intelligence adapter for fact extraction.
func newAnalyzeAdapter(c stage.Completer, timeout time.Duration) *stage.Intelligence[analyzeInput, analyzeOutput] {
	return &stage.Intelligence[analyzeInput, analyzeOutput]{
		Name:      "analyze",
		Completer: c,
		Timeout:   timeout,
		Prompt:    analyzePrompt,
		Validate:  validateFacts,
		Degradation: func(out analyzeOutput) (bool, string) {
			if len(out.Facts) == 0 {
				return true, "no facts extracted from sources"
			}
			return false, ""
		},
	}
}

func analyzePrompt(in analyzeInput) (string, string) {
	var b strings.Builder
	b.WriteString("Extract the facts relevant to this research question from the sources below. ")
	b.WriteString("Normalize attribute keys so the same attribute from different sources compares (price, rating, release_date). ")
	b.WriteString("Every fact must list the URLs of the sources that state it.\n\nQuestion: ")
	b.WriteString(in.Query)
	b.WriteString("\n")

	for _, doc := range in.Documents {
		fmt.Fprintf(&b, "\n--- Source: %s", doc.URL)
		if doc.Title != "" {
			fmt.Fprintf(&b, " (%s)", doc.Title)
		}
		b.WriteString(" ---\n")
		b.WriteString(excerpt(doc.Content, excerptLimit))
		b.WriteString("\n")
	}

	return b.String(), analyzeSchemaHint
}

// validateFacts drops nothing; it only rejects structurally unusable
// records. Facts without sources cannot participate in credibility or
// conflict scoring.
func validateFacts(out analyzeOutput) error {
	for i, f := range out.Facts {
		if f.Attribute == "" {
			return &stage.SchemaError{Stage: "analyze", Detail: fmt.Sprintf("fact %d has no attribute", i)}
		}
		if len(f.Sources) == 0 {
			return &stage.SchemaError{Stage: "analyze", Detail: fmt.Sprintf("fact %d (%s) has no sources", i, f.Attribute)}
		}
	}
	return nil
}

// structuredFacts derives deterministic facts from shopping-provider
// documents without an intelligence call.
func structuredFacts(docs []model.SourceDocument) []model.ExtractedFact {
	var facts []model.ExtractedFact
	for _, doc := range docs {
		s := doc.Structured
		if s == nil {
			continue
		}
		if s.Price > 0 {
			facts = append(facts, model.ExtractedFact{
				Attribute: "price",
				Statement: fmt.Sprintf("%s lists the price as %s %.2f", sellerOrURL(s, doc), s.Currency, s.Price),
				Value: model.NormalizedValue{
					Kind:     model.KindCurrency,
					Number:   s.Price,
					Currency: s.Currency,
				},
				Confidence: 90,
				Sources:    []string{doc.URL},
			})
		}
		if s.Rating > 0 {
			facts = append(facts, model.ExtractedFact{
				Attribute: "rating",
				Statement: fmt.Sprintf("%s rates it %.1f", sellerOrURL(s, doc), s.Rating),
				Value: model.NormalizedValue{
					Kind:   model.KindRating,
					Number: s.Rating,
				},
				Confidence: 85,
				Sources:    []string{doc.URL},
			})
		}
	}
	return facts
}

func sellerOrURL(s *model.StructuredFields, doc model.SourceDocument) string {
	if s.Seller != "" {
		return s.Seller
	}
	return doc.URL
}

func excerpt(content string, limit int) string {
	if len(content) <= limit {
		return content
	}
	return content[:limit]
}

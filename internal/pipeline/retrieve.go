package pipeline

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/inquiry-cli/internal/model"
	"github.com/sells-group/inquiry-cli/internal/stage"
	"github.com/sells-group/inquiry-cli/pkg/jina"
	"github.com/sells-group/inquiry-cli/pkg/perplexity"
	"github.com/sells-group/inquiry-cli/pkg/serper"
)

// retrieveInput is the context slice the retrieve stage declares.
type retrieveInput struct {
	Query          string
	Classification model.Classification
	MaxURLs        int
}

// retrieveOutput carries the ranked URL set plus any structured shopping
// documents that arrive pre-fetched from the shopping provider.
type retrieveOutput struct {
	URLs       []string
	Structured []model.SourceDocument
}

// retriever resolves a classified query into a ranked URL set. Primary
// search comes from Jina; when it fails or returns nothing, the Perplexity
// fallback mines citation URLs from a sonar answer. The shopping provider is
// consulted opportunistically for product-price queries.
type retriever struct {
	search   jina.Client
	fallback perplexity.Client // optional
	shopping serper.Client     // optional
	now      func() time.Time
}

func newRetriever(search jina.Client, fallback perplexity.Client, shopping serper.Client) *retriever {
	return &retriever{search: search, fallback: fallback, shopping: shopping, now: time.Now}
}

// Retrieve runs the search providers. An empty result set is a valid
// outcome, never a failure; only the total absence of a working provider
// yields Failure.
func (r *retriever) Retrieve(ctx context.Context, in retrieveInput) stage.Result[retrieveOutput] {
	var out retrieveOutput
	var reasons []string

	urls, err := r.primarySearch(ctx, in.Query)
	if err != nil {
		zap.L().Warn("pipeline: primary search failed", zap.Error(err))
		reasons = append(reasons, "primary search failed")
	}

	if len(urls) == 0 && r.fallback != nil {
		fbURLs, fbErr := r.fallbackSearch(ctx, in.Query)
		if fbErr != nil {
			zap.L().Warn("pipeline: fallback retrieval failed", zap.Error(fbErr))
			if err != nil {
				return stage.Failure[retrieveOutput](fbErr)
			}
		} else {
			urls = fbURLs
			if err != nil || len(fbURLs) > 0 {
				reasons = append(reasons, "used fallback citations")
			}
		}
	} else if len(urls) == 0 && err != nil {
		return stage.Failure[retrieveOutput](err)
	}

	if r.shopping != nil && productQuery(in.Query, in.Classification) {
		structured, shopErr := r.shoppingSearch(ctx, in.Query, in.MaxURLs)
		if shopErr != nil {
			// Opportunistic: a shopping miss never degrades the stage.
			zap.L().Debug("pipeline: shopping search failed", zap.Error(shopErr))
		} else {
			out.Structured = structured
		}
	}

	out.URLs = capURLs(dedupeURLs(urls), in.MaxURLs)

	zap.L().Info("pipeline: retrieved sources",
		zap.Int("urls", len(out.URLs)),
		zap.Int("structured", len(out.Structured)),
	)

	if len(reasons) > 0 {
		return stage.Degraded(out, strings.Join(reasons, "; "))
	}
	return stage.Success(out)
}

func (r *retriever) primarySearch(ctx context.Context, query string) ([]string, error) {
	resp, err := r.search.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(resp.Data))
	for _, res := range resp.Data {
		if res.URL != "" {
			urls = append(urls, res.URL)
		}
	}
	return urls, nil
}

func (r *retriever) fallbackSearch(ctx context.Context, query string) ([]string, error) {
	resp, err := r.fallback.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "user", Content: query},
		},
	})
	if err != nil {
		return nil, err
	}
	return resp.Citations, nil
}

// shoppingSearch converts shopping results into pre-fetched structured
// documents. They skip the fetch stage entirely.
func (r *retriever) shoppingSearch(ctx context.Context, query string, limit int) ([]model.SourceDocument, error) {
	resp, err := r.shopping.Shopping(ctx, query)
	if err != nil {
		return nil, err
	}

	docs := make([]model.SourceDocument, 0, len(resp.Shopping))
	for _, item := range resp.Shopping {
		if item.Link == "" {
			continue
		}
		if limit > 0 && len(docs) >= limit {
			break
		}
		fields := &model.StructuredFields{
			Seller: item.Source,
			Rating: item.Rating,
		}
		if price, currency, ok := parsePrice(item.Price); ok {
			fields.Price = price
			fields.Currency = currency
		}
		docs = append(docs, model.SourceDocument{
			URL:        item.Link,
			Title:      item.Title,
			Structured: fields,
			Status:     model.FetchOK,
			FetchedAt:  r.now(),
		})
	}
	return docs, nil
}

var productSignals = []string{"price", "cost", "cheapest", "deal", "buy", "$"}

// productQuery reports whether the shopping provider is worth consulting.
func productQuery(query string, class model.Classification) bool {
	if class.Category != model.CategoryFactual && class.Category != model.CategoryComparative {
		return false
	}
	lower := strings.ToLower(query)
	for _, sig := range productSignals {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

var priceAmount = regexp.MustCompile(`[\d,]+(?:\.\d+)?`)

// parsePrice extracts the amount and currency from a display price like
// "$248.00" or "EUR 1,299".
func parsePrice(display string) (float64, string, bool) {
	raw := priceAmount.FindString(display)
	if raw == "" {
		return 0, "", false
	}
	amount, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil {
		return 0, "", false
	}

	currency := "USD"
	switch {
	case strings.Contains(display, "€") || strings.Contains(display, "EUR"):
		currency = "EUR"
	case strings.Contains(display, "£") || strings.Contains(display, "GBP"):
		currency = "GBP"
	}
	return amount, currency, true
}

func dedupeURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func capURLs(urls []string, limit int) []string {
	if limit > 0 && len(urls) > limit {
		return urls[:limit]
	}
	return urls
}

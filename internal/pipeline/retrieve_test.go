package pipeline

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/inquiry-cli/internal/model"
	"github.com/sells-group/inquiry-cli/internal/stage"
	"github.com/sells-group/inquiry-cli/pkg/jina"
	"github.com/sells-group/inquiry-cli/pkg/serper"
)

func comparative() model.Classification {
	return model.Classification{Category: model.CategoryComparative, Complexity: 5, Strategy: model.StrategyMultiSource}
}

func TestRetrieve_PrimarySearch(t *testing.T) {
	r := newRetriever(&fakeSearch{results: []jina.SearchResult{
		{URL: "https://a.example"},
		{URL: "https://b.example"},
		{URL: "https://a.example"}, // duplicate dropped
	}}, nil, nil)

	res := r.Retrieve(context.Background(), retrieveInput{Query: "q", Classification: comparative(), MaxURLs: 8})
	require.Equal(t, stage.StatusSuccess, res.Status)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, res.Output.URLs)
}

func TestRetrieve_CapsURLSet(t *testing.T) {
	results := make([]jina.SearchResult, 20)
	for i := range results {
		results[i] = jina.SearchResult{URL: "https://example.com/" + string(rune('a'+i))}
	}
	r := newRetriever(&fakeSearch{results: results}, nil, nil)

	res := r.Retrieve(context.Background(), retrieveInput{Query: "q", Classification: comparative(), MaxURLs: 8})
	require.Equal(t, stage.StatusSuccess, res.Status)
	assert.Len(t, res.Output.URLs, 8)
}

func TestRetrieve_FallbackCitationsOnSearchFailure(t *testing.T) {
	r := newRetriever(
		&fakeSearch{err: eris.New("search down")},
		&fakeFallback{citations: []string{"https://cited.example/1", "https://cited.example/2"}},
		nil,
	)

	res := r.Retrieve(context.Background(), retrieveInput{Query: "q", Classification: comparative(), MaxURLs: 8})
	require.Equal(t, stage.StatusDegraded, res.Status)
	assert.Contains(t, res.Reason, "fallback")
	assert.Equal(t, []string{"https://cited.example/1", "https://cited.example/2"}, res.Output.URLs)
}

func TestRetrieve_FallbackOnEmptyPrimary(t *testing.T) {
	r := newRetriever(
		&fakeSearch{},
		&fakeFallback{citations: []string{"https://cited.example/1"}},
		nil,
	)

	res := r.Retrieve(context.Background(), retrieveInput{Query: "q", Classification: comparative(), MaxURLs: 8})
	require.Equal(t, stage.StatusDegraded, res.Status)
	assert.Len(t, res.Output.URLs, 1)
}

func TestRetrieve_BothProvidersFail(t *testing.T) {
	r := newRetriever(
		&fakeSearch{err: eris.New("search down")},
		&fakeFallback{err: eris.New("fallback down")},
		nil,
	)

	res := r.Retrieve(context.Background(), retrieveInput{Query: "q", Classification: comparative(), MaxURLs: 8})
	assert.Equal(t, stage.StatusFailure, res.Status)
}

func TestRetrieve_EmptyResultIsNotFailure(t *testing.T) {
	r := newRetriever(&fakeSearch{}, nil, nil)

	res := r.Retrieve(context.Background(), retrieveInput{Query: "q", Classification: comparative(), MaxURLs: 8})
	require.Equal(t, stage.StatusSuccess, res.Status)
	assert.Empty(t, res.Output.URLs)
}

func TestRetrieve_ShoppingForProductQueries(t *testing.T) {
	r := newRetriever(
		&fakeSearch{results: []jina.SearchResult{{URL: "https://a.example"}}},
		nil,
		&fakeShopping{results: []serper.ShoppingResult{
			{Title: "WH-1000XM5", Source: "BestBuy", Link: "https://bestbuy.com/p/1", Price: "$248.00", Rating: 4.7},
			{Title: "WH-1000XM5", Source: "Amazon", Link: "https://amazon.com/p/2", Price: "$294.95"},
		}},
	)

	res := r.Retrieve(context.Background(), retrieveInput{
		Query:          "best price for headphones",
		Classification: comparative(),
		MaxURLs:        8,
	})
	require.Equal(t, stage.StatusSuccess, res.Status)
	require.Len(t, res.Output.Structured, 2)

	doc := res.Output.Structured[0]
	assert.Equal(t, "https://bestbuy.com/p/1", doc.URL)
	assert.Equal(t, model.FetchOK, doc.Status)
	require.NotNil(t, doc.Structured)
	assert.Equal(t, 248.00, doc.Structured.Price)
	assert.Equal(t, "USD", doc.Structured.Currency)
	assert.Equal(t, 4.7, doc.Structured.Rating)
	assert.Equal(t, "BestBuy", doc.Structured.Seller)
}

func TestRetrieve_ShoppingSkippedForExploratory(t *testing.T) {
	shopping := &fakeShopping{err: eris.New("should not be called")}
	r := newRetriever(&fakeSearch{results: []jina.SearchResult{{URL: "https://a.example"}}}, nil, shopping)

	res := r.Retrieve(context.Background(), retrieveInput{
		Query:          "price trends for headphones",
		Classification: model.Classification{Category: model.CategoryExploratory, Complexity: 4, Strategy: model.StrategyDeepDive},
		MaxURLs:        8,
	})
	require.Equal(t, stage.StatusSuccess, res.Status)
	assert.Empty(t, res.Output.Structured)
}

func TestRetrieve_ShoppingFailureIsSilent(t *testing.T) {
	r := newRetriever(
		&fakeSearch{results: []jina.SearchResult{{URL: "https://a.example"}}},
		nil,
		&fakeShopping{err: eris.New("shopping down")},
	)

	res := r.Retrieve(context.Background(), retrieveInput{
		Query:          "best price for headphones",
		Classification: comparative(),
		MaxURLs:        8,
	})
	assert.Equal(t, stage.StatusSuccess, res.Status)
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		display  string
		amount   float64
		currency string
		ok       bool
	}{
		{"$248.00", 248.00, "USD", true},
		{"$1,299.99", 1299.99, "USD", true},
		{"€199", 199, "EUR", true},
		{"GBP 85.50", 85.50, "GBP", true},
		{"248", 248, "USD", true},
		{"call for price", 0, "", false},
		{"", 0, "", false},
	}
	for _, tt := range tests {
		amount, currency, ok := parsePrice(tt.display)
		assert.Equal(t, tt.ok, ok, tt.display)
		if tt.ok {
			assert.Equal(t, tt.amount, amount, tt.display)
			assert.Equal(t, tt.currency, currency, tt.display)
		}
	}
}

func TestProductQuery(t *testing.T) {
	assert.True(t, productQuery("best price for X", comparative()))
	assert.True(t, productQuery("where to buy Y", model.Classification{Category: model.CategoryFactual}))
	assert.False(t, productQuery("history of the transistor", comparative()))
	assert.False(t, productQuery("price of eggs over time", model.Classification{Category: model.CategoryMonitoring}))
}

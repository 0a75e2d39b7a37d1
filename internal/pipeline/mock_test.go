package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/inquiry-cli/internal/config"
	"github.com/sells-group/inquiry-cli/internal/fetcher"
	"github.com/sells-group/inquiry-cli/internal/model"
	"github.com/sells-group/inquiry-cli/internal/store"
	"github.com/sells-group/inquiry-cli/pkg/anthropic"
	"github.com/sells-group/inquiry-cli/pkg/jina"
	"github.com/sells-group/inquiry-cli/pkg/perplexity"
	"github.com/sells-group/inquiry-cli/pkg/serper"
)

// fakeIntelligence routes each prompt to a canned per-stage response.
type fakeIntelligence struct {
	mu    sync.Mutex
	calls []string

	classifyJSON string
	analyzeJSON  string
	formatJSON   string
	reportJSON   string

	fail map[string]bool
}

const (
	defaultClassifyJSON = `{"category":"comparative","complexity":5,"strategy":"multi-source","topics":["headphones","price"]}`
	defaultAnalyzeJSON  = `{"facts":[
		{"attribute":"price","statement":"Sony lists the price as USD 248.00","value":{"kind":"currency","number":248.00,"currency":"USD"},"confidence":90,"sources":["https://sony.com/wh1000xm5"]},
		{"attribute":"price","statement":"RTINGS saw it at USD 294.95","value":{"kind":"currency","number":294.95,"currency":"USD"},"confidence":80,"sources":["https://rtings.com/review"]}
	]}`
	defaultFormatJSON = `{"draft":"Two sources were consulted on current pricing for these headphones. The official store lists USD 248.00 while an editorial review observed USD 294.95 at the time of writing. The spread between the two figures is material and the lower figure comes from the manufacturer itself."}`
	defaultReportJSON = `{"body":"The price is USD 248.00 at the official store [1], though a recent review observed USD 294.95 [2]. The official listing is the more credible figure [1].","sources":["https://sony.com/wh1000xm5","https://rtings.com/review"],"comparison":{"headers":["Source","Price"],"rows":[["Official store","248.00"],["Editorial review","294.95"]]}}`
)

func newFakeIntelligence() *fakeIntelligence {
	return &fakeIntelligence{
		classifyJSON: defaultClassifyJSON,
		analyzeJSON:  defaultAnalyzeJSON,
		formatJSON:   defaultFormatJSON,
		reportJSON:   defaultReportJSON,
		fail:         make(map[string]bool),
	}
}

func (f *fakeIntelligence) stageFor(prompt string) (string, string) {
	switch {
	case strings.Contains(prompt, "Classify this research question"):
		return "classify", f.classifyJSON
	case strings.Contains(prompt, "Extract the facts"):
		return "analyze", f.analyzeJSON
	case strings.Contains(prompt, "Organize the extracted facts"):
		return "format", f.formatJSON
	case strings.Contains(prompt, "Write the final research report"):
		return "report", f.reportJSON
	default:
		return "unknown", ""
	}
}

func (f *fakeIntelligence) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	prompt := req.Messages[0].Content
	name, body := f.stageFor(prompt)

	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()

	if f.fail[name] {
		return nil, eris.Errorf("%s backend unavailable", name)
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: body}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}, nil
}

func (f *fakeIntelligence) callCount(stage string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int
	for _, c := range f.calls {
		if c == stage {
			n++
		}
	}
	return n
}

// fakeSearch implements jina.Client with scripted results.
type fakeSearch struct {
	results []jina.SearchResult
	err     error
}

func (f *fakeSearch) Search(context.Context, string) (*jina.SearchResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &jina.SearchResponse{Code: 200, Data: f.results}, nil
}

func (f *fakeSearch) Read(context.Context, string) (*jina.ReadResponse, error) {
	return nil, eris.New("fake search: reader not implemented")
}

// fakeFetcher serves canned content per URL.
type fakeFetcher struct {
	pages map[string]string
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (fetcher.Result, error) {
	content, ok := f.pages[rawURL]
	if !ok {
		return fetcher.Result{URL: rawURL, Status: model.FetchHTTPError, StatusCode: 404},
			eris.Errorf("fetch %s: not found", rawURL)
	}
	return fetcher.Result{URL: rawURL, Title: "page", Content: content, Status: model.FetchOK, StatusCode: 200}, nil
}

// fakeFallback implements perplexity.Client returning fixed citations.
type fakeFallback struct {
	citations []string
	err       error
}

func (f *fakeFallback) ChatCompletion(context.Context, perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &perplexity.ChatCompletionResponse{Citations: f.citations}, nil
}

// fakeShopping implements serper.Client with fixed shopping results.
type fakeShopping struct {
	results []serper.ShoppingResult
	err     error
}

func (f *fakeShopping) Shopping(context.Context, string) (*serper.ShoppingResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &serper.ShoppingResponse{Shopping: f.results}, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Anthropic.HaikuModel = "claude-haiku-4-5-20251001"
	cfg.Anthropic.SonnetModel = "claude-sonnet-4-5-20250929"
	cfg.Anthropic.MaxTokens = 1024
	cfg.Pipeline.FetchConcurrency = 2
	cfg.Pipeline.MaxURLs = 8
	cfg.Pipeline.MaterialityThreshold = 0.15
	cfg.Pipeline.StageTimeoutSecs = 5
	cfg.Fetch.TimeoutSecs = 5
	return cfg
}

func testStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testController(t *testing.T, deps Deps) *Controller {
	t.Helper()
	if deps.Store == nil {
		deps.Store = testStore(t)
	}
	c, err := New(testConfig(), deps)
	require.NoError(t, err)
	return c
}

func defaultDeps(t *testing.T) (Deps, *fakeIntelligence) {
	t.Helper()
	intel := newFakeIntelligence()
	deps := Deps{
		Store:        testStore(t),
		Intelligence: intel,
		Search: &fakeSearch{results: []jina.SearchResult{
			{URL: "https://sony.com/wh1000xm5", Title: "Official store"},
			{URL: "https://rtings.com/review", Title: "Editorial review"},
		}},
		Fetcher: &fakeFetcher{pages: map[string]string{
			"https://sony.com/wh1000xm5": "WH-1000XM5 official product page. Price: $248.00. In stock.",
			"https://rtings.com/review":  "Our review of the WH-1000XM5. Street price observed: $294.95.",
		}},
	}
	return deps, intel
}

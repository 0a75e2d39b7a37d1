package fetcher

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/time/rate"

	"github.com/sells-group/inquiry-cli/internal/model"
	"github.com/sells-group/inquiry-cli/internal/resilience"
	"github.com/sells-group/inquiry-cli/pkg/jina"
)

// Options configures the content fetcher.
type Options struct {
	UserAgent   string
	Timeout     time.Duration
	InitialRate rate.Limit // per-host requests/second
	Burst       int
	MaxBody     int64
	Retry       resilience.RetryConfig // transient-failure retries per fetch
}

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On 429 it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		initialRate: initialRate,
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 1.2
	if newRate > a.maxRate {
		newRate = a.maxRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
}

// OnRateLimit halves the rate on 429 responses.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 0.5
	if newRate < a.minRate {
		newRate = a.minRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
	zap.L().Warn("fetcher: reducing rate after 429",
		zap.Float64("new_rate", float64(newRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// ContentFetcher fetches page content with per-host rate limiting and
// circuit breaking. When a Jina reader client is configured it is tried
// first; a direct HTTP fetch is the fallback.
type ContentFetcher struct {
	client   *http.Client
	reader   jina.Client
	opts     Options
	breakers *resilience.HostBreakers

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

// NewContentFetcher creates a ContentFetcher. reader may be nil, in which
// case every fetch goes direct.
func NewContentFetcher(reader jina.Client, opts Options) *ContentFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "inquiry-cli/1.0"
	}
	if opts.InitialRate == 0 {
		opts.InitialRate = 4
	}
	if opts.Burst == 0 {
		opts.Burst = 4
	}
	if opts.MaxBody == 0 {
		opts.MaxBody = 2 << 20
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
		}
	}
	return &ContentFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		reader: reader,
		opts:   opts,
		breakers: resilience.NewHostBreakers(resilience.CircuitBreakerConfig{
			FailureThreshold: 4,
			ResetTimeout:     time.Minute,
		}),
		limiters: make(map[string]*AdaptiveLimiter),
	}
}

// limiterFor returns the adaptive limiter for a host, creating it lazily.
func (f *ContentFetcher) limiterFor(host string) *AdaptiveLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = NewAdaptiveLimiter(f.opts.InitialRate, f.opts.Burst)
		f.limiters[host] = lim
	}
	return lim
}

// Fetch retrieves one URL. The returned Result always carries a status; the
// error is typed transient or permanent so callers can decide about retries.
func (f *ContentFetcher) Fetch(ctx context.Context, rawURL string) (Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return Result{URL: rawURL, Status: model.FetchParseError},
			resilience.NewPermanentError(eris.Errorf("fetcher: malformed url %q", rawURL), 0)
	}

	// Transient failures (connection errors, 429, 5xx) retry within the
	// attempt; the breaker sees the whole attempt as one execution.
	var last Result
	breaker := f.breakers.Get(u.Host)
	res, err := resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) (Result, error) {
		return resilience.DoVal(ctx, f.opts.Retry, func(ctx context.Context) (Result, error) {
			if err := f.limiterFor(u.Host).Wait(ctx); err != nil {
				last = Result{URL: rawURL, Status: model.FetchTimeout}
				return last, eris.Wrap(err, "fetcher: rate limiter wait")
			}
			r, err := f.fetchOnce(ctx, u)
			last = r
			return r, err
		})
	})
	if eris.Is(err, resilience.ErrCircuitOpen) {
		zap.L().Warn("fetcher: host circuit open, skipping",
			zap.String("host", u.Host),
		)
		return Result{URL: rawURL, Status: model.FetchBlocked},
			resilience.NewPermanentError(err, 0)
	}
	if err != nil && res.Status == "" {
		// DoVal drops the value on failure; the last attempt's result still
		// carries the status the caller records on the document.
		res = last
		if res.Status == "" {
			res = Result{URL: rawURL, Status: StatusForError(err)}
		}
	}
	return res, err
}

func (f *ContentFetcher) fetchOnce(ctx context.Context, u *url.URL) (Result, error) {
	rawURL := u.String()

	if f.reader != nil {
		res, err := f.viaReader(ctx, rawURL)
		if err == nil {
			return res, nil
		}
		zap.L().Debug("fetcher: reader failed, falling back to direct fetch",
			zap.String("url", rawURL),
			zap.Error(err),
		)
	}

	return f.direct(ctx, u)
}

// viaReader fetches through the Jina reader, which returns clean markdown.
func (f *ContentFetcher) viaReader(ctx context.Context, rawURL string) (Result, error) {
	resp, err := f.reader.Read(ctx, rawURL)
	if err != nil {
		return Result{URL: rawURL, Status: model.FetchHTTPError}, err
	}
	if resp.Data.Content == "" {
		return Result{URL: rawURL, Status: model.FetchParseError},
			eris.Errorf("fetcher: reader returned empty content for %s", rawURL)
	}
	return Result{
		URL:        rawURL,
		Title:      resp.Data.Title,
		Content:    resp.Data.Content,
		Status:     model.FetchOK,
		StatusCode: http.StatusOK,
	}, nil
}

func (f *ContentFetcher) direct(ctx context.Context, u *url.URL) (Result, error) {
	rawURL := u.String()
	lim := f.limiterFor(u.Host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{URL: rawURL, Status: model.FetchParseError},
			resilience.NewPermanentError(eris.Wrap(err, "fetcher: create request"), 0)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{URL: rawURL, Status: model.FetchTimeout},
			resilience.NewTransientError(eris.Wrapf(err, "fetcher: get %s", rawURL), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		lim.OnRateLimit()
		return Result{URL: rawURL, Status: model.FetchHTTPError, StatusCode: resp.StatusCode},
			resilience.NewTransientError(eris.Errorf("fetcher: http 429 from %s", rawURL), resp.StatusCode)
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		// Anti-bot rejection: do not retry, do not slow siblings down.
		return Result{URL: rawURL, Status: model.FetchBlocked, StatusCode: resp.StatusCode},
			resilience.NewPermanentError(eris.Errorf("fetcher: blocked by %s (http %d)", u.Host, resp.StatusCode), resp.StatusCode)
	case resp.StatusCode >= 500:
		return Result{URL: rawURL, Status: model.FetchHTTPError, StatusCode: resp.StatusCode},
			resilience.NewTransientError(eris.Errorf("fetcher: http %d from %s", resp.StatusCode, rawURL), resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return Result{URL: rawURL, Status: model.FetchHTTPError, StatusCode: resp.StatusCode},
			resilience.NewPermanentError(eris.Errorf("fetcher: http %d from %s", resp.StatusCode, rawURL), resp.StatusCode)
	}

	body, err := f.decodeBody(resp)
	if err != nil {
		return Result{URL: rawURL, Status: model.FetchParseError, StatusCode: resp.StatusCode},
			resilience.NewPermanentError(err, resp.StatusCode)
	}

	if blocked, marker := looksBlocked(body); blocked {
		zap.L().Warn("fetcher: block page detected",
			zap.String("host", u.Host),
			zap.String("marker", marker),
		)
		return Result{URL: rawURL, Status: model.FetchBlocked, StatusCode: resp.StatusCode},
			resilience.NewPermanentError(eris.Errorf("fetcher: block page from %s", u.Host), resp.StatusCode)
	}

	lim.OnSuccess()

	title := extractTitle(body)
	content := strings.TrimSpace(stripMarkup(body))
	if content == "" {
		return Result{URL: rawURL, Status: model.FetchParseError, StatusCode: resp.StatusCode},
			resilience.NewPermanentError(eris.Errorf("fetcher: no textual content at %s", rawURL), resp.StatusCode)
	}

	return Result{
		URL:        rawURL,
		Title:      title,
		Content:    content,
		Status:     model.FetchOK,
		StatusCode: resp.StatusCode,
	}, nil
}

// decodeBody reads the body and transcodes it to UTF-8 when the response
// declares a different charset.
func (f *ContentFetcher) decodeBody(resp *http.Response) (string, error) {
	reader := io.Reader(io.LimitReader(resp.Body, f.opts.MaxBody))

	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
		if cs := params["charset"]; cs != "" && !strings.EqualFold(cs, "utf-8") {
			enc, err := htmlindex.Get(cs)
			if err != nil {
				return "", eris.Wrapf(err, "fetcher: unsupported charset %q", cs)
			}
			reader = enc.NewDecoder().Reader(reader)
		}
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: read body")
	}
	return string(data), nil
}

var blockMarkers = []string{
	"captcha",
	"access denied",
	"are you a robot",
	"attention required",
	"unusual traffic",
	"verify you are human",
}

// looksBlocked detects anti-bot interstitials served with a 200 status.
func looksBlocked(body string) (bool, string) {
	if len(body) > 4096 {
		body = body[:4096]
	}
	lower := strings.ToLower(body)
	for _, marker := range blockMarkers {
		if strings.Contains(lower, marker) {
			return true, marker
		}
	}
	return false, ""
}

var (
	titlePattern  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	scriptPattern = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagPattern    = regexp.MustCompile(`(?s)<[^>]+>`)
	spacePattern  = regexp.MustCompile(`[ \t]{2,}`)
	linePattern   = regexp.MustCompile(`\n{3,}`)
)

func extractTitle(body string) string {
	if m := titlePattern.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// stripMarkup is a deliberately crude HTML-to-text pass; the reader path is
// the one that produces clean content.
func stripMarkup(body string) string {
	text := scriptPattern.ReplaceAllString(body, " ")
	text = tagPattern.ReplaceAllString(text, " ")
	text = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "&nbsp;", " ").Replace(text)
	text = spacePattern.ReplaceAllString(text, " ")
	text = linePattern.ReplaceAllString(text, "\n\n")
	return text
}

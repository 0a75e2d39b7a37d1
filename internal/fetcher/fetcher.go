// Package fetcher retrieves page content for retrieved URLs. It prefers the
// Jina reader (clean markdown) and falls back to a direct HTTP fetch with
// per-host adaptive rate limiting, circuit breaking, and block detection.
package fetcher

import (
	"context"
	"errors"

	"github.com/sells-group/inquiry-cli/internal/model"
	"github.com/sells-group/inquiry-cli/internal/resilience"
)

// Result is one fetch outcome. Status is always set, including on error, so
// callers can build a SourceDocument for failed attempts.
type Result struct {
	URL        string
	Title      string
	Content    string
	Status     model.FetchStatus
	StatusCode int
}

// Fetcher retrieves the content behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Result, error)
}

// StatusForError maps a fetch error to the fetch status recorded on the
// document when no more specific status is available.
func StatusForError(err error) model.FetchStatus {
	switch {
	case err == nil:
		return model.FetchOK
	case errors.Is(err, context.DeadlineExceeded):
		return model.FetchTimeout
	case resilience.IsPermanent(err):
		return model.FetchHTTPError
	case resilience.IsTransient(err):
		return model.FetchTimeout
	default:
		return model.FetchHTTPError
	}
}

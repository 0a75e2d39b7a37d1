package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sells-group/inquiry-cli/internal/fetcher"
	"github.com/sells-group/inquiry-cli/internal/model"
	"github.com/sells-group/inquiry-cli/internal/stage"
)

// fetchInput is the context slice the fetch stage declares.
type fetchInput struct {
	URLs        []string
	Structured  []model.SourceDocument
	Concurrency int
	Timeout     time.Duration
}

// fetchAll retrieves every URL with bounded concurrency. Completion order is
// not relied upon: results land in a rank-indexed slice so output is
// reproducible regardless of network timing. A failed fetch becomes a
// SourceDocument with a failure status, never an error; cancellation of one
// fetch does not touch its siblings.
func fetchAll(ctx context.Context, f fetcher.Fetcher, in fetchInput) stage.Result[[]model.SourceDocument] {
	docs := make([]model.SourceDocument, len(in.URLs))

	g, gctx := errgroup.WithContext(ctx)
	if in.Concurrency > 0 {
		g.SetLimit(in.Concurrency)
	}

	for rank, rawURL := range in.URLs {
		g.Go(func() error {
			fctx := gctx
			if in.Timeout > 0 {
				var cancel context.CancelFunc
				fctx, cancel = context.WithTimeout(gctx, in.Timeout)
				defer cancel()
			}

			res, err := f.Fetch(fctx, rawURL)
			doc := model.SourceDocument{
				URL:       rawURL,
				Title:     res.Title,
				Content:   res.Content,
				Status:    res.Status,
				Rank:      rank,
				FetchedAt: time.Now(),
			}
			if err != nil && doc.Status == "" {
				doc.Status = fetcher.StatusForError(err)
			}
			docs[rank] = doc
			return nil
		})
	}
	// Fetch goroutines never return errors; failures are recorded per-doc.
	_ = g.Wait()

	// Structured shopping documents rank after the searched URLs.
	for i, doc := range in.Structured {
		doc.Rank = len(in.URLs) + i
		docs = append(docs, doc)
	}

	var failed int
	for _, doc := range docs {
		if !doc.Usable() {
			failed++
		}
	}

	if failed > 0 {
		return stage.Degraded(docs, fmt.Sprintf("%d of %d sources failed", failed, len(docs)))
	}
	return stage.Success(docs)
}

// usableDocuments filters to documents carrying evidence, preserving rank
// order.
func usableDocuments(docs []model.SourceDocument) []model.SourceDocument {
	out := make([]model.SourceDocument, 0, len(docs))
	for _, doc := range docs {
		if doc.Usable() {
			out = append(out, doc)
		}
	}
	return out
}

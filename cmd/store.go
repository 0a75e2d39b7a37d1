package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/inquiry-cli/internal/fetcher"
	"github.com/sells-group/inquiry-cli/internal/pipeline"
	"github.com/sells-group/inquiry-cli/internal/store"
	"github.com/sells-group/inquiry-cli/pkg/anthropic"
	"github.com/sells-group/inquiry-cli/pkg/jina"
	"github.com/sells-group/inquiry-cli/pkg/perplexity"
	"github.com/sells-group/inquiry-cli/pkg/serper"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "inquiry.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initController builds the pipeline controller with all live collaborators.
// Perplexity and Serper are wired only when keys are configured.
func initController(ctx context.Context) (*pipeline.Controller, store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, nil, err
	}

	jinaClient := jina.NewClient(cfg.Jina.Key,
		jina.WithBaseURL(cfg.Jina.BaseURL),
		jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL),
	)

	deps := pipeline.Deps{
		Store:        st,
		Intelligence: anthropic.NewClient(cfg.Anthropic.Key),
		Search:       jinaClient,
		Fetcher: fetcher.NewContentFetcher(jinaClient, fetcher.Options{
			UserAgent:   cfg.Fetch.UserAgent,
			Timeout:     time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			InitialRate: rate.Limit(cfg.Fetch.HostRate),
			Burst:       cfg.Fetch.HostBurst,
			MaxBody:     cfg.Fetch.MaxBodyBytes,
		}),
	}
	if cfg.Perplexity.Key != "" {
		deps.Fallback = perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
		)
	}
	if cfg.Serper.Key != "" {
		deps.Shopping = serper.NewClient(cfg.Serper.Key,
			serper.WithBaseURL(cfg.Serper.BaseURL),
		)
	}

	ctrl, err := pipeline.New(cfg, deps)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	return ctrl, st, nil
}

package config

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks that the configuration is sufficient for the given mode.
// Modes: "ask" (one-shot pipeline run), "serve" (HTTP server), "export"
// (spreadsheet export of a stored run).
func (c *Config) Validate(mode string) error {
	var problems []string

	checkCommon := func() {
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
		if c.Pipeline.FetchConcurrency < 1 || c.Pipeline.FetchConcurrency > 50 {
			problems = append(problems, "pipeline.fetch_concurrency must be between 1 and 50")
		}
		if c.Pipeline.MaterialityThreshold <= 0 || c.Pipeline.MaterialityThreshold >= 1 {
			problems = append(problems, "pipeline.materiality_threshold must be in (0, 1)")
		}
	}

	checkProviders := func() {
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if c.Jina.Key == "" && c.Perplexity.Key == "" {
			problems = append(problems, "a retrieval provider key is required (jina.key or perplexity.key)")
		}
	}

	switch mode {
	case "ask":
		checkCommon()
		checkProviders()
	case "serve":
		checkCommon()
		checkProviders()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "export":
		checkCommon()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s mode: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

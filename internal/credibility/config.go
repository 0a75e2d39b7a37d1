// Package credibility assigns 0-100 trust scores to source documents from
// domain authority, content quality, and cross-source consistency.
package credibility

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DomainCategory maps a class of hosts to a domain-authority value (0-40).
type DomainCategory struct {
	Name      string   `yaml:"name"`
	Authority float64  `yaml:"authority"`
	Domains   []string `yaml:"domains,omitempty"`  // exact host or dot-suffix match
	Keywords  []string `yaml:"keywords,omitempty"` // host substring heuristics
}

// Config holds scorer weights and the domain-authority table.
type Config struct {
	// NeutralConsistency is the consistency component granted when a source
	// has no peer overlap on any attribute. A single source must never be
	// punished purely for being the only source.
	NeutralConsistency float64 `yaml:"neutral_consistency"`

	Domains []DomainCategory `yaml:"domains"`
}

// DefaultConfig returns the built-in domain-authority table and weights.
func DefaultConfig() Config {
	return Config{
		NeutralConsistency: 15,
		Domains: []DomainCategory{
			{
				Name:      "official",
				Authority: 38,
				Domains:   []string{".gov", ".edu"},
				Keywords:  []string{"official"},
			},
			{
				Name:      "marketplace",
				Authority: 32,
				Domains: []string{
					"amazon.com", "walmart.com", "bestbuy.com", "target.com",
					"ebay.com", "newegg.com", "bhphotovideo.com",
				},
			},
			{
				Name:      "editorial",
				Authority: 27,
				Domains: []string{
					"nytimes.com", "reuters.com", "bbc.com", "wsj.com",
					"wirecutter.com", "rtings.com", "consumerreports.org",
					"techradar.com", "tomsguide.com", "cnet.com",
				},
				Keywords: []string{"review", "magazine"},
			},
			{
				Name:      "reference",
				Authority: 24,
				Domains:   []string{"wikipedia.org", "britannica.com"},
			},
			{
				Name:      "user-generated",
				Authority: 10,
				Domains:   []string{"reddit.com", "quora.com", "medium.com"},
				Keywords:  []string{"forum", "board", "blogspot"},
			},
		},
	}
}

// LoadDomainTable parses a YAML domain-authority table.
func LoadDomainTable(r io.Reader) ([]DomainCategory, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "credibility: read domain table")
	}

	var table struct {
		Domains []DomainCategory `yaml:"domains"`
	}
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, eris.Wrap(err, "credibility: parse domain table")
	}
	if len(table.Domains) == 0 {
		return nil, eris.New("credibility: domain table is empty")
	}
	return table.Domains, nil
}

// LoadDomainTableFile loads a YAML domain-authority table from disk and
// merges it over the defaults.
func LoadDomainTableFile(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return cfg, eris.Wrapf(err, "credibility: open domain table %s", path)
	}
	defer f.Close()

	domains, err := LoadDomainTable(f)
	if err != nil {
		return cfg, err
	}
	cfg.Domains = domains
	return cfg, nil
}

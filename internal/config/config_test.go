package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Config{}
	cfg.HTTP.Port = 8080
	cfg.Embedding.Model = "text-embedding-3-small"
	cfg.Generation.Model = "gpt-4o-mini"
	cfg.ApplyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()

	if cfg.Store.Driver != "chromem" {
		t.Errorf("Store.Driver = %q, want chromem", cfg.Store.Driver)
	}
	if cfg.Chunking.SizeWords != 220 || cfg.Chunking.OverlapWords != 40 {
		t.Errorf("chunking defaults = %d/%d", cfg.Chunking.SizeWords, cfg.Chunking.OverlapWords)
	}
	if cfg.Retrieval.TopK != 8 {
		t.Errorf("TopK = %d", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.CandidateK != 24 {
		t.Errorf("CandidateK = %d, want 3×TopK", cfg.Retrieval.CandidateK)
	}
	if cfg.Retrieval.SimilarityThreshold != 0.2 {
		t.Errorf("SimilarityThreshold = %v", cfg.Retrieval.SimilarityThreshold)
	}
	r := cfg.Retrieval.Reranker
	if r.SemanticWeight != 0.6 || r.LexicalWeight != 0.3 || r.NumericWeight != 0.1 || r.PhraseBonus != 0.05 {
		t.Errorf("reranker defaults = %+v", r)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.HTTP.Port = 0 }, "http.port"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "etcd" }, "store.driver"},
		{"redis without addrs", func(c *Config) { c.Store.Driver = "redis"; c.Store.Addrs = nil }, "store.addrs"},
		{"unknown provider", func(c *Config) { c.Generation.Provider = "bard" }, "generation.provider"},
		{"missing embedding model", func(c *Config) { c.Embedding.Model = "" }, "embedding.model"},
		{"overlap too large", func(c *Config) { c.Chunking.OverlapWords = c.Chunking.SizeWords }, "overlap"},
		{"threshold too high", func(c *Config) { c.Retrieval.SimilarityThreshold = 1.5 }, "similarity_threshold"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate accepted invalid config")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidateAcceptsGoodConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("CITEDEX_TEST_KEY", "sekrit")

	got := string(expandEnvVars([]byte("key: ${CITEDEX_TEST_KEY}")))
	if got != "key: sekrit" {
		t.Errorf("got %q", got)
	}

	got = string(expandEnvVars([]byte("url: ${CITEDEX_TEST_MISSING:-http://localhost}")))
	if got != "url: http://localhost" {
		t.Errorf("default not applied: %q", got)
	}

	got = string(expandEnvVars([]byte("empty: ${CITEDEX_TEST_MISSING}")))
	if got != "empty: " {
		t.Errorf("missing var should expand to empty: %q", got)
	}
}

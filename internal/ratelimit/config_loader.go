package ratelimit

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SourceConfigs holds one limiter config per upstream, read from a
// document like:
//
//	rate_limits:
//	  crm:
//	    strategy: fixed_delay
//	    fixed_delay: 2s
type SourceConfigs struct {
	RateLimits map[string]Config `yaml:"rate_limits" json:"rate_limits"`
}

// LoadSourceConfigs parses a rate_limits document. Each source is decoded
// over DefaultConfig, so a key the document leaves out keeps its default
// while an explicit zero (such as max_retries: 0) is kept as written.
func LoadSourceConfigs(data []byte) (SourceConfigs, error) {
	var doc struct {
		RateLimits map[string]yaml.Node `yaml:"rate_limits"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return SourceConfigs{}, fmt.Errorf("parse rate limits: %w", err)
	}

	cfgs := SourceConfigs{RateLimits: make(map[string]Config, len(doc.RateLimits))}
	for name, node := range doc.RateLimits {
		cfg := DefaultConfig()
		if err := node.Decode(&cfg); err != nil {
			return SourceConfigs{}, fmt.Errorf("rate limits for %s: %w", name, err)
		}
		if err := cfg.Validate(); err != nil {
			return SourceConfigs{}, fmt.Errorf("rate limits for %s: %w", name, err)
		}
		cfgs.RateLimits[name] = WithDefaults(cfg)
	}
	return cfgs, nil
}

// LoadFile reads and parses a rate_limits file.
func LoadFile(path string) (SourceConfigs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SourceConfigs{}, fmt.Errorf("read rate limits: %w", err)
	}
	return LoadSourceConfigs(data)
}

// Get returns the config for source and whether the document named it.
func (s SourceConfigs) Get(source string) (Config, bool) {
	cfg, ok := s.RateLimits[source]
	if !ok {
		return DefaultConfig(), false
	}
	return cfg, true
}

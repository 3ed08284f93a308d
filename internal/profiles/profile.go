// Package profiles loads named scan profiles: YAML files under
// ~/.ossgard/profiles that override parts of the scan configuration.
// A profile sets only the knobs it names; everything else keeps the
// configured value.
package profiles

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/dhruvparmar372/ossgard-sub002/internal/config"
)

// Profile is the YAML shape of one profile file. Pointer fields
// distinguish "not set" from an explicit zero.
type Profile struct {
	CodeSimilarityThreshold   *float64 `yaml:"code_similarity_threshold"`
	IntentSimilarityThreshold *float64 `yaml:"intent_similarity_threshold"`
	Concurrency               *int     `yaml:"concurrency"`
	EmbedBatchSize            *int     `yaml:"embed_batch_size"`
	TokenBudgetFactor         *float64 `yaml:"token_budget_factor"`
	Workers                   *int     `yaml:"workers"`
	MaxRetries                *int     `yaml:"max_retries"`
}

// Dir returns the profiles directory, creating nothing.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, config.DefaultProfileDir), nil
}

// Load reads the named profile from dir. The name maps to
// <dir>/<name>.yaml (or .yml).
func Load(dir, name string) (*Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("profile name is empty")
	}
	if strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid profile name %q", name)
	}

	var data []byte
	var err error
	for _, ext := range []string{".yaml", ".yml"} {
		data, err = os.ReadFile(filepath.Join(dir, name+ext))
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("loading profile %q: %w", name, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profile %q: %w", name, err)
	}
	return &p, nil
}

// List returns the names of all profiles in dir.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		for _, ext := range []string{".yaml", ".yml"} {
			if strings.HasSuffix(name, ext) {
				names = append(names, strings.TrimSuffix(name, ext))
				break
			}
		}
	}
	return names, nil
}

// Apply overlays the profile's set fields onto cfg and returns the
// result.
func (p *Profile) Apply(cfg config.ScanConfig) config.ScanConfig {
	if p.CodeSimilarityThreshold != nil {
		cfg.CodeSimilarityThreshold = *p.CodeSimilarityThreshold
	}
	if p.IntentSimilarityThreshold != nil {
		cfg.IntentSimilarityThreshold = *p.IntentSimilarityThreshold
	}
	if p.Concurrency != nil {
		cfg.Concurrency = *p.Concurrency
	}
	if p.EmbedBatchSize != nil {
		cfg.EmbedBatchSize = *p.EmbedBatchSize
	}
	if p.TokenBudgetFactor != nil {
		cfg.TokenBudgetFactor = *p.TokenBudgetFactor
	}
	if p.Workers != nil {
		cfg.Workers = *p.Workers
	}
	if p.MaxRetries != nil {
		cfg.MaxRetries = *p.MaxRetries
	}
	return cfg
}

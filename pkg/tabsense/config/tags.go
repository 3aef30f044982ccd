package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/tabsense/pkg/tabsense/internalerr"
)

// TagSet is a named list of categorical tags for the tagging stage. Each
// tag becomes a boolean column, so tags must be unique and non-blank.
type TagSet struct {
	Name string   `yaml:"name"`
	Tags []string `yaml:"tags"`
}

// LoadTagSet loads a tag set from a YAML file.
//
// Expected format:
//
//	name: product-feedback
//	tags: [Pricing, Support, Bug, Feature Request]
func LoadTagSet(path string) (*TagSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var ts TagSet
	if err := yaml.Unmarshal(data, &ts); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", internalerr.ErrInvalidConfig, path, err)
	}
	tags, err := NormalizeTags(ts.Tags)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	ts.Tags = tags
	return &ts, nil
}

// NormalizeTags trims tag names and rejects empty sets, blank names and
// duplicates. Tags are case-sensitive.
func NormalizeTags(tags []string) ([]string, error) {
	if len(tags) == 0 {
		return nil, fmt.Errorf("%w: tag set is empty", internalerr.ErrInvalidConfig)
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return nil, fmt.Errorf("%w: blank tag name", internalerr.ErrInvalidConfig)
		}
		if seen[tag] {
			return nil, fmt.Errorf("%w: duplicate tag %q", internalerr.ErrInvalidConfig, tag)
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out, nil
}

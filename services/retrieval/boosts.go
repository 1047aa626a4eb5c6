package retrieval

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/goccy/go-yaml"
	"github.com/upb/context-retrieval/services/search"
)

//go:embed boosts.yaml
var defaultBoostsYAML []byte

// BoostTable maps each namespace to its field boost profile. It is loaded
// once at startup and read-only afterwards.
type BoostTable struct {
	Version  string                            `json:"version"`
	Profiles map[Namespace][]search.FieldBoost `json:"profiles"`
}

type boostFile struct {
	Version  string                         `yaml:"version"`
	Profiles map[string][]search.FieldBoost `yaml:"profiles"`
}

// DefaultBoostTable returns the built-in boost table.
func DefaultBoostTable() (*BoostTable, error) {
	return ParseBoostTable(defaultBoostsYAML)
}

// LoadBoostTable reads a YAML boost table from path, or the built-in table
// when path is empty.
func LoadBoostTable(path string) (*BoostTable, error) {
	if path == "" {
		return DefaultBoostTable()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read boost table: %w", err)
	}
	return ParseBoostTable(data)
}

// ParseBoostTable decodes and validates a boost table. Every namespace must
// have a non-empty profile with positive boosts.
func ParseBoostTable(data []byte) (*BoostTable, error) {
	var file boostFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse boost table: %w", err)
	}
	if file.Version == "" {
		return nil, fmt.Errorf("boost table version is required")
	}

	table := BoostTable{
		Version:  file.Version,
		Profiles: make(map[Namespace][]search.FieldBoost, len(file.Profiles)),
	}
	for name, profile := range file.Profiles {
		ns, ok := ParseNamespace(name)
		if !ok {
			return nil, fmt.Errorf("boost table: unknown namespace %q", name)
		}
		seen := make(map[string]bool, len(profile))
		for _, fb := range profile {
			if fb.Field == "" {
				return nil, fmt.Errorf("boost table: empty field name in %q", ns)
			}
			if fb.Boost <= 0 {
				return nil, fmt.Errorf("boost table: %s.%s boost must be positive", ns, fb.Field)
			}
			if seen[fb.Field] {
				return nil, fmt.Errorf("boost table: duplicate field %s.%s", ns, fb.Field)
			}
			seen[fb.Field] = true
		}
		table.Profiles[ns] = profile
	}
	for _, ns := range AllNamespaces {
		if len(table.Profiles[ns]) == 0 {
			return nil, fmt.Errorf("boost table: missing profile for %q", ns)
		}
	}
	return &table, nil
}

// Fields returns the merged profile for the given namespaces. A field shared
// by several namespaces keeps its highest boost. Output is ordered by boost
// descending, then field name.
func (t *BoostTable) Fields(namespaces []Namespace) []search.FieldBoost {
	merged := make(map[string]float64)
	for _, ns := range namespaces {
		for _, fb := range t.Profiles[ns] {
			if fb.Boost > merged[fb.Field] {
				merged[fb.Field] = fb.Boost
			}
		}
	}

	out := make([]search.FieldBoost, 0, len(merged))
	for field, boost := range merged {
		out = append(out, search.FieldBoost{Field: field, Boost: boost})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Boost != out[j].Boost {
			return out[i].Boost > out[j].Boost
		}
		return out[i].Field < out[j].Field
	})
	return out
}

package knowledge

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedYAML []byte

// SeedDocuments returns the built-in static documents.
func SeedDocuments() ([]Document, error) {
	return ParseSeed(seedYAML)
}

// ParseSeed decodes a YAML list of documents and marks them static.
func ParseSeed(data []byte) ([]Document, error) {
	var docs []Document
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("knowledge: parse seed: %w", err)
	}
	seen := make(map[string]bool, len(docs))
	for i := range docs {
		d := &docs[i]
		if d.ID == "" || d.Content == "" {
			return nil, fmt.Errorf("knowledge: seed document %d needs an id and content", i)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("knowledge: duplicate seed document %q", d.ID)
		}
		seen[d.ID] = true
		if _, err := ParseType(string(d.Type)); err != nil || d.Type == "" {
			return nil, fmt.Errorf("knowledge: seed document %q: invalid type %q", d.ID, d.Type)
		}
		d.Static = true
	}
	return docs, nil
}

package config

import (
	"slices"

	"gopkg.in/yaml.v3"
)

// Resolve returns the IDs of the enabled modules, sorted so loading order
// does not depend on map iteration.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id, node := range cfg.Modules {
		if ModuleEnabled(&node) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// ModuleEnabled reports whether a module section is active. A section
// stays in the file but is skipped when it sets "enabled: false".
func ModuleEnabled(node *yaml.Node) bool {
	if node.Kind != yaml.MappingNode {
		return true
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value != "enabled" {
			continue
		}
		var on bool
		if err := node.Content[i+1].Decode(&on); err != nil {
			return true
		}
		return on
	}
	return true
}

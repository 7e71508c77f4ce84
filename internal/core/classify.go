package core

import "strings"

// Classifier maps sheet labels to canonical table IDs using registry keywords.
type Classifier struct {
	registry *Registry
}

// NewClassifier creates a classifier over the registry's entries.
func NewClassifier(registry *Registry) *Classifier {
	return &Classifier{registry: registry}
}

// Classify returns the first table (in registry order) with a keyword that is a
// case-insensitive substring of the label. When nothing matches, the normalized
// label is returned as an ad-hoc table ID and ok is false.
func (c *Classifier) Classify(label string) (id string, ok bool) {
	lower := strings.ToLower(label)
	for _, entry := range c.registry.entries {
		for _, kw := range entry.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return entry.ID, true
			}
		}
	}
	return NormalizeName(label), false
}

// Package manifest turns release manifests into anchored object-name patterns.
package manifest

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Document is the subset of a release manifest the compiler understands.
type Document struct {
	BucketPaths Values    `yaml:"s3_bucket_paths"`
	BucketPath  Values    `yaml:"bucket_path"`
	Default     Artifact  `yaml:"default"`
	Mapping     Artifacts `yaml:"mapping"`
}

// Artifact is one entry of the manifest mapping.
type Artifact struct {
	Expiry       any      `yaml:"expiry"`
	Destinations []string `yaml:"destinations"`
	PrettyName   Values   `yaml:"pretty_name"`
}

// NamedArtifact keeps the mapping key next to its record.
type NamedArtifact struct {
	Key string
	Artifact
}

// Artifacts preserves the document order of the mapping section.
type Artifacts []NamedArtifact

// UnmarshalYAML decodes a mapping node pair by pair so that order survives.
func (a *Artifacts) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("mapping: expected a mapping, got %s", kindName(node.Kind))
	}
	out := make(Artifacts, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var key string
		if err := node.Content[i].Decode(&key); err != nil {
			return fmt.Errorf("mapping key: %w", err)
		}
		var art Artifact
		if err := node.Content[i+1].Decode(&art); err != nil {
			return fmt.Errorf("mapping %s: %w", key, err)
		}
		out = append(out, NamedArtifact{Key: key, Artifact: art})
	}
	*a = out
	return nil
}

// Values is a manifest field that may be a scalar, a list, or a
// "by-platform" mapping. For the mapping form only the default branch is used.
type Values []string

// UnmarshalYAML accepts the three supported shapes.
func (v *Values) UnmarshalYAML(node *yaml.Node) error {
	values, err := resolveValues(node)
	if err != nil {
		return err
	}
	*v = values
	return nil
}

// First returns the first resolved value or "".
func (v Values) First() string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

func resolveValues(node *yaml.Node) ([]string, error) {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" || node.Value == "" {
			return nil, nil
		}
		return []string{node.Value}, nil
	case yaml.SequenceNode:
		var out []string
		for _, item := range node.Content {
			vals, err := resolveValues(item)
			if err != nil {
				return nil, err
			}
			out = append(out, vals...)
		}
		return out, nil
	case yaml.MappingNode:
		branch := lookup(node, "by-platform")
		if branch == nil {
			branch = node
		}
		def := lookup(branch, "default")
		if def == nil {
			return nil, nil
		}
		return resolveValues(def)
	default:
		return nil, fmt.Errorf("unsupported value of kind %s", kindName(node.Kind))
	}
}

func lookup(node *yaml.Node, key string) *yaml.Node {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	if node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}

// Parse decodes a raw manifest document.
func Parse(raw []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("decode manifest: %w", err)
	}
	return doc, nil
}

func (d Document) bucketPaths() []string {
	if len(d.BucketPaths) > 0 {
		return d.BucketPaths
	}
	return d.BucketPath
}

// hasExpiry treats nil, false, zero numbers, empty strings and empty
// collections as no expiry.
func hasExpiry(v any) bool {
	switch e := v.(type) {
	case nil:
		return false
	case bool:
		return e
	case string:
		return e != ""
	case int:
		return e != 0
	case int64:
		return e != 0
	case uint64:
		return e != 0
	case float64:
		return e != 0
	case []any:
		return len(e) > 0
	case map[string]any:
		return len(e) > 0
	case map[any]any:
		return len(e) > 0
	default:
		return true
	}
}

package mapping

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Definition describes how source rows map onto target entities. It is
// owned by the caller for its whole lifecycle; the loader only reads it.
type Definition struct {
	Name         string             `yaml:"name,omitempty"`
	Description  string             `yaml:"description,omitempty"`
	SourceSchema string             `yaml:"source_schema,omitempty"`
	Entities     []EntityMapping    `yaml:"entities"`
	Relations    []RelationOverride `yaml:"relations,omitempty"`
}

// EntityMapping maps source columns onto one target entity. When Pivot is
// set the mapping is a standalone pivot sync ("owner_entity.relation") and
// no owner record is created or updated.
type EntityMapping struct {
	Entity         string          `yaml:"entity"`
	Pivot          string          `yaml:"pivot,omitempty"`
	Columns        []ColumnMapping `yaml:"columns"`
	Options        Options         `yaml:"options,omitempty"`
	ExecutionOrder int             `yaml:"execution_order,omitempty"`
}

// ColumnMapping maps one source column to a target path.
type ColumnMapping struct {
	Source     string          `yaml:"source"`
	Target     string          `yaml:"target"`
	Transforms []string        `yaml:"transforms,omitempty"`
	Default    any             `yaml:"default,omitempty"`
	Rule       string          `yaml:"rule,omitempty"`
	Lookup     *RelationLookup `yaml:"lookup,omitempty"`
}

// RelationLookup configures how a related record is found. Explicit
// configuration always wins over auto-detection.
type RelationLookup struct {
	Field           string `yaml:"field"`
	CreateIfMissing bool   `yaml:"create_if_missing,omitempty"`
	Delimiter       string `yaml:"delimiter,omitempty"`
}

// DuplicateStrategy controls what happens when a unique-key lookup finds an
// existing owner record.
type DuplicateStrategy string

const (
	DuplicateSkip   DuplicateStrategy = "skip"
	DuplicateUpdate DuplicateStrategy = "update"
	DuplicateError  DuplicateStrategy = "error"
)

// Options holds per-entity load options.
type Options struct {
	UniqueKey         StringList        `yaml:"unique_key,omitempty"`
	DuplicateStrategy DuplicateStrategy `yaml:"duplicate_strategy,omitempty"`
}

// Strategy returns the configured duplicate strategy, defaulting to skip.
func (o Options) Strategy() DuplicateStrategy {
	if o.DuplicateStrategy == "" {
		return DuplicateSkip
	}
	return o.DuplicateStrategy
}

// RelationOverride declares a relation explicitly instead of deriving it
// from the schema's foreign keys.
type RelationOverride struct {
	Entity         string `yaml:"entity"`
	Name           string `yaml:"name"`
	Kind           string `yaml:"kind"` // owning_to_one, inverse_to_one, to_many, many_to_many
	Related        string `yaml:"related"`
	ForeignKey     string `yaml:"foreign_key,omitempty"`
	RelatedKey     string `yaml:"related_key,omitempty"`
	JoinTable      string `yaml:"join_table,omitempty"`
	JoinOwnerKey   string `yaml:"join_owner_key,omitempty"`
	JoinRelatedKey string `yaml:"join_related_key,omitempty"`
}

// StringList unmarshals from either a YAML scalar or a sequence.
type StringList []string

func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var v string
		if err := node.Decode(&v); err != nil {
			return err
		}
		if v != "" {
			*s = StringList{v}
		}
		return nil
	case yaml.SequenceNode:
		var v []string
		if err := node.Decode(&v); err != nil {
			return err
		}
		*s = StringList(v)
		return nil
	default:
		return fmt.Errorf("unique_key must be a string or a list of strings")
	}
}

// Entity returns the entity mapping with the given target entity, or nil.
func (d *Definition) Entity(name string) *EntityMapping {
	for i := range d.Entities {
		if d.Entities[i].Entity == name {
			return &d.Entities[i]
		}
	}
	return nil
}

// WriteYAML writes the definition to a YAML file at the given path.
func (d *Definition) WriteYAML(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshaling mapping: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// LoadYAML reads a mapping definition from a YAML file.
func LoadYAML(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mapping file: %w", err)
	}
	d := &Definition{}
	if err := yaml.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("parsing mapping: %w", err)
	}
	return d, nil
}

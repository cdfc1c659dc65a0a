package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
)

// EngineConfig is the YAML configuration for reasoning limits, planning,
// caching, synthesis, and inference rules.
type EngineConfig struct {
	Limits    Limits          `yaml:"limits"`
	Planner   PlannerConfig   `yaml:"planner"`
	Cache     CacheConfig     `yaml:"schema_cache"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Rules     []RuleConfig    `yaml:"rules"`
}

// Limits bounds the work one reasoning request may do.
type Limits struct {
	MaxHops     int `yaml:"max_hops"`
	MaxEvidence int `yaml:"max_evidence"`
	MaxSteps    int `yaml:"max_steps"`
}

// PlannerConfig tunes cost estimation and the default strategy.
type PlannerConfig struct {
	BranchingFactor float64 `yaml:"branching_factor"`
	Strategy        string  `yaml:"strategy"`
}

// CacheConfig sets the schema cache capacities.
type CacheConfig struct {
	EntityTypes   int `yaml:"entity_types"`
	RelationTypes int `yaml:"relation_types"`
	Properties    int `yaml:"properties"`
}

// SynthesisConfig carries combination method, thresholds, and the
// domain-supplied contradiction semantics.
type SynthesisConfig struct {
	Method                 string      `yaml:"method"`
	ConfidenceThreshold    float64     `yaml:"confidence_threshold"`
	ContradictionThreshold float64     `yaml:"contradiction_threshold"`
	ExclusivePairs         [][2]string `yaml:"exclusive_pairs"`
	DirectedExclusive      []string    `yaml:"directed_exclusive"`
}

// RuleConfig declares one inference rule.
type RuleConfig struct {
	ID              string  `yaml:"id"`
	Type            string  `yaml:"type"`
	RelationType    string  `yaml:"relation_type"`
	ConfidenceDecay float64 `yaml:"confidence_decay"`
	Enabled         bool    `yaml:"enabled"`
}

// LoadEngineConfig loads and validates an engine configuration file.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg EngineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse engine config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fails fast on out-of-range limits or thresholds, before any
// reasoning work begins.
func (c *EngineConfig) Validate() error {
	if c.Limits.MaxHops < 0 {
		return &internalerr.ConfigurationError{Field: "limits.max_hops", Reason: "must not be negative"}
	}
	if c.Limits.MaxEvidence < 0 {
		return &internalerr.ConfigurationError{Field: "limits.max_evidence", Reason: "must not be negative"}
	}
	if c.Limits.MaxSteps < 0 {
		return &internalerr.ConfigurationError{Field: "limits.max_steps", Reason: "must not be negative"}
	}
	if c.Planner.BranchingFactor < 0 {
		return &internalerr.ConfigurationError{Field: "planner.branching_factor", Reason: "must not be negative"}
	}
	if t := c.Synthesis.ConfidenceThreshold; t < 0 || t > 1 {
		return &internalerr.ConfigurationError{Field: "synthesis.confidence_threshold", Reason: "must be in [0,1]"}
	}
	if t := c.Synthesis.ContradictionThreshold; t < 0 || t > 1 {
		return &internalerr.ConfigurationError{Field: "synthesis.contradiction_threshold", Reason: "must be in [0,1]"}
	}
	for _, r := range c.Rules {
		if r.ID == "" {
			return &internalerr.ConfigurationError{Field: "rules.id", Reason: "must not be empty"}
		}
		if r.ConfidenceDecay < 0 || r.ConfidenceDecay > 1 {
			return &internalerr.ConfigurationError{
				Field:  fmt.Sprintf("rules[%s].confidence_decay", r.ID),
				Reason: "must be in [0,1]",
			}
		}
	}
	return nil
}

// GraphFixture is a YAML-described graph: entities, relations, and
// optional schema definitions. Used by the CLI, the import tool, and
// tests.
type GraphFixture struct {
	Entities  []EntityFixture   `yaml:"entities"`
	Relations []RelationFixture `yaml:"relations"`

	EntityTypes   []EntityTypeFixture   `yaml:"entity_types"`
	RelationTypes []RelationTypeFixture `yaml:"relation_types"`
	Properties    []PropertyFixture     `yaml:"properties"`
}

// EntityFixture declares one entity.
type EntityFixture struct {
	ID         string         `yaml:"id"`
	Type       string         `yaml:"type"`
	Name       string         `yaml:"name"`
	Properties map[string]any `yaml:"properties"`
}

// RelationFixture declares one relation.
type RelationFixture struct {
	ID         string   `yaml:"id"`
	Source     string   `yaml:"source"`
	Target     string   `yaml:"target"`
	Type       string   `yaml:"type"`
	Confidence *float64 `yaml:"confidence"`
}

// EntityTypeFixture declares one entity-type definition.
type EntityTypeFixture struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Properties  []string `yaml:"properties"`
}

// RelationTypeFixture declares one relation-type definition.
type RelationTypeFixture struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	SourceTypes []string `yaml:"source_types"`
	TargetTypes []string `yaml:"target_types"`
	Directed    bool     `yaml:"directed"`
}

// PropertyFixture declares one property definition.
type PropertyFixture struct {
	EntityType string `yaml:"entity_type"`
	Name       string `yaml:"name"`
	ValueType  string `yaml:"value_type"`
	Required   bool   `yaml:"required"`
}

// LoadGraphFixture loads and validates a graph fixture file.
func LoadGraphFixture(path string) (*GraphFixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var fx GraphFixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse graph fixture: %w", err)
	}

	ids := make(map[string]struct{}, len(fx.Entities))
	for _, e := range fx.Entities {
		if e.ID == "" {
			return nil, &internalerr.ConfigurationError{Field: "entities.id", Reason: "must not be empty"}
		}
		ids[e.ID] = struct{}{}
	}
	for _, r := range fx.Relations {
		if r.ID == "" || r.Source == "" || r.Target == "" || r.Type == "" {
			return nil, &internalerr.ConfigurationError{
				Field:  "relations",
				Reason: fmt.Sprintf("relation %q must have id, source, target, and type", r.ID),
			}
		}
		if r.Confidence != nil && (*r.Confidence < 0 || *r.Confidence > 1) {
			return nil, &internalerr.ConfigurationError{
				Field:  fmt.Sprintf("relations[%s].confidence", r.ID),
				Reason: "must be in [0,1]",
			}
		}
	}
	return &fx, nil
}

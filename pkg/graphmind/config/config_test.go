package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const engineYAML = `
limits:
  max_hops: 4
  max_evidence: 20
  max_steps: 3
planner:
  branching_factor: 6
  strategy: balanced
schema_cache:
  entity_types: 50
  relation_types: 50
  properties: 200
synthesis:
  method: weighted_average
  confidence_threshold: 0.4
  contradiction_threshold: 0.7
  directed_exclusive:
    - MANAGES
rules:
  - id: knows-transitive
    type: transitive
    relation_type: KNOWS
    confidence_decay: 0.2
    enabled: true
  - id: friend-symmetric
    type: symmetric
    relation_type: FRIEND_OF
    confidence_decay: 0.1
    enabled: false
`

const graphYAML = `
entities:
  - id: alice
    type: person
    name: Alice
    properties:
      age: 34
  - id: acme
    type: company
    name: Acme
relations:
  - id: r1
    source: alice
    target: acme
    type: WORKS_AT
    confidence: 0.9
entity_types:
  - name: person
    description: a human
    properties: [age]
relation_types:
  - name: WORKS_AT
    source_types: [person]
    target_types: [company]
    directed: true
properties:
  - entity_type: person
    name: age
    value_type: int
    required: false
`

func TestLoadEngineConfig(t *testing.T) {
	path := writeFile(t, "engine.yaml", engineYAML)

	cfg, err := LoadEngineConfig(path)
	if err != nil {
		t.Fatalf("LoadEngineConfig: %v", err)
	}
	if cfg.Limits.MaxHops != 4 || cfg.Limits.MaxEvidence != 20 {
		t.Errorf("limits not parsed: %+v", cfg.Limits)
	}
	if cfg.Planner.Strategy != "balanced" || cfg.Planner.BranchingFactor != 6 {
		t.Errorf("planner config not parsed: %+v", cfg.Planner)
	}
	if len(cfg.Rules) != 2 || cfg.Rules[0].ID != "knows-transitive" {
		t.Errorf("rules not parsed: %+v", cfg.Rules)
	}
	if len(cfg.Synthesis.DirectedExclusive) != 1 {
		t.Errorf("synthesis config not parsed: %+v", cfg.Synthesis)
	}
}

func TestLoadEngineConfigRejectsBadThreshold(t *testing.T) {
	path := writeFile(t, "engine.yaml", "synthesis:\n  confidence_threshold: 1.5\n")

	_, err := LoadEngineConfig(path)
	var cfgErr *internalerr.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if cfgErr.Field != "synthesis.confidence_threshold" {
		t.Errorf("error names the wrong field: %q", cfgErr.Field)
	}
}

func TestLoadEngineConfigRejectsBadDecay(t *testing.T) {
	path := writeFile(t, "engine.yaml", `
rules:
  - id: bad
    type: transitive
    relation_type: KNOWS
    confidence_decay: 2.0
`)
	if _, err := LoadEngineConfig(path); !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
}

func TestLoadGraphFixture(t *testing.T) {
	path := writeFile(t, "graph.yaml", graphYAML)

	fx, err := LoadGraphFixture(path)
	if err != nil {
		t.Fatalf("LoadGraphFixture: %v", err)
	}
	if len(fx.Entities) != 2 || len(fx.Relations) != 1 {
		t.Fatalf("fixture not parsed: %d entities, %d relations", len(fx.Entities), len(fx.Relations))
	}
	if fx.Relations[0].Confidence == nil || *fx.Relations[0].Confidence != 0.9 {
		t.Error("relation confidence not parsed")
	}
	if len(fx.EntityTypes) != 1 || len(fx.RelationTypes) != 1 || len(fx.Properties) != 1 {
		t.Error("schema definitions not parsed")
	}
}

func TestLoadGraphFixtureRejectsIncompleteRelation(t *testing.T) {
	path := writeFile(t, "graph.yaml", `
relations:
  - id: r1
    source: alice
    type: KNOWS
`)
	if _, err := LoadGraphFixture(path); !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
}

func TestLoadGraphFixtureRejectsOutOfRangeConfidence(t *testing.T) {
	path := writeFile(t, "graph.yaml", `
relations:
  - id: r1
    source: a
    target: b
    type: KNOWS
    confidence: 1.3
`)
	if _, err := LoadGraphFixture(path); err == nil {
		t.Fatal("expected out-of-range confidence to be rejected")
	}
}

func TestLoaderAssemblesComponents(t *testing.T) {
	l := &Loader{
		ConfigPath: writeFile(t, "engine.yaml", engineYAML),
		GraphPath:  writeFile(t, "graph.yaml", graphYAML),
	}

	comp, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ctx := context.Background()

	ent, err := comp.Store.GetEntity(ctx, "alice")
	if err != nil {
		t.Fatalf("fixture entity missing: %v", err)
	}
	if ent.Name != "Alice" {
		t.Errorf("expected name Alice, got %q", ent.Name)
	}
	ok, err := comp.Store.HasRelation(ctx, "alice", "acme", "WORKS_AT")
	if err != nil || !ok {
		t.Errorf("fixture relation missing (ok=%v err=%v)", ok, err)
	}

	def, err := comp.SchemaCache.GetEntityType(ctx, "person")
	if err != nil {
		t.Fatalf("schema definition missing: %v", err)
	}
	if def.Description != "a human" {
		t.Errorf("unexpected entity type def: %+v", def)
	}

	rules := comp.Inference.Rules("KNOWS")
	if len(rules) != 1 || rules[0].ID != "knows-transitive" {
		t.Errorf("configured rules not registered: %+v", rules)
	}
	if comp.Planner == nil || comp.Synthesizer == nil {
		t.Error("planner and synthesizer must be constructed")
	}
}

func TestLoaderDefaultsWithoutFiles(t *testing.T) {
	comp, err := (&Loader{}).Load()
	if err != nil {
		t.Fatalf("Load with no paths: %v", err)
	}
	if comp.Store == nil || comp.SchemaCache == nil || comp.Inference == nil {
		t.Error("empty loader must still assemble working components")
	}
}

func TestApplyFixtureCopiesProperties(t *testing.T) {
	path := writeFile(t, "graph.yaml", graphYAML)
	fx, err := LoadGraphFixture(path)
	if err != nil {
		t.Fatalf("LoadGraphFixture: %v", err)
	}

	l := &Loader{GraphPath: path}
	comp, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ent, err := comp.Store.GetEntity(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if ent.Properties["age"] != 34 {
		t.Errorf("expected age property 34, got %v", ent.Properties["age"])
	}
	if fx.Entities[0].Properties == nil {
		t.Error("fixture properties must survive loading")
	}
}

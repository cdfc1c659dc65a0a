package inference

import (
	"context"

	"github.com/cognicore/graphmind/pkg/graphmind/graphstore"
)

// RuleType is the closed set of rule variants. Dispatch is a switch over
// this tag, one handler per variant.
type RuleType string

const (
	// Transitive derives A-R->C from A-R->B and B-R->C, applied in rounds
	// to a fixed point.
	Transitive RuleType = "TRANSITIVE"
	// Symmetric derives B-R->A from A-R->B; one pass suffices.
	Symmetric RuleType = "SYMMETRIC"
	// Custom delegates to a caller-registered handler.
	Custom RuleType = "CUSTOM"
)

// Handler implements a Custom rule. It receives the relations established
// so far (originals plus prior inferences) and returns the new steps it
// derives; conclusions already present are deduplicated by the engine.
type Handler func(ctx context.Context, relations []graphstore.Relation) ([]Step, error)

// Rule is a registered inference rule. Rules are long-lived and mutated
// only through the engine's management calls; Enabled takes effect on the
// next inference call, not eagerly.
type Rule struct {
	ID              string   `json:"id"`
	Type            RuleType `json:"type"`
	RelationType    string   `json:"relation_type"`
	ConfidenceDecay float64  `json:"confidence_decay"`
	Enabled         bool     `json:"enabled"`

	// Handler is only consulted for Custom rules and is not serialized.
	Handler Handler `json:"-"`
}

// Step records one rule application: the premises consumed, the conclusion
// drawn, and its confidence.
type Step struct {
	RuleID     string                `json:"rule_id"`
	Premises   []graphstore.Relation `json:"premises"`
	Conclusion graphstore.Relation   `json:"conclusion"`
	Confidence float64               `json:"confidence"`
}

// Result aggregates one inference run. InferredRelations are deduplicated
// against both the existing graph and earlier inferences of the same run.
type Result struct {
	InferredRelations []graphstore.Relation `json:"inferred_relations"`
	Steps             []Step                `json:"inference_steps"`
	Confidence        float64               `json:"confidence"`
	TotalSteps        int                   `json:"total_steps"`
}

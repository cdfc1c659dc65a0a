package graphstore

import (
	"context"
)

// Direction selects which relations of an entity a lookup returns.
type Direction string

const (
	// Outgoing returns relations where the entity is the source.
	Outgoing Direction = "outgoing"
	// Incoming returns relations where the entity is the target.
	Incoming Direction = "incoming"
	// Both returns relations in either direction.
	Both Direction = "both"
)

// Entity is a read-only projection of a graph-store node. The reasoning
// core never mutates entities; the graph store owns them.
type Entity struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Name       string         `json:"name,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Relation is a read-only projection of a graph-store edge. Confidence is
// optional; a zero pointer means the edge carries no confidence annotation
// and traversal treats it as 1.0.
type Relation struct {
	ID           string         `json:"id"`
	SourceID     string         `json:"source_id"`
	TargetID     string         `json:"target_id"`
	RelationType string         `json:"relation_type"`
	Confidence   *float64       `json:"confidence,omitempty"`
	Properties   map[string]any `json:"properties,omitempty"`
}

// ConfidenceOrDefault returns the relation's confidence, or 1.0 when the
// edge carries none.
func (r Relation) ConfidenceOrDefault() float64 {
	if r.Confidence == nil {
		return 1.0
	}
	return *r.Confidence
}

// Store is the read-only interface the reasoning core requires from the
// external graph storage engine. Implementations must return slices in a
// deterministic order for identical graph state, so repeated reasoning
// runs are reproducible.
type Store interface {
	Close() error

	// Entities
	GetEntity(ctx context.Context, id string) (Entity, error)
	GetEntitiesByType(ctx context.Context, entityType string) ([]Entity, error)
	HasEntity(ctx context.Context, id string) (bool, error)

	// Relations. relationType == "" means any type.
	GetRelations(ctx context.Context, entityID, relationType string, dir Direction) ([]Relation, error)
	AllRelationsOfType(ctx context.Context, relationType string) ([]Relation, error)
	HasRelation(ctx context.Context, sourceID, targetID, relationType string) (bool, error)
}

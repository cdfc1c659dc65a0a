package schema

import (
	"context"
)

// EntityTypeDef describes an entity type known to the graph schema.
type EntityTypeDef struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Properties  []string `json:"properties,omitempty"`
}

// RelationTypeDef describes a relation type, including which entity types
// it may connect and whether direction is meaningful.
type RelationTypeDef struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	SourceTypes []string `json:"source_types,omitempty"`
	TargetTypes []string `json:"target_types,omitempty"`
	Directed    bool     `json:"directed"`
}

// PropertyDef describes one property of an entity type.
type PropertyDef struct {
	EntityType string `json:"entity_type"`
	Name       string `json:"name"`
	ValueType  string `json:"value_type"`
	Required   bool   `json:"required"`
}

// Source is the authoritative supplier of schema definitions, backed by the
// external graph store. The cache consults it on a miss. The boolean result
// distinguishes "definition absent" from a lookup failure.
type Source interface {
	EntityTypeDef(ctx context.Context, name string) (EntityTypeDef, bool, error)
	RelationTypeDef(ctx context.Context, name string) (RelationTypeDef, bool, error)
	PropertyDef(ctx context.Context, entityType, property string) (PropertyDef, bool, error)
}

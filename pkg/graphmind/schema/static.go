package schema

import (
	"context"
	"sync"
)

// StaticSource is a map-backed Source for fixtures and tests. Definitions
// are registered up front or replaced at runtime; it never fails a lookup,
// it only reports absence.
type StaticSource struct {
	mu            sync.RWMutex
	entityTypes   map[string]EntityTypeDef
	relationTypes map[string]RelationTypeDef
	properties    map[string]PropertyDef
}

// NewStaticSource creates an empty StaticSource.
func NewStaticSource() *StaticSource {
	return &StaticSource{
		entityTypes:   make(map[string]EntityTypeDef),
		relationTypes: make(map[string]RelationTypeDef),
		properties:    make(map[string]PropertyDef),
	}
}

// PutEntityType registers or replaces an entity-type definition.
func (s *StaticSource) PutEntityType(def EntityTypeDef) {
	s.mu.Lock()
	s.entityTypes[def.Name] = def
	s.mu.Unlock()
}

// PutRelationType registers or replaces a relation-type definition.
func (s *StaticSource) PutRelationType(def RelationTypeDef) {
	s.mu.Lock()
	s.relationTypes[def.Name] = def
	s.mu.Unlock()
}

// PutProperty registers or replaces a property definition.
func (s *StaticSource) PutProperty(def PropertyDef) {
	s.mu.Lock()
	s.properties[def.EntityType+"\x00"+def.Name] = def
	s.mu.Unlock()
}

// EntityTypeDef implements Source.
func (s *StaticSource) EntityTypeDef(ctx context.Context, name string) (EntityTypeDef, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.entityTypes[name]
	return def, ok, nil
}

// RelationTypeDef implements Source.
func (s *StaticSource) RelationTypeDef(ctx context.Context, name string) (RelationTypeDef, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.relationTypes[name]
	return def, ok, nil
}

// PropertyDef implements Source.
func (s *StaticSource) PropertyDef(ctx context.Context, entityType, property string) (PropertyDef, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.properties[entityType+"\x00"+property]
	return def, ok, nil
}

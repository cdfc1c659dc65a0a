package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/cognicore/graphmind/pkg/graphmind/graphstore"
	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
)

// Store is an in-memory implementation of graphstore.Store for tests,
// examples, and the CLI. All returned slices are sorted by id so repeated
// reads over the same graph are deterministic.
type Store struct {
	mu        sync.RWMutex
	entities  map[string]graphstore.Entity
	relations map[string]graphstore.Relation
	outgoing  map[string][]string // entity id -> relation ids
	incoming  map[string][]string
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		entities:  make(map[string]graphstore.Entity),
		relations: make(map[string]graphstore.Relation),
		outgoing:  make(map[string][]string),
		incoming:  make(map[string][]string),
	}
}

// Close implements graphstore.Store.
func (s *Store) Close() error { return nil }

// AddEntity inserts or replaces an entity. Not part of graphstore.Store;
// used by fixtures and the import tooling.
func (s *Store) AddEntity(e graphstore.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		return
	}
	s.entities[e.ID] = copyEntity(e)
}

// AddRelation inserts or replaces a relation. Relations referencing unknown
// entities are accepted; traversal simply never reaches them.
func (s *Store) AddRelation(r graphstore.Relation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" || r.SourceID == "" || r.TargetID == "" {
		return
	}
	if _, exists := s.relations[r.ID]; !exists {
		s.outgoing[r.SourceID] = append(s.outgoing[r.SourceID], r.ID)
		s.incoming[r.TargetID] = append(s.incoming[r.TargetID], r.ID)
	}
	s.relations[r.ID] = copyRelation(r)
}

// GetEntity returns an entity by id.
func (s *Store) GetEntity(ctx context.Context, id string) (graphstore.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.entities[id]; ok {
		return copyEntity(e), nil
	}
	return graphstore.Entity{}, &internalerr.EntityNotFoundError{ID: id}
}

// GetEntitiesByType returns all entities of the given type, sorted by id.
func (s *Store) GetEntitiesByType(ctx context.Context, entityType string) ([]graphstore.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []graphstore.Entity
	for _, e := range s.entities {
		if e.Type == entityType {
			out = append(out, copyEntity(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// HasEntity reports whether an entity id exists.
func (s *Store) HasEntity(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entities[id]
	return ok, nil
}

// GetRelations returns relations incident to an entity, filtered by type
// and direction, sorted by relation id.
func (s *Store) GetRelations(ctx context.Context, entityID, relationType string, dir graphstore.Direction) ([]graphstore.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	switch dir {
	case graphstore.Outgoing:
		ids = s.outgoing[entityID]
	case graphstore.Incoming:
		ids = s.incoming[entityID]
	default:
		ids = append(append([]string{}, s.outgoing[entityID]...), s.incoming[entityID]...)
	}

	seen := make(map[string]struct{}, len(ids))
	var out []graphstore.Relation
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		r := s.relations[id]
		if relationType != "" && r.RelationType != relationType {
			continue
		}
		out = append(out, copyRelation(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AllRelationsOfType returns every relation of the given type, sorted by id.
func (s *Store) AllRelationsOfType(ctx context.Context, relationType string) ([]graphstore.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []graphstore.Relation
	for _, r := range s.relations {
		if r.RelationType == relationType {
			out = append(out, copyRelation(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// HasRelation reports whether an edge (source, target, type) exists.
func (s *Store) HasRelation(ctx context.Context, sourceID, targetID, relationType string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.outgoing[sourceID] {
		r := s.relations[id]
		if r.TargetID == targetID && r.RelationType == relationType {
			return true, nil
		}
	}
	return false, nil
}

func copyEntity(e graphstore.Entity) graphstore.Entity {
	out := e
	if e.Properties != nil {
		out.Properties = make(map[string]any, len(e.Properties))
		for k, v := range e.Properties {
			out.Properties[k] = v
		}
	}
	return out
}

func copyRelation(r graphstore.Relation) graphstore.Relation {
	out := r
	if r.Confidence != nil {
		c := *r.Confidence
		out.Confidence = &c
	}
	if r.Properties != nil {
		out.Properties = make(map[string]any, len(r.Properties))
		for k, v := range r.Properties {
			out.Properties[k] = v
		}
	}
	return out
}

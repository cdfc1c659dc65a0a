package schema

import (
	"context"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
)

// Default cache capacities. They scale with schema size, not graph size:
// property definitions outnumber type definitions roughly 5:1 in practice.
const (
	DefaultEntityTypeCapacity   = 100
	DefaultRelationTypeCapacity = 100
	DefaultPropertyCapacity     = 500
)

// CacheMetrics reports hit/miss counters for one cache. Counters increase
// monotonically until ResetMetrics.
type CacheMetrics struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Size    int     `json:"size"`
}

// CacheOptions configures a Cache. Zero capacities fall back to the defaults.
type CacheOptions struct {
	Source               Source
	EntityTypeCapacity   int
	RelationTypeCapacity int
	PropertyCapacity     int
}

// Cache is a bounded, metered lookup cache for entity-type, relation-type,
// and property definitions. Eviction is strict LRU per cache. The cache does
// not subscribe to schema-change notifications: after a schema mutation the
// caller must clear the affected caches explicitly.
type Cache struct {
	source Source

	entityTypes   *lru.Cache[string, EntityTypeDef]
	relationTypes *lru.Cache[string, RelationTypeDef]
	properties    *lru.Cache[string, PropertyDef]

	entityCounters   counters
	relationCounters counters
	propertyCounters counters
}

type counters struct {
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCache creates a schema cache over the given source.
func NewCache(opts CacheOptions) (*Cache, error) {
	if opts.Source == nil {
		return nil, &internalerr.ConfigurationError{Field: "source", Reason: "schema source is required"}
	}
	entCap := opts.EntityTypeCapacity
	if entCap <= 0 {
		entCap = DefaultEntityTypeCapacity
	}
	relCap := opts.RelationTypeCapacity
	if relCap <= 0 {
		relCap = DefaultRelationTypeCapacity
	}
	propCap := opts.PropertyCapacity
	if propCap <= 0 {
		propCap = DefaultPropertyCapacity
	}

	entityTypes, err := lru.New[string, EntityTypeDef](entCap)
	if err != nil {
		return nil, err
	}
	relationTypes, err := lru.New[string, RelationTypeDef](relCap)
	if err != nil {
		return nil, err
	}
	properties, err := lru.New[string, PropertyDef](propCap)
	if err != nil {
		return nil, err
	}

	return &Cache{
		source:        opts.Source,
		entityTypes:   entityTypes,
		relationTypes: relationTypes,
		properties:    properties,
	}, nil
}

// GetEntityType returns the definition for an entity type, consulting the
// source on a miss and caching the result.
func (c *Cache) GetEntityType(ctx context.Context, name string) (EntityTypeDef, error) {
	if def, ok := c.entityTypes.Get(name); ok {
		c.entityCounters.hits.Add(1)
		return def, nil
	}
	c.entityCounters.misses.Add(1)

	def, found, err := c.source.EntityTypeDef(ctx, name)
	if err != nil {
		return EntityTypeDef{}, fmt.Errorf("entity type %q: %w", name, err)
	}
	if !found {
		return EntityTypeDef{}, fmt.Errorf("entity type %q: %w", name, internalerr.ErrNotFound)
	}
	c.entityTypes.Add(name, def)
	return def, nil
}

// GetRelationType returns the definition for a relation type.
func (c *Cache) GetRelationType(ctx context.Context, name string) (RelationTypeDef, error) {
	if def, ok := c.relationTypes.Get(name); ok {
		c.relationCounters.hits.Add(1)
		return def, nil
	}
	c.relationCounters.misses.Add(1)

	def, found, err := c.source.RelationTypeDef(ctx, name)
	if err != nil {
		return RelationTypeDef{}, fmt.Errorf("relation type %q: %w", name, err)
	}
	if !found {
		return RelationTypeDef{}, fmt.Errorf("relation type %q: %w", name, internalerr.ErrNotFound)
	}
	c.relationTypes.Add(name, def)
	return def, nil
}

// GetPropertySchema returns the definition of one property of an entity type.
func (c *Cache) GetPropertySchema(ctx context.Context, entityType, property string) (PropertyDef, error) {
	key := entityType + "\x00" + property
	if def, ok := c.properties.Get(key); ok {
		c.propertyCounters.hits.Add(1)
		return def, nil
	}
	c.propertyCounters.misses.Add(1)

	def, found, err := c.source.PropertyDef(ctx, entityType, property)
	if err != nil {
		return PropertyDef{}, fmt.Errorf("property %s.%s: %w", entityType, property, err)
	}
	if !found {
		return PropertyDef{}, fmt.Errorf("property %s.%s: %w", entityType, property, internalerr.ErrNotFound)
	}
	c.properties.Add(key, def)
	return def, nil
}

// ClearEntityTypes drops all cached entity-type definitions.
func (c *Cache) ClearEntityTypes() { c.entityTypes.Purge() }

// ClearRelationTypes drops all cached relation-type definitions.
func (c *Cache) ClearRelationTypes() { c.relationTypes.Purge() }

// ClearProperties drops all cached property definitions.
func (c *Cache) ClearProperties() { c.properties.Purge() }

// Clear drops every cached definition. Metrics are unaffected.
func (c *Cache) Clear() {
	c.entityTypes.Purge()
	c.relationTypes.Purge()
	c.properties.Purge()
}

// Metrics returns hit/miss counters per cache, keyed by cache name.
func (c *Cache) Metrics() map[string]CacheMetrics {
	return map[string]CacheMetrics{
		"entity_types":   snapshot(&c.entityCounters, c.entityTypes.Len()),
		"relation_types": snapshot(&c.relationCounters, c.relationTypes.Len()),
		"properties":     snapshot(&c.propertyCounters, c.properties.Len()),
	}
}

// ResetMetrics zeroes all hit/miss counters. Cached entries are unaffected.
func (c *Cache) ResetMetrics() {
	for _, ct := range []*counters{&c.entityCounters, &c.relationCounters, &c.propertyCounters} {
		ct.hits.Store(0)
		ct.misses.Store(0)
	}
}

func snapshot(ct *counters, size int) CacheMetrics {
	hits := ct.hits.Load()
	misses := ct.misses.Load()
	m := CacheMetrics{Hits: hits, Misses: misses, Size: size}
	if total := hits + misses; total > 0 {
		m.HitRate = float64(hits) / float64(total)
	}
	return m
}

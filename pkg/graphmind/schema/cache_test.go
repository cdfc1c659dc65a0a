package schema

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
)

func newTestCache(t *testing.T, opts CacheOptions) (*Cache, *StaticSource) {
	t.Helper()
	src := NewStaticSource()
	src.PutEntityType(EntityTypeDef{Name: "Person", Properties: []string{"name"}})
	src.PutRelationType(RelationTypeDef{Name: "KNOWS", Directed: true})
	src.PutProperty(PropertyDef{EntityType: "Person", Name: "name", ValueType: "string"})

	opts.Source = src
	c, err := NewCache(opts)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	return c, src
}

func TestHitMissMetrics(t *testing.T) {
	c, _ := newTestCache(t, CacheOptions{})
	ctx := context.Background()

	if _, err := c.GetEntityType(ctx, "Person"); err != nil {
		t.Fatalf("first lookup: %v", err)
	}
	if _, err := c.GetEntityType(ctx, "Person"); err != nil {
		t.Fatalf("second lookup: %v", err)
	}

	m := c.Metrics()["entity_types"]
	if m.Hits != 1 || m.Misses != 1 {
		t.Errorf("expected 1 hit / 1 miss, got %d / %d", m.Hits, m.Misses)
	}
	if m.HitRate != 0.5 {
		t.Errorf("expected hit rate 0.5, got %f", m.HitRate)
	}
	if m.Size != 1 {
		t.Errorf("expected size 1, got %d", m.Size)
	}
}

func TestNotFound(t *testing.T) {
	c, _ := newTestCache(t, CacheOptions{})

	_, err := c.GetEntityType(context.Background(), "Ghost")
	if !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClearForcesMiss(t *testing.T) {
	c, _ := newTestCache(t, CacheOptions{})
	ctx := context.Background()

	c.GetEntityType(ctx, "Person")
	c.GetEntityType(ctx, "Person")
	c.Clear()

	before := c.Metrics()["entity_types"].Misses
	if _, err := c.GetEntityType(ctx, "Person"); err != nil {
		t.Fatalf("lookup after clear: %v", err)
	}
	after := c.Metrics()["entity_types"].Misses
	if after != before+1 {
		t.Error("lookup immediately after Clear must be a miss")
	}
}

func TestExplicitInvalidationContract(t *testing.T) {
	c, src := newTestCache(t, CacheOptions{})
	ctx := context.Background()

	c.GetRelationType(ctx, "KNOWS")

	// Schema mutates; the cache keeps serving the stale definition until
	// the caller clears it.
	src.PutRelationType(RelationTypeDef{Name: "KNOWS", Directed: false})

	def, _ := c.GetRelationType(ctx, "KNOWS")
	if !def.Directed {
		t.Error("expected stale cached definition before clear")
	}

	c.ClearRelationTypes()
	def, _ = c.GetRelationType(ctx, "KNOWS")
	if def.Directed {
		t.Error("expected fresh definition after clear")
	}
}

func TestLRUEviction(t *testing.T) {
	src := NewStaticSource()
	for i := 0; i < 3; i++ {
		src.PutEntityType(EntityTypeDef{Name: fmt.Sprintf("T%d", i)})
	}
	c, err := NewCache(CacheOptions{Source: src, EntityTypeCapacity: 2})
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	ctx := context.Background()

	c.GetEntityType(ctx, "T0")
	c.GetEntityType(ctx, "T1")
	c.GetEntityType(ctx, "T2") // evicts T0

	before := c.Metrics()["entity_types"].Misses
	c.GetEntityType(ctx, "T0")
	after := c.Metrics()["entity_types"].Misses
	if after != before+1 {
		t.Error("least-recently-used entry should have been evicted")
	}
	if size := c.Metrics()["entity_types"].Size; size != 2 {
		t.Errorf("expected size 2, got %d", size)
	}
}

func TestResetMetrics(t *testing.T) {
	c, _ := newTestCache(t, CacheOptions{})
	ctx := context.Background()

	c.GetEntityType(ctx, "Person")
	c.GetEntityType(ctx, "Person")
	c.ResetMetrics()

	m := c.Metrics()["entity_types"]
	if m.Hits != 0 || m.Misses != 0 {
		t.Errorf("expected zeroed counters, got %d / %d", m.Hits, m.Misses)
	}
	if m.Size != 1 {
		t.Error("reset must not drop cached entries")
	}
}

func TestPropertySchemaLookup(t *testing.T) {
	c, _ := newTestCache(t, CacheOptions{})

	def, err := c.GetPropertySchema(context.Background(), "Person", "name")
	if err != nil {
		t.Fatalf("GetPropertySchema: %v", err)
	}
	if def.ValueType != "string" {
		t.Errorf("expected string, got %q", def.ValueType)
	}
}

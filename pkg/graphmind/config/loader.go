package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/cognicore/graphmind/pkg/graphmind/graphstore"
	"github.com/cognicore/graphmind/pkg/graphmind/graphstore/memstore"
	"github.com/cognicore/graphmind/pkg/graphmind/inference"
	"github.com/cognicore/graphmind/pkg/graphmind/planner"
	"github.com/cognicore/graphmind/pkg/graphmind/schema"
	"github.com/cognicore/graphmind/pkg/graphmind/synthesis"
)

// Loader loads configuration files and constructs engine components over
// an in-memory graph store.
type Loader struct {
	ConfigPath string
	GraphPath  string
	Logger     *slog.Logger
}

// Components holds everything assembled from configuration.
type Components struct {
	Config       *EngineConfig
	Store        *memstore.Store
	SchemaSource *schema.StaticSource
	SchemaCache  *schema.Cache
	Planner      *planner.Planner
	Inference    *inference.Engine
	Synthesizer  *synthesis.Synthesizer
}

// Load reads the configured files and returns initialized components.
func (l *Loader) Load() (*Components, error) {
	comp := &Components{Config: &EngineConfig{}}

	if l.ConfigPath != "" {
		cfg, err := LoadEngineConfig(l.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load engine config: %w", err)
		}
		comp.Config = cfg
	}

	comp.Store = memstore.New()
	comp.SchemaSource = schema.NewStaticSource()

	if l.GraphPath != "" {
		fx, err := LoadGraphFixture(l.GraphPath)
		if err != nil {
			return nil, fmt.Errorf("load graph fixture: %w", err)
		}
		ApplyFixture(comp.Store, comp.SchemaSource, fx)
	}

	cache, err := schema.NewCache(schema.CacheOptions{
		Source:               comp.SchemaSource,
		EntityTypeCapacity:   comp.Config.Cache.EntityTypes,
		RelationTypeCapacity: comp.Config.Cache.RelationTypes,
		PropertyCapacity:     comp.Config.Cache.Properties,
	})
	if err != nil {
		return nil, fmt.Errorf("build schema cache: %w", err)
	}
	comp.SchemaCache = cache

	comp.Planner = planner.New(planner.Options{
		SchemaCache:     cache,
		BranchingFactor: comp.Config.Planner.BranchingFactor,
	})

	inf, err := inference.New(inference.Options{Store: comp.Store, Logger: l.Logger})
	if err != nil {
		return nil, fmt.Errorf("build inference engine: %w", err)
	}
	for _, rc := range comp.Config.Rules {
		// Rule types are upper-case in code, conventionally lower-case in
		// config files.
		rule := inference.Rule{
			ID:              rc.ID,
			Type:            inference.RuleType(strings.ToUpper(rc.Type)),
			RelationType:    rc.RelationType,
			ConfidenceDecay: rc.ConfidenceDecay,
			Enabled:         rc.Enabled,
		}
		if err := inf.AddRule(rule); err != nil {
			return nil, fmt.Errorf("register rule %s: %w", rc.ID, err)
		}
	}
	comp.Inference = inf

	synth, err := synthesis.New(synthesis.Config{
		Method:                 synthesis.CombinationMethod(comp.Config.Synthesis.Method),
		ConfidenceThreshold:    comp.Config.Synthesis.ConfidenceThreshold,
		ContradictionThreshold: comp.Config.Synthesis.ContradictionThreshold,
		ExclusivePairs:         comp.Config.Synthesis.ExclusivePairs,
		DirectedExclusive:      comp.Config.Synthesis.DirectedExclusive,
	}, l.Logger)
	if err != nil {
		return nil, fmt.Errorf("build synthesizer: %w", err)
	}
	comp.Synthesizer = synth

	return comp, nil
}

// ApplyFixture loads a fixture's entities, relations, and schema
// definitions into the given store and source.
func ApplyFixture(store *memstore.Store, source *schema.StaticSource, fx *GraphFixture) {
	for _, e := range fx.Entities {
		store.AddEntity(graphstore.Entity{
			ID:         e.ID,
			Type:       e.Type,
			Name:       e.Name,
			Properties: e.Properties,
		})
	}
	for _, r := range fx.Relations {
		store.AddRelation(graphstore.Relation{
			ID:           r.ID,
			SourceID:     r.Source,
			TargetID:     r.Target,
			RelationType: r.Type,
			Confidence:   r.Confidence,
		})
	}
	for _, et := range fx.EntityTypes {
		source.PutEntityType(schema.EntityTypeDef{
			Name:        et.Name,
			Description: et.Description,
			Properties:  et.Properties,
		})
	}
	for _, rt := range fx.RelationTypes {
		source.PutRelationType(schema.RelationTypeDef{
			Name:        rt.Name,
			Description: rt.Description,
			SourceTypes: rt.SourceTypes,
			TargetTypes: rt.TargetTypes,
			Directed:    rt.Directed,
		})
	}
	for _, p := range fx.Properties {
		source.PutProperty(schema.PropertyDef{
			EntityType: p.EntityType,
			Name:       p.Name,
			ValueType:  p.ValueType,
			Required:   p.Required,
		})
	}
}

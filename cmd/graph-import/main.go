package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/cognicore/graphmind/pkg/graphmind/config"
	"github.com/cognicore/graphmind/pkg/graphmind/graphstore"
	"github.com/cognicore/graphmind/pkg/graphmind/graphstore/sqlite"
	"github.com/cognicore/graphmind/pkg/graphmind/schema"
)

// importReport summarizes one import run.
type importReport struct {
	GeneratedAt    time.Time      `json:"generated_at"`
	Input          string         `json:"input"`
	Database       string         `json:"database"`
	Entities       int            `json:"entities"`
	Relations      int            `json:"relations"`
	EntityTypes    map[string]int `json:"entity_type_counts"`
	RelationTypes  map[string]int `json:"relation_type_counts"`
	SchemaDefs     int            `json:"schema_definitions"`
	DanglingEdges  []string       `json:"dangling_edges,omitempty"`
	DurationMillis int64          `json:"duration_ms"`
}

func main() {
	var (
		input      = flag.String("input", "", "Graph fixture file, YAML (required)")
		dbPath     = flag.String("db", "", "SQLite database path (required)")
		reportPath = flag.String("report", "", "Write a JSON import report to this path (optional)")
		strict     = flag.Bool("strict", false, "Fail on relations referencing unknown entities")
	)
	flag.Parse()

	if *input == "" || *dbPath == "" {
		log.Fatal("--input and --db are required")
	}

	ctx := context.Background()
	started := time.Now()

	fx, err := config.LoadGraphFixture(*input)
	if err != nil {
		log.Fatalf("load fixture: %v", err)
	}
	if len(fx.Entities) == 0 && len(fx.Relations) == 0 {
		log.Fatal("fixture contains no entities or relations")
	}

	store, err := sqlite.Open(ctx, *dbPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	report, err := runImport(ctx, store, fx)
	if err != nil {
		log.Fatalf("import: %v", err)
	}
	report.Input = *input
	report.Database = *dbPath
	report.DurationMillis = time.Since(started).Milliseconds()

	if len(report.DanglingEdges) > 0 {
		if *strict {
			log.Fatalf("%d relations reference unknown entities: %v", len(report.DanglingEdges), report.DanglingEdges)
		}
		log.Printf("WARNING: %d relations reference entities not in this fixture: %v", len(report.DanglingEdges), report.DanglingEdges)
	}

	if *reportPath != "" {
		if err := writeReport(*reportPath, report); err != nil {
			log.Fatalf("write report: %v", err)
		}
	}

	log.Printf("Imported %d entities and %d relations in %dms", report.Entities, report.Relations, report.DurationMillis)
	fmt.Printf("Graph written to %s\n", *dbPath)
}

func runImport(ctx context.Context, store *sqlite.Store, fx *config.GraphFixture) (*importReport, error) {
	report := &importReport{
		GeneratedAt:   time.Now(),
		EntityTypes:   make(map[string]int),
		RelationTypes: make(map[string]int),
	}

	known := make(map[string]struct{}, len(fx.Entities))
	for _, e := range fx.Entities {
		if err := store.UpsertEntity(ctx, fixtureEntity(e)); err != nil {
			return nil, fmt.Errorf("entity %s: %w", e.ID, err)
		}
		known[e.ID] = struct{}{}
		report.Entities++
		report.EntityTypes[e.Type]++
	}

	for _, r := range fx.Relations {
		if err := store.UpsertRelation(ctx, fixtureRelation(r)); err != nil {
			return nil, fmt.Errorf("relation %s: %w", r.ID, err)
		}
		report.Relations++
		report.RelationTypes[r.Type]++
		if _, ok := known[r.Source]; !ok {
			report.DanglingEdges = append(report.DanglingEdges, r.ID)
			continue
		}
		if _, ok := known[r.Target]; !ok {
			report.DanglingEdges = append(report.DanglingEdges, r.ID)
		}
	}
	sort.Strings(report.DanglingEdges)

	for _, et := range fx.EntityTypes {
		if err := store.UpsertEntityTypeDef(ctx, fixtureEntityType(et)); err != nil {
			return nil, fmt.Errorf("entity type %s: %w", et.Name, err)
		}
		report.SchemaDefs++
	}
	for _, rt := range fx.RelationTypes {
		if err := store.UpsertRelationTypeDef(ctx, fixtureRelationType(rt)); err != nil {
			return nil, fmt.Errorf("relation type %s: %w", rt.Name, err)
		}
		report.SchemaDefs++
	}
	for _, p := range fx.Properties {
		if err := store.UpsertPropertyDef(ctx, fixtureProperty(p)); err != nil {
			return nil, fmt.Errorf("property %s.%s: %w", p.EntityType, p.Name, err)
		}
		report.SchemaDefs++
	}

	return report, nil
}

func fixtureEntity(e config.EntityFixture) graphstore.Entity {
	return graphstore.Entity{
		ID:         e.ID,
		Type:       e.Type,
		Name:       e.Name,
		Properties: e.Properties,
	}
}

func fixtureRelation(r config.RelationFixture) graphstore.Relation {
	return graphstore.Relation{
		ID:           r.ID,
		SourceID:     r.Source,
		TargetID:     r.Target,
		RelationType: r.Type,
		Confidence:   r.Confidence,
	}
}

func fixtureEntityType(et config.EntityTypeFixture) schema.EntityTypeDef {
	return schema.EntityTypeDef{
		Name:        et.Name,
		Description: et.Description,
		Properties:  et.Properties,
	}
}

func fixtureRelationType(rt config.RelationTypeFixture) schema.RelationTypeDef {
	return schema.RelationTypeDef{
		Name:        rt.Name,
		Description: rt.Description,
		SourceTypes: rt.SourceTypes,
		TargetTypes: rt.TargetTypes,
		Directed:    rt.Directed,
	}
}

func fixtureProperty(p config.PropertyFixture) schema.PropertyDef {
	return schema.PropertyDef{
		EntityType: p.EntityType,
		Name:       p.Name,
		ValueType:  p.ValueType,
		Required:   p.Required,
	}
}

func writeReport(path string, report *importReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

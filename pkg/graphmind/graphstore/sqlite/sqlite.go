package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/cognicore/graphmind/pkg/graphmind/graphstore"
	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
	"github.com/cognicore/graphmind/pkg/graphmind/schema"
)

// Store implements graphstore.Store and schema.Source using SQLite.
// Entities and relations live in two tables with JSON property columns;
// per-direction indexes keep relation lookups cheap in either direction.
type Store struct {
	db *sql.DB
}

// Open opens a SQLite database with WAL mode enabled and initializes the
// schema if needed.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	ddl := `
CREATE TABLE IF NOT EXISTS entities (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	name TEXT,
	properties TEXT
);
CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);

CREATE TABLE IF NOT EXISTS relations (
	id TEXT PRIMARY KEY,
	source_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	relation_type TEXT NOT NULL,
	confidence REAL,
	properties TEXT
);
CREATE INDEX IF NOT EXISTS idx_relations_source ON relations(source_id, relation_type);
CREATE INDEX IF NOT EXISTS idx_relations_target ON relations(target_id, relation_type);
CREATE INDEX IF NOT EXISTS idx_relations_type ON relations(relation_type);

CREATE TABLE IF NOT EXISTS entity_types (
	name TEXT PRIMARY KEY,
	description TEXT,
	properties TEXT
);

CREATE TABLE IF NOT EXISTS relation_types (
	name TEXT PRIMARY KEY,
	description TEXT,
	source_types TEXT,
	target_types TEXT,
	directed INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS property_defs (
	entity_type TEXT NOT NULL,
	name TEXT NOT NULL,
	value_type TEXT NOT NULL,
	required INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY(entity_type, name)
);
`
	_, err := db.ExecContext(ctx, ddl)
	return err
}

// UpsertEntity inserts or replaces an entity. Used by the import tooling;
// the reasoning core only reads.
func (s *Store) UpsertEntity(ctx context.Context, e graphstore.Entity) error {
	if e.ID == "" {
		return fmt.Errorf("entity id: %w", internalerr.ErrInvalidInput)
	}
	props, err := marshalProps(e.Properties)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO entities (id, type, name, properties) VALUES (?, ?, ?, ?)`,
		e.ID, e.Type, e.Name, props)
	return err
}

// UpsertRelation inserts or replaces a relation.
func (s *Store) UpsertRelation(ctx context.Context, r graphstore.Relation) error {
	if r.ID == "" || r.SourceID == "" || r.TargetID == "" {
		return fmt.Errorf("relation id/source/target: %w", internalerr.ErrInvalidInput)
	}
	props, err := marshalProps(r.Properties)
	if err != nil {
		return err
	}
	var conf any
	if r.Confidence != nil {
		conf = *r.Confidence
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO relations (id, source_id, target_id, relation_type, confidence, properties)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.SourceID, r.TargetID, r.RelationType, conf, props)
	return err
}

// GetEntity returns an entity by id.
func (s *Store) GetEntity(ctx context.Context, id string) (graphstore.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, name, properties FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return graphstore.Entity{}, &internalerr.EntityNotFoundError{ID: id}
	}
	return e, err
}

// GetEntitiesByType returns all entities of a type, ordered by id.
func (s *Store) GetEntitiesByType(ctx context.Context, entityType string) ([]graphstore.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, name, properties FROM entities WHERE type = ? ORDER BY id`, entityType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []graphstore.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// HasEntity reports whether an entity id exists.
func (s *Store) HasEntity(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM entities WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// GetRelations returns relations incident to an entity, ordered by id.
func (s *Store) GetRelations(ctx context.Context, entityID, relationType string, dir graphstore.Direction) ([]graphstore.Relation, error) {
	var (
		where string
		args  []any
	)
	switch dir {
	case graphstore.Outgoing:
		where = "source_id = ?"
		args = append(args, entityID)
	case graphstore.Incoming:
		where = "target_id = ?"
		args = append(args, entityID)
	default:
		where = "(source_id = ? OR target_id = ?)"
		args = append(args, entityID, entityID)
	}
	if relationType != "" {
		where += " AND relation_type = ?"
		args = append(args, relationType)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_id, target_id, relation_type, confidence, properties
		 FROM relations WHERE `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRelations(rows)
}

// AllRelationsOfType returns every relation of a type, ordered by id.
func (s *Store) AllRelationsOfType(ctx context.Context, relationType string) ([]graphstore.Relation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_id, target_id, relation_type, confidence, properties
		 FROM relations WHERE relation_type = ? ORDER BY id`, relationType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRelations(rows)
}

// HasRelation reports whether an edge (source, target, type) exists.
func (s *Store) HasRelation(ctx context.Context, sourceID, targetID, relationType string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM relations WHERE source_id = ? AND target_id = ? AND relation_type = ? LIMIT 1`,
		sourceID, targetID, relationType).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// UpsertEntityTypeDef stores an entity-type definition.
func (s *Store) UpsertEntityTypeDef(ctx context.Context, def schema.EntityTypeDef) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO entity_types (name, description, properties) VALUES (?, ?, ?)`,
		def.Name, def.Description, strings.Join(def.Properties, ","))
	return err
}

// UpsertRelationTypeDef stores a relation-type definition.
func (s *Store) UpsertRelationTypeDef(ctx context.Context, def schema.RelationTypeDef) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO relation_types (name, description, source_types, target_types, directed)
		 VALUES (?, ?, ?, ?, ?)`,
		def.Name, def.Description, strings.Join(def.SourceTypes, ","),
		strings.Join(def.TargetTypes, ","), boolToInt(def.Directed))
	return err
}

// UpsertPropertyDef stores a property definition.
func (s *Store) UpsertPropertyDef(ctx context.Context, def schema.PropertyDef) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO property_defs (entity_type, name, value_type, required) VALUES (?, ?, ?, ?)`,
		def.EntityType, def.Name, def.ValueType, boolToInt(def.Required))
	return err
}

// EntityTypeDef implements schema.Source.
func (s *Store) EntityTypeDef(ctx context.Context, name string) (schema.EntityTypeDef, bool, error) {
	var def schema.EntityTypeDef
	var props string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, description, properties FROM entity_types WHERE name = ?`, name).
		Scan(&def.Name, &def.Description, &props)
	if err == sql.ErrNoRows {
		return schema.EntityTypeDef{}, false, nil
	}
	if err != nil {
		return schema.EntityTypeDef{}, false, err
	}
	def.Properties = splitList(props)
	return def, true, nil
}

// RelationTypeDef implements schema.Source.
func (s *Store) RelationTypeDef(ctx context.Context, name string) (schema.RelationTypeDef, bool, error) {
	var def schema.RelationTypeDef
	var src, tgt string
	var directed int
	err := s.db.QueryRowContext(ctx,
		`SELECT name, description, source_types, target_types, directed FROM relation_types WHERE name = ?`, name).
		Scan(&def.Name, &def.Description, &src, &tgt, &directed)
	if err == sql.ErrNoRows {
		return schema.RelationTypeDef{}, false, nil
	}
	if err != nil {
		return schema.RelationTypeDef{}, false, err
	}
	def.SourceTypes = splitList(src)
	def.TargetTypes = splitList(tgt)
	def.Directed = directed != 0
	return def, true, nil
}

// PropertyDef implements schema.Source.
func (s *Store) PropertyDef(ctx context.Context, entityType, property string) (schema.PropertyDef, bool, error) {
	var def schema.PropertyDef
	var required int
	err := s.db.QueryRowContext(ctx,
		`SELECT entity_type, name, value_type, required FROM property_defs WHERE entity_type = ? AND name = ?`,
		entityType, property).
		Scan(&def.EntityType, &def.Name, &def.ValueType, &required)
	if err == sql.ErrNoRows {
		return schema.PropertyDef{}, false, nil
	}
	if err != nil {
		return schema.PropertyDef{}, false, err
	}
	def.Required = required != 0
	return def, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (graphstore.Entity, error) {
	var e graphstore.Entity
	var name, props sql.NullString
	if err := row.Scan(&e.ID, &e.Type, &name, &props); err != nil {
		return graphstore.Entity{}, err
	}
	e.Name = name.String
	if props.Valid && props.String != "" {
		if err := json.Unmarshal([]byte(props.String), &e.Properties); err != nil {
			return graphstore.Entity{}, fmt.Errorf("entity %s properties: %w", e.ID, err)
		}
	}
	return e, nil
}

func scanRelations(rows *sql.Rows) ([]graphstore.Relation, error) {
	var out []graphstore.Relation
	for rows.Next() {
		var r graphstore.Relation
		var conf sql.NullFloat64
		var props sql.NullString
		if err := rows.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.RelationType, &conf, &props); err != nil {
			return nil, err
		}
		if conf.Valid {
			c := conf.Float64
			r.Confidence = &c
		}
		if props.Valid && props.String != "" {
			if err := json.Unmarshal([]byte(props.String), &r.Properties); err != nil {
				return nil, fmt.Errorf("relation %s properties: %w", r.ID, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func marshalProps(props map[string]any) (string, error) {
	if len(props) == 0 {
		return "", nil
	}
	data, err := json.Marshal(props)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

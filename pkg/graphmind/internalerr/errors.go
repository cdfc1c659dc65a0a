package internalerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrDuplicate        = errors.New("duplicate entry")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// EntityNotFoundError reports a lookup for an entity id absent from the graph.
type EntityNotFoundError struct {
	ID string
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("entity %q not found", e.ID)
}

func (e *EntityNotFoundError) Unwrap() error { return ErrNotFound }

// UnknownRelationTypeError reports an inference request for a relation type
// with no registered rule.
type UnknownRelationTypeError struct {
	RelationType string
}

func (e *UnknownRelationTypeError) Error() string {
	return fmt.Sprintf("no inference rule registered for relation type %q", e.RelationType)
}

func (e *UnknownRelationTypeError) Unwrap() error { return ErrNotFound }

// QueryParseError reports a query from which no sub-goal could be extracted.
type QueryParseError struct {
	Query  string
	Reason string
}

func (e *QueryParseError) Error() string {
	return fmt.Sprintf("cannot parse query %q: %s", e.Query, e.Reason)
}

func (e *QueryParseError) Unwrap() error { return ErrInvalidInput }

// PlanningError reports an internal invariant violation during planning,
// such as a cycle in the step dependency graph. It is never expected in
// correct operation.
type PlanningError struct {
	PlanID string
	Reason string
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning failed for plan %s: %s", e.PlanID, e.Reason)
}

// ConfigurationError reports an invalid threshold or limit supplied by the
// caller, detected before any work begins.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrInvalidConfig }

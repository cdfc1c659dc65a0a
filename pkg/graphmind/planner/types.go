package planner

// Strategy selects how a plan is optimized after decomposition.
type Strategy string

const (
	// MinimizeCost orders steps to minimize total estimated cost and merges
	// redundant lookups into one step.
	MinimizeCost Strategy = "minimize_cost"
	// MinimizeLatency groups independent steps for concurrent execution;
	// estimated latency is the critical-path cost.
	MinimizeLatency Strategy = "minimize_latency"
	// Balanced weights cost and latency 0.5/0.5. Default.
	Balanced Strategy = "balanced"
)

// Step operations.
const (
	OpEntityLookup      = "entity_lookup"
	OpRelationTraversal = "relation_traversal"
	OpPathFinding       = "path_finding"
	OpSchemaValidation  = "schema_validation"
	OpCollectEvidence   = "collect_evidence"
)

// QueryStep is one node of a plan's dependency DAG. DependsOn lists the ids
// of steps producing the entities or relations this step consumes; a cycle
// among steps is an internal defect, never a valid state. EntityID carries
// the operand of entity-lookup steps; Description is prose for humans only.
type QueryStep struct {
	ID            string   `json:"id"`
	Operation     string   `json:"operation"`
	DependsOn     []string `json:"depends_on,omitempty"`
	EstimatedCost float64  `json:"estimated_cost"`
	EntityID      string   `json:"entity_id,omitempty"`
	Description   string   `json:"description"`
}

// QueryPlan is the compiled, cost-annotated execution plan for a query.
// Plans are immutable once produced; re-optimization yields a new plan
// instance, never an in-place mutation.
type QueryPlan struct {
	ID                 string      `json:"id"`
	OriginalQuery      string      `json:"original_query"`
	Steps              []QueryStep `json:"steps"`
	TotalEstimatedCost float64     `json:"total_estimated_cost"`
	EstimatedLatencyMS float64     `json:"estimated_latency_ms"`
	Optimized          bool        `json:"optimized"`
	Explanation        string      `json:"explanation"`
}

// Context carries the structured hints a caller may attach to a query:
// known start/target entity ids, relation-type filters, and a hop bound.
type Context struct {
	StartEntityID  string   `json:"start_entity_id,omitempty"`
	TargetEntityID string   `json:"target_entity_id,omitempty"`
	RelationTypes  []string `json:"relation_types,omitempty"`
	MaxHops        int      `json:"max_hops,omitempty"`
}

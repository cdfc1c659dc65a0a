package planner

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
	"github.com/cognicore/graphmind/pkg/graphmind/schema"
)

// Cost heuristics. Entity lookups are cache-assisted and near-constant;
// traversal scales with the branching factor; path-finding with
// branching^hops. costUnitMS converts cost units into estimated wall time.
const (
	costEntityLookup     = 1.0
	costSchemaValidation = 0.5
	costCollectEvidence  = 1.0
	costUnitMS           = 10.0

	defaultBranchingFactor = 5.0
	defaultMaxHops         = 3
)

// Planner compiles queries into cost-annotated, dependency-ordered plans.
// The schema cache is optional; when present, relation-type filters get a
// validation step resolved against it.
type Planner struct {
	schemaCache     *schema.Cache
	branchingFactor float64

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Options configures a Planner.
type Options struct {
	SchemaCache     *schema.Cache
	BranchingFactor float64
}

// New creates a Planner.
func New(opts Options) *Planner {
	bf := opts.BranchingFactor
	if bf <= 0 {
		bf = defaultBranchingFactor
	}
	return &Planner{
		schemaCache:     opts.SchemaCache,
		branchingFactor: bf,
		entropy:         ulid.Monotonic(rand.Reader, 0),
	}
}

func (p *Planner) newID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ulid.MustNew(ulid.Now(), p.entropy).String()
}

// Plan decomposes a query plus optional structured context into a QueryPlan
// optimized under the given strategy. It fails with QueryParseError when no
// sub-goal can be extracted, and with PlanningError if the built dependency
// graph turns out cyclic (a defensive check, never expected).
func (p *Planner) Plan(ctx context.Context, query string, qc Context, strategy Strategy) (QueryPlan, error) {
	if strategy == "" {
		strategy = Balanced
	}
	switch strategy {
	case MinimizeCost, MinimizeLatency, Balanced:
	default:
		return QueryPlan{}, &internalerr.ConfigurationError{
			Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", strategy),
		}
	}
	if qc.MaxHops < 0 {
		return QueryPlan{}, &internalerr.ConfigurationError{
			Field: "max_hops", Reason: "must not be negative",
		}
	}

	steps, err := p.decompose(ctx, query, qc)
	if err != nil {
		return QueryPlan{}, err
	}

	planID := p.newID()

	if strategy == MinimizeCost || strategy == Balanced {
		steps = mergeRedundantLookups(steps)
	}

	levels, err := levelize(steps)
	if err != nil {
		return QueryPlan{}, &internalerr.PlanningError{PlanID: planID, Reason: err.Error()}
	}

	// Deterministic execution order: dependency level, then step id.
	ordered := make([]QueryStep, 0, len(steps))
	for _, level := range levels {
		sort.Slice(level, func(i, j int) bool { return level[i].ID < level[j].ID })
		ordered = append(ordered, level...)
	}

	totalCost := 0.0
	for _, s := range ordered {
		totalCost += s.EstimatedCost
	}
	criticalPath := 0.0
	for _, level := range levels {
		levelMax := 0.0
		for _, s := range level {
			if s.EstimatedCost > levelMax {
				levelMax = s.EstimatedCost
			}
		}
		criticalPath += levelMax
	}

	var latency float64
	switch strategy {
	case MinimizeCost:
		latency = totalCost * costUnitMS
	case MinimizeLatency:
		latency = criticalPath * costUnitMS
	default:
		latency = 0.5*totalCost*costUnitMS + 0.5*criticalPath*costUnitMS
	}

	return QueryPlan{
		ID:                 planID,
		OriginalQuery:      query,
		Steps:              ordered,
		TotalEstimatedCost: totalCost,
		EstimatedLatencyMS: latency,
		Optimized:          true,
		Explanation:        explain(query, strategy, levels, totalCost, latency),
	}, nil
}

/// decompose extracts sub-goals from the query structure: entity references,
// relation constraints, target entity, and hop bound.
func (p *Planner) decompose(ctx context.Context, query string, qc Context) ([]QueryStep, error) {
	startID := qc.StartEntityID
	if startID == "" {
		// Fall back to entity references embedded in the query text.
		refs := extractEntityRefs(query)
		if len(refs) > 0 {
			startID = refs[0]
			if qc.TargetEntityID == "" && len(refs) > 1 {
				qc.TargetEntityID = refs[1]
			}
		}
	}
	if startID == "" {
		return nil, &internalerr.QueryParseError{
			Query: query, Reason: "no start entity or entity reference found",
		}
	}

	maxHops := qc.MaxHops
	if maxHops == 0 {
		maxHops = defaultMaxHops
	}

	var steps []QueryStep

	startStep := QueryStep{
		ID:            p.newID(),
		Operation:     OpEntityLookup,
		EstimatedCost: costEntityLookup,
		EntityID:      startID,
		Description:   fmt.Sprintf("lookup start entity %s", startID),
	}
	steps = append(steps, startStep)

	searchDeps := []string{startStep.ID}

	if qc.TargetEntityID != "" {
		targetStep := QueryStep{
			ID:            p.newID(),
			Operation:     OpEntityLookup,
			EstimatedCost: costEntityLookup,
			EntityID:      qc.TargetEntityID,
			Description:   fmt.Sprintf("lookup target entity %s", qc.TargetEntityID),
		}
		steps = append(steps, targetStep)
		searchDeps = append(searchDeps, targetStep.ID)
	}

	for _, relType := range qc.RelationTypes {
		desc := fmt.Sprintf("validate relation type %s", relType)
		if p.schemaCache != nil {
			if _, err := p.schemaCache.GetRelationType(ctx, relType); err != nil {
				desc = fmt.Sprintf("validate relation type %s (not in schema)", relType)
			}
		}
		valStep := QueryStep{
			ID:            p.newID(),
			Operation:     OpSchemaValidation,
			EstimatedCost: costSchemaValidation,
			Description:   desc,
		}
		steps = append(steps, valStep)
		searchDeps = append(searchDeps, valStep.ID)
	}

	var searchStep QueryStep
	if qc.TargetEntityID != "" {
		searchStep = QueryStep{
			ID:            p.newID(),
			Operation:     OpPathFinding,
			DependsOn:     searchDeps,
			EstimatedCost: math.Pow(p.branchingFactor, float64(maxHops)),
			Description:   fmt.Sprintf("find paths %s -> %s within %d hops", startID, qc.TargetEntityID, maxHops),
		}
	} else {
		searchStep = QueryStep{
			ID:            p.newID(),
			Operation:     OpRelationTraversal,
			DependsOn:     searchDeps,
			EstimatedCost: p.branchingFactor * float64(maxHops),
			Description:   fmt.Sprintf("traverse from %s up to %d hops", startID, maxHops),
		}
	}
	steps = append(steps, searchStep)

	steps = append(steps, QueryStep{
		ID:            p.newID(),
		Operation:     OpCollectEvidence,
		DependsOn:     []string{searchStep.ID},
		EstimatedCost: costCollectEvidence,
		Description:   "collect and rank evidence from discovered paths",
	})

	return steps, nil
}

// mergeRedundantLookups collapses steps with identical operation and
// description into one, rewriting dependents onto the survivor.
func mergeRedundantLookups(steps []QueryStep) []QueryStep {
	survivor := make(map[string]string) // dropped step id -> surviving step id
	firstByKey := make(map[string]string)
	out := make([]QueryStep, 0, len(steps))

	for _, s := range steps {
		key := s.Operation + "|" + s.Description
		if keep, seen := firstByKey[key]; seen && s.Operation == OpEntityLookup {
			survivor[s.ID] = keep
			continue
		}
		firstByKey[key] = s.ID
		out = append(out, s)
	}

	if len(survivor) == 0 {
		return steps
	}
	for i := range out {
		deps := out[i].DependsOn
		seen := make(map[string]struct{}, len(deps))
		rewritten := deps[:0]
		for _, d := range deps {
			if kept, ok := survivor[d]; ok {
				d = kept
			}
			if _, dup := seen[d]; dup {
				continue
			}
			seen[d] = struct{}{}
			rewritten = append(rewritten, d)
		}
		out[i].DependsOn = rewritten
	}
	return out
}

// levelize groups steps into dependency levels via Kahn's algorithm. Steps
// within one level are independent and may run concurrently. A non-empty
// remainder after the sort means the dependency graph has a cycle.
func levelize(steps []QueryStep) ([][]QueryStep, error) {
	byID := make(map[string]QueryStep, len(steps))
	indegree := make(map[string]int, len(steps))
	dependents := make(map[string][]string, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
		indegree[s.ID] = 0
	}
	for _, s := range steps {
		for _, dep := range s.DependsOn {
			if _, ok := byID[dep]; !ok {
				return nil, fmt.Errorf("step %s depends on unknown step %s", s.ID, dep)
			}
			indegree[s.ID]++
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}

	var frontier []string
	for _, s := range steps {
		if indegree[s.ID] == 0 {
			frontier = append(frontier, s.ID)
		}
	}
	sort.Strings(frontier)

	var levels [][]QueryStep
	placed := 0
	for len(frontier) > 0 {
		level := make([]QueryStep, 0, len(frontier))
		var next []string
		for _, id := range frontier {
			level = append(level, byID[id])
			placed++
			for _, dep := range dependents[id] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		sort.Strings(next)
		levels = append(levels, level)
		frontier = next
	}

	if placed != len(steps) {
		return nil, fmt.Errorf("dependency cycle among %d steps", len(steps)-placed)
	}
	return levels, nil
}

// Levels recomputes the dependency levels of a plan for concurrent
// execution. Plans produced by Plan always levelize cleanly.
func Levels(plan QueryPlan) ([][]QueryStep, error) {
	levels, err := levelize(plan.Steps)
	if err != nil {
		return nil, &internalerr.PlanningError{PlanID: plan.ID, Reason: err.Error()}
	}
	return levels, nil
}

func explain(query string, strategy Strategy, levels [][]QueryStep, totalCost, latency float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan for %q (%s): %d levels, total cost %.2f, estimated latency %.1fms.\n",
		query, strategy, len(levels), totalCost, latency)
	for i, level := range levels {
		fmt.Fprintf(&b, "Level %d:\n", i+1)
		for _, s := range level {
			fmt.Fprintf(&b, "  - %s (cost %.2f)\n", s.Description, s.EstimatedCost)
		}
	}
	return b.String()
}

// extractEntityRefs pulls explicit entity references out of the query text.
// References are written as [id] or as bare capitalized tokens; only the
// bracketed form is authoritative, the bare form is a best-effort fallback.
func extractEntityRefs(query string) []string {
	var refs []string
	rest := query
	for {
		open := strings.Index(rest, "[")
		if open == -1 {
			break
		}
		end := strings.Index(rest[open:], "]")
		if end == -1 {
			break
		}
		ref := strings.TrimSpace(rest[open+1 : open+end])
		if ref != "" {
			refs = append(refs, ref)
		}
		rest = rest[open+end+1:]
	}
	return refs
}

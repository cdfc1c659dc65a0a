package reasoning

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/graphmind/pkg/graphmind/graphstore"
	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
	"github.com/cognicore/graphmind/pkg/graphmind/planner"
)

// Defaults for reasoning bounds.
const (
	DefaultMaxHops     = 3
	DefaultMaxEvidence = 50
)

// Engine executes query plans against the graph store: bounded-depth path
// search, evidence collection, ranking, and answer drafting.
type Engine struct {
	store   graphstore.Store
	planner *planner.Planner
	log     *slog.Logger

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Options configures an Engine.
type Options struct {
	Store   graphstore.Store
	Planner *planner.Planner
	Logger  *slog.Logger
}

// New creates a reasoning engine.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, &internalerr.ConfigurationError{Field: "store", Reason: "graph store is required"}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pl := opts.Planner
	if pl == nil {
		pl = planner.New(planner.Options{})
	}
	return &Engine{
		store:   opts.Store,
		planner: pl,
		log:     logger,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}, nil
}

func (e *Engine) newID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ulid.MustNew(ulid.Now(), e.entropy).String()
}

// pathState tracks one DFS branch: the hop prefix and its visited set.
// The visited set is per path, not global, so disjoint paths through a
// shared node remain discoverable.
type pathState struct {
	hops    []Hop
	visited map[string]struct{}
}

// FindMultiHopPaths searches outward from startID up to maxHops. When
// targetID is non-empty a branch stops expanding once it reaches the
// target; otherwise every node reached within the bound terminates a
// candidate path. At most maxPaths paths are returned, in discovery order;
// the second return reports whether the cap actually cut the search short,
// as opposed to the graph naturally yielding exactly maxPaths paths.
func (e *Engine) FindMultiHopPaths(ctx context.Context, startID, targetID string, maxHops int, relationTypes []string, maxPaths int) ([]Path, bool, error) {
	if maxHops < 0 {
		return nil, false, &internalerr.ConfigurationError{Field: "max_hops", Reason: "must not be negative"}
	}
	if maxHops == 0 {
		maxHops = DefaultMaxHops
	}
	if maxPaths <= 0 {
		maxPaths = DefaultMaxEvidence
	}

	start, err := e.store.GetEntity(ctx, startID)
	if err != nil {
		return nil, false, err
	}

	typeFilter := make(map[string]struct{}, len(relationTypes))
	for _, t := range relationTypes {
		typeFilter[t] = struct{}{}
	}

	var paths []Path
	truncated := false

	var expand func(state pathState, from graphstore.Entity) error
	expand = func(state pathState, from graphstore.Entity) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(paths) >= maxPaths {
			truncated = true
			return nil
		}
		if len(state.hops) >= maxHops {
			return nil
		}

		relations, err := e.store.GetRelations(ctx, from.ID, "", graphstore.Outgoing)
		if err != nil {
			return err
		}
		for _, rel := range relations {
			if len(paths) >= maxPaths {
				truncated = true
				return nil
			}
			if len(typeFilter) > 0 {
				if _, ok := typeFilter[rel.RelationType]; !ok {
					continue
				}
			}
			if rel.TargetID == "" {
				e.log.Warn("skipping malformed relation", "relation_id", rel.ID)
				continue
			}
			if _, seen := state.visited[rel.TargetID]; seen {
				continue
			}

			to, err := e.store.GetEntity(ctx, rel.TargetID)
			if err != nil {
				// A dangling edge is a store inconsistency, not a reason to
				// abort the whole search.
				e.log.Warn("skipping relation to missing entity",
					"relation_id", rel.ID, "target_id", rel.TargetID)
				continue
			}

			next := pathState{
				hops:    append(append([]Hop{}, state.hops...), Hop{From: from, Relation: rel, To: to}),
				visited: cloneSet(state.visited),
			}
			next.visited[to.ID] = struct{}{}

			if targetID != "" {
				if to.ID == targetID {
					paths = append(paths, finishPath(next.hops))
					continue // target reached, stop expanding this branch
				}
			} else {
				paths = append(paths, finishPath(next.hops))
			}

			if err := expand(next, to); err != nil {
				return err
			}
		}
		return nil
	}

	root := pathState{visited: map[string]struct{}{start.ID: {}}}
	if err := expand(root, start); err != nil {
		return nil, false, err
	}
	if truncated {
		e.log.Info("path search truncated", "start_id", startID, "max_paths", maxPaths)
	}
	return paths, truncated, nil
}

func finishPath(hops []Hop) Path {
	// Path confidence is the average of hop confidences; hops without an
	// annotation count as 1.0.
	sum := 0.0
	for _, h := range hops {
		sum += h.Relation.ConfidenceOrDefault()
	}
	conf := 0.0
	if len(hops) > 0 {
		conf = sum / float64(len(hops))
	}
	return Path{Hops: hops, Confidence: conf}
}

func cloneSet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in)+1)
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

// scoreRelevance combines path length and confidence into a relevance
// score: confidence / (1 + 0.25*(length-1)). Monotonic in both arguments;
// shorter and higher-confidence paths rank higher.
func scoreRelevance(p Path) float64 {
	if p.Length() == 0 {
		return 0
	}
	return p.Confidence / (1 + 0.25*float64(p.Length()-1))
}

// CollectEvidenceFromPaths produces one PATH evidence item per path.
func (e *Engine) CollectEvidenceFromPaths(paths []Path) []Evidence {
	out := make([]Evidence, 0, len(paths))
	for _, p := range paths {
		entities := make([]graphstore.Entity, 0, p.Length()+1)
		relations := make([]graphstore.Relation, 0, p.Length())
		if p.Length() > 0 {
			entities = append(entities, p.Hops[0].From)
		}
		for _, h := range p.Hops {
			entities = append(entities, h.To)
			relations = append(relations, h.Relation)
		}
		out = append(out, Evidence{
			ID:             e.newID(),
			Type:           EvidencePath,
			Entities:       entities,
			Relations:      relations,
			Paths:          []Path{p},
			Confidence:     p.Confidence,
			RelevanceScore: scoreRelevance(p),
			Explanation:    p.Render(),
			Source:         "multi_hop_search",
		})
	}
	return out
}

// RankEvidence sorts evidence descending by relevance then confidence,
// tie-broken by shorter path length and finally id, so repeated runs over
// identical inputs produce identical orderings.
func (e *Engine) RankEvidence(evidence []Evidence) []Evidence {
	out := append([]Evidence{}, evidence...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RelevanceScore != out[j].RelevanceScore {
			return out[i].RelevanceScore > out[j].RelevanceScore
		}
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		li, lj := minPathLength(out[i]), minPathLength(out[j])
		if li != lj {
			return li < lj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func minPathLength(ev Evidence) int {
	if len(ev.Paths) == 0 {
		return 0
	}
	m := ev.Paths[0].Length()
	for _, p := range ev.Paths[1:] {
		if p.Length() < m {
			m = p.Length()
		}
	}
	return m
}

// Request bundles the inputs of one reasoning call.
type Request struct {
	Query       string           `json:"query"`
	Context     planner.Context  `json:"context"`
	MaxHops     int              `json:"max_hops,omitempty"`
	MaxEvidence int              `json:"max_evidence,omitempty"`
	Strategy    planner.Strategy `json:"strategy,omitempty"`
}

// Reason runs the full pipeline: plan, execute, collect, rank, and draft an
// answer. Absence of any path is not an error; it yields an empty-evidence
// result with confidence 0 and a "no connection found" answer.
func (e *Engine) Reason(ctx context.Context, req Request) (ReasoningResult, error) {
	started := time.Now()
	trace := []string{fmt.Sprintf("received query %q", req.Query)}

	maxHops := req.MaxHops
	if maxHops == 0 {
		maxHops = req.Context.MaxHops
	}
	if maxHops == 0 {
		maxHops = DefaultMaxHops
	}
	if maxHops < 0 {
		return ReasoningResult{}, &internalerr.ConfigurationError{Field: "max_hops", Reason: "must not be negative"}
	}
	maxEvidence := req.MaxEvidence
	if maxEvidence == 0 {
		maxEvidence = DefaultMaxEvidence
	}
	if maxEvidence < 0 {
		return ReasoningResult{}, &internalerr.ConfigurationError{Field: "max_evidence", Reason: "must not be negative"}
	}

	qc := req.Context
	qc.MaxHops = maxHops

	plan, err := e.planner.Plan(ctx, req.Query, qc, req.Strategy)
	if err != nil {
		return ReasoningResult{}, err
	}
	trace = append(trace, fmt.Sprintf("planned %d steps, estimated cost %.2f, latency %.1fms",
		len(plan.Steps), plan.TotalEstimatedCost, plan.EstimatedLatencyMS))

	startID := qc.StartEntityID
	targetID := qc.TargetEntityID
	if startID == "" {
		// The planner accepted the query, so it extracted references.
		refs := planRefs(plan)
		if len(refs) > 0 {
			startID = refs[0]
		}
		if targetID == "" && len(refs) > 1 {
			targetID = refs[1]
		}
	}

	if err := e.executeLookups(ctx, plan); err != nil {
		return ReasoningResult{}, err
	}
	trace = append(trace, "executed plan lookups against graph store")

	paths, truncated, err := e.FindMultiHopPaths(ctx, startID, targetID, maxHops, qc.RelationTypes, maxEvidence)
	if err != nil {
		return ReasoningResult{}, err
	}
	trace = append(trace, fmt.Sprintf("discovered %d paths within %d hops", len(paths), maxHops))
	if truncated {
		trace = append(trace, fmt.Sprintf("path search truncated at max_evidence=%d", maxEvidence))
	}

	evidence := e.CollectEvidenceFromPaths(paths)
	ranked := e.RankEvidence(evidence)
	trace = append(trace, fmt.Sprintf("collected and ranked %d evidence items", len(ranked)))

	answer, confidence := e.draftAnswer(startID, targetID, ranked)
	trace = append(trace, "drafted answer from top-ranked evidence")

	return ReasoningResult{
		Query:           req.Query,
		Evidence:        ranked,
		Answer:          answer,
		Confidence:      confidence,
		ReasoningTrace:  trace,
		ExecutionTimeMS: time.Since(started).Milliseconds(),
	}, nil
}

// executeLookups runs the plan's entity-lookup steps level by level;
// independent steps within a level execute concurrently against the store.
func (e *Engine) executeLookups(ctx context.Context, plan planner.QueryPlan) error {
	levels, err := planner.Levels(plan)
	if err != nil {
		return err
	}
	for _, level := range levels {
		g, gctx := errgroup.WithContext(ctx)
		for _, step := range level {
			if step.Operation != planner.OpEntityLookup {
				continue
			}
			id := step.EntityID
			if id == "" {
				continue
			}
			g.Go(func() error {
				exists, err := e.store.HasEntity(gctx, id)
				if err != nil {
					return err
				}
				if !exists {
					return &internalerr.EntityNotFoundError{ID: id}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) draftAnswer(startID, targetID string, ranked []Evidence) (string, float64) {
	if len(ranked) == 0 {
		if targetID != "" {
			return fmt.Sprintf("No connection found between %s and %s within the hop bound.", startID, targetID), 0.0
		}
		return fmt.Sprintf("No connections found from %s within the hop bound.", startID), 0.0
	}

	top := ranked[0]
	var b strings.Builder
	if len(top.Paths) > 0 {
		p := top.Paths[0]
		if inter := p.Intermediaries(); len(inter) > 0 {
			names := make([]string, len(inter))
			for i, ent := range inter {
				names[i] = entityLabel(ent)
			}
			fmt.Fprintf(&b, "%s is connected to %s via %s: %s.",
				entityLabel(p.Start()), entityLabel(p.End()), strings.Join(names, ", "), p.Render())
		} else {
			fmt.Fprintf(&b, "%s is directly connected to %s: %s.",
				entityLabel(p.Start()), entityLabel(p.End()), p.Render())
		}
	} else {
		b.WriteString(top.Explanation)
	}
	if len(ranked) > 1 {
		fmt.Fprintf(&b, " (%d supporting paths found)", len(ranked))
	}
	return b.String(), top.Confidence
}

// planRefs recovers the entity ids named by the plan's lookup steps, in
// step order.
func planRefs(plan planner.QueryPlan) []string {
	var refs []string
	for _, s := range plan.Steps {
		if s.Operation != planner.OpEntityLookup {
			continue
		}
		if s.EntityID != "" {
			refs = append(refs, s.EntityID)
		}
	}
	return refs
}

package inference

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/cognicore/graphmind/pkg/graphmind/graphstore"
	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
)

// DefaultMaxSteps bounds fixed-point iteration when the caller passes 0.
const DefaultMaxSteps = 3

// Engine derives new relations from existing ones via registered rules,
// keeping a full audit trail. Safe for concurrent use.
type Engine struct {
	store graphstore.Store
	log   *slog.Logger

	mu    sync.RWMutex
	rules map[string]Rule // by rule id

	cacheMu sync.Mutex
	cache   map[string]Result
}

// Options configures an inference engine.
type Options struct {
	Store  graphstore.Store
	Logger *slog.Logger
}

// New creates an inference engine with no rules registered.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, &internalerr.ConfigurationError{Field: "store", Reason: "graph store is required"}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store: opts.Store,
		log:   logger,
		rules: make(map[string]Rule),
		cache: make(map[string]Result),
	}, nil
}

// AddRule registers a rule. The rule's enabled flag is honored lazily, on
// the next inference call.
func (e *Engine) AddRule(r Rule) error {
	if r.ID == "" {
		return &internalerr.ConfigurationError{Field: "rule.id", Reason: "must not be empty"}
	}
	if r.RelationType == "" {
		return &internalerr.ConfigurationError{Field: "rule.relation_type", Reason: "must not be empty"}
	}
	if r.ConfidenceDecay < 0 || r.ConfidenceDecay > 1 {
		return &internalerr.ConfigurationError{Field: "rule.confidence_decay", Reason: "must be in [0,1]"}
	}
	switch r.Type {
	case Transitive, Symmetric:
	case Custom:
		if r.Handler == nil {
			return &internalerr.ConfigurationError{Field: "rule.handler", Reason: "custom rule requires a handler"}
		}
	default:
		return &internalerr.ConfigurationError{Field: "rule.type", Reason: fmt.Sprintf("unknown rule type %q", r.Type)}
	}

	e.mu.Lock()
	e.rules[r.ID] = r
	e.mu.Unlock()
	return nil
}

// RemoveRule unregisters a rule by id.
func (e *Engine) RemoveRule(ruleID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[ruleID]; !ok {
		return fmt.Errorf("rule %q: %w", ruleID, internalerr.ErrNotFound)
	}
	delete(e.rules, ruleID)
	return nil
}

// Rules returns the rules registered for a relation type, sorted by id.
func (e *Engine) Rules(relationType string) []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []Rule
	for _, r := range e.rules {
		if r.RelationType == relationType {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ClearCache drops all memoized inference results.
func (e *Engine) ClearCache() {
	e.cacheMu.Lock()
	e.cache = make(map[string]Result)
	e.cacheMu.Unlock()
}

// fingerprint captures the enabled rule set for a relation type; any rule
// change produces a different cache key, so stale entries are never served.
func fingerprint(rules []Rule) string {
	parts := make([]string, 0, len(rules))
	for _, r := range rules {
		parts = append(parts, fmt.Sprintf("%s:%s:%g:%t", r.ID, r.Type, r.ConfidenceDecay, r.Enabled))
	}
	return strings.Join(parts, ";")
}

// InferRelations applies every enabled rule registered for relationType.
// Transitive rules iterate in rounds up to maxSteps, each round combining
// relations established by prior rounds with originals, stopping early at a
// fixed point. When useCache is true, identical calls over an unchanged
// rule set return the memoized result until ClearCache.
func (e *Engine) InferRelations(ctx context.Context, relationType string, maxSteps int, useCache bool) (Result, error) {
	if maxSteps < 0 {
		return Result{}, &internalerr.ConfigurationError{Field: "max_steps", Reason: "must not be negative"}
	}
	if maxSteps == 0 {
		maxSteps = DefaultMaxSteps
	}

	rules := e.Rules(relationType)
	if len(rules) == 0 {
		return Result{}, &internalerr.UnknownRelationTypeError{RelationType: relationType}
	}

	key := fmt.Sprintf("%s|%d|%s", relationType, maxSteps, fingerprint(rules))
	if useCache {
		e.cacheMu.Lock()
		cached, ok := e.cache[key]
		e.cacheMu.Unlock()
		if ok {
			return cached, nil
		}
	}

	originals, err := e.store.AllRelationsOfType(ctx, relationType)
	if err != nil {
		return Result{}, err
	}

	run := newRun(relationType, originals, e.log)

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		switch rule.Type {
		case Symmetric:
			if err := run.applySymmetric(ctx, e.store, rule); err != nil {
				return Result{}, err
			}
		case Transitive:
			if err := run.applyTransitive(ctx, e.store, rule, maxSteps); err != nil {
				return Result{}, err
			}
		case Custom:
			if err := run.applyCustom(ctx, e.store, rule); err != nil {
				return Result{}, err
			}
		}
	}

	result := run.result()
	if useCache {
		e.cacheMu.Lock()
		e.cache[key] = result
		e.cacheMu.Unlock()
	}
	return result, nil
}

// run holds the working state of one inference pass.
type run struct {
	relationType string
	log          *slog.Logger

	// known maps source -> target -> confidence over originals plus
	// relations inferred earlier in this run.
	known    map[string]map[string]float64
	inferred []graphstore.Relation
	steps    []Step
}

func newRun(relationType string, originals []graphstore.Relation, log *slog.Logger) *run {
	r := &run{
		relationType: relationType,
		log:          log,
		known:        make(map[string]map[string]float64),
	}
	for _, rel := range originals {
		if rel.SourceID == "" || rel.TargetID == "" {
			// Partial-result tolerance: a malformed relation is skipped and
			// logged, the pass continues.
			log.Warn("skipping malformed relation", "relation_id", rel.ID)
			continue
		}
		r.record(rel.SourceID, rel.TargetID, rel.ConfidenceOrDefault())
	}
	return r
}

func (r *run) record(source, target string, confidence float64) {
	if r.known[source] == nil {
		r.known[source] = make(map[string]float64)
	}
	r.known[source][target] = confidence
}

func (r *run) holds(source, target string) bool {
	_, ok := r.known[source][target]
	return ok
}

// addInference appends a derived relation unless the edge already exists in
// the graph or was inferred earlier in this run.
func (r *run) addInference(ctx context.Context, store graphstore.Store, step Step) error {
	src, tgt := step.Conclusion.SourceID, step.Conclusion.TargetID
	if r.holds(src, tgt) {
		return nil
	}
	exists, err := store.HasRelation(ctx, src, tgt, r.relationType)
	if err != nil {
		return err
	}
	if exists {
		r.record(src, tgt, step.Confidence)
		return nil
	}

	r.record(src, tgt, step.Confidence)
	r.inferred = append(r.inferred, step.Conclusion)
	r.steps = append(r.steps, step)
	return nil
}

// sortedSources returns the known source ids in sorted order, so rounds
// visit relations deterministically.
func (r *run) sortedSources() []string {
	out := make([]string, 0, len(r.known))
	for s := range r.known {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (r *run) sortedTargets(source string) []string {
	out := make([]string, 0, len(r.known[source]))
	for t := range r.known[source] {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (r *run) applySymmetric(ctx context.Context, store graphstore.Store, rule Rule) error {
	// One pass over a snapshot is sufficient: inferring B-R->A from A-R->B
	// and then A-R->B from B-R->A is a no-op (idempotent).
	type edge struct {
		src, tgt string
		conf     float64
	}
	var edges []edge
	for _, src := range r.sortedSources() {
		for _, tgt := range r.sortedTargets(src) {
			edges = append(edges, edge{src, tgt, r.known[src][tgt]})
		}
	}

	for _, ed := range edges {
		if r.holds(ed.tgt, ed.src) {
			continue
		}
		conf := ed.conf * (1 - rule.ConfidenceDecay)
		step := Step{
			RuleID: rule.ID,
			Premises: []graphstore.Relation{
				syntheticRelation(r.relationType, ed.src, ed.tgt, ed.conf),
			},
			Conclusion: inferredRelation(r.relationType, ed.tgt, ed.src, conf),
			Confidence: conf,
		}
		if err := r.addInference(ctx, store, step); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) applyTransitive(ctx context.Context, store graphstore.Store, rule Rule, maxSteps int) error {
	for round := 0; round < maxSteps; round++ {
		// Each round composes over a snapshot of what is known so far:
		// originals plus inferences from prior rounds, never from the
		// current one (fixed-point iteration).
		snapshot := make(map[string]map[string]float64, len(r.known))
		for src, targets := range r.known {
			inner := make(map[string]float64, len(targets))
			for tgt, conf := range targets {
				inner[tgt] = conf
			}
			snapshot[src] = inner
		}

		added := 0
		for _, a := range sortedKeys(snapshot) {
			for _, b := range sortedInner(snapshot[a]) {
				for _, c := range sortedInner(snapshot[b]) {
					if a == c || r.holds(a, c) {
						continue
					}
					conf := snapshot[a][b] * snapshot[b][c] * (1 - rule.ConfidenceDecay)
					step := Step{
						RuleID: rule.ID,
						Premises: []graphstore.Relation{
							syntheticRelation(r.relationType, a, b, snapshot[a][b]),
							syntheticRelation(r.relationType, b, c, snapshot[b][c]),
						},
						Conclusion: inferredRelation(r.relationType, a, c, conf),
						Confidence: conf,
					}
					before := len(r.inferred)
					if err := r.addInference(ctx, store, step); err != nil {
						return err
					}
					if len(r.inferred) > before {
						added++
					}
				}
			}
		}
		if added == 0 {
			break // fixed point reached
		}
	}
	return nil
}

func (r *run) applyCustom(ctx context.Context, store graphstore.Store, rule Rule) error {
	var established []graphstore.Relation
	for _, src := range r.sortedSources() {
		for _, tgt := range r.sortedTargets(src) {
			established = append(established, syntheticRelation(r.relationType, src, tgt, r.known[src][tgt]))
		}
	}

	steps, err := rule.Handler(ctx, established)
	if err != nil {
		return fmt.Errorf("custom rule %s: %w", rule.ID, err)
	}
	for _, step := range steps {
		if step.Conclusion.SourceID == "" || step.Conclusion.TargetID == "" {
			r.log.Warn("skipping malformed custom inference", "rule_id", rule.ID)
			continue
		}
		step.RuleID = rule.ID
		step.Confidence = step.Confidence * (1 - rule.ConfidenceDecay)
		step.Conclusion.Confidence = &step.Confidence
		if err := r.addInference(ctx, store, step); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) result() Result {
	conf := 0.0
	if len(r.steps) > 0 {
		sum := 0.0
		for _, s := range r.steps {
			sum += s.Confidence
		}
		conf = sum / float64(len(r.steps))
	}
	return Result{
		InferredRelations: r.inferred,
		Steps:             r.steps,
		Confidence:        conf,
		TotalSteps:        len(r.steps),
	}
}

// inferredRelation builds the conclusion edge with a deterministic id, so
// identical runs yield identical relation records.
func inferredRelation(relationType, source, target string, confidence float64) graphstore.Relation {
	c := confidence
	return graphstore.Relation{
		ID:           fmt.Sprintf("inferred:%s:%s:%s", relationType, source, target),
		SourceID:     source,
		TargetID:     target,
		RelationType: relationType,
		Confidence:   &c,
	}
}

// syntheticRelation reconstructs a premise edge from the run's working map.
func syntheticRelation(relationType, source, target string, confidence float64) graphstore.Relation {
	c := confidence
	return graphstore.Relation{
		ID:           fmt.Sprintf("%s:%s:%s", relationType, source, target),
		SourceID:     source,
		TargetID:     target,
		RelationType: relationType,
		Confidence:   &c,
	}
}

func sortedKeys(m map[string]map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedInner(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

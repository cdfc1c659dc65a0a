package graphmind

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cognicore/graphmind/pkg/graphmind/graphstore"
	"github.com/cognicore/graphmind/pkg/graphmind/inference"
	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
	"github.com/cognicore/graphmind/pkg/graphmind/planner"
	"github.com/cognicore/graphmind/pkg/graphmind/reasoning"
	"github.com/cognicore/graphmind/pkg/graphmind/schema"
	"github.com/cognicore/graphmind/pkg/graphmind/synthesis"
)

// Engine is the reasoning orchestrator facade. It sequences planning,
// multi-hop search, optional rule inference, and evidence synthesis into
// one explainable result. All collaborators are constructor-injected; the
// engine holds no process-wide state.
type Engine struct {
	store       graphstore.Store
	schemaCache *schema.Cache
	planner     *planner.Planner
	reasoner    *reasoning.Engine
	inference   *inference.Engine
	synthesizer *synthesis.Synthesizer
	log         *slog.Logger
}

// Options configures an Engine. Store is required; the rest defaults to
// sensible instances over it.
type Options struct {
	Store       graphstore.Store
	SchemaCache *schema.Cache
	Planner     *planner.Planner
	Reasoner    *reasoning.Engine
	Inference   *inference.Engine
	Synthesizer *synthesis.Synthesizer
	Logger      *slog.Logger
}

// New creates an Engine with the given dependencies.
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
		pl = planner.New(planner.Options{SchemaCache: opts.SchemaCache})
	}

	reasoner := opts.Reasoner
	if reasoner == nil {
		var err error
		reasoner, err = reasoning.New(reasoning.Options{Store: opts.Store, Planner: pl, Logger: logger})
		if err != nil {
			return nil, err
		}
	}

	inf := opts.Inference
	if inf == nil {
		var err error
		inf, err = inference.New(inference.Options{Store: opts.Store, Logger: logger})
		if err != nil {
			return nil, err
		}
	}

	synth := opts.Synthesizer
	if synth == nil {
		var err error
		synth, err = synthesis.New(synthesis.Config{}, logger)
		if err != nil {
			return nil, err
		}
	}

	return &Engine{
		store:       opts.Store,
		schemaCache: opts.SchemaCache,
		planner:     pl,
		reasoner:    reasoner,
		inference:   inf,
		synthesizer: synth,
		log:         logger,
	}, nil
}

// Close cleanly shuts down the engine.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Reasoner exposes the multi-hop engine for direct use.
func (e *Engine) Reasoner() *reasoning.Engine { return e.reasoner }

// Inference exposes the rule engine for rule management.
func (e *Engine) Inference() *inference.Engine { return e.inference }

// Synthesizer exposes the evidence synthesizer.
func (e *Engine) Synthesizer() *synthesis.Synthesizer { return e.synthesizer }

// SchemaCache exposes the schema cache, if one was configured.
func (e *Engine) SchemaCache() *schema.Cache { return e.schemaCache }

// FullReasonRequest bundles the inputs of one full reasoning pass.
type FullReasonRequest struct {
	Query       string           `json:"query"`
	Context     planner.Context  `json:"context"`
	MaxHops     int              `json:"max_hops,omitempty"`
	MaxEvidence int              `json:"max_evidence,omitempty"`
	Strategy    planner.Strategy `json:"strategy,omitempty"`

	// UseInference merges rule-derived relations into the evidence pool
	// before synthesis. InferenceRelationTypes selects which relation
	// types to run rules for; empty means the context's relation filters.
	UseInference           bool     `json:"use_inference,omitempty"`
	InferenceRelationTypes []string `json:"inference_relation_types,omitempty"`
	MaxSteps               int      `json:"max_steps,omitempty"`
}

// FullReason runs the complete pipeline: plan and search via the reasoning
// engine, optionally merge inference output as INFERRED evidence, then
// synthesize, rank, and compose the final answer. One cumulative trace
// spans all stages.
func (e *Engine) FullReason(ctx context.Context, req FullReasonRequest) (reasoning.ReasoningResult, error) {
	started := time.Now()

	result, err := e.reasoner.Reason(ctx, reasoning.Request{
		Query:       req.Query,
		Context:     req.Context,
		MaxHops:     req.MaxHops,
		MaxEvidence: req.MaxEvidence,
		Strategy:    req.Strategy,
	})
	if err != nil {
		return reasoning.ReasoningResult{}, err
	}
	trace := result.ReasoningTrace
	pool := result.Evidence

	if req.UseInference {
		relTypes := req.InferenceRelationTypes
		if len(relTypes) == 0 {
			relTypes = req.Context.RelationTypes
		}
		if len(relTypes) == 0 {
			trace = append(trace, "no relation types for inference, skipped")
		}
		for _, relType := range relTypes {
			inferred, err := e.inference.InferRelations(ctx, relType, req.MaxSteps, true)
			if err != nil {
				var unknown *internalerr.UnknownRelationTypeError
				if errors.As(err, &unknown) {
					trace = append(trace, fmt.Sprintf("no inference rules for %s, skipped", relType))
					continue
				}
				return reasoning.ReasoningResult{}, err
			}
			pool = append(pool, e.inferredEvidence(ctx, inferred)...)
			trace = append(trace, fmt.Sprintf("inference over %s derived %d relations in %d steps",
				relType, len(inferred.InferredRelations), inferred.TotalSteps))
		}
	}

	synthesized := e.synthesizer.Synthesize(pool)
	ranked := e.synthesizer.RankByReliability(synthesized)
	trace = append(trace, fmt.Sprintf("synthesized %d evidence items into %d", len(pool), len(ranked)))

	if contradictions := e.synthesizer.DetectContradictions(ranked); len(contradictions) > 0 {
		trace = append(trace, fmt.Sprintf("flagged %d contradictions", len(contradictions)))
		for _, c := range contradictions {
			e.log.Warn("contradictory evidence", "a", c.EvidenceA, "b", c.EvidenceB, "reason", c.Reason)
		}
	}

	answer := result.Answer
	if len(ranked) > 0 && ranked[0].Explanation != "" {
		answer = composeAnswer(result.Answer, ranked)
	}

	return reasoning.ReasoningResult{
		Query:           req.Query,
		Evidence:        ranked,
		Answer:          answer,
		Confidence:      e.synthesizer.EstimateOverallConfidence(ranked),
		ReasoningTrace:  trace,
		ExecutionTimeMS: time.Since(started).Milliseconds(),
	}, nil
}

// inferredEvidence wraps derived relations as INFERRED evidence items.
func (e *Engine) inferredEvidence(ctx context.Context, res inference.Result) []reasoning.Evidence {
	out := make([]reasoning.Evidence, 0, len(res.Steps))
	for _, step := range res.Steps {
		ev := reasoning.Evidence{
			ID:             step.Conclusion.ID,
			Type:           reasoning.EvidenceInferred,
			Relations:      []graphstore.Relation{step.Conclusion},
			Confidence:     step.Confidence,
			RelevanceScore: step.Confidence,
			Explanation: fmt.Sprintf("inferred %s: %s -> %s (rule %s)",
				step.Conclusion.RelationType, step.Conclusion.SourceID, step.Conclusion.TargetID, step.RuleID),
			Source: "inference",
		}
		for _, id := range []string{step.Conclusion.SourceID, step.Conclusion.TargetID} {
			ent, err := e.store.GetEntity(ctx, id)
			if err != nil {
				// Inferred endpoints normally exist; a miss only costs the
				// evidence its entity annotations.
				continue
			}
			ev.Entities = append(ev.Entities, ent)
		}
		out = append(out, ev)
	}
	return out
}

func composeAnswer(base string, ranked []reasoning.Evidence) string {
	top := ranked[0]
	if top.Source == "inference" {
		return fmt.Sprintf("%s Additionally, %s.", base, top.Explanation)
	}
	return base
}

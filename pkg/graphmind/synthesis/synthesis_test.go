package synthesis

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/cognicore/graphmind/pkg/graphmind/graphstore"
	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
	"github.com/cognicore/graphmind/pkg/graphmind/reasoning"
)

func newSynth(t *testing.T, cfg Config) *Synthesizer {
	t.Helper()
	s, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// pathEvidence builds a one-hop path evidence item asserting src -[relType]-> tgt.
func pathEvidence(id string, src, tgt, relType string, confidence, relevance float64) reasoning.Evidence {
	rel := graphstore.Relation{
		ID: id + ":rel", SourceID: src, TargetID: tgt, RelationType: relType,
	}
	return reasoning.Evidence{
		ID:   id,
		Type: reasoning.EvidencePath,
		Entities: []graphstore.Entity{
			{ID: src, Type: "person", Name: src},
			{ID: tgt, Type: "person", Name: tgt},
		},
		Paths: []reasoning.Path{{
			Hops: []reasoning.Hop{{
				From:     graphstore.Entity{ID: src},
				Relation: rel,
				To:       graphstore.Entity{ID: tgt},
			}},
			Confidence: confidence,
		}},
		Confidence:     confidence,
		RelevanceScore: relevance,
		Explanation:    src + " relates to " + tgt,
		Source:         "reasoning",
	}
}

func TestCorroboratingEvidenceMerges(t *testing.T) {
	s := newSynth(t, Config{Method: WeightedAverage})

	// Three items about the same connection, mean 0.65 plus a +0.1 boost.
	evidence := []reasoning.Evidence{
		pathEvidence("e1", "alice", "bob", "KNOWS", 0.6, 0.9),
		pathEvidence("e2", "alice", "bob", "KNOWS", 0.7, 0.8),
		pathEvidence("e3", "alice", "bob", "KNOWS", 0.65, 0.7),
	}

	out := s.Synthesize(evidence)
	if len(out) != 1 {
		t.Fatalf("expected one merged item, got %d", len(out))
	}
	merged := out[0]
	if math.Abs(merged.Confidence-0.75) > 1e-9 {
		t.Errorf("expected merged confidence 0.75, got %f", merged.Confidence)
	}
	if merged.ID != "e1" {
		t.Errorf("merged item keeps the strongest member's id, got %q", merged.ID)
	}
	if merged.Source != "synthesis" {
		t.Errorf("expected source %q, got %q", "synthesis", merged.Source)
	}
	if len(merged.Entities) != 2 {
		t.Errorf("expected deduplicated entities, got %d", len(merged.Entities))
	}
	if len(merged.Paths) != 3 {
		t.Errorf("all member paths must survive the merge, got %d", len(merged.Paths))
	}
}

func TestAgreementBoostCapped(t *testing.T) {
	s := newSynth(t, Config{Method: WeightedAverage})

	var evidence []reasoning.Evidence
	for _, id := range []string{"e1", "e2", "e3", "e4", "e5", "e6", "e7"} {
		evidence = append(evidence, pathEvidence(id, "a", "b", "KNOWS", 0.5, 0.5))
	}

	out := s.Synthesize(evidence)
	if len(out) != 1 {
		t.Fatalf("expected one merged item, got %d", len(out))
	}
	// Six corroborators would earn +0.30 uncapped; the cap holds it at +0.2.
	if math.Abs(out[0].Confidence-0.7) > 1e-9 {
		t.Errorf("expected capped confidence 0.7, got %f", out[0].Confidence)
	}
}

func TestUnrelatedEvidenceStaysApart(t *testing.T) {
	s := newSynth(t, Config{})

	evidence := []reasoning.Evidence{
		pathEvidence("e1", "alice", "bob", "KNOWS", 0.6, 0.9),
		pathEvidence("e2", "carol", "dave", "KNOWS", 0.7, 0.8),
	}

	out := s.Synthesize(evidence)
	if len(out) != 2 {
		t.Fatalf("disjoint evidence must not merge, got %d items", len(out))
	}
}

func TestSharedEntityAloneDoesNotMerge(t *testing.T) {
	s := newSynth(t, Config{})

	// Both mention alice, but assert different edges.
	evidence := []reasoning.Evidence{
		pathEvidence("e1", "alice", "bob", "KNOWS", 0.6, 0.9),
		pathEvidence("e2", "alice", "carol", "KNOWS", 0.7, 0.8),
	}

	out := s.Synthesize(evidence)
	if len(out) != 2 {
		t.Fatalf("shared entity without a shared assertion must not merge, got %d", len(out))
	}
}

func TestSynthesisIdempotent(t *testing.T) {
	s := newSynth(t, Config{Method: WeightedAverage})

	evidence := []reasoning.Evidence{
		pathEvidence("e1", "alice", "bob", "KNOWS", 0.6, 0.9),
		pathEvidence("e2", "alice", "bob", "KNOWS", 0.7, 0.8),
		pathEvidence("e3", "carol", "dave", "WORKS_AT", 0.5, 0.5),
	}

	once := s.Synthesize(evidence)
	twice := s.Synthesize(once)
	if !reflect.DeepEqual(once, twice) {
		t.Error("synthesizing already-synthesized evidence must be a no-op")
	}
}

func TestSynthesizeEmptyInput(t *testing.T) {
	s := newSynth(t, Config{})

	if out := s.Synthesize(nil); len(out) != 0 {
		t.Errorf("expected empty output, got %d items", len(out))
	}
	if c := s.EstimateOverallConfidence(nil); c != 0.0 {
		t.Errorf("expected overall confidence 0.0 on empty input, got %f", c)
	}
}

func TestMaxMethod(t *testing.T) {
	s := newSynth(t, Config{Method: Max})

	out := s.Synthesize([]reasoning.Evidence{
		pathEvidence("e1", "a", "b", "KNOWS", 0.4, 0.5),
		pathEvidence("e2", "a", "b", "KNOWS", 0.9, 0.5),
	})
	if len(out) != 1 || math.Abs(out[0].Confidence-0.9) > 1e-9 {
		t.Errorf("max method takes the strongest member, got %+v", out)
	}
}

func TestVotingMethod(t *testing.T) {
	s := newSynth(t, Config{Method: Voting, ConfidenceThreshold: 0.6})

	out := s.Synthesize([]reasoning.Evidence{
		pathEvidence("e1", "a", "b", "KNOWS", 0.7, 0.5),
		pathEvidence("e2", "a", "b", "KNOWS", 0.8, 0.5),
		pathEvidence("e3", "a", "b", "KNOWS", 0.3, 0.5),
	})
	if len(out) != 1 {
		t.Fatalf("expected one merged item, got %d", len(out))
	}
	want := 2.0 / 3.0
	if math.Abs(out[0].Confidence-want) > 1e-9 {
		t.Errorf("expected voting confidence %f, got %f", want, out[0].Confidence)
	}
}

func TestUnknownMethodRejected(t *testing.T) {
	_, err := New(Config{Method: "median"}, nil)
	var cfgErr *internalerr.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestThresholdBoundsRejected(t *testing.T) {
	if _, err := New(Config{ConfidenceThreshold: 1.2}, nil); err == nil {
		t.Error("confidence threshold above 1 must be rejected")
	}
	if _, err := New(Config{ContradictionThreshold: -0.1}, nil); err == nil {
		t.Error("negative contradiction threshold must be rejected")
	}
}

func TestFilterByConfidence(t *testing.T) {
	s := newSynth(t, Config{})

	evidence := []reasoning.Evidence{
		pathEvidence("e1", "a", "b", "KNOWS", 0.9, 0.5),
		pathEvidence("e2", "c", "d", "KNOWS", 0.5, 0.5),
		pathEvidence("e3", "e", "f", "KNOWS", 0.2, 0.5),
	}

	out := s.FilterByConfidence(evidence, 0.5)
	if len(out) != 2 {
		t.Fatalf("threshold is inclusive, expected 2 items, got %d", len(out))
	}
	for _, ev := range out {
		if ev.Confidence < 0.5 {
			t.Errorf("item %s below threshold survived", ev.ID)
		}
	}
}

func TestDetectContradictionsExclusivePair(t *testing.T) {
	s := newSynth(t, Config{
		ContradictionThreshold: 0.6,
		ExclusivePairs:         [][2]string{{"EMPLOYED_BY", "FIRED_FROM"}},
	})

	evidence := []reasoning.Evidence{
		pathEvidence("e1", "alice", "acme", "EMPLOYED_BY", 0.8, 0.9),
		pathEvidence("e2", "alice", "acme", "FIRED_FROM", 0.7, 0.8),
	}

	out := s.DetectContradictions(evidence)
	if len(out) != 1 {
		t.Fatalf("expected one contradiction, got %d", len(out))
	}
	c := out[0]
	if c.EvidenceA != "e1" || c.EvidenceB != "e2" {
		t.Errorf("unexpected pair (%s, %s)", c.EvidenceA, c.EvidenceB)
	}
	if math.Abs(c.Severity-0.7) > 1e-9 {
		t.Errorf("severity is the weaker confidence, got %f", c.Severity)
	}
}

func TestDetectContradictionsDirected(t *testing.T) {
	s := newSynth(t, Config{
		ContradictionThreshold: 0.5,
		DirectedExclusive:      []string{"MANAGES"},
	})

	evidence := []reasoning.Evidence{
		pathEvidence("e1", "alice", "bob", "MANAGES", 0.8, 0.9),
		pathEvidence("e2", "bob", "alice", "MANAGES", 0.7, 0.8),
	}

	if out := s.DetectContradictions(evidence); len(out) != 1 {
		t.Fatalf("opposite directions of a directed-exclusive type must conflict, got %d", len(out))
	}
}

func TestLowConfidenceContradictionIgnored(t *testing.T) {
	s := newSynth(t, Config{
		ContradictionThreshold: 0.6,
		DirectedExclusive:      []string{"MANAGES"},
	})

	evidence := []reasoning.Evidence{
		pathEvidence("e1", "alice", "bob", "MANAGES", 0.8, 0.9),
		pathEvidence("e2", "bob", "alice", "MANAGES", 0.4, 0.8),
	}

	if out := s.DetectContradictions(evidence); len(out) != 0 {
		t.Errorf("below-threshold member must suppress the flag, got %d", len(out))
	}
}

func TestEstimateOverallConfidenceWeighted(t *testing.T) {
	s := newSynth(t, Config{})

	evidence := []reasoning.Evidence{
		pathEvidence("e1", "a", "b", "KNOWS", 0.9, 1.0),
		pathEvidence("e2", "c", "d", "KNOWS", 0.3, 0.5),
	}

	want := (0.9*1.0 + 0.3*0.5) / 1.5
	if got := s.EstimateOverallConfidence(evidence); math.Abs(got-want) > 1e-9 {
		t.Errorf("expected %f, got %f", want, got)
	}
}

func TestEstimateOverallConfidenceZeroRelevance(t *testing.T) {
	s := newSynth(t, Config{})

	evidence := []reasoning.Evidence{
		pathEvidence("e1", "a", "b", "KNOWS", 0.8, 0.0),
		pathEvidence("e2", "c", "d", "KNOWS", 0.4, 0.0),
	}

	if got := s.EstimateOverallConfidence(evidence); math.Abs(got-0.6) > 1e-9 {
		t.Errorf("all-zero relevance falls back to the plain mean, got %f", got)
	}
}

func TestRankByReliability(t *testing.T) {
	s := newSynth(t, Config{})

	evidence := []reasoning.Evidence{
		pathEvidence("e1", "a", "b", "KNOWS", 0.5, 0.9),
		pathEvidence("e2", "c", "d", "KNOWS", 0.9, 0.1),
		pathEvidence("e3", "e", "f", "KNOWS", 0.5, 0.9),
	}

	out := s.RankByReliability(evidence)
	if out[0].ID != "e2" {
		t.Errorf("highest confidence ranks first, got %q", out[0].ID)
	}
	// e1 and e3 tie on confidence and relevance; the later id wins.
	if out[1].ID != "e3" || out[2].ID != "e1" {
		t.Errorf("tie broken by descending id, got [%s %s]", out[1].ID, out[2].ID)
	}
	if evidence[0].ID != "e1" {
		t.Error("ranking must not reorder the input slice")
	}
}

package synthesis

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
	"github.com/cognicore/graphmind/pkg/graphmind/reasoning"
)

// CombinationMethod selects how member confidences merge into one.
type CombinationMethod string

const (
	// WeightedAverage takes the mean of member confidences plus an
	// agreement boost of +0.05 per corroborator beyond the first, capped
	// at +0.2.
	WeightedAverage CombinationMethod = "weighted_average"
	// Max takes the most optimistic member.
	Max CombinationMethod = "max"
	// Voting scales the fraction of members at or above the confidence
	// threshold into [0,1].
	Voting CombinationMethod = "voting"
)

const (
	agreementBoostPerMember = 0.05
	agreementBoostCap       = 0.2
)

// Config holds the synthesizer's thresholds and the caller-supplied
// contradiction semantics. The engine ships no built-in domain knowledge
// about which relation types exclude each other.
type Config struct {
	Method                 CombinationMethod `json:"method,omitempty"`
	ConfidenceThreshold    float64           `json:"confidence_threshold,omitempty"`
	ContradictionThreshold float64           `json:"contradiction_threshold,omitempty"`

	// ExclusivePairs lists relation-type pairs that cannot both hold for
	// the same entity pair, e.g. {"PARENT_OF", "CHILD_OF"} if the domain
	// models both directions explicitly.
	ExclusivePairs [][2]string `json:"exclusive_pairs,omitempty"`

	// DirectedExclusive lists relation types for which opposite-direction
	// edges over the same entity pair contradict each other.
	DirectedExclusive []string `json:"directed_exclusive,omitempty"`
}

// Contradiction flags two evidence items asserting incompatible facts
// about the same entity pair.
type Contradiction struct {
	EvidenceA string  `json:"evidence_a"`
	EvidenceB string  `json:"evidence_b"`
	Reason    string  `json:"reason"`
	Severity  float64 `json:"severity"`
}

// Synthesizer merges redundant or conflicting evidence into fewer,
// higher-confidence, deduplicated items.
type Synthesizer struct {
	cfg Config
	log *slog.Logger

	exclusive map[string]string // canonical "a|b" pair set
	directed  map[string]struct{}
}

// New creates a Synthesizer. Thresholds outside [0,1] are rejected up
// front.
func New(cfg Config, logger *slog.Logger) (*Synthesizer, error) {
	if cfg.Method == "" {
		cfg.Method = WeightedAverage
	}
	switch cfg.Method {
	case WeightedAverage, Max, Voting:
	default:
		return nil, &internalerr.ConfigurationError{Field: "method", Reason: fmt.Sprintf("unknown method %q", cfg.Method)}
	}
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		return nil, &internalerr.ConfigurationError{Field: "confidence_threshold", Reason: "must be in [0,1]"}
	}
	if cfg.ContradictionThreshold < 0 || cfg.ContradictionThreshold > 1 {
		return nil, &internalerr.ConfigurationError{Field: "contradiction_threshold", Reason: "must be in [0,1]"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Synthesizer{
		cfg:       cfg,
		log:       logger,
		exclusive: make(map[string]string),
		directed:  make(map[string]struct{}),
	}
	for _, pair := range cfg.ExclusivePairs {
		s.exclusive[pairKey(pair[0], pair[1])] = pair[0] + " vs " + pair[1]
	}
	for _, t := range cfg.DirectedExclusive {
		s.directed[t] = struct{}{}
	}
	return s, nil
}

// assertion is one (source, target, relation type) fact an evidence item
// carries, via its relations or path hops.
type assertion struct {
	source, target, relType string
	confidence              float64
}

func assertions(ev reasoning.Evidence) []assertion {
	var out []assertion
	for _, r := range ev.Relations {
		out = append(out, assertion{r.SourceID, r.TargetID, r.RelationType, r.ConfidenceOrDefault()})
	}
	for _, p := range ev.Paths {
		for _, h := range p.Hops {
			out = append(out, assertion{h.Relation.SourceID, h.Relation.TargetID, h.Relation.RelationType, h.Relation.ConfidenceOrDefault()})
		}
	}
	return out
}

func entityIDs(ev reasoning.Evidence) map[string]struct{} {
	out := make(map[string]struct{}, len(ev.Entities))
	for _, e := range ev.Entities {
		out[e.ID] = struct{}{}
	}
	return out
}

func footprint(ev reasoning.Evidence) map[string]struct{} {
	out := make(map[string]struct{})
	for _, a := range assertions(ev) {
		out[a.source+"|"+a.target+"|"+a.relType] = struct{}{}
	}
	return out
}

// Synthesize groups evidence sharing at least one entity and an
// overlapping relation/path footprint, then merges each group under the
// configured combination method. Singleton groups pass through unchanged,
// which makes synthesis idempotent. An empty input returns an empty list.
func (s *Synthesizer) Synthesize(evidence []reasoning.Evidence) []reasoning.Evidence {
	if len(evidence) == 0 {
		return nil
	}

	ents := make([]map[string]struct{}, len(evidence))
	feet := make([]map[string]struct{}, len(evidence))
	for i, ev := range evidence {
		ents[i] = entityIDs(ev)
		feet[i] = footprint(ev)
	}

	// Union-find over pairwise overlap.
	parent := make([]int, len(evidence))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	for i := 0; i < len(evidence); i++ {
		for j := i + 1; j < len(evidence); j++ {
			if overlaps(ents[i], ents[j]) && overlaps(feet[i], feet[j]) {
				union(i, j)
			}
		}
	}

	groups := make(map[int][]int)
	for i := range evidence {
		root := find(i)
		groups[root] = append(groups[root], i)
	}
	roots := make([]int, 0, len(groups))
	for root := range groups {
		roots = append(roots, root)
	}
	sort.Ints(roots)

	out := make([]reasoning.Evidence, 0, len(groups))
	for _, root := range roots {
		members := groups[root]
		if len(members) == 1 {
			out = append(out, evidence[members[0]])
			continue
		}
		group := make([]reasoning.Evidence, len(members))
		for i, idx := range members {
			group[i] = evidence[idx]
		}
		out = append(out, s.merge(group))
	}
	return out
}

// merge combines a group of corroborating evidence into one item. The
// merged item keeps the id of the strongest member so repeated synthesis
// is stable.
func (s *Synthesizer) merge(group []reasoning.Evidence) reasoning.Evidence {
	sort.SliceStable(group, func(i, j int) bool {
		if group[i].RelevanceScore != group[j].RelevanceScore {
			return group[i].RelevanceScore > group[j].RelevanceScore
		}
		return group[i].ID < group[j].ID
	})
	lead := group[0]

	merged := reasoning.Evidence{
		ID:             lead.ID,
		Type:           lead.Type,
		Confidence:     s.combine(group),
		RelevanceScore: lead.RelevanceScore,
		Source:         "synthesis",
	}

	seenEnt := make(map[string]struct{})
	seenRel := make(map[string]struct{})
	for _, ev := range group {
		for _, e := range ev.Entities {
			if _, dup := seenEnt[e.ID]; dup {
				continue
			}
			seenEnt[e.ID] = struct{}{}
			merged.Entities = append(merged.Entities, e)
		}
		for _, r := range ev.Relations {
			if _, dup := seenRel[r.ID]; dup {
				continue
			}
			seenRel[r.ID] = struct{}{}
			merged.Relations = append(merged.Relations, r)
		}
		merged.Paths = append(merged.Paths, ev.Paths...)
	}

	merged.Explanation = fmt.Sprintf("%s (corroborated by %d evidence items, %s)",
		lead.Explanation, len(group), s.cfg.Method)
	return merged
}

func (s *Synthesizer) combine(group []reasoning.Evidence) float64 {
	switch s.cfg.Method {
	case Max:
		best := 0.0
		for _, ev := range group {
			if ev.Confidence > best {
				best = ev.Confidence
			}
		}
		return best
	case Voting:
		above := 0
		for _, ev := range group {
			if ev.Confidence >= s.cfg.ConfidenceThreshold {
				above++
			}
		}
		return float64(above) / float64(len(group))
	default: // WeightedAverage
		sum := 0.0
		for _, ev := range group {
			sum += ev.Confidence
		}
		mean := sum / float64(len(group))
		boost := math.Min(agreementBoostPerMember*float64(len(group)-1), agreementBoostCap)
		return math.Min(mean+boost, 1.0)
	}
}

// FilterByConfidence returns the evidence at or above the threshold.
func (s *Synthesizer) FilterByConfidence(evidence []reasoning.Evidence, threshold float64) []reasoning.Evidence {
	var out []reasoning.Evidence
	for _, ev := range evidence {
		if ev.Confidence >= threshold {
			out = append(out, ev)
		}
	}
	return out
}

// DetectContradictions finds evidence pairs asserting incompatible facts
// about the same entity pair: mutually exclusive relation types (per the
// caller-supplied pairs) or opposite directions of a directed-exclusive
// type. Pairs are only flagged when both members' confidences reach the
// contradiction threshold.
func (s *Synthesizer) DetectContradictions(evidence []reasoning.Evidence) []Contradiction {
	var out []Contradiction
	for i := 0; i < len(evidence); i++ {
		for j := i + 1; j < len(evidence); j++ {
			a, b := evidence[i], evidence[j]
			if a.Confidence < s.cfg.ContradictionThreshold || b.Confidence < s.cfg.ContradictionThreshold {
				continue
			}
			if reason := s.conflict(a, b); reason != "" {
				out = append(out, Contradiction{
					EvidenceA: a.ID,
					EvidenceB: b.ID,
					Reason:    reason,
					Severity:  math.Min(a.Confidence, b.Confidence),
				})
			}
		}
	}
	return out
}

func (s *Synthesizer) conflict(a, b reasoning.Evidence) string {
	for _, aa := range assertions(a) {
		for _, ba := range assertions(b) {
			samePair := aa.source == ba.source && aa.target == ba.target
			reversed := aa.source == ba.target && aa.target == ba.source

			if (samePair || reversed) && aa.relType != ba.relType {
				if reason, ok := s.exclusive[pairKey(aa.relType, ba.relType)]; ok {
					return fmt.Sprintf("mutually exclusive relation types (%s) for %s and %s",
						reason, aa.source, aa.target)
				}
			}
			if reversed && aa.relType == ba.relType {
				if _, ok := s.directed[aa.relType]; ok {
					return fmt.Sprintf("opposite directions of %s between %s and %s",
						aa.relType, aa.source, aa.target)
				}
			}
		}
	}
	return ""
}

// EstimateOverallConfidence returns the relevance-weighted average of
// member confidences. Empty input yields 0.0, never an error.
func (s *Synthesizer) EstimateOverallConfidence(evidence []reasoning.Evidence) float64 {
	if len(evidence) == 0 {
		return 0.0
	}
	weightSum := 0.0
	weighted := 0.0
	for _, ev := range evidence {
		weightSum += ev.RelevanceScore
		weighted += ev.Confidence * ev.RelevanceScore
	}
	if weightSum == 0 {
		sum := 0.0
		for _, ev := range evidence {
			sum += ev.Confidence
		}
		return sum / float64(len(evidence))
	}
	return weighted / weightSum
}

// RankByReliability sorts descending by confidence, relevance, then
// recency. Evidence ids are ULIDs, which sort by creation time, so the
// recency tie-break is a descending id comparison.
func (s *Synthesizer) RankByReliability(evidence []reasoning.Evidence) []reasoning.Evidence {
	out := append([]reasoning.Evidence{}, evidence...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		if out[i].RelevanceScore != out[j].RelevanceScore {
			return out[i].RelevanceScore > out[j].RelevanceScore
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func overlaps(a, b map[string]struct{}) bool {
	if len(b) < len(a) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}

func pairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + "|" + b
}

package reasoning

import (
	"fmt"
	"strings"

	"github.com/cognicore/graphmind/pkg/graphmind/graphstore"
)

// EvidenceType classifies how a piece of evidence was derived.
type EvidenceType string

const (
	// EvidencePath backs an answer with a discovered multi-hop path.
	EvidencePath EvidenceType = "PATH"
	// EvidenceRelation backs an answer with a single existing relation.
	EvidenceRelation EvidenceType = "RELATION"
	// EvidenceInferred backs an answer with a rule-derived relation.
	EvidenceInferred EvidenceType = "INFERRED"
)

// Hop is one (entity, relation, entity) segment of a path.
type Hop struct {
	From     graphstore.Entity   `json:"from"`
	Relation graphstore.Relation `json:"relation"`
	To       graphstore.Entity   `json:"to"`
}

// Path is an ordered hop sequence. No entity repeats within one path, and
// the length never exceeds the hop bound it was discovered under. Paths are
// ephemeral: built per request, discarded after evidence extraction unless
// retained inside returned Evidence.
type Path struct {
	Hops       []Hop   `json:"hops"`
	Confidence float64 `json:"confidence"`
}

// Length returns the number of hops.
func (p Path) Length() int { return len(p.Hops) }

// Start returns the first entity of the path.
func (p Path) Start() graphstore.Entity {
	if len(p.Hops) == 0 {
		return graphstore.Entity{}
	}
	return p.Hops[0].From
}

// End returns the final entity of the path.
func (p Path) End() graphstore.Entity {
	if len(p.Hops) == 0 {
		return graphstore.Entity{}
	}
	return p.Hops[len(p.Hops)-1].To
}

// Intermediaries returns the entities strictly between start and end.
func (p Path) Intermediaries() []graphstore.Entity {
	if len(p.Hops) < 2 {
		return nil
	}
	out := make([]graphstore.Entity, 0, len(p.Hops)-1)
	for _, h := range p.Hops[1:] {
		out = append(out, h.From)
	}
	return out
}

// Render returns the hop sequence as a readable chain, using entity names
// where present and ids otherwise.
func (p Path) Render() string {
	if len(p.Hops) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(entityLabel(p.Hops[0].From))
	for _, h := range p.Hops {
		fmt.Fprintf(&b, " -[%s]-> %s", h.Relation.RelationType, entityLabel(h.To))
	}
	return b.String()
}

func entityLabel(e graphstore.Entity) string {
	if e.Name != "" {
		return e.Name
	}
	return e.ID
}

// Evidence is a scored, explainable unit of support for an answer. Its
// lifetime is one request; callers may inspect it via the returned result.
type Evidence struct {
	ID             string                `json:"id"`
	Type           EvidenceType          `json:"type"`
	Entities       []graphstore.Entity   `json:"entities,omitempty"`
	Relations      []graphstore.Relation `json:"relations,omitempty"`
	Paths          []Path                `json:"paths,omitempty"`
	Confidence     float64               `json:"confidence"`
	RelevanceScore float64               `json:"relevance_score"`
	Explanation    string                `json:"explanation"`
	Source         string                `json:"source"`
}

// ReasoningResult is the final product of one reasoning request.
type ReasoningResult struct {
	Query           string     `json:"query"`
	Evidence        []Evidence `json:"evidence"`
	Answer          string     `json:"answer"`
	Confidence      float64    `json:"confidence"`
	ReasoningTrace  []string   `json:"reasoning_trace"`
	ExecutionTimeMS int64      `json:"execution_time_ms"`
}

package campaign

// Phase is a Wyckoff phase, A through E.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseA
	PhaseB
	PhaseC
	PhaseD
	PhaseE
)

func (p Phase) String() string {
	if p < PhaseA || p > PhaseE {
		return "-"
	}
	return string(rune('A' + int(p) - 1))
}

// Type is the grammar a campaign follows.
type Type string

const (
	Accumulation Type = "ACCUMULATION"
	Distribution Type = "DISTRIBUTION"
)

// Rule describes one tag of a grammar. A tag requires either all of AllOf or
// at least one of AnyOf to be present already; tags with neither open a
// campaign.
type Rule struct {
	Tag      string
	Phase    Phase
	AllOf    []string
	AnyOf    []string
	Terminal bool
}

// Opens reports whether the tag can start a campaign.
func (r Rule) Opens() bool {
	return len(r.AllOf) == 0 && len(r.AnyOf) == 0
}

func (r Rule) satisfied(seen map[string]bool) bool {
	for _, tag := range r.AllOf {
		if !seen[tag] {
			return false
		}
	}
	if len(r.AnyOf) == 0 {
		return true
	}
	for _, tag := range r.AnyOf {
		if seen[tag] {
			return true
		}
	}
	return false
}

// Grammar is the vocabulary of one campaign type.
type Grammar struct {
	Type  Type
	rules map[string]Rule
	order []string
}

func newGrammar(t Type, rules ...Rule) Grammar {
	g := Grammar{Type: t, rules: make(map[string]Rule, len(rules))}
	for _, r := range rules {
		g.rules[r.Tag] = r
		g.order = append(g.order, r.Tag)
	}
	return g
}

// Rule returns the rule for tag.
func (g Grammar) Rule(tag string) (Rule, bool) {
	r, ok := g.rules[tag]
	return r, ok
}

// Tags returns the vocabulary in phase order.
func (g Grammar) Tags() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// AccumulationGrammar is the Wyckoff accumulation schematic.
var AccumulationGrammar = newGrammar(Accumulation,
	Rule{Tag: "PS", Phase: PhaseA},
	Rule{Tag: "SC", Phase: PhaseA},
	Rule{Tag: "AR", Phase: PhaseA, AllOf: []string{"SC"}},
	Rule{Tag: "ST", Phase: PhaseB, AllOf: []string{"SC"}},
	Rule{Tag: "SPRING", Phase: PhaseC, AllOf: []string{"SC", "AR"}},
	Rule{Tag: "TEST", Phase: PhaseC, AllOf: []string{"SPRING"}},
	Rule{Tag: "SOS", Phase: PhaseD, AnyOf: []string{"SPRING", "TEST"}},
	Rule{Tag: "LPS", Phase: PhaseD, AllOf: []string{"SOS"}},
	Rule{Tag: "JUMP", Phase: PhaseE, AllOf: []string{"SOS"}, Terminal: true},
)

// DistributionGrammar is the Wyckoff distribution schematic.
var DistributionGrammar = newGrammar(Distribution,
	Rule{Tag: "PSY", Phase: PhaseA},
	Rule{Tag: "BC", Phase: PhaseA},
	Rule{Tag: "AR", Phase: PhaseA, AllOf: []string{"BC"}},
	Rule{Tag: "ST", Phase: PhaseB, AllOf: []string{"BC"}},
	Rule{Tag: "UT", Phase: PhaseC, AllOf: []string{"BC", "AR"}},
	Rule{Tag: "UTAD", Phase: PhaseC, AllOf: []string{"BC", "AR"}},
	Rule{Tag: "SOW", Phase: PhaseD, AnyOf: []string{"UT", "UTAD"}},
	Rule{Tag: "LPSY", Phase: PhaseD, AllOf: []string{"SOW"}},
	Rule{Tag: "MARKDOWN", Phase: PhaseE, AllOf: []string{"SOW"}, Terminal: true},
)

// grammars is the lookup order for opening tags.
var grammars = []Grammar{AccumulationGrammar, DistributionGrammar}

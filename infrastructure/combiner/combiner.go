// Package combiner merges the rule-based, peer and LLM signals of a domain
// into one final score on the 0..5 scale.
package combiner

import "fmt"

// Round selects the scale conventions of an audit round.
type Round int

const (
	// Round1 peer scores are on 0..1 and LLM scores on 0..MaxLLM.
	Round1 Round = 1
	// Round2 peer scores are on 0..1 (from final_score_2) and LLM scores
	// are already on the target scale.
	Round2 Round = 2
)

// NotAvailable is rendered for a missing signal or final score.
const NotAvailable = "N/A"

// Scales holds the conversion constants.
type Scales struct {
	// Target is the scale every signal is converted to.
	Target float64 `yaml:"target" json:"target" validate:"gt=0"`
	// MaxLLM is the round-1 LLM judge scale.
	MaxLLM float64 `yaml:"max_llm" json:"max_llm" validate:"gt=0"`
}

// DefaultScales returns the 0..5 target with a 0..7 round-1 LLM scale.
func DefaultScales() Scales { return Scales{Target: 5, MaxLLM: 7} }

// Signals are the raw per-domain inputs. A nil signal is absent.
type Signals struct {
	Rule *float64
	Peer *float64
	LLM  *float64
}

// Combiner turns Signals into a final score.
type Combiner struct {
	scales Scales
}

// New returns a Combiner using s.
func New(s Scales) *Combiner { return &Combiner{scales: s} }

// Normalized returns the present signals converted to the target scale, in
// rule, peer, LLM order.
func (c *Combiner) Normalized(round Round, s Signals) []float64 {
	out := make([]float64, 0, 3)
	if s.Rule != nil {
		out = append(out, *s.Rule)
	}
	if s.Peer != nil {
		out = append(out, *s.Peer*c.scales.Target)
	}
	if s.LLM != nil {
		llm := *s.LLM
		if round == Round1 {
			llm = llm / c.scales.MaxLLM * c.scales.Target
		}
		out = append(out, llm)
	}
	return out
}

// Combine returns the mean of the present normalized signals. ok is false
// when no signal is present.
func (c *Combiner) Combine(round Round, s Signals) (float64, bool) {
	xs := c.Normalized(round, s)
	if len(xs) == 0 {
		return 0, false
	}
	return Mean(xs), true
}

// Mean is the arithmetic mean of xs, 0 for none.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// MeanPtr is Mean returning nil for none.
func MeanPtr(xs []float64) *float64 {
	if len(xs) == 0 {
		return nil
	}
	m := Mean(xs)
	return &m
}

// Format renders v with two decimals, or NotAvailable when nil.
func Format(v *float64) string {
	if v == nil {
		return NotAvailable
	}
	return fmt.Sprintf("%.2f", *v)
}

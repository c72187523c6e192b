// Package identity collapses the many spellings of a contributor's name
// (nicknames, missing middle names, pronoun suffixes, bare emails) into one
// canonical identity.
package identity

import (
	"log/slog"
	"strings"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-crossval/internal/ports"
)

var _ ports.NameResolver = (*Resolver)(nil)

// Policy chooses among several aliases that all fuzzily match a name.
type Policy string

const (
	// PolicyFirst keeps the first matching alias in declared order.
	PolicyFirst Policy = "first"
	// PolicyClosest keeps the alias whose variant has the smallest edit
	// distance to the name, falling back to declared order on ties.
	PolicyClosest Policy = "closest"
)

// Alias maps one observed spelling to its canonical identity.
type Alias struct {
	Variant   string `yaml:"variant" json:"variant" validate:"required"`
	Canonical string `yaml:"canonical" json:"canonical" validate:"required"`
}

// DefaultAliases is the consolidation table built up over the audit.
var DefaultAliases = []Alias{
	{"Matthew Hayes", "Matthew John Hayes"},
	{"Matthew John Hayes", "Matthew John Hayes"},
	{"Daphne", "Daphne Barretto"},
	{"Daphne Barretto", "Daphne Barretto"},
	{"Daphne Barretto She/her", "Daphne Barretto"},
	{"Matt Wolfman", "Matthew Wolfman"},
	{"Matthew Wolfman", "Matthew Wolfman"},
	{"ChenyangDai", "Chenyang Dai"},
	{"Chenyang Dai", "Chenyang Dai"},
	{"Chris Pearce", "Chris Philip James Pearce"},
	{"Chris Philip James Pearce", "Chris Philip James Pearce"},
	{"Rachael Cooper", "Rachael Yaran Cooper"},
	{"Rachael Yaran Cooper", "Rachael Yaran Cooper"},
	{"Samantha van Rijs", "Samantha Afra van Rijs"},
	{"Samantha Afra van Rijs", "Samantha Afra van Rijs"},
	{"Fernando Torres", "Fernando Torres Navarrete"},
	{"Fernando Torres Navarrete", "Fernando Torres Navarrete"},
	{"Deveen Harischandra", "Deveen Manitha Harischandra"},
	{"Deveen Manitha Harischandra", "Deveen Manitha Harischandra"},
	{"wutheodo@stanford.edu", "Theodore Wu"},
	{"julih@stanford.edu", "Juli Huang"},
	{"lgren007@stanford.edu", "Leiguang Ren"},
	{"deveen@stanford.edu", "Deveen Manitha Harischandra"},
	{"mhayes3@stanford.edu", "Matthew John Hayes"},
}

// DefaultExcluded are placeholder tokens that show up in author and
// validator columns but never name a person.
var DefaultExcluded = []string{"N/A", "LLM", "NOT ASSIGNED", "4", "A2"}

// Resolver resolves names against an immutable alias table. It holds no
// mutable state and is safe for concurrent use.
type Resolver struct {
	aliases  []Alias
	folded   []string
	exact    map[string]string
	excluded map[string]struct{}
	policy   Policy
	logger   *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPolicy sets the ambiguity policy. Unknown values fall back to
// PolicyFirst.
func WithPolicy(p Policy) Option {
	return func(r *Resolver) {
		if p == PolicyClosest {
			r.policy = p
		}
	}
}

// WithExcluded replaces the placeholder tokens rejected by IsPerson.
func WithExcluded(tokens []string) Option {
	return func(r *Resolver) {
		r.excluded = make(map[string]struct{}, len(tokens))
		for _, t := range tokens {
			r.excluded[t] = struct{}{}
		}
	}
}

// WithLogger sets the logger used to report ambiguous matches.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver builds a Resolver over a copy of aliases.
func NewResolver(aliases []Alias, opts ...Option) *Resolver {
	r := &Resolver{
		aliases: append([]Alias(nil), aliases...),
		folded:  make([]string, len(aliases)),
		exact:   make(map[string]string, len(aliases)),
		policy:  PolicyFirst,
		logger:  slog.Default(),
	}
	for i, a := range r.aliases {
		r.folded[i] = fold(a.Variant)
		if _, dup := r.exact[a.Variant]; !dup {
			r.exact[a.Variant] = a.Canonical
		}
	}
	WithExcluded(DefaultExcluded)(r)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the canonical identity for name. Matching tries the exact
// spelling first, then a case-insensitive comparison where either string
// may contain the other. A non-empty name that matches nothing is its own
// identity. Empty input is not resolvable.
func (r *Resolver) Resolve(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	if canonical, ok := r.exact[name]; ok {
		return canonical, true
	}

	matches := r.fuzzyMatches(fold(name))
	switch len(matches) {
	case 0:
		return name, true
	case 1:
		return r.aliases[matches[0]].Canonical, true
	}

	chosen := matches[0]
	if r.policy == PolicyClosest {
		chosen = r.closest(fold(name), matches)
	}
	if distinct := r.canonicals(matches); len(distinct) > 1 {
		r.logger.Debug("ambiguous name resolved",
			"name", name,
			"candidates", distinct,
			"chosen", r.aliases[chosen].Canonical,
			"policy", string(r.policy),
		)
	}
	return r.aliases[chosen].Canonical, true
}

// Ambiguities lists every distinct canonical identity that name fuzzily
// matches. More than one entry means the result of Resolve depends on the
// policy.
func (r *Resolver) Ambiguities(name string) []string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	return r.canonicals(r.fuzzyMatches(fold(name)))
}

// IsPerson reports whether a resolved name denotes a real contributor
// rather than a placeholder token.
func (r *Resolver) IsPerson(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	_, placeholder := r.excluded[name]
	return !placeholder
}

func (r *Resolver) fuzzyMatches(f string) []int {
	var idx []int
	for i, v := range r.folded {
		if v == f || strings.Contains(v, f) || strings.Contains(f, v) {
			idx = append(idx, i)
		}
	}
	return idx
}

func (r *Resolver) closest(f string, matches []int) int {
	best, bestDist := matches[0], -1
	for _, i := range matches {
		d := levenshtein.ComputeDistance(f, r.folded[i])
		if bestDist < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func (r *Resolver) canonicals(matches []int) []string {
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, i := range matches {
		c := r.aliases[i].Canonical
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// fold builds a fresh Caser per call; Casers carry state and must not be
// shared between goroutines.
func fold(s string) string {
	return cases.Fold().String(s)
}

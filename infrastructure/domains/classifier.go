// Package domains maps the inconsistent domain tags found in contributed
// cases onto the ten canonical domain codes.
package domains

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/ahrav/go-crossval/internal/domain"
	"github.com/ahrav/go-crossval/internal/ports"
)

var _ ports.DomainClassifier = (*Classifier)(nil)

// Tier identifies which resolution step produced a classification.
type Tier int

const (
	TierNone Tier = iota
	TierDomainID
	TierDomainName
	TierRawDomain
)

// String implements fmt.Stringer.
func (t Tier) String() string {
	switch t {
	case TierDomainID:
		return "domain_id"
	case TierDomainName:
		return "domain_name"
	case TierRawDomain:
		return "domain"
	default:
		return "none"
	}
}

// Rule maps a set of match terms to a domain code.
type Rule struct {
	Code  domain.DomainCode `yaml:"code" json:"code" validate:"required,domaincode"`
	Terms []string          `yaml:"terms" json:"terms" validate:"required,min=1,dive,required"`
}

// Tables holds the data driving each tier. Rules within a table are tried
// in order and the first hit wins.
type Tables struct {
	// IDPattern is the shape an explicit domain_id must have.
	IDPattern string `yaml:"id_pattern" json:"id_pattern" validate:"required"`
	// NameKeywords are substrings searched in the descriptive domain_name.
	NameKeywords []Rule `yaml:"name_keywords" json:"name_keywords" validate:"dive"`
	// DomainContains are substrings searched in the raw domain.
	DomainContains []Rule `yaml:"domain_contains" json:"domain_contains" validate:"dive"`
	// DomainExact are whole-value matches against the raw domain.
	DomainExact []Rule `yaml:"domain_exact" json:"domain_exact" validate:"dive"`
}

// DefaultTables returns the tagging conventions seen across both rounds.
func DefaultTables() Tables {
	return Tables{
		IDPattern: `^D\d{1,2}$`,
		NameKeywords: []Rule{
			{domain.D1, []string{"daily life"}},
			{domain.D2, []string{"history"}},
			{domain.D3, []string{"markets", "finance"}},
			{domain.D4, []string{"medicine", "health"}},
			{domain.D5, []string{"economics"}},
			{domain.D6, []string{"environment", "climate"}},
			{domain.D7, []string{"law", "ethics"}},
			{domain.D8, []string{"ai", "tech"}},
			{domain.D9, []string{"sports"}},
			{domain.D10, []string{"social science"}},
		},
		DomainContains: []Rule{
			{domain.D1, []string{"daily"}},
		},
		DomainExact: []Rule{
			{domain.D1, []string{"Daily Life"}},
			{domain.D2, []string{"History", "D2"}},
			{domain.D3, []string{"Markets", "Finance", "Business"}},
			{domain.D4, []string{"Medicine", "Health", "Healthcare", "Public Health", "Epidemiology"}},
			{domain.D5, []string{"Economics"}},
			{domain.D6, []string{"Environment", "Environmental Science", "Climate", "Climate Science"}},
			{domain.D7, []string{"Law & Ethics", "Law", "Legal", "Ethics"}},
			{domain.D8, []string{"AI & Tech", "D8 - AI Safety & Alignment", "Technology", "Computer Science"}},
			{domain.D9, []string{"Sports", "D9"}},
			{domain.D10, []string{
				"Social Science", "D10 (Social Science)", "Psychology", "Public Policy",
				"Criminal Justice", "Education", "Employment",
			}},
		},
	}
}

// Result is a classification together with the tier and term that
// produced it.
type Result struct {
	Code domain.DomainCode
	Tier Tier
	Term string
}

// OK reports whether a code was assigned.
func (r Result) OK() bool { return r.Tier != TierNone }

// Classifier resolves domain codes from immutable tables.
type Classifier struct {
	idPattern    *regexp.Regexp
	nameKeywords []foldedRule
	contains     []foldedRule
	exact        []foldedRule
}

type foldedRule struct {
	code  domain.DomainCode
	terms []string
	raw   []string
}

// NewClassifier compiles t. It fails only on an invalid IDPattern.
func NewClassifier(t Tables) (*Classifier, error) {
	re, err := regexp.Compile(t.IDPattern)
	if err != nil {
		return nil, err
	}
	return &Classifier{
		idPattern:    re,
		nameKeywords: foldRules(t.NameKeywords),
		contains:     foldRules(t.DomainContains),
		exact:        foldRules(t.DomainExact),
	}, nil
}

// MustNewClassifier is NewClassifier for tables known to be valid.
func MustNewClassifier(t Tables) *Classifier {
	c, err := NewClassifier(t)
	if err != nil {
		panic(err)
	}
	return c
}

// Classify implements ports.DomainClassifier.
func (c *Classifier) Classify(cs domain.Case) (domain.DomainCode, bool) {
	r := c.ClassifyFields(cs.Domain, cs.DomainID, cs.DomainName)
	return r.Code, r.OK()
}

// ClassifyFields resolves a code from the raw domain, the explicit
// domain_id and the descriptive domain_name. An explicit canonical id
// always wins. The raw domain is consulted last and never matches when it
// is empty or domain.UnknownDomain.
func (c *Classifier) ClassifyFields(rawDomain, domainID, domainName string) Result {
	domainID = strings.TrimSpace(domainID)
	if code := domain.DomainCode(domainID); c.idPattern.MatchString(domainID) && code.Valid() {
		return Result{Code: code, Tier: TierDomainID, Term: domainID}
	}

	if name := fold(strings.TrimSpace(domainName)); name != "" {
		if code, term, ok := matchContains(c.nameKeywords, name); ok {
			return Result{Code: code, Tier: TierDomainName, Term: term}
		}
	}

	rawDomain = strings.TrimSpace(rawDomain)
	if rawDomain == "" || rawDomain == domain.UnknownDomain {
		return Result{}
	}
	raw := fold(rawDomain)
	if code, term, ok := matchContains(c.contains, raw); ok {
		return Result{Code: code, Tier: TierRawDomain, Term: term}
	}
	for _, r := range c.exact {
		for i, t := range r.terms {
			if t == raw {
				return Result{Code: r.code, Tier: TierRawDomain, Term: r.raw[i]}
			}
		}
	}
	return Result{}
}

func matchContains(rules []foldedRule, s string) (domain.DomainCode, string, bool) {
	for _, r := range rules {
		for i, t := range r.terms {
			if strings.Contains(s, t) {
				return r.code, r.raw[i], true
			}
		}
	}
	return "", "", false
}

func foldRules(rules []Rule) []foldedRule {
	out := make([]foldedRule, len(rules))
	for i, r := range rules {
		fr := foldedRule{code: r.Code, raw: append([]string(nil), r.Terms...)}
		for _, t := range r.Terms {
			fr.terms = append(fr.terms, fold(t))
		}
		out[i] = fr
	}
	return out
}

func fold(s string) string { return cases.Fold().String(s) }

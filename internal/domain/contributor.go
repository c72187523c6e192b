package domain

import "sort"

// Edge is one assignment row of the cross-validation roster: the validator
// reviews the dataset owned by the validatee.
type Edge struct {
	BigGroup       string
	ValidatorEmail string
	ValidateeEmail string
	ValidateeName  string
}

// Activity is the set of raw domains and case ids a contributor touched in
// one role.
type Activity struct {
	Domains map[string]struct{}
	CaseIDs []string
}

// Record adds one case. Cases without an id still contribute their domain.
func (a *Activity) Record(domain, caseID string) {
	if a.Domains == nil {
		a.Domains = make(map[string]struct{})
	}
	a.Domains[domain] = struct{}{}
	if caseID != "" {
		a.CaseIDs = append(a.CaseIDs, caseID)
	}
}

// KnownDomains returns the domains sorted, without UnknownDomain.
func (a Activity) KnownDomains() []string {
	out := make([]string, 0, len(a.Domains))
	for d := range a.Domains {
		if d != UnknownDomain {
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}

// Contributor is a canonical identity with the cases it generated and the
// cases it validated.
type Contributor struct {
	Name      string
	Generated Activity
	Validated Activity
}

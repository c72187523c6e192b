package application

import (
	"errors"
	"log/slog"
	"sort"

	"github.com/ahrav/go-crossval/infrastructure/combiner"
	"github.com/ahrav/go-crossval/infrastructure/dataset"
	"github.com/ahrav/go-crossval/infrastructure/domains"
	"github.com/ahrav/go-crossval/infrastructure/identity"
	"github.com/ahrav/go-crossval/infrastructure/report"
	"github.com/ahrav/go-crossval/internal/domain"
)

// Reporter builds the Markdown summaries over the validated datasets.
type Reporter struct {
	cfg        Config
	resolver   *identity.Resolver
	classifier *domains.Classifier
	combiner   *combiner.Combiner
	logger     *slog.Logger
}

// NewReporter returns a Reporter. A nil logger uses slog.Default.
func NewReporter(cfg Config, logger *slog.Logger) (*Reporter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	classifier, err := domains.NewClassifier(cfg.Domains)
	if err != nil {
		return nil, err
	}
	return &Reporter{
		cfg: cfg,
		resolver: identity.NewResolver(cfg.Identity.Aliases,
			identity.WithPolicy(cfg.Identity.Policy),
			identity.WithExcluded(cfg.Identity.Excluded),
			identity.WithLogger(logger),
		),
		classifier: classifier,
		combiner:   combiner.New(cfg.Combiner),
		logger:     logger,
	}, nil
}

// domainGroup gathers the cases of one domain.
type domainGroup struct {
	cases       []domain.Case
	ids         []string
	authors     map[string]struct{}
	validators  map[string]struct{}
	validators2 map[string]struct{}
}

func newDomainGroup() *domainGroup {
	return &domainGroup{
		authors:     map[string]struct{}{},
		validators:  map[string]struct{}{},
		validators2: map[string]struct{}{},
	}
}

func sortedSet(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// loadRound reads every list-shaped dataset file directly inside dir.
func (r *Reporter) loadRound(dir string) ([]domain.Case, error) {
	docs, err := dataset.NewScanner(r.logger, dataset.ShapeList).ScanDir(dir)
	if err != nil {
		return nil, err
	}
	return dataset.CollectCases(docs), nil
}

// group buckets cases by domain code. Cases the classifier cannot place
// are dropped.
func (r *Reporter) group(cases []domain.Case) map[string]*domainGroup {
	groups := map[string]*domainGroup{}
	dropped := 0
	for _, c := range cases {
		code, ok := r.classifier.Classify(c)
		if !ok {
			dropped++
			continue
		}
		g, ok := groups[string(code)]
		if !ok {
			g = newDomainGroup()
			groups[string(code)] = g
		}
		g.cases = append(g.cases, c)
		if c.ID != "" {
			g.ids = append(g.ids, c.ID)
		}
		if a, ok := r.resolver.Resolve(domain.Text(c.Raw["initial_author"])); ok {
			g.authors[a] = struct{}{}
		}
		if v, ok := r.resolver.Resolve(c.Validator); ok {
			g.validators[v] = struct{}{}
		}
		if c.Validator2 != "" {
			g.validators2[c.Validator2] = struct{}{}
		}
	}
	if dropped > 0 {
		r.logger.Info("cases without a domain code left out of domain reports", "cases", dropped)
	}
	return groups
}

func orderedKeys(groups map[string]*domainGroup) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	domain.SortDomainKeys(keys)
	return keys
}

// optionalTable reads an earlier stage's output. An unset or missing path
// yields nil so that the signal renders as N/A.
func optionalTable[T any](r *Reporter, what, path string, read func(string) (T, error)) T {
	var zero T
	if path == "" {
		return zero
	}
	t, err := read(path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.logger.Warn("input not found, signal will be N/A", "input", what, "path", path)
		} else {
			r.logger.Warn("input unreadable, signal will be N/A", "input", what, "path", path, "error", err)
		}
		return zero
	}
	return t
}

func (r *Reporter) round1Lookup() combiner.Lookup {
	p := r.cfg.Paths
	return combiner.Lookup{
		Grades:   optionalTable(r, "rule_grades", p.RuleGrades, combiner.ReadGradeTable),
		LLM:      optionalTable(r, "llm_grades", p.LLMGrades, combiner.ReadLLMTable),
		Resolver: r.resolver,
	}
}

func (r *Reporter) round1Scores(l combiner.Lookup, g *domainGroup) report.Scores {
	authors := sortedSet(g.authors)
	s := report.Scores{
		Rule:  l.RuleScore(authors),
		Other: l.ScoreFromOther(g.cases),
		LLM:   l.LLMScore(authors),
	}
	if f, ok := r.combiner.Combine(combiner.Round1, combiner.Signals{Rule: s.Rule, Peer: s.Other, LLM: s.LLM}); ok {
		s.Final = &f
	}
	return s
}

// DomainSummary renders the round-1 summary over Paths.Dataset.
func (r *Reporter) DomainSummary() (report.Table, error) {
	cases, err := r.loadRound(r.cfg.Paths.Dataset)
	if err != nil {
		return report.Table{}, err
	}
	groups := r.group(cases)
	lookup := r.round1Lookup()

	rows := make([]report.DomainRow, 0, len(groups))
	for _, key := range orderedKeys(groups) {
		g := groups[key]
		rows = append(rows, report.DomainRow{
			Key:        key,
			Cases:      len(g.cases),
			IDRange:    domain.IDRange(g.ids),
			Authors:    sortedSet(g.authors),
			Validators: sortedSet(g.validators),
			Scores:     r.round1Scores(lookup, g),
		})
	}
	return report.DomainSummary(rows), nil
}

// Comparison renders the round-1/round-2 table for the domains present in
// round 1. Round-2 signals come from Paths.Round2Dataset; the round-2 rule
// score is read only for domains that have round-2 cases.
func (r *Reporter) Comparison() (report.Table, error) {
	cases1, err := r.loadRound(r.cfg.Paths.Dataset)
	if err != nil {
		return report.Table{}, err
	}
	cases2, err := r.loadRound(r.cfg.Paths.Round2Dataset)
	if err != nil {
		return report.Table{}, err
	}
	groups1, groups2 := r.group(cases1), r.group(cases2)

	lookup1 := r.round1Lookup()
	p := r.cfg.Paths
	lookup2 := combiner.Lookup{
		Grades:   optionalTable(r, "round2_grades", p.Round2Grades, combiner.ReadGradeTable),
		Round2:   optionalTable(r, "round2_llm", p.Round2LLM, combiner.ReadDomainScores),
		Resolver: r.resolver,
	}

	var rows []report.ComparisonRow
	for _, code := range domain.DomainCodes {
		key := string(code)
		g1, ok := groups1[key]
		if !ok {
			continue
		}
		g2, ok := groups2[key]
		if !ok {
			g2 = newDomainGroup()
		}
		authors := sortedSet(g1.authors)

		round2 := report.Scores{LLM: lookup2.LLMRound2(key)}
		if len(g2.cases) > 0 {
			round2.Rule = lookup2.RuleScore(authors)
			round2.Other = lookup2.PeerRound2(g2.cases)
		}
		if f, ok := r.combiner.Combine(combiner.Round2, combiner.Signals{Rule: round2.Rule, Peer: round2.Other, LLM: round2.LLM}); ok {
			round2.Final = &f
		}

		rows = append(rows, report.ComparisonRow{
			Key:         key,
			Cases:       len(g1.cases),
			IDRange:     domain.IDRange(g1.ids),
			Authors:     authors,
			Validators:  sortedSet(g1.validators),
			Validators2: sortedSet(g2.validators2),
			Round1:      r.round1Scores(lookup1, g1),
			Round2:      round2,
		})
	}
	return report.Comparison(rows, r.cfg.Reports.DefaultSecondValidator), nil
}

// ContributorIndex collects, per canonical contributor, the cases authored
// and validated in the round-1 dataset plus the cases authored in the
// unvalidated per-group tree. Placeholder names are left out. Contributors
// are returned sorted by name.
func (r *Reporter) ContributorIndex() ([]domain.Contributor, error) {
	validated, err := r.loadRound(r.cfg.Paths.Dataset)
	if err != nil {
		return nil, err
	}
	var unvalidated []domain.Case
	if r.cfg.Paths.Unvalidated != "" {
		docs, err := dataset.NewScanner(r.logger, dataset.ShapeList, dataset.ShapeQuestions).ScanGroups(r.cfg.Paths.Unvalidated)
		if err != nil {
			r.logger.Warn("unvalidated dataset unreadable, generation counts cover validated cases only",
				"path", r.cfg.Paths.Unvalidated, "error", err)
		} else {
			unvalidated = dataset.CollectCases(docs)
		}
	}

	byName := map[string]*domain.Contributor{}
	get := func(name string) *domain.Contributor {
		c, ok := byName[name]
		if !ok {
			c = &domain.Contributor{Name: name}
			byName[name] = c
		}
		return c
	}
	for _, c := range validated {
		if a, ok := r.resolver.Resolve(domain.Text(c.Raw["initial_author"])); ok {
			get(a).Generated.Record(c.Domain, c.ID)
		}
		if v, ok := r.resolver.Resolve(c.Validator); ok {
			get(v).Validated.Record(c.Domain, c.ID)
		}
	}
	for _, c := range unvalidated {
		if a, ok := r.resolver.Resolve(c.InitialAuthor); ok {
			get(a).Generated.Record(c.Domain, c.ID)
		}
	}

	out := make([]domain.Contributor, 0, len(byName))
	for name, c := range byName {
		if r.resolver.IsPerson(name) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Contributors renders the contributor table.
func (r *Reporter) Contributors() (report.Table, error) {
	cs, err := r.ContributorIndex()
	if err != nil {
		return report.Table{}, err
	}
	return report.Contributors(cs), nil
}

// PearlSummary renders one row per domain code, D1 to D10, with its Pearl
// level counts over the round-1 dataset.
func (r *Reporter) PearlSummary() (report.Table, error) {
	cases, err := r.loadRound(r.cfg.Paths.Dataset)
	if err != nil {
		return report.Table{}, err
	}
	groups := r.group(cases)

	rows := make([]report.PearlRow, 0, len(domain.DomainCodes))
	for _, code := range domain.DomainCodes {
		row := report.PearlRow{Code: code, Counts: map[domain.PearlLevel]int{}}
		if g, ok := groups[string(code)]; ok {
			row.Total = len(g.cases)
			for _, c := range g.cases {
				if level, ok := c.Pearl(); ok {
					row.Counts[level]++
				}
			}
		}
		rows = append(rows, row)
	}
	return report.PearlTable(rows), nil
}

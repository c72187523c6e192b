// Package report renders grading results: Markdown pipe tables for the
// domain and contributor summaries and the grading CSV.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/ahrav/go-crossval/infrastructure/combiner"
	"github.com/ahrav/go-crossval/internal/domain"
)

// Table is a Markdown pipe table.
type Table struct {
	Header []string
	Rows   [][]string
}

// WriteMarkdown writes the header, a "|---|" separator and every row.
// Pipes inside cells are escaped.
func (t Table) WriteMarkdown(w io.Writer) error {
	if _, err := fmt.Fprintln(w, row(t.Header)); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "|"+strings.Repeat("---|", len(t.Header))); err != nil {
		return err
	}
	for _, r := range t.Rows {
		if _, err := fmt.Fprintln(w, row(r)); err != nil {
			return err
		}
	}
	return nil
}

// String renders the table.
func (t Table) String() string {
	var sb strings.Builder
	_ = t.WriteMarkdown(&sb)
	return sb.String()
}

func row(cells []string) string {
	escaped := make([]string, len(cells))
	for i, c := range cells {
		escaped[i] = strings.ReplaceAll(c, "|", `\|`)
	}
	return "| " + strings.Join(escaped, " | ") + " |"
}

// DomainDisplay renders "Markets & Finance (D3)" for canonical codes and the
// key itself otherwise.
func DomainDisplay(key string) string {
	if c := domain.DomainCode(key); c.Valid() {
		return c.DisplayName() + " (" + key + ")"
	}
	return key
}

// Truncate joins the first n names and appends "..." when more remain.
func Truncate(names []string, n int) string {
	if len(names) <= n {
		return strings.Join(names, ", ")
	}
	return strings.Join(names[:n], ", ") + "..."
}

// Scores are the per-round signals of one domain and their combination.
type Scores struct {
	Rule  *float64
	Other *float64
	LLM   *float64
	Final *float64
}

// DomainRow is one domain of the round-1 summary.
type DomainRow struct {
	Key        string
	Cases      int
	IDRange    string
	Authors    []string
	Validators []string
	Scores     Scores
}

// DomainSummary renders the round-1 domain summary. Authors and validators
// are truncated to three names.
func DomainSummary(rows []DomainRow) Table {
	t := Table{Header: []string{
		"Domain", "Total Case Numbers", "Case ID Range", "Initial Author", "Validator",
		"Rule-based Score", "Score from Other", "LLM Score", "Final Score",
	}}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{
			DomainDisplay(r.Key),
			fmt.Sprint(r.Cases),
			r.IDRange,
			Truncate(r.Authors, 3),
			Truncate(r.Validators, 3),
			combiner.Format(r.Scores.Rule),
			combiner.Format(r.Scores.Other),
			combiner.Format(r.Scores.LLM),
			combiner.Format(r.Scores.Final),
		})
	}
	return t
}

// ComparisonRow is one domain of the round-1/round-2 comparison.
type ComparisonRow struct {
	Key         string
	Cases       int
	IDRange     string
	Authors     []string
	Validators  []string
	Validators2 []string
	Round1      Scores
	Round2      Scores
}

// Comparison renders the two-round table. DefaultValidator2 fills the
// second-validator column when a domain has no round-2 validator recorded,
// and a missing round-2 LLM score renders as an empty cell.
func Comparison(rows []ComparisonRow, defaultValidator2 string) Table {
	const r1, r2 = " (human validation round=1)", " (human validation round=2)"
	t := Table{Header: []string{
		"Domain", "Total Case Numbers", "Case ID Range", "Initial Author", "First Validator",
		"Rule-based Score" + r1, "Score from Other" + r1, "LLM Score" + r1, "Final Score" + r1,
		"Second Validator",
		"Rule-based Score" + r2, "Score from Other" + r2, "LLM Score" + r2, "Final Score" + r2,
	}}
	for _, r := range rows {
		v2 := strings.Join(r.Validators2, ", ")
		if v2 == "" {
			v2 = defaultValidator2
		}
		llm2 := ""
		if r.Round2.LLM != nil {
			llm2 = combiner.Format(r.Round2.LLM)
		}
		t.Rows = append(t.Rows, []string{
			DomainDisplay(r.Key),
			fmt.Sprint(r.Cases),
			r.IDRange,
			Truncate(r.Authors, 2),
			Truncate(r.Validators, 2),
			combiner.Format(r.Round1.Rule),
			combiner.Format(r.Round1.Other),
			combiner.Format(r.Round1.LLM),
			combiner.Format(r.Round1.Final),
			v2,
			combiner.Format(r.Round2.Rule),
			combiner.Format(r.Round2.Other),
			llm2,
			combiner.Format(r.Round2.Final),
		})
	}
	return t
}

// Placeholder fills the contributor columns that are completed by hand.
const Placeholder = "[To be filled]"

// Contributors renders one row per contributor in the given order.
func Contributors(cs []domain.Contributor) Table {
	t := Table{Header: []string{
		"Name", "Major", "Level",
		"Generation Domains", "Generation Cases Number", "Generation Cases ID",
		"Validation Domains", "Validation Cases Number", "Validation Cases ID",
	}}
	for _, c := range cs {
		t.Rows = append(t.Rows, []string{
			c.Name, Placeholder, Placeholder,
			DomainList(c.Generated), fmt.Sprint(len(c.Generated.CaseIDs)), domain.IDRange(c.Generated.CaseIDs),
			DomainList(c.Validated), fmt.Sprint(len(c.Validated.CaseIDs)), domain.IDRange(c.Validated.CaseIDs),
		})
	}
	return t
}

// DomainList renders up to eight known domains. A contributor with only
// unknown domains shows "Various", one with none shows "-", and lists
// longer than 60 characters are cut to five names.
func DomainList(a domain.Activity) string {
	known := a.KnownDomains()
	if len(known) > 8 {
		known = known[:8]
	}
	switch {
	case len(known) == 0 && len(a.Domains) == 0:
		return "-"
	case len(known) == 0:
		return "Various"
	}
	s := strings.Join(known, ", ")
	if len(s) > 60 {
		n := min(5, len(known))
		s = strings.Join(known[:n], ", ") + "..."
	}
	return s
}

// PearlRow counts one domain's cases per Pearl level.
type PearlRow struct {
	Code   domain.DomainCode
	Counts map[domain.PearlLevel]int
	Total  int
}

// PearlTable renders the per-domain Pearl breakdown with a bold grand
// total row.
func PearlTable(rows []PearlRow) Table {
	t := Table{Header: []string{"#", "Domain", "Pearl Levels", "Cases"}}
	grand := map[domain.PearlLevel]int{}
	total := 0
	for i, r := range rows {
		for _, l := range domain.PearlLevels {
			grand[l] += r.Counts[l]
		}
		total += r.Total
		t.Rows = append(t.Rows, []string{
			fmt.Sprint(i + 1), r.Code.DisplayName(), pearlString(r.Counts), fmt.Sprint(r.Total),
		})
	}
	t.Rows = append(t.Rows, []string{
		"**Grand Total**", "", "**" + pearlString(grand) + "**", fmt.Sprintf("**%d**", total),
	})
	return t
}

func pearlString(c map[domain.PearlLevel]int) string {
	return fmt.Sprintf("L1: %d, L2: %d, L3: %d", c[domain.PearlL1], c[domain.PearlL2], c[domain.PearlL3])
}

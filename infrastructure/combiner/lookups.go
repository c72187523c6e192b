package combiner

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ahrav/go-crossval/internal/domain"
	"github.com/ahrav/go-crossval/internal/ports"
)

// GradeRow is the part of a grading CSV row the reports read back.
type GradeRow struct {
	FinalScore float64
	Validatees []string
	// ValidateeScore is nil when the column is blank.
	ValidateeScore *float64
}

// GradeTable indexes grading rows by trimmed contributor name.
type GradeTable map[string]GradeRow

// LLMTable indexes per-contributor LLM judge scores by trimmed name.
type LLMTable map[string]float64

// DomainScores maps a domain key to a pre-computed score.
type DomainScores map[string]float64

// ReadGradeTable loads a grading CSV. Unparseable numbers read as zero, as
// the grading run writes every column.
func ReadGradeTable(path string) (GradeTable, error) {
	rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	out := make(GradeTable, len(rows))
	for _, r := range rows {
		name := strings.TrimSpace(r["name"])
		row := GradeRow{FinalScore: parseFloat(r["final_score"])}
		for _, v := range strings.Split(r["validatees"], ",") {
			if v = strings.TrimSpace(v); v != "" {
				row.Validatees = append(row.Validatees, v)
			}
		}
		if s := strings.TrimSpace(r["validatee_score"]); s != "" {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				row.ValidateeScore = &f
			}
		}
		out[name] = row
	}
	return out, nil
}

var llmScorePattern = regexp.MustCompile(`^(\d+\.?\d*)/`)

// ParseLLMScore reads the numerator of an "X.XX/7.0" cell. Anything else
// reads as zero.
func ParseLLMScore(cell string) float64 {
	m := llmScorePattern.FindStringSubmatch(strings.TrimSpace(cell))
	if m == nil {
		return 0
	}
	f, _ := strconv.ParseFloat(m[1], 64)
	return f
}

// ReadLLMTable loads the LLM-judged CSV whose final_score column holds
// "X.XX/7.0" cells.
func ReadLLMTable(path string) (LLMTable, error) {
	rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	out := make(LLMTable, len(rows))
	for _, r := range rows {
		out[strings.TrimSpace(r["name"])] = ParseLLMScore(r["final_score"])
	}
	return out, nil
}

// ReadDomainScores loads a JSON object of domain key to score.
func ReadDomainScores(path string) (DomainScores, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("domain scores %s: %w", path, domain.ErrNotFound)
		}
		return nil, err
	}
	var out DomainScores
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, domain.NewParseError(path, "domain_scores", err)
	}
	return out, nil
}

// Lookup computes per-domain signals from the tables read back from earlier
// pipeline stages. Nil tables behave as empty. Table rows are keyed by the
// name as recorded, so rows and queried names both go through Resolver
// before they are compared.
type Lookup struct {
	Grades   GradeTable
	LLM      LLMTable
	Round2   DomainScores
	Resolver ports.NameResolver
}

// RuleScore is the mean final score of the authors present in Grades.
func (l Lookup) RuleScore(authors []string) *float64 {
	var xs []float64
	for _, a := range authors {
		if row, ok := l.grade(a); ok {
			xs = append(xs, row.FinalScore)
		}
	}
	return MeanPtr(xs)
}

// LLMScore is the mean LLM score of the authors present in LLM.
func (l Lookup) LLMScore(authors []string) *float64 {
	var xs []float64
	for _, a := range authors {
		if v, ok := l.llm(a); ok {
			xs = append(xs, v)
		}
	}
	return MeanPtr(xs)
}

// ScoreFromOther averages, over cases, the validatee score of the case's
// validator when the case author is among that validator's validatees.
// Membership is exact or a substring in either direction.
func (l Lookup) ScoreFromOther(cases []domain.Case) *float64 {
	var xs []float64
	for _, c := range cases {
		author := l.resolve(c.InitialAuthor)
		if author == "" {
			continue
		}
		row, ok := l.grade(c.Validator)
		if !ok || row.ValidateeScore == nil {
			continue
		}
		if l.validated(author, row.Validatees) {
			xs = append(xs, *row.ValidateeScore)
		}
	}
	return MeanPtr(xs)
}

// PeerRound2 is the mean of final_score_2 / 10 over cases that carry one.
func (l Lookup) PeerRound2(cases []domain.Case) *float64 {
	var xs []float64
	for _, c := range cases {
		if c.FinalScore2 != nil {
			xs = append(xs, *c.FinalScore2/10)
		}
	}
	return MeanPtr(xs)
}

// LLMRound2 returns the pre-computed round-2 LLM score of key.
func (l Lookup) LLMRound2(key string) *float64 {
	v, ok := l.Round2[key]
	if !ok {
		return nil
	}
	return &v
}

func (l Lookup) resolve(name string) string {
	if l.Resolver == nil {
		return strings.TrimSpace(name)
	}
	canonical, _ := l.Resolver.Resolve(name)
	return canonical
}

// grade finds the row whose recorded name resolves to the same identity as
// name.
func (l Lookup) grade(name string) (GradeRow, bool) {
	key, ok := matchKey(l, name, keysOf(l.Grades))
	if !ok {
		return GradeRow{}, false
	}
	return l.Grades[key], true
}

func (l Lookup) llm(name string) (float64, bool) {
	key, ok := matchKey(l, name, keysOf(l.LLM))
	if !ok {
		return 0, false
	}
	return l.LLM[key], true
}

// matchKey returns the table key for name. A verbatim key wins; otherwise
// the first key in sorted order with the same canonical identity.
func matchKey(l Lookup, name string, keys []string) (string, bool) {
	want := l.resolve(name)
	if want == "" {
		return "", false
	}
	trimmed := strings.TrimSpace(name)
	for _, k := range keys {
		if k == trimmed {
			return k, true
		}
	}
	for _, k := range keys {
		if l.resolve(k) == want {
			return k, true
		}
	}
	return "", false
}

func keysOf[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// validated reports whether author is among validatees. Entries are
// resolved first; membership is then exact or a substring either way.
func (l Lookup) validated(author string, validatees []string) bool {
	for _, raw := range validatees {
		v := l.resolve(raw)
		if v == "" {
			continue
		}
		if author == v || strings.Contains(author, v) || strings.Contains(v, author) {
			return true
		}
	}
	return false
}

func readCSV(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("csv %s: %w", path, domain.ErrNotFound)
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, domain.NewParseError(path, "csv", err)
	}
	var rows []map[string]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, domain.NewParseError(path, "csv", err)
		}
		row := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

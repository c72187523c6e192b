package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-crossval/internal/domain"
)

func ptr(f float64) *float64 { return &f }

func TestTable_WriteMarkdown(t *testing.T) {
	tbl := Table{Header: []string{"A", "B"}, Rows: [][]string{{"1", "x|y"}}}
	want := "| A | B |\n|---|---|\n| 1 | x\\|y |\n"
	assert.Equal(t, want, tbl.String())
}

func TestDomainSummary(t *testing.T) {
	tbl := DomainSummary([]DomainRow{{
		Key:        "D3",
		Cases:      12,
		IDRange:    "T3-001-T3-012",
		Authors:    []string{"Ann", "Bob", "Cy", "Di"},
		Validators: []string{"Eve"},
		Scores:     Scores{Rule: ptr(8.5), Other: ptr(0.9), Final: ptr(7.25)},
	}})

	require.Len(t, tbl.Rows, 1)
	assert.Len(t, tbl.Header, 9)
	assert.Equal(t, []string{
		"Markets & Finance (D3)", "12", "T3-001-T3-012", "Ann, Bob, Cy...", "Eve",
		"8.50", "0.90", "N/A", "7.25",
	}, tbl.Rows[0])
}

func TestDomainDisplay(t *testing.T) {
	assert.Equal(t, "Daily Life (D1)", DomainDisplay("D1"))
	assert.Equal(t, "Unknown", DomainDisplay("Unknown"))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		n     int
		want  string
	}{
		{name: "empty", want: ""},
		{name: "fits", names: []string{"a", "b"}, n: 2, want: "a, b"},
		{name: "cut", names: []string{"a", "b", "c"}, n: 2, want: "a, b..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truncate(tt.names, tt.n))
		})
	}
}

func TestComparison(t *testing.T) {
	rows := []ComparisonRow{
		{
			Key: "D1", Cases: 3, IDRange: "1-3",
			Authors:    []string{"Ann", "Bob", "Cy"},
			Validators: []string{"Eve"},
			Round1:     Scores{Rule: ptr(9), Other: ptr(0.8), LLM: ptr(5), Final: ptr(7)},
			Round2:     Scores{Rule: ptr(9), Other: ptr(0.9), Final: ptr(8)},
		},
		{
			Key: "D2", Cases: 1, IDRange: "4",
			Validators2: []string{"Zed"},
			Round2:      Scores{LLM: ptr(6)},
		},
	}
	tbl := Comparison(rows, "Longling Geng")

	require.Len(t, tbl.Header, 14)
	assert.Equal(t, "Final Score (human validation round=2)", tbl.Header[13])

	first := tbl.Rows[0]
	assert.Equal(t, "Ann, Bob...", first[3])
	assert.Equal(t, "Longling Geng", first[9])
	assert.Equal(t, "", first[12])
	assert.Equal(t, "8.00", first[13])

	second := tbl.Rows[1]
	assert.Equal(t, "Zed", second[9])
	assert.Equal(t, "N/A", second[10])
	assert.Equal(t, "6.00", second[12])
}

func activity(domains []string, ids ...string) domain.Activity {
	var a domain.Activity
	for _, d := range domains {
		a.Record(d, "")
	}
	a.CaseIDs = ids
	return a
}

func TestDomainList(t *testing.T) {
	long := []string{
		"Alpha Domain", "Beta Domain", "Gamma Domain", "Delta Domain",
		"Epsilon Domain", "Zeta Domain", "Eta Domain",
	}
	tests := []struct {
		name string
		a    domain.Activity
		want string
	}{
		{name: "none", a: domain.Activity{}, want: "-"},
		{name: "only unknown", a: activity([]string{domain.UnknownDomain}), want: "Various"},
		{name: "sorted known", a: activity([]string{"D2", domain.UnknownDomain, "D1"}), want: "D1, D2"},
		{name: "too long", a: activity(long), want: "Alpha Domain, Beta Domain, Delta Domain, Epsilon Domain, Eta Domain..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DomainList(tt.a))
		})
	}
}

func TestContributors(t *testing.T) {
	tbl := Contributors([]domain.Contributor{{
		Name:      "Ann",
		Generated: activity([]string{"D1"}, "T1-002", "T1-001"),
	}})
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, []string{
		"Ann", Placeholder, Placeholder,
		"D1", "2", "T1-001-T1-002",
		"-", "0", "N/A",
	}, tbl.Rows[0])
}

func TestPearlTable(t *testing.T) {
	tbl := PearlTable([]PearlRow{
		{Code: domain.D1, Counts: map[domain.PearlLevel]int{domain.PearlL1: 2, domain.PearlL2: 5}, Total: 7},
		{Code: domain.D4, Counts: map[domain.PearlLevel]int{domain.PearlL3: 3}, Total: 3},
	})
	require.Len(t, tbl.Rows, 3)
	assert.Equal(t, []string{"1", "Daily Life", "L1: 2, L2: 5, L3: 0", "7"}, tbl.Rows[0])
	assert.Equal(t, []string{"2", "Medicine & Health", "L1: 0, L2: 0, L3: 3", "3"}, tbl.Rows[1])
	assert.Equal(t, []string{"**Grand Total**", "", "**L1: 2, L2: 5, L3: 3**", "**10**"}, tbl.Rows[2])
}

func TestWriteGrades(t *testing.T) {
	g := domain.NewGrade(domain.Submission{
		ID:         "123",
		Submitters: []domain.Submitter{{Name: "Ann", Email: "ann@x.edu", SID: "9"}},
	})
	g.Completeness = 1
	g.Fields = 1
	g.ScoreFromValidators = 0.75
	g.ValidateeScore = 0.8
	g.SetValidatees([]string{"Bob", "Ann"})
	g.Note("Dataset cases: %d (target: %d)", 170, 170)
	g.Note("Schema file not found")

	var buf bytes.Buffer
	require.NoError(t, WriteGrades(&buf, []*domain.Grade{g}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(GradeColumns, ","), lines[0])
	assert.Equal(t,
		`123,Ann,9,ann@x.edu,1.0,1.0,0.0,0.0,0.0,0.0,0.0,0.75,0.0,2.75,"Ann, Bob",0.8,Dataset cases: 170 (target: 170); Schema file not found`,
		lines[1])
}

func TestWriteGradesFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out", "grades.csv")
	require.NoError(t, WriteGradesFile(p, nil))
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(GradeColumns, ",")+"\n", string(b))
}

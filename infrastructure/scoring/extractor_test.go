package scoring

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/ahrav/go-crossval/internal/domain"
	"github.com/ahrav/go-crossval/internal/ports"
)

func TestExtractBytes(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		average    float64
		count      int
		convention string
	}{
		{
			name:       "case id keyed mapping",
			body:       `{"c1":{"total_score":8.5},"c2":{"score":9.0}}`,
			average:    8.75,
			count:      2,
			convention: ConventionCaseIDMap,
		},
		{
			name:       "flat list of totals",
			body:       `[{"case_id":"a","total":7},{"case_id":"b","total":9}]`,
			average:    8,
			count:      2,
			convention: "total",
		},
		{
			name:       "final score preferred over total",
			body:       `[{"final_score":6,"total":10}]`,
			average:    6,
			count:      1,
			convention: "final_score",
		},
		{
			name:       "zero is a valid score",
			body:       `[{"total":0},{"total":10}]`,
			average:    5,
			count:      2,
			convention: "total",
		},
		{
			name:       "nested scores total",
			body:       `[{"scores":{"total":7.5,"clarity":2}}]`,
			average:    7.5,
			count:      1,
			convention: "scores.total",
		},
		{
			name:       "nested scores summed",
			body:       `[{"scores":{"clarity":2,"rigor":3.5,"note":"ok"}}]`,
			average:    5.5,
			count:      1,
			convention: "scores (sum)",
		},
		{
			name:       "zero sum is kept ahead of score",
			body:       `[{"scores":{"clarity":0},"score":4}]`,
			average:    0,
			count:      1,
			convention: "scores (sum)",
		},
		{
			name:       "zero sum counts toward the mean",
			body:       `[{"scores":{"c1":0,"c2":0}},{"total":10}]`,
			average:    5,
			count:      2,
			convention: "scores (sum)",
		},
		{
			name:       "rubric score",
			body:       `[{"rubricScore":{"totalScore":9}},{"score_breakdown":{"total":7}}]`,
			average:    8,
			count:      2,
			convention: "rubricScore.totalScore",
		},
		{
			name:       "records without a value are excluded",
			body:       `[{"total":"high"},{"total":6},"junk",{"decision":"accept"}]`,
			average:    6,
			count:      1,
			convention: "total",
		},
		{
			name:       "reported average",
			body:       `{"average_score":7.2,"cases":[{"total":1}]}`,
			average:    7.2,
			count:      1,
			convention: "average_score",
		},
		{
			name:       "cases container",
			body:       `{"meta":{"n":2},"cases":[{"final_score":8},{"total":6}]}`,
			average:    7,
			count:      2,
			convention: "cases",
		},
		{
			name:       "case scores with nested totals",
			body:       `{"case_scores":[{"scores":{"total_score":9}},{"score":7}]}`,
			average:    8,
			count:      2,
			convention: "case_scores",
		},
		{
			name:       "scores array",
			body:       `{"scores":[{"total_score":8},{"total_score":10}]}`,
			average:    9,
			count:      2,
			convention: "scores (array)",
		},
		{
			name:       "detailed scores",
			body:       `{"detailed_scores":[{"score":3}]}`,
			average:    3,
			count:      1,
			convention: "detailed_scores",
		},
		{
			name: "first present container decides",
			body: `{"cases":"see attachment","results":[{"total":9}]}`,
		},
		{
			name: "unknown mapping",
			body: `{"summary":"fine"}`,
		},
		{
			name: "empty list",
			body: `[]`,
		},
	}

	e := NewExtractor(DefaultConventions(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.ExtractBytes([]byte(tt.body))
			require.NoError(t, err)
			assert.InDelta(t, tt.average, got.Average, 1e-9)
			assert.Equal(t, tt.count, got.Count)
			assert.Equal(t, tt.convention, got.Convention)
		})
	}
}

func TestExtractBytes_Errors(t *testing.T) {
	e := NewExtractor(DefaultConventions(), nil)

	_, err := e.ExtractBytes([]byte(`{"total":`))
	assert.ErrorIs(t, err, ErrInvalidJSON)

	_, err = e.ExtractBytes([]byte(`8.5`))
	assert.ErrorIs(t, err, domain.ErrUnsupportedShape)
}

func TestExtract_File(t *testing.T) {
	e := NewExtractor(DefaultConventions(), nil)
	dir := t.TempDir()

	path := filepath.Join(dir, "score.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"total":8},{"total":9}]`), 0o644))
	got, err := e.Extract(path)
	require.NoError(t, err)
	assert.InDelta(t, 8.5, got.Average, 1e-9)

	got, err = e.Extract(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	var perr *domain.ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "score", perr.Kind)
	assert.Zero(t, got.Average)
}

func TestRecordValue_CustomRules(t *testing.T) {
	e := NewExtractor(Conventions{Records: []RecordRule{{Name: "grade", Path: "eval.grade"}}}, nil)

	v, name, ok := e.RecordValue(gjson.Parse(`{"eval":{"grade":4},"total":9}`))
	require.True(t, ok)
	assert.Equal(t, 4.0, v)
	assert.Equal(t, "grade", name)

	_, _, ok = e.RecordValue(gjson.Parse(`{"total":9}`))
	assert.False(t, ok)
}

func TestDescribe(t *testing.T) {
	e := NewExtractor(DefaultConventions(), nil)
	tests := []struct {
		name string
		in   ports.ScoreExtraction
		want string
	}{
		{name: "none", in: ports.ScoreExtraction{}, want: ""},
		{name: "scalar", in: ports.ScoreExtraction{Average: 7, Count: 1, Convention: "average_score"}, want: "average_score"},
		{name: "records", in: ports.ScoreExtraction{Average: 7, Count: 3, Convention: "total"}, want: "total, 3 entries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Describe(tt.in))
		})
	}
}

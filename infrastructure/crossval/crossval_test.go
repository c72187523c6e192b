package crossval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-crossval/infrastructure/locator"
	"github.com/ahrav/go-crossval/infrastructure/scoring"
	"github.com/ahrav/go-crossval/internal/domain"
)

const rosterHeader = "Big Group,Validator Email,Validated Email,Validated Name\n"

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func newTestAggregator(opts ...Option) *Aggregator {
	return NewAggregator(
		locator.New(locator.DefaultConfig(), nil),
		scoring.NewExtractor(scoring.DefaultConventions(), nil),
		opts...,
	)
}

func TestDecodeRoster(t *testing.T) {
	body := "\ufeff" + rosterHeader +
		"G1,a@x.edu,b@x.edu,Bea\n" +
		"TOTAL,,,\n" +
		"G2,,c@x.edu,Cy\n" +
		"G2, d@x.edu ,e@x.edu,\n"

	edges, dropped, err := DecodeRoster(strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, []domain.Edge{
		{BigGroup: "G1", ValidatorEmail: "a@x.edu", ValidateeEmail: "b@x.edu", ValidateeName: "Bea"},
		{BigGroup: "G2", ValidatorEmail: "d@x.edu", ValidateeEmail: "e@x.edu"},
	}, edges)
	require.Len(t, dropped, 1)
	assert.Equal(t, 4, dropped[0].Line)
}

func TestReadRoster_Missing(t *testing.T) {
	_, _, err := ReadRoster(filepath.Join(t.TempDir(), "absent.csv"))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestAggregate_SingleEdge(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "sub_a", "score.json"), `[{"case_id":"1","total":8.0,"decision":"accept"}]`)

	edges := []domain.Edge{{ValidatorEmail: "a@x.edu", ValidateeEmail: "b@x.edu", ValidateeName: "Bea"}}
	index := Index{"a@x.edu": filepath.Join(root, "sub_a")}

	res, err := newTestAggregator().Aggregate(context.Background(), edges, index)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, res.Received["b@x.edu"], 1e-9)
	assert.InDelta(t, 0.8, res.Given["a@x.edu"], 1e-9)
	assert.Equal(t, []string{"Bea"}, res.ValidateesByValidator["a@x.edu"])
}

func TestAggregate_MeansAcrossValidators(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "score.json"), `[{"total":8},{"total":6}]`)
	writeFile(t, filepath.Join(root, "c", "my_scores.json"), `{"c1":{"total_score":9},"c2":{"total_score":9}}`)

	edges := []domain.Edge{
		{ValidatorEmail: "a@x.edu", ValidateeEmail: "b@x.edu", ValidateeName: "Bea"},
		{ValidatorEmail: "c@x.edu", ValidateeEmail: "b@x.edu", ValidateeName: "Bea"},
		{ValidatorEmail: "a@x.edu", ValidateeEmail: "d@x.edu", ValidateeName: "Dee"},
		{ValidatorEmail: "z@x.edu", ValidateeEmail: "d@x.edu", ValidateeName: "Dee"},
	}
	index := Index{
		"a@x.edu": filepath.Join(root, "a"),
		"c@x.edu": filepath.Join(root, "c"),
	}

	metrics := &countingMetrics{}
	res, err := newTestAggregator(WithMetrics(metrics)).Aggregate(context.Background(), edges, index)
	require.NoError(t, err)

	assert.InDelta(t, 0.8, res.Received["b@x.edu"], 1e-9)
	assert.InDelta(t, 0.7, res.Received["d@x.edu"], 1e-9)
	assert.InDelta(t, 0.7, res.Given["a@x.edu"], 1e-9)
	assert.InDelta(t, 0.9, res.Given["c@x.edu"], 1e-9)
	assert.NotContains(t, res.Given, "z@x.edu")
	assert.Equal(t, []string{"Dee"}, res.ValidateesByValidator["z@x.edu"])
	assert.Equal(t, []string{"Bea", "Dee"}, res.ValidateesByValidator["a@x.edu"])
	// Score files are read once per validator.
	assert.Equal(t, 2, metrics.counts["ok"])
}

func TestAggregate_ValidatorWithoutScoreFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "dataset.json"), `[]`)

	edges := []domain.Edge{{ValidatorEmail: "a@x.edu", ValidateeEmail: "b@x.edu", ValidateeName: "Bea"}}
	res, err := newTestAggregator().Aggregate(context.Background(), edges, Index{"a@x.edu": filepath.Join(root, "a")})
	require.NoError(t, err)
	assert.Empty(t, res.Received)
	assert.Empty(t, res.Given)
	assert.Equal(t, []string{"Bea"}, res.ValidateesByValidator["a@x.edu"])
}

func TestAggregateFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "score.json"), `[{"total":5}]`)
	roster := filepath.Join(root, "roster.csv")
	writeFile(t, roster, rosterHeader+"G,a@x.edu,b@x.edu,Bea\nTOTAL,a@x.edu,b@x.edu,Bea\n")

	res, err := newTestAggregator().AggregateFile(context.Background(), roster, Index{"a@x.edu": filepath.Join(root, "a")})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.Received["b@x.edu"], 1e-9)
	assert.Equal(t, []string{"Bea"}, res.ValidateesByValidator["a@x.edu"])

	res, err = newTestAggregator().AggregateFile(context.Background(), filepath.Join(root, "none.csv"), nil)
	require.NoError(t, err)
	assert.NotNil(t, res.Received)
	assert.Empty(t, res.Received)
	assert.Empty(t, res.ValidateesByValidator)
}

func TestAggregate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestAggregator().Aggregate(ctx, []domain.Edge{{ValidatorEmail: "a"}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

type countingMetrics struct {
	counts map[string]int
}

func (m *countingMetrics) RecordLatency(string, time.Duration, map[string]string) {}
func (m *countingMetrics) RecordGauge(string, float64, map[string]string)         {}
func (m *countingMetrics) RecordHistogram(string, float64, map[string]string)     {}
func (m *countingMetrics) RecordCounter(_ string, v float64, labels map[string]string) {
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[labels["outcome"]] += int(v)
}

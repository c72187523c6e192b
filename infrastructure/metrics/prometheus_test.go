package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counter(t *testing.T) {
	c := NewCollector(nil)
	c.RecordCounter("submissions_graded_total", 1, map[string]string{"status": "graded"})
	c.RecordCounter("submissions_graded_total", 2, map[string]string{"status": "graded"})
	c.RecordCounter("submissions_graded_total", 1, map[string]string{"status": "missing_dataset"})
	// Mismatched label set is dropped.
	c.RecordCounter("submissions_graded_total", 1, map[string]string{"other": "x"})

	n, err := testutil.GatherAndCount(c.Registry(), "crossval_submissions_graded_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.counters["submissions_graded_total"].WithLabelValues("graded")))
}

func TestCollector_GaugeAndHistogram(t *testing.T) {
	c := NewCollector(nil)
	c.RecordGauge("last_run_submissions", 5, nil)
	c.RecordGauge("last_run_submissions", 7, nil)
	c.RecordLatency("grade_submission", 150*time.Millisecond, map[string]string{"status": "graded"})
	c.RecordHistogram("dataset_cases", 170, nil)

	assert.Equal(t, 7.0, testutil.ToFloat64(c.gauges["last_run_submissions"].WithLabelValues()))

	n, err := testutil.GatherAndCount(c.Registry(),
		"crossval_grade_submission_duration_seconds", "crossval_dataset_cases")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCollector_SeparateRegistries(t *testing.T) {
	a, b := NewCollector(nil), NewCollector(nil)
	a.RecordCounter("x_total", 1, nil)
	b.RecordCounter("x_total", 1, nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.counters["x_total"].WithLabelValues()))
}

func TestCollector_WriteTextfile(t *testing.T) {
	c := NewCollector(nil)
	c.RecordCounter("score_files_total", 4, map[string]string{"outcome": "ok"})

	p := filepath.Join(t.TempDir(), "run.prom")
	require.NoError(t, c.WriteTextfile(p))
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Contains(t, string(b), `crossval_score_files_total{outcome="ok"} 4`)

	assert.Error(t, c.WriteTextfile(filepath.Join(t.TempDir(), "missing", "run.prom")))
}

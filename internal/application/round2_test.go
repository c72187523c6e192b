package application

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-crossval/internal/domain"
	"github.com/ahrav/go-crossval/internal/testutils"
)

func TestCreateRound2(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root)
	cfg.Paths.Dataset = filepath.Join(root, "round1")
	cfg.Paths.Round2Dataset = filepath.Join(root, "round2")

	low := testutils.NewCase("D1-001", "L1", "YES")
	low["final_score"] = 7.0
	high := testutils.NewCase("D1-002", "L2", "NO")
	high["final_score"] = 9.5
	testutils.WriteJSON(t, filepath.Join(cfg.Paths.Dataset, "d1.json"), []map[string]any{low, high})
	testutils.WriteFile(t, filepath.Join(cfg.Paths.Dataset, "broken.json"), "{")
	testutils.WriteFile(t, filepath.Join(cfg.Paths.Dataset, "README.md"), "# Round 1\n")

	metrics := &recordingMetrics{}
	sum, err := CreateRound2(context.Background(), cfg, metrics, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Files)
	assert.Equal(t, 2, sum.Cases)
	assert.Equal(t, 1, sum.Revised)
	assert.Equal(t, []string{"broken.json"}, sum.Skipped)
	assert.Equal(t, 1.0, metrics.counters["round2_cases_total/revised"])
	assert.Equal(t, 1.0, metrics.counters["round2_cases_total/unchanged"])
	assert.Equal(t, 1.0, metrics.counters["round2_files_skipped_total/"])

	b, err := os.ReadFile(filepath.Join(cfg.Paths.Round2Dataset, "d1.json"))
	require.NoError(t, err)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	require.Len(t, out, 2)
	assert.Equal(t, "Longling Geng", out[0]["validator_2"])
	assert.Equal(t, 7.75, out[0]["final_score_2"])
	assert.Equal(t, 9.5, out[1]["final_score_2"])

	assert.FileExists(t, filepath.Join(cfg.Paths.Round2Dataset, "README.md"))
}

func TestCreateRound2_MissingInput(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root)
	cfg.Paths.Dataset = filepath.Join(root, "absent")
	cfg.Paths.Round2Dataset = filepath.Join(root, "round2")

	_, err := CreateRound2(context.Background(), cfg, nil, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

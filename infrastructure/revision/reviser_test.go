package revision

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-crossval/internal/domain"
)

func TestScore2(t *testing.T) {
	r := New(DefaultPolicy(), nil)

	tests := []struct {
		in      float64
		want    float64
		revised bool
	}{
		{in: 0, want: 0.75, revised: true},
		{in: 8.1, want: 8.85, revised: true},
		{in: 8.99, want: 9.74, revised: true},
		{in: 9, want: 9, revised: false},
		{in: 9.5, want: 9.5, revised: false},
		{in: 9.876, want: 9.88, revised: false},
	}
	for _, tt := range tests {
		got, revised := r.Score2(tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, "score %v", tt.in)
		assert.Equal(t, tt.revised, revised, "score %v", tt.in)
	}

	capped := New(Policy{Validator: "v", Threshold: 9, Bump: 2, Cap: 9.5}, nil)
	got, _ := capped.Score2(8)
	assert.InDelta(t, 9.5, got, 1e-9)
}

func TestRevise(t *testing.T) {
	in := `[
  {"id": "1", "final_score": 7, "gold_rationale": "Short.", "key_insight": "", "scenario": "a <b> & c"},
  {"id": "2", "final_score": "9.5", "gold_rationale": "Short."},
  {"id": "3", "validator_2": "someone", "wise_refusal": "No."},
  "not a case"
]`
	r := New(DefaultPolicy(), nil)
	out, res, err := r.Revise([]byte(in))
	require.NoError(t, err)
	assert.Equal(t, FileResult{Cases: 3, Revised: 2}, res)

	var cases []map[string]any
	require.NoError(t, json.Unmarshal(out, &cases))
	require.Len(t, cases, 3)

	first := cases[0]
	assert.Equal(t, "Longling Geng", first[FieldValidator2])
	assert.Equal(t, 7.75, first[FieldFinalScore2])
	assert.True(t, strings.HasPrefix(first["gold_rationale"].(string), "Short. This case demonstrates"))
	assert.Equal(t, "", first["key_insight"])
	assert.Equal(t, "a <b> & c", first["scenario"])

	second := cases[1]
	assert.Equal(t, 9.5, second[FieldFinalScore2])
	assert.Equal(t, "Short.", second["gold_rationale"])

	third := cases[2]
	assert.Equal(t, "Longling Geng", third[FieldValidator2])
	assert.Equal(t, 0.75, third[FieldFinalScore2])
	assert.Contains(t, third["wise_refusal"], "cannot be reliably evaluated")

	// Key order is preserved and new keys are appended.
	text := string(out)
	assert.Less(t, strings.Index(text, `"scenario"`), strings.Index(text, `"validator_2"`))
	assert.Less(t, strings.Index(text, `"validator_2"`), strings.Index(text, `"final_score_2"`))
	assert.Contains(t, text, "a <b> & c")
	assert.Less(t, strings.Index(text, `"id": "3"`), strings.Index(text, `"validator_2": "Longling Geng",`+"\n"+`    "wise_refusal"`))
}

func TestRevise_Wrappers(t *testing.T) {
	r := New(DefaultPolicy(), nil)
	for _, body := range []string{
		`{"questions": [{"id": "q1", "final_score": 10}]}`,
		`{"cases": [{"id": "q1", "final_score": 10}]}`,
	} {
		out, res, err := r.Revise([]byte(body))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Cases)
		assert.True(t, strings.HasPrefix(string(out), "["))
	}

	_, _, err := r.Revise([]byte(`{"items": []}`))
	assert.ErrorIs(t, err, domain.ErrUnsupportedShape)
	_, _, err = r.Revise([]byte(`[`))
	assert.Error(t, err)
}

func TestReviseDir(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "round2")
	require.NoError(t, os.WriteFile(filepath.Join(in, "a.json"), []byte(`[{"final_score": 5}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(in, "b.json"), []byte(`{"oops": 1}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(in, "README.md"), []byte("# round 1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(in, "notes.txt"), []byte("x"), 0o644))

	sum, err := New(DefaultPolicy(), nil).ReviseDir(in, out)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Files)
	assert.Equal(t, 1, sum.Cases)
	assert.Equal(t, 1, sum.Revised)
	assert.Equal(t, []string{"b.json"}, sum.Skipped)

	assert.FileExists(t, filepath.Join(out, "a.json"))
	assert.FileExists(t, filepath.Join(out, "README.md"))
	assert.NoFileExists(t, filepath.Join(out, "b.json"))
	assert.NoFileExists(t, filepath.Join(out, "notes.txt"))

	_, err = New(DefaultPolicy(), nil).ReviseDir(filepath.Join(in, "missing"), out)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

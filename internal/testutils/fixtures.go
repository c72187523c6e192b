package testutils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// RequiredFields lists every field the default rubric expects on a case.
var RequiredFields = []string{
	"id", "case_id", "bucket", "pearl_level", "domain", "scenario", "claim",
	"label", "is_ambiguous", "variables", "trap", "difficulty",
	"causal_structure", "key_insight", "hidden_timestamp",
	"conditional_answers", "wise_refusal", "gold_rationale",
	"initial_author", "validator", "final_score",
}

// levelPlan is the label sequence for one Pearl level of a 170-case set.
type levelPlan struct {
	level  string
	labels map[string]int
}

// targetPlan meets every default Pearl and label target exactly.
var targetPlan = []levelPlan{
	{level: "L1", labels: map[string]int{"YES": 7, "NO": 8, "AMBIGUOUS": 2}},
	{level: "L2", labels: map[string]int{"NO": 102}},
	{level: "L3", labels: map[string]int{"VALID": 17, "INVALID": 17, "CONDITIONAL": 17}},
}

// CaseOption edits a generated case.
type CaseOption func(i int, c map[string]any)

// WithAuthor sets initial_author on every case.
func WithAuthor(name string) CaseOption {
	return func(_ int, c map[string]any) { c["initial_author"] = name }
}

// WithValidator sets validator on every case.
func WithValidator(name string) CaseOption {
	return func(_ int, c map[string]any) { c["validator"] = name }
}

// WithDomain sets domain on every case.
func WithDomain(d string) CaseOption {
	return func(_ int, c map[string]any) { c["domain"] = d }
}

// TargetCases returns 170 cases that pass the completeness, field, Pearl
// and label checks of the default rubric. Ids run from prefix-001.
func TargetCases(prefix string, opts ...CaseOption) []map[string]any {
	var out []map[string]any
	for _, plan := range targetPlan {
		for _, label := range []string{"YES", "NO", "AMBIGUOUS", "VALID", "INVALID", "CONDITIONAL"} {
			for n := 0; n < plan.labels[label]; n++ {
				out = append(out, NewCase(fmt.Sprintf("%s-%03d", prefix, len(out)+1), plan.level, label))
			}
		}
	}
	for i, c := range out {
		for _, opt := range opts {
			opt(i, c)
		}
	}
	return out
}

// NewCase returns a case carrying every required field.
func NewCase(id, level, label string) map[string]any {
	c := make(map[string]any, len(RequiredFields))
	for _, f := range RequiredFields {
		c[f] = ""
	}
	c["id"] = id
	c["case_id"] = id
	c["pearl_level"] = level
	c["label"] = label
	c["domain"] = "Daily Life"
	c["scenario"] = "A scenario for " + id
	c["is_ambiguous"] = false
	c["variables"] = map[string]any{"X": "exposure", "Y": "outcome"}
	c["final_score"] = 8.0
	return c
}

// WriteJSON marshals v to path, creating parent directories.
func WriteJSON(t testing.TB, path string, v any) string {
	t.Helper()
	b, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)
	return WriteFile(t, path, string(b))
}

// WriteFile writes body to path, creating parent directories.
func WriteFile(t testing.TB, path, body string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

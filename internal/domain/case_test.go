package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaseFromRecord(t *testing.T) {
	t.Run("full record", func(t *testing.T) {
		c := CaseFromRecord(map[string]any{
			"case_id":        "T1-0001",
			"domain":         "History",
			"domain_id":      "D2",
			"pearl_level":    "L2",
			"label":          "NO",
			"initial_author": " Matt Wolfman ",
			"validator":      "Juli Huang",
			"final_score":    "8.5",
			"final_score_2":  9.25,
		})
		assert.Equal(t, "T1-0001", c.ID)
		assert.Equal(t, "History", c.Domain)
		assert.Equal(t, "D2", c.DomainID)
		assert.Equal(t, "Matt Wolfman", c.InitialAuthor)
		require.NotNil(t, c.FinalScore)
		assert.InDelta(t, 8.5, *c.FinalScore, 1e-9)
		require.NotNil(t, c.FinalScore2)
		assert.InDelta(t, 9.25, *c.FinalScore2, 1e-9)
		level, ok := c.Pearl()
		assert.True(t, ok)
		assert.Equal(t, PearlL2, level)
	})

	t.Run("defaults and fallbacks", func(t *testing.T) {
		c := CaseFromRecord(map[string]any{
			"caseId":      42.0,
			"annotations": map[string]any{"author": "Daphne"},
		})
		assert.Equal(t, "42", c.ID)
		assert.Equal(t, UnknownDomain, c.Domain)
		assert.Equal(t, "Daphne", c.InitialAuthor)
		assert.Nil(t, c.FinalScore)
	})

	t.Run("author preferred over annotations", func(t *testing.T) {
		c := CaseFromRecord(map[string]any{
			"author":      "A",
			"annotations": map[string]any{"author": "B"},
		})
		assert.Equal(t, "A", c.InitialAuthor)
	})
}

func TestNumeric(t *testing.T) {
	f, ok := Numeric(json.Number("7.5"))
	assert.True(t, ok)
	assert.InDelta(t, 7.5, f, 1e-9)

	_, ok = Numeric("7.5")
	assert.False(t, ok)
	_, ok = Numeric(true)
	assert.False(t, ok)

	f, ok = LooseNumeric(" 7.5 ")
	assert.True(t, ok)
	assert.InDelta(t, 7.5, f, 1e-9)
}

func TestGradeFinal(t *testing.T) {
	g := NewGrade(Submission{ID: "s1", Submitters: []Submitter{{Name: "A", Email: "a@x", SID: "1"}, {Name: "B"}}})
	assert.Equal(t, "A", g.Name)
	assert.Equal(t, "a@x", g.Email)

	g.Completeness = 1
	g.Fields = 1
	g.LabelingContent = 1.5
	g.ScoreFromValidators = 0.8
	g.Bonus = 1
	assert.InDelta(t, 5.3, g.Final(), 1e-9)

	g.SetValidatees([]string{"Zed", " ", "Amy", "Zed"})
	assert.Equal(t, []string{"Amy", "Zed"}, g.Validatees)
}

func TestActivity(t *testing.T) {
	var a Activity
	a.Record("History", "c2")
	a.Record(UnknownDomain, "")
	a.Record("Economics", "c1")
	assert.Equal(t, []string{"Economics", "History"}, a.KnownDomains())
	assert.Equal(t, []string{"c2", "c1"}, a.CaseIDs)
}

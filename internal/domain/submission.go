package domain

import (
	"fmt"
	"sort"
	"strings"
)

// StatusPending is the registry status used when none is recorded.
const StatusPending = "pending"

// Submitter is one person listed on a submission.
type Submitter struct {
	Name  string
	Email string
	SID   string
}

// Submission is a registry entry for one uploaded assignment.
type Submission struct {
	ID         string
	Submitters []Submitter
	CreatedAt  string
	Status     string
}

// Primary returns the first submitter, which owns the submission for
// identity purposes. The zero Submitter is returned when none is listed.
func (s Submission) Primary() Submitter {
	if len(s.Submitters) == 0 {
		return Submitter{}
	}
	return s.Submitters[0]
}

// Grade is the rubric result for one submission. Every sub-score is a
// pure function of the submission's files except ScoreFromValidators,
// which comes from the cross-validation roster.
type Grade struct {
	SubmissionID string
	Name         string
	SID          string
	Email        string

	Completeness        float64
	Fields              float64
	PearlDistribution   float64
	LabelDistribution   float64
	LabelingContent     float64
	SchemaCorrect       float64
	ScoreCorrect        float64
	ScoreFromValidators float64
	Bonus               float64

	// Validatees are the distinct initial authors found in the dataset.
	Validatees []string
	// ValidateeScore is the submission's own score-file average over 10.
	ValidateeScore float64

	Notes []string
}

// NewGrade seeds a Grade with the submission's primary submitter.
func NewGrade(sub Submission) *Grade {
	p := sub.Primary()
	return &Grade{
		SubmissionID: sub.ID,
		Name:         p.Name,
		SID:          p.SID,
		Email:        p.Email,
		Notes:        make([]string, 0, 8),
	}
}

// Final is the sum of all sub-scores.
func (g *Grade) Final() float64 {
	return g.Completeness + g.Fields + g.PearlDistribution + g.LabelDistribution +
		g.LabelingContent + g.SchemaCorrect + g.ScoreCorrect + g.ScoreFromValidators + g.Bonus
}

// Note appends a formatted diagnostic.
func (g *Grade) Note(format string, args ...any) {
	g.Notes = append(g.Notes, fmt.Sprintf(format, args...))
}

// SetValidatees stores the distinct, sorted, non-empty names.
func (g *Grade) SetValidatees(names []string) {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	g.Validatees = out
}

// Pass converts a boolean check into a one-point sub-score.
func Pass(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}

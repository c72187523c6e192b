package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ahrav/go-crossval/internal/domain"
)

// GradeColumns is the header of the grading CSV.
var GradeColumns = []string{
	"submission_id", "name", "sid", "email",
	"dataset_completeness", "fields", "pearl_distribution", "label_distribution",
	"labeling_content", "schema_correct", "score_correct", "score_from_validators", "bonus",
	"final_score", "validatees", "validatee_score", "notes",
}

// WriteGrades writes one CSV row per grade in the given order.
func WriteGrades(w io.Writer, grades []*domain.Grade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(GradeColumns); err != nil {
		return err
	}
	for _, g := range grades {
		if err := cw.Write(gradeRecord(g)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteGradesFile rewrites path with the grading CSV.
func WriteGradesFile(path string, grades []*domain.Grade) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create grades %s: %w", path, err)
	}
	if err := WriteGrades(f, grades); err != nil {
		f.Close()
		return fmt.Errorf("write grades %s: %w", path, err)
	}
	return f.Close()
}

func gradeRecord(g *domain.Grade) []string {
	return []string{
		g.SubmissionID, g.Name, g.SID, g.Email,
		num(g.Completeness), num(g.Fields), num(g.PearlDistribution), num(g.LabelDistribution),
		num(g.LabelingContent), num(g.SchemaCorrect), num(g.ScoreCorrect), num(g.ScoreFromValidators), num(g.Bonus),
		num(g.Final()),
		strings.Join(g.Validatees, ", "),
		num(g.ValidateeScore),
		strings.Join(g.Notes, "; "),
	}
}

// num prints whole numbers with one decimal ("1.0") and others in their
// shortest form.
func num(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-crossval/infrastructure/crossval"
	"github.com/ahrav/go-crossval/infrastructure/dataset"
	"github.com/ahrav/go-crossval/infrastructure/judge"
	"github.com/ahrav/go-crossval/infrastructure/locator"
	"github.com/ahrav/go-crossval/infrastructure/registry"
	"github.com/ahrav/go-crossval/infrastructure/report"
	"github.com/ahrav/go-crossval/infrastructure/scoring"
	"github.com/ahrav/go-crossval/infrastructure/validation"
	"github.com/ahrav/go-crossval/internal/domain"
	"github.com/ahrav/go-crossval/internal/ports"
)

// ErrSubmissionMissing indicates a registry entry with neither a directory
// nor a loose JSON file under the submissions root.
var ErrSubmissionMissing = errors.New("submission not found")

// Grading outcomes recorded in submissions_graded_total.
const (
	StatusGraded         = "graded"
	StatusLoose          = "loose_file"
	StatusMissingDataset = "missing_dataset"
	StatusSkipped        = "skipped"
)

// Grader grades every submission of a registry against the rubric.
type Grader struct {
	cfg        Config
	checks     *validation.Validator
	locator    *locator.Locator
	extractor  *scoring.Extractor
	aggregator *crossval.Aggregator
	judge      ports.ContentJudge
	metrics    ports.MetricsCollector
	logger     *slog.Logger
	tracer     trace.Tracer
}

// GraderOption configures a Grader.
type GraderOption func(*Grader)

// WithJudge replaces the judge built from the configuration.
func WithJudge(j ports.ContentJudge) GraderOption { return func(g *Grader) { g.judge = j } }

// WithMetrics records grading and LLM metrics into m.
func WithMetrics(m ports.MetricsCollector) GraderOption {
	return func(g *Grader) { g.metrics = m }
}

// WithLogger sets the logger used by the grader and its components.
func WithLogger(l *slog.Logger) GraderOption { return func(g *Grader) { g.logger = l } }

// NewGrader wires the rubric checks, the locator, the score extractor and
// the cross-validation aggregator. The judge is built from cfg.Judge unless
// WithJudge supplies one.
func NewGrader(cfg Config, opts ...GraderOption) (*Grader, error) {
	g := &Grader{
		cfg:    cfg,
		checks: validation.New(cfg.Rubric),
		logger: slog.Default(),
		tracer: otel.Tracer("crossval/grader"),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.locator = locator.New(cfg.Locator, g.logger)
	g.extractor = scoring.NewExtractor(cfg.Scoring, g.logger)
	aggOpts := []crossval.Option{crossval.WithLogger(g.logger)}
	if g.metrics != nil {
		aggOpts = append(aggOpts, crossval.WithMetrics(g.metrics))
	}
	g.aggregator = crossval.NewAggregator(g.locator, g.extractor, aggOpts...)

	if g.judge == nil {
		var client ports.LLMClient
		if cfg.Judge.Enabled {
			c, err := NewLLMClient(cfg.Judge, g.metrics)
			if err != nil {
				return nil, err
			}
			client = c
		}
		j, err := judge.New(client, cfg.Judge.Config, g.logger)
		if err != nil {
			return nil, err
		}
		g.judge = j
	}
	return g, nil
}

// RunSummary describes a completed grading run.
type RunSummary struct {
	Graded       int
	Skipped      int
	AverageFinal float64
	WithBonus    int
}

// Run grades every registry entry in registry order, folds in the scores
// received from validators and writes the grading CSV. Submissions that
// cannot be found are skipped with a warning.
func (g *Grader) Run(ctx context.Context) ([]*domain.Grade, RunSummary, error) {
	ctx, span := g.tracer.Start(ctx, "Grader.Run",
		trace.WithAttributes(attribute.String("submissions.root", g.cfg.Paths.Submissions)))
	defer span.End()

	subs, err := registry.Load(g.cfg.Paths.Registry)
	if err != nil {
		span.RecordError(err)
		return nil, RunSummary{}, err
	}
	g.logger.Info("loaded submission registry", "path", g.cfg.Paths.Registry, "submissions", len(subs))

	peers := crossval.Result{Received: map[string]float64{}}
	if g.cfg.Paths.Roster != "" {
		peers, err = g.aggregator.AggregateFile(ctx, g.cfg.Paths.Roster, BuildIndex(g.cfg.Paths.Submissions, subs))
		if err != nil {
			span.RecordError(err)
			return nil, RunSummary{}, err
		}
	}

	var (
		grades  []*domain.Grade
		summary RunSummary
	)
	for _, sub := range subs {
		grade, err := g.GradeSubmission(ctx, sub)
		switch {
		case errors.Is(err, ErrSubmissionMissing):
			g.logger.Warn("directory or JSON file not found", "submission_id", sub.ID)
			g.count(StatusSkipped)
			summary.Skipped++
			continue
		case err != nil:
			span.RecordError(err)
			return grades, summary, err
		}
		grade.ScoreFromValidators = peers.Received[grade.Email]
		grades = append(grades, grade)
	}

	summary.Graded = len(grades)
	var total float64
	for _, gr := range grades {
		total += gr.Final()
		if gr.Bonus > 0 {
			summary.WithBonus++
		}
	}
	if len(grades) > 0 {
		summary.AverageFinal = total / float64(len(grades))
	}
	if g.metrics != nil {
		g.metrics.RecordGauge("last_run_submissions", float64(summary.Graded), nil)
	}

	if err := report.WriteGradesFile(g.cfg.Paths.GradesOut, grades); err != nil {
		span.RecordError(err)
		return grades, summary, err
	}
	g.logger.Info("grading complete", "path", g.cfg.Paths.GradesOut, "graded", summary.Graded, "skipped", summary.Skipped)
	return grades, summary, nil
}

// BuildIndex maps the first submitter's email of each entry to its
// submission directory under root. A later entry for the same email
// replaces an earlier one.
func BuildIndex(root string, subs []domain.Submission) crossval.Index {
	idx := crossval.Index{}
	for _, s := range subs {
		if email := s.Primary().Email; email != "" {
			idx[email] = filepath.Join(root, s.ID)
		}
	}
	return idx
}

// GradeSubmission grades one registry entry. The entry's directory is
// preferred; without one, a loose "<id>*.json" file at the submissions root
// is graded as the dataset alone. ScoreFromValidators is left at zero.
func (g *Grader) GradeSubmission(ctx context.Context, sub domain.Submission) (*domain.Grade, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, span := g.tracer.Start(ctx, "Grader.GradeSubmission",
		trace.WithAttributes(attribute.String("submission.id", sub.ID)))
	defer span.End()
	start := time.Now()

	dir := filepath.Join(g.cfg.Paths.Submissions, sub.ID)
	var (
		grade  *domain.Grade
		status string
		err    error
	)
	if info, statErr := os.Stat(dir); statErr == nil && info.IsDir() {
		grade, status, err = g.gradeDir(ctx, sub, dir)
	} else if loose, ok := locator.FindLooseFile(g.cfg.Paths.Submissions, sub.ID); ok {
		g.logger.Info("grading loose JSON file", "submission_id", sub.ID, "path", loose)
		grade, err = g.gradeLoose(ctx, sub, loose)
		status = StatusLoose
	} else {
		return nil, fmt.Errorf("%w: %s", ErrSubmissionMissing, sub.ID)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("grade.status", status), attribute.Float64("grade.final", grade.Final()))
	g.count(status)
	if g.metrics != nil {
		g.metrics.RecordLatency("grade_submission", time.Since(start), map[string]string{"status": status})
	}
	return grade, nil
}

func (g *Grader) gradeDir(ctx context.Context, sub domain.Submission, dir string) (*domain.Grade, string, error) {
	grade := domain.NewGrade(sub)
	rubric := g.checks.Rubric()

	files, err := g.locator.Locate(dir)
	if err != nil {
		g.logger.Warn("could not list submission files", "submission_id", sub.ID, "error", err)
	}

	if files.Dataset == "" {
		grade.Note("Missing dataset.json file")
		if files.Score != "" {
			grade.Note("Score file: %s", filepath.Base(files.Score))
			g.setValidateeScore(grade, files.Score, false)
		} else {
			grade.Note("Missing score.json file")
		}
		return grade, StatusMissingDataset, nil
	}

	grade.Note("Dataset file: %s", filepath.Base(files.Dataset))
	if files.Schema == "" {
		grade.Note("Missing schema.json file")
	} else {
		grade.Note("Schema file: %s", filepath.Base(files.Schema))
	}
	if files.Score == "" {
		grade.Note("Missing score.json file")
	} else {
		grade.Note("Score file: %s", filepath.Base(files.Score))
	}

	doc, loadErr := g.loadDataset(sub.ID, files.Dataset)
	comp := g.checkDataset(grade, doc)
	count := comp.Count
	pearl := g.checks.CheckPearl(comp.Pearl, count)
	grade.PearlDistribution = domain.Pass(pearl.Passed)
	grade.Note("%s", pearl.Note(rubric))

	labels := g.checks.CheckLabels(doc, pearl.Counts)
	grade.LabelDistribution = domain.Pass(labels.Passed)
	grade.Note("%s", labels.Note(rubric))

	if err := g.judgeContent(ctx, grade, doc); err != nil {
		return nil, "", err
	}

	if files.Schema != "" {
		res := g.checks.CheckSchema(files.Schema)
		grade.SchemaCorrect = domain.Pass(res.Passed)
		grade.Note("Schema: %s", res.Notes)
	} else {
		grade.Note("Schema file not found")
	}
	if files.Score != "" {
		res := g.checks.CheckScoreFile(files.Score)
		grade.ScoreCorrect = domain.Pass(res.Passed)
		grade.Note("Score file: %s", res.Notes)
	} else {
		grade.Note("Score file not found")
	}

	g.applyBonus(grade, count)
	g.setValidatees(grade, doc, loadErr)
	if files.Score != "" {
		g.setValidateeScore(grade, files.Score, true)
	}
	return grade, StatusGraded, nil
}

// gradeLoose grades a bare dataset file. Schema and score checks cannot
// run, and the submission gives no validatee score.
func (g *Grader) gradeLoose(ctx context.Context, sub domain.Submission, path string) (*domain.Grade, error) {
	grade := domain.NewGrade(sub)
	rubric := g.checks.Rubric()
	grade.Note("Dataset file: %s", filepath.Base(path))

	doc, loadErr := g.loadDataset(sub.ID, path)
	comp := g.checkDataset(grade, doc)
	count := comp.Count
	pearl := g.checks.CheckPearl(comp.Pearl, count)
	grade.PearlDistribution = domain.Pass(pearl.Passed)
	stats, _, _ := strings.Cut(pearl.Note(rubric), " | ")
	grade.Note("%s", stats)

	grade.LabelDistribution = domain.Pass(g.checks.CheckLabels(doc, pearl.Counts).Passed)
	if err := g.judgeContent(ctx, grade, doc); err != nil {
		return nil, err
	}

	grade.Note("Schema file: Not available (using direct JSON)")
	grade.Note("Score file: Not available (using direct JSON)")
	g.applyBonus(grade, count)
	g.setValidatees(grade, doc, loadErr)
	return grade, nil
}

func (g *Grader) loadDataset(id, path string) (*dataset.Document, error) {
	doc, err := dataset.Load(path, dataset.GradedShapes...)
	if err != nil {
		g.logger.Warn("could not read dataset", "submission_id", id, "path", path, "error", err)
		return nil, err
	}
	return doc, nil
}

// checkDataset runs the completeness and field checks.
func (g *Grader) checkDataset(grade *domain.Grade, doc *dataset.Document) validation.CompletenessResult {
	comp := g.checks.CheckCompleteness(doc)
	grade.Completeness = domain.Pass(comp.Passed)
	grade.Note("Dataset cases: %d (target: %d)", comp.Count, g.checks.Rubric().TotalCases)

	fields := g.checks.CheckFields(doc)
	grade.Fields = domain.Pass(fields.Passed)
	if len(fields.Missing) > 0 {
		grade.Note("Missing fields: %s", strings.Join(fields.Missing, ", "))
	}
	return comp
}

func (g *Grader) judgeContent(ctx context.Context, grade *domain.Grade, doc *dataset.Document) error {
	var cases []domain.Case
	if doc != nil {
		cases = doc.Cases()
	}
	score, notes, err := g.judge.Evaluate(ctx, cases)
	if err != nil {
		return fmt.Errorf("judge labeling content of %s: %w", grade.SubmissionID, err)
	}
	grade.LabelingContent = score
	grade.Note("Labeling content: %s", notes)
	return nil
}

func (g *Grader) applyBonus(grade *domain.Grade, count int) {
	if extra := count - g.checks.Rubric().TotalCases; extra > 0 {
		grade.Bonus = 1
		grade.Note("Bonus: %d extra cases", extra)
	}
}

// setValidatees records the distinct initial authors of the dataset. A
// dataset that could not be parsed is noted; one with an unsupported shape
// simply has none.
func (g *Grader) setValidatees(grade *domain.Grade, doc *dataset.Document, loadErr error) {
	if doc == nil {
		if loadErr != nil && !errors.Is(loadErr, domain.ErrUnsupportedShape) {
			grade.Note("Warning: Could not extract validatees: %v", loadErr)
		}
		return
	}
	var names []string
	for _, rec := range doc.Records() {
		names = append(names, domain.Text(rec["initial_author"]))
	}
	grade.SetValidatees(names)
}

// setValidateeScore stores the submission's own score-file average over
// ten. full selects the notes of a complete grading pass.
func (g *Grader) setValidateeScore(grade *domain.Grade, path string, full bool) {
	ext, err := g.extractor.Extract(path)
	if err != nil {
		if full {
			grade.Note("Warning: Could not read score file for validatee_score: %v", err)
		} else {
			grade.Note("Warning: Could not read score file: %v", err)
		}
		grade.ValidateeScore = 0
		return
	}
	if desc := g.extractor.Describe(ext); desc != "" {
		grade.Note("Score format: %s", desc)
	}
	if ext.Average < 0 {
		grade.ValidateeScore = 0
		if full {
			grade.Note("Could not extract scores from file")
		}
		return
	}
	grade.ValidateeScore = ext.Average / crossval.ScoreScale
	if full && ext.Average == 0 {
		grade.Note("Average score is 0 (all cases scored 0)")
	}
}

func (g *Grader) count(status string) {
	if g.metrics == nil {
		return
	}
	g.metrics.RecordCounter("submissions_graded_total", 1, map[string]string{"status": status})
}

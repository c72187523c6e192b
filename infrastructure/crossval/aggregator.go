package crossval

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-crossval/internal/domain"
	"github.com/ahrav/go-crossval/internal/ports"
)

// ScoreScale converts a 0..10 score-file average to the 0..1 peer scale.
const ScoreScale = 10.0

// Index maps a contributor email to its submission directory.
type Index map[string]string

// Result holds the peer scores derived from the roster.
type Result struct {
	// Received maps a validatee email to the mean of the averages its
	// validators gave, on the 0..1 scale.
	Received map[string]float64
	// Given maps a validator email to the mean of the averages it gave, on
	// the 0..1 scale.
	Given map[string]float64
	// ValidateesByValidator lists, per validator email, the validatee names
	// in roster order.
	ValidateesByValidator map[string][]string
}

func newResult() Result {
	return Result{
		Received:              map[string]float64{},
		Given:                 map[string]float64{},
		ValidateesByValidator: map[string][]string{},
	}
}

// Aggregator joins roster edges with the validators' score files.
type Aggregator struct {
	locator   ports.SubmissionLocator
	extractor ports.ScoreExtractor
	metrics   ports.MetricsCollector
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(a *Aggregator) { a.logger = l } }

// WithMetrics records extraction outcomes on m.
func WithMetrics(m ports.MetricsCollector) Option { return func(a *Aggregator) { a.metrics = m } }

// NewAggregator returns an Aggregator reading score files through loc and ext.
func NewAggregator(loc ports.SubmissionLocator, ext ports.ScoreExtractor, opts ...Option) *Aggregator {
	a := &Aggregator{
		locator:   loc,
		extractor: ext,
		logger:    slog.Default(),
		tracer:    otel.Tracer("crossval-aggregator"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AggregateFile reads the roster at path and aggregates it. A missing or
// unreadable roster yields empty maps and a warning.
func (a *Aggregator) AggregateFile(ctx context.Context, path string, index Index) (Result, error) {
	edges, dropped, err := ReadRoster(path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.logger.Warn("cross-validation roster not found, skipping validator scores", "path", path)
		} else {
			a.logger.Warn("cross-validation roster unreadable, skipping validator scores", "path", path, "error", err)
		}
		return newResult(), nil
	}
	for _, d := range dropped {
		a.logger.Warn("dropped roster row", "path", path, "line", d.Line, "error", d.Err)
	}
	return a.Aggregate(ctx, edges, index)
}

// Aggregate computes the received and given series for edges. A validator
// counts only when index knows its submission and that submission's score
// file yields at least one value; validatee names are recorded regardless.
func (a *Aggregator) Aggregate(ctx context.Context, edges []domain.Edge, index Index) (Result, error) {
	ctx, span := a.tracer.Start(ctx, "Aggregator.Aggregate",
		trace.WithAttributes(attribute.Int("roster.edges", len(edges))),
	)
	defer span.End()

	res := newResult()
	received := map[string][]float64{}
	given := map[string][]float64{}
	averages := map[string]*float64{}

	for _, e := range edges {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			return res, err
		}
		if e.ValidateeName != "" {
			res.ValidateesByValidator[e.ValidatorEmail] = append(res.ValidateesByValidator[e.ValidatorEmail], e.ValidateeName)
		}

		avg, cached := averages[e.ValidatorEmail]
		if !cached {
			avg = a.validatorAverage(e.ValidatorEmail, index)
			averages[e.ValidatorEmail] = avg
		}
		if avg == nil {
			continue
		}
		received[e.ValidateeEmail] = append(received[e.ValidateeEmail], *avg)
		given[e.ValidatorEmail] = append(given[e.ValidatorEmail], *avg)
	}

	for email, xs := range received {
		res.Received[email] = mean(xs) / ScoreScale
	}
	for email, xs := range given {
		res.Given[email] = mean(xs) / ScoreScale
	}
	span.SetAttributes(
		attribute.Int("crossval.received", len(res.Received)),
		attribute.Int("crossval.given", len(res.Given)),
	)
	return res, nil
}

// validatorAverage returns the average of the validator's score file, or
// nil when there is none to read.
func (a *Aggregator) validatorAverage(email string, index Index) *float64 {
	dir, ok := index[email]
	if !ok {
		return nil
	}
	files, err := a.locator.Locate(dir)
	if err != nil || files.Score == "" {
		a.count("no_score_file")
		return nil
	}
	ext, err := a.extractor.Extract(files.Score)
	if err != nil {
		a.logger.Warn("could not read validator score file", "validator", email, "path", files.Score, "error", err)
		a.count("unreadable")
		return nil
	}
	if ext.Count == 0 {
		a.count("empty")
		return nil
	}
	a.count("ok")
	return &ext.Average
}

func (a *Aggregator) count(outcome string) {
	if a.metrics == nil {
		return
	}
	a.metrics.RecordCounter("score_files_total", 1, map[string]string{"outcome": outcome})
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

package application

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ahrav/go-crossval/infrastructure/revision"
	"github.com/ahrav/go-crossval/internal/ports"
)

// CreateRound2 applies the revision policy to every round-1 dataset file in
// Paths.Dataset and writes the results to Paths.Round2Dataset.
func CreateRound2(ctx context.Context, cfg Config, metrics ports.MetricsCollector, logger *slog.Logger) (revision.Summary, error) {
	_, span := otel.Tracer("crossval/round2").Start(ctx, "CreateRound2")
	defer span.End()

	r := revision.New(cfg.Revision, logger)
	sum, err := r.ReviseDir(cfg.Paths.Dataset, cfg.Paths.Round2Dataset)
	if err != nil {
		span.RecordError(err)
		return sum, err
	}
	span.SetAttributes(
		attribute.Int("round2.files", sum.Files),
		attribute.Int("round2.cases", sum.Cases),
		attribute.Int("round2.revised", sum.Revised),
	)
	if metrics != nil {
		metrics.RecordCounter("round2_cases_total", float64(sum.Revised), map[string]string{"outcome": "revised"})
		metrics.RecordCounter("round2_cases_total", float64(sum.Cases-sum.Revised), map[string]string{"outcome": "unchanged"})
		metrics.RecordCounter("round2_files_skipped_total", float64(len(sum.Skipped)), nil)
	}
	return sum, nil
}

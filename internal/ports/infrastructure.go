package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-crossval/internal/domain"
)

// LLMClient is the narrow surface the labeling-content judge needs from a
// model provider.
type LLMClient interface {
	// Complete sends prompt and returns the generated text. Recognized
	// options include "temperature" (float64), "max_tokens" (int) and
	// "system" (string).
	Complete(ctx context.Context, prompt string, options map[string]any) (string, error)

	// EstimateTokens approximates the token count of text.
	EstimateTokens(text string) (int, error)

	// GetModel returns the model identifier in use.
	GetModel() string
}

// MetricsCollector records operational metrics for a grading run.
type MetricsCollector interface {
	RecordLatency(operation string, duration time.Duration, labels map[string]string)
	RecordCounter(metric string, value float64, labels map[string]string)
	RecordGauge(metric string, value float64, labels map[string]string)
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// NameResolver maps a raw author or validator string to its canonical
// identity. ok is false only for empty input.
type NameResolver interface {
	Resolve(name string) (canonical string, ok bool)
}

// DomainClassifier assigns a canonical domain code to a case.
type DomainClassifier interface {
	Classify(c domain.Case) (domain.DomainCode, bool)
}

// ScoreExtractor reads a peer score file and reports its average.
type ScoreExtractor interface {
	Extract(path string) (ScoreExtraction, error)
}

// ScoreExtraction is the outcome of reading one score file.
type ScoreExtraction struct {
	// Average is the mean over all records that yielded a value, or the
	// file's own reported average.
	Average float64
	// Count is the number of records that yielded a value.
	Count int
	// Convention names the layout that matched, "" when none did.
	Convention string
}

// SubmissionLocator finds the dataset, schema and score files of a
// submission directory. Empty strings mean "not found".
type SubmissionLocator interface {
	Locate(dir string) (SubmissionFiles, error)
}

// SubmissionFiles are the role-assigned files of one submission.
type SubmissionFiles struct {
	Dataset string
	Schema  string
	Score   string
	// Rules records, per role, which heuristic claimed the file.
	Rules map[string]string
}

// ContentJudge scores the qualitative labeling content of a dataset on
// a 0..2 scale.
type ContentJudge interface {
	Evaluate(ctx context.Context, cases []domain.Case) (score float64, notes string, err error)
}

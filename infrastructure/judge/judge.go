// Package judge scores the qualitative labeling content of a dataset with
// an LLM. Without a client it reproduces the grading placeholder and awards
// nothing.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"text/template"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-crossval/internal/domain"
	"github.com/ahrav/go-crossval/internal/ports"
)

// NotImplementedNote is reported when no LLM client is configured.
const NotImplementedNote = "LLM evaluation not yet implemented"

// MaxScore is the top of the labeling-content scale.
const MaxScore = 2.0

// DefaultPrompt asks for one JSON verdict per case.
const DefaultPrompt = `You are reviewing one case from a causal reasoning benchmark.
Judge whether the label ({{.Label}}) at Pearl level {{.PearlLevel}} is justified by the
scenario, whether the causal structure and trap are described correctly, and whether
the rationale would convince a careful reader.

Case {{.ID}} (domain: {{.Domain}}):
{{.JSON}}

Reply with JSON only: {"score": <number from 0 to 2>, "confidence": <0 to 1>, "reasoning": "<one paragraph>"}`

// Config controls sampling and the model call.
type Config struct {
	Prompt        string  `yaml:"prompt" json:"prompt" validate:"required,min=20"`
	SampleSize    int     `yaml:"sample_size" json:"sample_size" validate:"min=1,max=50"`
	Temperature   float64 `yaml:"temperature" json:"temperature" validate:"min=0,max=1"`
	MaxTokens     int     `yaml:"max_tokens" json:"max_tokens" validate:"min=50,max=4000"`
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence" validate:"min=0,max=1"`
}

// DefaultConfig returns the judge defaults.
func DefaultConfig() Config {
	return Config{
		Prompt:      DefaultPrompt,
		SampleSize:  5,
		Temperature: 0,
		MaxTokens:   400,
	}
}

// Verdict is the JSON object the model must return for a case.
type Verdict struct {
	Score      *float64 `json:"score" validate:"required,min=0,max=2"`
	Confidence float64  `json:"confidence" validate:"min=0,max=1"`
	Reasoning  string   `json:"reasoning" validate:"required"`
}

var validate = validator.New()

// ContentJudge implements ports.ContentJudge.
type ContentJudge struct {
	client ports.LLMClient
	cfg    Config
	tmpl   *template.Template
	logger *slog.Logger
	tracer trace.Tracer
}

var _ ports.ContentJudge = (*ContentJudge)(nil)

// New returns a judge. client may be nil, in which case Evaluate returns
// the placeholder result.
func New(client ports.LLMClient, cfg Config, logger *slog.Logger) (*ContentJudge, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("judge config: %w", err)
	}
	tmpl, err := template.New("judge").Option("missingkey=zero").Parse(cfg.Prompt)
	if err != nil {
		return nil, fmt.Errorf("parse judge prompt: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentJudge{
		client: client,
		cfg:    cfg,
		tmpl:   tmpl,
		logger: logger,
		tracer: otel.Tracer("crossval/judge"),
	}, nil
}

type promptData struct {
	ID         string
	Domain     string
	PearlLevel string
	Label      string
	JSON       string
}

// Evaluate scores the first SampleSize cases in id order and returns their
// mean verdict clamped to [0, MaxScore]. Cases whose call fails or whose
// reply does not validate are skipped; only context cancellation aborts.
func (j *ContentJudge) Evaluate(ctx context.Context, cases []domain.Case) (float64, string, error) {
	if j.client == nil {
		return 0, NotImplementedNote, nil
	}
	if len(cases) == 0 {
		return 0, "No cases to evaluate", nil
	}

	ctx, span := j.tracer.Start(ctx, "ContentJudge.Evaluate", trace.WithAttributes(
		attribute.String("llm.model", j.client.GetModel()),
		attribute.Int("cases", len(cases)),
	))
	defer span.End()

	sample := Sample(cases, j.cfg.SampleSize)
	var scores []float64
	for _, c := range sample {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			return 0, "", err
		}
		v, err := j.judgeCase(ctx, c)
		if err != nil {
			if ctx.Err() != nil {
				span.RecordError(err)
				return 0, "", ctx.Err()
			}
			j.logger.Warn("skipping case in content judge", "case_id", c.ID, "error", err)
			continue
		}
		if v.Confidence < j.cfg.MinConfidence {
			j.logger.Warn("low-confidence verdict ignored", "case_id", c.ID, "confidence", v.Confidence)
			continue
		}
		scores = append(scores, *v.Score)
	}

	if len(scores) == 0 {
		return 0, fmt.Sprintf("LLM evaluation failed for all %d sampled cases", len(sample)), nil
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	mean := math.Max(0, math.Min(MaxScore, sum/float64(len(scores))))
	span.SetAttributes(attribute.Float64("score", mean))
	return mean, fmt.Sprintf("LLM content score %.2f/2 over %d of %d sampled cases", mean, len(scores), len(sample)), nil
}

func (j *ContentJudge) judgeCase(ctx context.Context, c domain.Case) (Verdict, error) {
	raw, err := json.MarshalIndent(c.Raw, "", "  ")
	if err != nil {
		return Verdict{}, err
	}
	var buf bytes.Buffer
	if err := j.tmpl.Execute(&buf, promptData{
		ID:         c.ID,
		Domain:     c.Domain,
		PearlLevel: c.PearlLevel,
		Label:      c.Label,
		JSON:       string(raw),
	}); err != nil {
		return Verdict{}, fmt.Errorf("render prompt: %w", err)
	}

	resp, err := j.client.Complete(ctx, buf.String(), map[string]any{
		"temperature": j.cfg.Temperature,
		"max_tokens":  j.cfg.MaxTokens,
	})
	if err != nil {
		return Verdict{}, err
	}
	return ParseVerdict(resp)
}

// ParseVerdict extracts and validates the JSON verdict in resp. The object
// may be wrapped in a fenced code block or surrounded by prose.
func ParseVerdict(resp string) (Verdict, error) {
	obj := extractJSON(resp)
	if obj == "" {
		return Verdict{}, fmt.Errorf("%w: no JSON object in reply", ports.ErrInvalidResponse)
	}
	var v Verdict
	if err := json.Unmarshal([]byte(obj), &v); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ports.ErrInvalidResponse, err)
	}
	if err := validate.Struct(v); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ports.ErrInvalidResponse, err)
	}
	return v, nil
}

// Sample returns the first n cases in case-id order.
func Sample(cases []domain.Case, n int) []domain.Case {
	sorted := append([]domain.Case(nil), cases...)
	sort.SliceStable(sorted, func(i, k int) bool { return domain.LessCaseID(sorted[i].ID, sorted[k].ID) })
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			if block := strings.TrimSpace(rest[:end]); strings.HasPrefix(block, "{") {
				return block
			}
		}
	}

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicDefaultModel is used when a request names no model.
const AnthropicDefaultModel = "claude-3-5-sonnet-20241022"

func init() {
	RegisterProviderFactory("anthropic", newAnthropicProvider)
}

type anthropicProvider struct {
	baseProvider
	client     anthropic.Client
	estimator  TokenEstimator
	classifier ErrorClassifier
}

func newAnthropicProvider(cfg ClientConfig) (CoreLLM, error) {
	if cfg.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	model := cfg.Model
	if model == "" {
		model = AnthropicDefaultModel
	}

	// Retries are handled by RetryMiddleware.
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}

	return &anthropicProvider{
		baseProvider: baseProvider{model: model},
		client:       anthropic.NewClient(opts...),
		estimator:    estimatorOrDefault(cfg.TokenEstimator),
		classifier:   ErrorClassifier{Provider: "anthropic"},
	}, nil
}

func (p *anthropicProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	ro := parseOptions(opts, p.GetModel())
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(ro.model),
		MaxTokens: int64(ro.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if ro.temperature != nil {
		params.Temperature = anthropic.Float(min(*ro.temperature, 1))
	}
	if ro.system != "" {
		params.System = []anthropic.TextBlockParam{{Text: ro.system}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", 0, 0, p.classifier.ClassifyHTTPError(apiErr.StatusCode, http.StatusText(apiErr.StatusCode), err)
		}
		return "", 0, 0, p.classifier.ClassifyError(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	out := sb.String()
	if out == "" {
		return "", 0, 0, ErrEmptyResponse
	}
	return out,
		countOrEstimate(int(msg.Usage.InputTokens), prompt, p.estimator),
		countOrEstimate(int(msg.Usage.OutputTokens), out, p.estimator),
		nil
}

func estimatorOrDefault(e TokenEstimator) TokenEstimator {
	if e == nil {
		return SimpleTokenEstimator{}
	}
	return e
}

func countOrEstimate(reported int, text string, e TokenEstimator) int {
	if reported > 0 {
		return reported
	}
	return e.EstimateTokens(text)
}

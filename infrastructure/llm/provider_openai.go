package llm

import (
	"context"
	"errors"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// OpenAIDefaultModel is used when a request names no model.
const OpenAIDefaultModel = "gpt-4o-mini"

func init() {
	RegisterProviderFactory("openai", newOpenAIProvider)
}

type openAIProvider struct {
	baseProvider
	client     *openai.Client
	estimator  TokenEstimator
	classifier ErrorClassifier
}

func newOpenAIProvider(cfg ClientConfig) (CoreLLM, error) {
	if cfg.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	model := cfg.Model
	if model == "" {
		model = OpenAIDefaultModel
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &openAIProvider{
		baseProvider: baseProvider{model: model},
		client:       openai.NewClientWithConfig(oc),
		estimator:    estimatorOrDefault(cfg.TokenEstimator),
		classifier:   ErrorClassifier{Provider: "openai"},
	}, nil
}

func (p *openAIProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	ro := parseOptions(opts, p.GetModel())
	var msgs []openai.ChatCompletionMessage
	if ro.system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: ro.system})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	req := openai.ChatCompletionRequest{
		Model:     ro.model,
		Messages:  msgs,
		MaxTokens: ro.maxTokens,
	}
	if ro.temperature != nil {
		req.Temperature = float32(*ro.temperature)
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", 0, 0, p.classifier.ClassifyHTTPError(apiErr.HTTPStatusCode, apiErr.Message, err)
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return "", 0, 0, p.classifier.ClassifyHTTPError(reqErr.HTTPStatusCode, http.StatusText(reqErr.HTTPStatusCode), err)
		}
		return "", 0, 0, p.classifier.ClassifyError(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", 0, 0, ErrEmptyResponse
	}

	out := resp.Choices[0].Message.Content
	return out,
		countOrEstimate(resp.Usage.PromptTokens, prompt, p.estimator),
		countOrEstimate(resp.Usage.CompletionTokens, out, p.estimator),
		nil
}

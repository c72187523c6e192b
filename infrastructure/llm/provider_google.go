package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

// GoogleDefaultModel is used when a request names no model.
const GoogleDefaultModel = "gemini-2.0-flash"

func init() {
	RegisterProviderFactory("google", newGoogleProvider)
}

type googleProvider struct {
	baseProvider
	client     *genai.Client
	estimator  TokenEstimator
	classifier ErrorClassifier
}

func newGoogleProvider(cfg ClientConfig) (CoreLLM, error) {
	if cfg.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	model := cfg.Model
	if model == "" {
		model = GoogleDefaultModel
	}

	gc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		gc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		gc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	client, err := genai.NewClient(context.Background(), gc)
	if err != nil {
		return nil, fmt.Errorf("create google client: %w", err)
	}

	return &googleProvider{
		baseProvider: baseProvider{model: model},
		client:       client,
		estimator:    estimatorOrDefault(cfg.TokenEstimator),
		classifier:   ErrorClassifier{Provider: "google"},
	}, nil
}

func (p *googleProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	ro := parseOptions(opts, p.GetModel())

	gen := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(min(ro.maxTokens, math.MaxInt32)),
	}
	if ro.temperature != nil {
		gen.Temperature = genai.Ptr(float32(*ro.temperature))
	}
	if ro.system != "" {
		gen.SystemInstruction = genai.NewContentFromText(ro.system, genai.RoleUser)
	}

	resp, err := p.client.Models.GenerateContent(ctx, ro.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, gen)
	if err != nil {
		return "", 0, 0, p.classify(err)
	}

	out := resp.Text()
	if out == "" {
		return "", 0, 0, ErrEmptyResponse
	}
	var in, outTok int
	if u := resp.UsageMetadata; u != nil {
		in, outTok = int(u.PromptTokenCount), int(u.CandidatesTokenCount)
	}
	return out,
		countOrEstimate(in, prompt, p.estimator),
		countOrEstimate(outTok, out, p.estimator),
		nil
}

func (p *googleProvider) classify(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return p.classifier.ClassifyHTTPError(gErr.Code, gErr.Message, err)
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return p.classifier.ClassifyHTTPError(apiErr.Code, apiErr.Message, err)
	}
	return p.classifier.ClassifyError(err)
}

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIProvider_DoRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-test", body["model"])
		msgs := body["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, "system", msgs[0].(map[string]any)["role"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "id": "chatcmpl-1", "object": "chat.completion", "model": "gpt-test",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"score\": 2}"}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
}`))
	}))
	defer server.Close()

	p, err := newOpenAIProvider(ClientConfig{APIKey: "test-key", Model: "gpt-test", BaseURL: server.URL + "/v1"})
	require.NoError(t, err)

	out, in, outTok, err := p.DoRequest(context.Background(), "grade this", map[string]any{"system": "be strict"})
	require.NoError(t, err)
	assert.Equal(t, `{"score": 2}`, out)
	assert.Equal(t, 12, in)
	assert.Equal(t, 4, outTok)
}

func TestOpenAIProvider_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "bad key", "type": "invalid_request_error"}}`))
	}))
	defer server.Close()

	p, err := newOpenAIProvider(ClientConfig{APIKey: "k", BaseURL: server.URL + "/v1"})
	require.NoError(t, err)
	assert.Equal(t, OpenAIDefaultModel, p.GetModel())

	_, _, _, err = p.DoRequest(context.Background(), "x", nil)
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, ErrorTypeAuthentication, perr.Type)
	assert.Equal(t, http.StatusUnauthorized, perr.StatusCode)
	assert.False(t, perr.IsRetryable())
}

func TestAnthropicProvider_DoRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-test", body["model"])
		assert.Equal(t, float64(256), body["max_tokens"])
		system := body["system"].([]any)
		assert.Equal(t, "be strict", system[0].(map[string]any)["text"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
  "content": [{"type": "text", "text": "fine"}],
  "stop_reason": "end_turn",
  "usage": {"input_tokens": 10, "output_tokens": 15}
}`))
	}))
	defer server.Close()

	p, err := newAnthropicProvider(ClientConfig{APIKey: "k", Model: "claude-test", BaseURL: server.URL})
	require.NoError(t, err)

	out, in, outTok, err := p.DoRequest(context.Background(), "grade this",
		map[string]any{"system": "be strict", "max_tokens": 256})
	require.NoError(t, err)
	assert.Equal(t, "fine", out)
	assert.Equal(t, 10, in)
	assert.Equal(t, 15, outTok)
}

func TestAnthropicProvider_BadRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "invalid_request_error", "message": "bad"}}`))
	}))
	defer server.Close()

	p, err := newAnthropicProvider(ClientConfig{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	_, _, _, err = p.DoRequest(context.Background(), "x", nil)
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, ErrorTypeBadRequest, perr.Type)
}

func TestProviders_RequireAPIKey(t *testing.T) {
	for _, f := range []ProviderFactory{newOpenAIProvider, newAnthropicProvider, newGoogleProvider} {
		_, err := f(ClientConfig{})
		assert.ErrorIs(t, err, ErrEmptyAPIKey)
	}
}

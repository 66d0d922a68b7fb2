package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoogleComplete_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Contains(t, r.URL.Path, "/models/test-model:generateContent")

		var req googleRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		assert.Equal(t, "user", req.Contents[0].Role)
		// System text is folded into the single user turn.
		assert.Contains(t, req.Contents[0].Parts[0].Text, "you are a test healer")
		assert.Contains(t, req.Contents[0].Parts[0].Text, "fix this test")

		resp := googleResponse{
			Candidates: []googleCandidate{{
				Content: googleContent{Parts: []googlePart{{Text: "patched"}}},
			}},
			UsageMetadata: googleUsage{PromptTokenCount: 100, CandidatesTokenCount: 50, TotalTokenCount: 150},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer ts.Close()

	c := &GoogleClient{apiKey: "test-key", model: "test-model", httpClient: ts.Client(), baseURL: ts.URL}
	out, err := c.Complete(context.Background(), Prompt{System: "you are a test healer", User: "fix this test"})

	require.NoError(t, err)
	assert.Equal(t, "patched", out.Text)
	assert.Equal(t, 100, out.InputTokens)
	assert.Equal(t, 50, out.OutputTokens)
	assert.Equal(t, 150, out.TotalTokens())
	assert.Equal(t, "test-model", out.Model)
}

func TestGoogleComplete_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": "rate limited"}`))
	}))
	defer ts.Close()

	c := &GoogleClient{apiKey: "test-key", model: "test-model", httpClient: ts.Client(), baseURL: ts.URL}
	_, err := c.Complete(context.Background(), Prompt{User: "fix this test"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestGoogleComplete_NoCandidates(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates": []}`))
	}))
	defer ts.Close()

	c := &GoogleClient{apiKey: "test-key", model: "test-model", httpClient: ts.Client(), baseURL: ts.URL}
	_, err := c.Complete(context.Background(), Prompt{User: "fix this test"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no response candidates")
}

func TestGoogleComplete_InvalidJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer ts.Close()

	c := &GoogleClient{apiKey: "test-key", model: "test-model", httpClient: ts.Client(), baseURL: ts.URL}
	_, err := c.Complete(context.Background(), Prompt{User: "fix this test"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse response")
}

func TestGoogleComplete_ContextCancelled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {}
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &GoogleClient{apiKey: "test-key", model: "test-model", httpClient: ts.Client(), baseURL: ts.URL}
	_, err := c.Complete(ctx, Prompt{User: "fix this test"})

	require.Error(t, err)
}

func TestOpenAIComplete_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)

		resp := openAIResponse{
			Choices: []openAIChoice{{Message: openAIMessage{Role: "assistant", Content: "patched"}}},
			Usage:   openAIUsage{PromptTokens: 80, CompletionTokens: 40},
			Model:   "gpt-4o-mini",
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer ts.Close()

	c := &OpenAIClient{apiKey: "test-key", model: "gpt-4o-mini", httpClient: ts.Client(), baseURL: ts.URL}
	out, err := c.Complete(context.Background(), Prompt{System: "you are a test healer", User: "fix this test"})

	require.NoError(t, err)
	assert.Equal(t, "patched", out.Text)
	assert.Equal(t, 80, out.InputTokens)
	assert.Equal(t, 40, out.OutputTokens)
	assert.Equal(t, "gpt-4o-mini", out.Model)
}

func TestOpenAIComplete_NoSystemPrompt(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		resp := openAIResponse{Choices: []openAIChoice{{Message: openAIMessage{Content: "ok"}}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer ts.Close()

	c := &OpenAIClient{apiKey: "test-key", model: "gpt-4o-mini", httpClient: ts.Client(), baseURL: ts.URL}
	_, err := c.Complete(context.Background(), Prompt{User: "fix this test"})
	require.NoError(t, err)
}

func TestOpenAIComplete_NoChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer ts.Close()

	c := &OpenAIClient{apiKey: "test-key", model: "gpt-4o-mini", httpClient: ts.Client(), baseURL: ts.URL}
	_, err := c.Complete(context.Background(), Prompt{User: "fix this test"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no response choices")
}

func TestAnthropicComplete_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "you are a test healer", req.System)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		resp := anthropicResponse{
			Content: []anthropicContent{
				{Type: "text", Text: "pat"},
				{Type: "text", Text: "ched"},
			},
			Model: "claude-sonnet-4-20250514",
			Usage: anthropicUsage{InputTokens: 120, OutputTokens: 60},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer ts.Close()

	c := &AnthropicClient{apiKey: "test-key", model: "claude-sonnet-4-20250514", httpClient: ts.Client(), baseURL: ts.URL}
	out, err := c.Complete(context.Background(), Prompt{System: "you are a test healer", User: "fix this test"})

	require.NoError(t, err)
	assert.Equal(t, "patched", out.Text)
	assert.Equal(t, 120, out.InputTokens)
	assert.Equal(t, 60, out.OutputTokens)
}

func TestEmbed_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/models/text-embedding-004:embedContent")
		w.Write([]byte(`{"embedding": {"values": [0.1, 0.2, 0.3]}}`))
	}))
	defer ts.Close()

	e := &GoogleEmbedder{apiKey: "test-key", model: "text-embedding-004", httpClient: ts.Client(), baseURL: ts.URL}
	vec, err := e.Embed(context.Background(), "timeout waiting for selector")

	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbed_Empty(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embedding": {"values": []}}`))
	}))
	defer ts.Close()

	e := &GoogleEmbedder{apiKey: "test-key", model: "text-embedding-004", httpClient: ts.Client(), baseURL: ts.URL}
	_, err := e.Embed(context.Background(), "anything")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty embedding")
}

func TestNew_MissingAPIKey(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	_, err := New(ProviderGoogle, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOOGLE_API_KEY")
}

func TestNew_DefaultModels(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "k")
	t.Setenv("OPENAI_API_KEY", "k")
	t.Setenv("ANTHROPIC_API_KEY", "k")

	g, err := New(ProviderGoogle, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultGoogleModel, g.Model())
	assert.Equal(t, ProviderGoogle, g.Provider())

	o, err := New(ProviderOpenAI, "custom-model")
	require.NoError(t, err)
	assert.Equal(t, "custom-model", o.Model())

	a, err := New(ProviderAnthropic, "")
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, a.Provider())
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(Provider("mystery"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

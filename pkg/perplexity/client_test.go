package perplexity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/inquiry-cli/internal/resilience"
)

func testRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func answerWithCitations() ChatCompletionResponse {
	return ChatCompletionResponse{
		ID: "resp-1",
		Choices: []Choice{
			{Index: 0, Message: Message{Role: "assistant", Content: "The WH-1000XM5 sells for $248 at Sony [1][2]."}},
		},
		Citations: []string{
			"https://sony.com/wh1000xm5",
			"https://rtings.com/review",
		},
		Usage: Usage{PromptTokens: 120, CompletionTokens: 45},
	}
}

func TestChatCompletion_DecodesCitations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sonar-pro", req.Model, "empty model falls back to the client default")

		_ = json.NewEncoder(w).Encode(answerWithCitations())
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRetry(testRetry()))

	got, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages: []Message{{Role: "user", Content: "best price for Sony WH-1000XM5"}},
	})
	require.NoError(t, err)
	require.Len(t, got.Citations, 2)
	assert.Equal(t, "https://sony.com/wh1000xm5", got.Citations[0])
	assert.Equal(t, "https://rtings.com/review", got.Citations[1])
	assert.Contains(t, got.Choices[0].Message.Content, "$248")
	assert.Equal(t, 120, got.Usage.PromptTokens)
}

func TestChatCompletion_RetriesRateLimitThenSucceeds(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(answerWithCitations())
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRetry(testRetry()))

	got, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages: []Message{{Role: "user", Content: "query"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, hits)
	assert.Len(t, got.Citations, 2)
}

func TestChatCompletion_RetriesExhausted(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRetry(testRetry()))

	_, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages: []Message{{Role: "user", Content: "query"}},
	})
	require.Error(t, err)
	assert.Equal(t, 3, hits)
	assert.True(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "status 503")
}

func TestChatCompletion_BadRequestNotRetried(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid model"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRetry(testRetry()))

	_, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
		Model:    "no-such-model",
		Messages: []Message{{Role: "user", Content: "query"}},
	})
	require.Error(t, err)
	assert.Equal(t, 1, hits)
	assert.True(t, resilience.IsPermanent(err))
	assert.Contains(t, err.Error(), "invalid model")
}

func TestChatCompletion_ExplicitModelKept(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sonar-reasoning", req.Model)

		_ = json.NewEncoder(w).Encode(ChatCompletionResponse{ID: "resp-2"})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRetry(testRetry()))

	_, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
		Model:    "sonar-reasoning",
		Messages: []Message{{Role: "user", Content: "query"}},
	})
	require.NoError(t, err)
}

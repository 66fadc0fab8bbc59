package openrouter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobquill/textgen/provider"
)

func TestComplete(t *testing.T) {
	ctx := context.Background()

	t.Run("unwraps the first choice", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

			var request chatRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
			require.Len(t, request.Messages, 1)
			assert.Equal(t, "user", request.Messages[0].Role)
			assert.Equal(t, "write a haiku", request.Messages[0].Content)

			response := chatResponse{
				Id:    "gen-123",
				Model: request.Model,
				Choices: []choice{{
					Message:      message{Role: "assistant", Content: "old pond, frog jumps"},
					FinishReason: "stop",
				}},
			}
			w.Header().Set("Content-Type", "application/json")
			require.NoError(t, json.NewEncoder(w).Encode(response))
		}))
		defer server.Close()

		endpoint, err := NewEndpoint(server.URL, "test-key", "test-model", time.Second)
		require.NoError(t, err)

		completion, err := endpoint.Complete(ctx, "write a haiku")
		require.NoError(t, err)
		assert.Equal(t, "old pond, frog jumps", completion)
	})

	t.Run("429 classifies as rate limited", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error": "rate limit exceeded"}`, http.StatusTooManyRequests)
		}))
		defer server.Close()

		endpoint, err := NewEndpoint(server.URL, "test-key", "", time.Second)
		require.NoError(t, err)

		_, err = endpoint.Complete(ctx, "prompt")
		var typed *provider.Error
		require.True(t, errors.As(err, &typed))
		assert.Equal(t, provider.RateLimited, typed.Kind)
		assert.Equal(t, http.StatusTooManyRequests, typed.StatusCode)
	})

	t.Run("non-2xx carries the body as diagnostics", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model is overloaded", http.StatusInternalServerError)
		}))
		defer server.Close()

		endpoint, err := NewEndpoint(server.URL, "test-key", "", time.Second)
		require.NoError(t, err)

		_, err = endpoint.Complete(ctx, "prompt")
		var typed *provider.Error
		require.True(t, errors.As(err, &typed))
		assert.Equal(t, provider.HardFailure, typed.Kind)
		assert.Contains(t, typed.Message, "model is overloaded")
	})

	t.Run("empty choices is a hard failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id": "gen-1", "choices": []}`))
		}))
		defer server.Close()

		endpoint, err := NewEndpoint(server.URL, "test-key", "", time.Second)
		require.NoError(t, err)

		_, err = endpoint.Complete(ctx, "prompt")
		var typed *provider.Error
		require.True(t, errors.As(err, &typed))
		assert.Equal(t, provider.HardFailure, typed.Kind)
	})
}

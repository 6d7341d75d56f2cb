package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/certificate-processor/pkg/logger"
)

func TestOllamaComplete(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(OllamaResponse{Response: `{"skills":["Go"]}`, Done: true})
	}))
	defer srv.Close()

	c := NewOllamaClient(&OllamaConfig{Endpoint: srv.URL, Model: "llama3.1", Temperature: 0.2, Timeout: time.Second}, nil, logger.NewTestLogger())
	out, err := c.Complete(context.Background(), "list skills")
	require.NoError(t, err)

	assert.Equal(t, `{"skills":["Go"]}`, out)
	assert.Equal(t, "llama3.1", got["model"])
	assert.Equal(t, "list skills", got["prompt"])
	assert.Equal(t, false, got["stream"])
	assert.InDelta(t, 0.2, got["options"].(map[string]interface{})["temperature"], 0.001)
}

func TestOllamaErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "model not loaded", http.StatusInternalServerError)
		}},
		{"error field", func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(OllamaResponse{Error: "out of memory"})
		}},
		{"timeout", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewOllamaClient(&OllamaConfig{Endpoint: srv.URL, Timeout: 50 * time.Millisecond}, nil, logger.NewTestLogger())
			_, err := c.Complete(context.Background(), "p")
			assert.Error(t, err)
		})
	}
}

package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vietgrow/askgate/internal/metrics"
)

func fakeEmbeddings(t *testing.T, status int, vectors [][]float32, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		data := make([]map[string]any, 0, len(vectors))
		for i, v := range vectors {
			data = append(data, map[string]any{"object": "embedding", "index": i, "embedding": v})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  DefaultEmbeddingModel,
			"usage":  map[string]any{"prompt_tokens": 3, "total_tokens": 3},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestEmbedder(t *testing.T, baseURL string, m *metrics.Metrics) *OpenAIEmbedder {
	t.Helper()
	cfg := fastRetry()
	cfg.MaxRetries = 1
	e, err := NewOpenAIEmbedder(EmbedderConfig{
		BaseURL: baseURL,
		Retry:   cfg,
		Logger:  zaptest.NewLogger(t),
		Metrics: m,
	})
	require.NoError(t, err)
	return e
}

func TestEmbed(t *testing.T) {
	var calls atomic.Int32
	srv := fakeEmbeddings(t, http.StatusOK, [][]float32{{0.5, 0.25, -1}}, &calls)
	m := metrics.New()
	e := newTestEmbedder(t, srv.URL, m)

	vec, err := e.Embed(context.Background(), "how to grow rice")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.25, -1}, vec)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbeddingRequests.WithLabelValues("ok")))
}

func TestEmbedServerError(t *testing.T) {
	var calls atomic.Int32
	srv := fakeEmbeddings(t, http.StatusServiceUnavailable, nil, &calls)
	m := metrics.New()
	e := newTestEmbedder(t, srv.URL, m)

	_, err := e.Embed(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbeddingRequests.WithLabelValues("error")))
}

func TestEmbedUnexpectedShape(t *testing.T) {
	tests := []struct {
		name    string
		vectors [][]float32
	}{
		{"no data", [][]float32{}},
		{"two vectors", [][]float32{{1}, {2}}},
		{"empty vector", [][]float32{{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := fakeEmbeddings(t, http.StatusOK, tt.vectors, &calls)
			e := newTestEmbedder(t, srv.URL, nil)
			_, err := e.Embed(context.Background(), "q")
			assert.Error(t, err)
		})
	}
}

func TestNewOpenAIEmbedder(t *testing.T) {
	_, err := NewOpenAIEmbedder(EmbedderConfig{})
	assert.Error(t, err, "OpenAI cloud needs a key")

	e, err := NewOpenAIEmbedder(EmbedderConfig{BaseURL: "http://localhost:11434/v1"})
	require.NoError(t, err, "compatible servers may run without a key")
	assert.Equal(t, DefaultEmbeddingModel, e.model)
}

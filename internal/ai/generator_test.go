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

// fakeMessages serves the Messages endpoint. status != 200 returns an API error.
func fakeMessages(t *testing.T, status int, text string, calls *atomic.Int32, gotPrompt *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v1/messages", r.URL.Path)

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) && gotPrompt != nil &&
			len(body.Messages) > 0 && len(body.Messages[0].Content) > 0 {
			gotPrompt.Store(body.Messages[0].Content[0].Text)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"boom"}}`))
			return
		}
		resp := map[string]any{
			"id":            "msg_test",
			"type":          "message",
			"role":          "assistant",
			"model":         body.Model,
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"content":       []map[string]any{{"type": "text", "text": text}},
			"usage":         map[string]any{"input_tokens": 7, "output_tokens": 3},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGenerator(t *testing.T, baseURL string, m *metrics.Metrics) *AnthropicGenerator {
	t.Helper()
	cfg := fastRetry()
	cfg.MaxRetries = 1
	g, err := NewAnthropicGenerator(GeneratorConfig{
		APIKey:  "test-key",
		BaseURL: baseURL + "/",
		Retry:   cfg,
		Logger:  zaptest.NewLogger(t),
		Metrics: m,
	})
	require.NoError(t, err)
	return g
}

func TestGenerate(t *testing.T) {
	var calls atomic.Int32
	var prompt atomic.Value
	srv := fakeMessages(t, http.StatusOK, "  Water twice a week.  ", &calls, &prompt)
	m := metrics.New()
	g := newTestGenerator(t, srv.URL, m)

	answer, err := g.Generate(context.Background(), "how often to water rice")
	require.NoError(t, err)
	assert.Equal(t, "Water twice a week.", answer)
	assert.Equal(t, "how often to water rice", prompt.Load())
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenerationRequests.WithLabelValues("ok")))
}

func TestGenerateRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := fakeMessages(t, http.StatusInternalServerError, "", &calls, nil)
	m := metrics.New()
	g := newTestGenerator(t, srv.URL, m)

	_, err := g.Generate(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenerationRequests.WithLabelValues("error")))
}

func TestGenerateDoesNotRetryAuthErrors(t *testing.T) {
	var calls atomic.Int32
	srv := fakeMessages(t, http.StatusUnauthorized, "", &calls, nil)
	g := newTestGenerator(t, srv.URL, nil)

	_, err := g.Generate(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerateEmptyReplyIsError(t *testing.T) {
	var calls atomic.Int32
	srv := fakeMessages(t, http.StatusOK, "   ", &calls, nil)
	g := newTestGenerator(t, srv.URL, nil)

	_, err := g.Generate(context.Background(), "q")
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	var calls atomic.Int32
	var prompt atomic.Value
	srv := fakeMessages(t, http.StatusOK, "People asked about rice.", &calls, &prompt)
	g := newTestGenerator(t, srv.URL, nil)

	out, err := g.Summarize(context.Background(), "summarize this week")
	require.NoError(t, err)
	assert.Equal(t, "People asked about rice.", out)
	assert.Equal(t, "summarize this week", prompt.Load())
}

func TestNewAnthropicGeneratorRequiresKey(t *testing.T) {
	_, err := NewAnthropicGenerator(GeneratorConfig{})
	assert.Error(t, err)

	g, err := NewAnthropicGenerator(GeneratorConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, g.model)
}

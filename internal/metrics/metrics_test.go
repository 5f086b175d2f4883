package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	m := New()
	m.AdmissionChecks.WithLabelValues("allowed").Inc()
	m.AdmissionChecks.WithLabelValues("denied").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdmissionChecks.WithLabelValues("allowed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AdmissionChecks.WithLabelValues("denied")))

	// Two instances must not collide
	other := New()
	assert.Equal(t, 0.0, testutil.ToFloat64(other.AdmissionChecks.WithLabelValues("allowed")))
}

func TestHandlerServesMetrics(t *testing.T) {
	m := New()
	m.TopicsCreated.Add(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "askgate_topics_created_total 3"))
}

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", Result(nil))
	assert.Equal(t, "error", Result(errors.New("x")))
}

package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/vsoc-shm/api"
	"github.com/srediag/vsoc-shm/pkg/e2e"
	"github.com/srediag/vsoc-shm/pkg/layout"
)

var (
	_ api.Observer       = (*PrometheusObserver)(nil)
	_ api.Observer       = (*OTelObserver)(nil)
	_ api.HealthReporter = (*HealthReporter)(nil)
)

func TestResultLabel(t *testing.T) {
	assert.Equal(t, ResultOK, ResultLabel(nil))
	assert.Equal(t, ResultStall, ResultLabel(fmt.Errorf("run: %w", &e2e.StallError{})))
	assert.Equal(t, ResultMismatch, ResultLabel(&e2e.MismatchError{Mismatched: []uint64{1}}))
	assert.Equal(t, ResultCanceled, ResultLabel(context.Canceled))
	assert.Equal(t, ResultError, ResultLabel(errors.New("boom")))
}

func gather(t *testing.T, reg *prometheus.Registry, name string) []*dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f.GetMetric()
		}
	}
	return nil
}

func labels(m *dto.Metric) map[string]string {
	out := make(map[string]string)
	for _, l := range m.GetLabel() {
		out[l.GetName()] = l.GetValue()
	}
	return out
}

func TestPrometheusObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	o, err := NewPrometheusObserver(reg)
	require.NoError(t, err)

	o.StageChanged("e2e_primary", layout.Host, layout.StageMemoryFilled)
	o.StageChanged("e2e_primary", layout.Host, layout.StagePeerMemoryRead)
	o.RunFinished("e2e_primary", layout.Host, 3*time.Millisecond, nil)
	o.RunFinished("e2e_primary", layout.Host, time.Second, &e2e.StallError{})

	stages := gather(t, reg, "vsoc_e2e_stage")
	require.Len(t, stages, 1)
	assert.Equal(t, map[string]string{"region": "e2e_primary", "side": "host"}, labels(stages[0]))
	assert.Equal(t, float64(layout.StagePeerMemoryRead), stages[0].GetGauge().GetValue())

	runs := gather(t, reg, "vsoc_e2e_runs_total")
	require.Len(t, runs, 2)
	byResult := map[string]float64{}
	for _, m := range runs {
		byResult[labels(m)["result"]] = m.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{ResultOK: 1, ResultStall: 1}, byResult)

	durations := gather(t, reg, "vsoc_e2e_run_duration_seconds")
	require.Len(t, durations, 1)
	assert.Equal(t, uint64(2), durations[0].GetHistogram().GetSampleCount())

	_, err = NewPrometheusObserver(reg)
	assert.Error(t, err, "metrics are registered once per registry")
}

func TestOTelObserverWithoutMeter(t *testing.T) {
	o, err := NewOTelObserver(nil)
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		o.StageChanged("e2e_secondary", layout.Guest, layout.StageMemoryFilled)
		o.RunFinished("e2e_secondary", layout.Guest, time.Millisecond, errors.New("boom"))
	})
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, path, nil))
	return rw
}

func TestHealthReporter(t *testing.T) {
	r := NewHealthReporter(100000)
	h := r.Handler()
	assert.Equal(t, http.StatusOK, get(t, h, "/live").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/ready").Code)

	r.ReportHealth("e2e/e2e_primary", nil)
	r.ReportHealth("e2e/e2e_secondary", errors.New("peer stalled"))
	assert.Equal(t, []string{"e2e/e2e_primary", "e2e/e2e_secondary"}, r.Components())
	rw := get(t, h, "/ready?full=1")
	assert.Equal(t, http.StatusServiceUnavailable, rw.Code)
	assert.Contains(t, rw.Body.String(), "peer stalled")
	assert.Equal(t, http.StatusOK, get(t, h, "/live").Code)

	r.ReportHealth("e2e/e2e_secondary", nil)
	assert.Equal(t, http.StatusOK, get(t, h, "/ready").Code)
	reported, err := r.Status("e2e/e2e_secondary")
	assert.True(t, reported)
	assert.NoError(t, err)
	reported, _ = r.Status("e2e/e2e_managed")
	assert.False(t, reported)
}

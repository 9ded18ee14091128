package adapter

import (
	"sort"

	"github.com/heptiolabs/healthcheck"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// HealthReporter turns self-test checks into readiness checks. A component
// is ready once its last reported error is nil; components never reported
// are unknown to the handler.
type HealthReporter struct {
	handler  healthcheck.Handler
	statuses cmap.ConcurrentMap[string, error]
}

// NewHealthReporter returns a reporter serving /live and /ready.
func NewHealthReporter(maxGoroutines int) *HealthReporter {
	h := healthcheck.NewHandler()
	if maxGoroutines > 0 {
		h.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutines))
	}
	return &HealthReporter{
		handler:  h,
		statuses: cmap.New[error](),
	}
}

// ReportHealth implements api.HealthReporter.
func (r *HealthReporter) ReportHealth(component string, err error) {
	if r.statuses.SetIfAbsent(component, err) {
		r.handler.AddReadinessCheck(component, func() error {
			err, _ := r.statuses.Get(component)
			return err
		})
		return
	}
	r.statuses.Set(component, err)
}

// Handler returns the http handler with the /live and /ready endpoints.
func (r *HealthReporter) Handler() healthcheck.Handler {
	return r.handler
}

// Components returns the reported components, sorted.
func (r *HealthReporter) Components() []string {
	keys := r.statuses.Keys()
	sort.Strings(keys)
	return keys
}

// Status returns whether component was reported and its last error.
func (r *HealthReporter) Status(component string) (reported bool, err error) {
	err, reported = r.statuses.Get(component)
	return reported, err
}

// Package api defines the contracts vsoc-shm reports through.
package api

// HealthReporter receives the outcome of a self-test check. A nil err marks
// the component healthy.
type HealthReporter interface {
	ReportHealth(component string, err error)
}

// HealthReporterFunc adapts a function to HealthReporter.
type HealthReporterFunc func(component string, err error)

func (f HealthReporterFunc) ReportHealth(component string, err error) {
	f(component, err)
}

package e2e

import (
	"os"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/srediag/vsoc-shm/api"
	"github.com/srediag/vsoc-shm/internal/logging"
	"github.com/srediag/vsoc-shm/pkg/region"
)

const tracerName = "github.com/srediag/vsoc-shm/pkg/e2e"

type settings struct {
	cfg       Config
	observers []api.Observer
	reporters []api.HealthReporter
	tracer    trace.Tracer
	log       *logging.Logger
	registry  *region.Registry
	domain    string
}

func newSettings(opts []Option) settings {
	s := settings{
		cfg:      DefaultConfig(),
		tracer:   noop.NewTracerProvider().Tracer(tracerName),
		registry: region.DefaultRegistry,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.log == nil {
		s.log = logging.New("e2e", os.Stdout)
	}
	return s
}

// Option configures a Tester or a Suite.
type Option func(*settings)

// WithConfig replaces DefaultConfig.
func WithConfig(c Config) Option {
	return func(s *settings) {
		s.cfg = c
	}
}

// WithObservers adds handshake observers.
func WithObservers(o ...api.Observer) Option {
	return func(s *settings) {
		s.observers = append(s.observers, o...)
	}
}

// WithHealthReporters adds reporters for Suite checks.
func WithHealthReporters(r ...api.HealthReporter) Option {
	return func(s *settings) {
		s.reporters = append(s.reporters, r...)
	}
}

// WithTracer traces every handshake phase with t.
func WithTracer(t trace.Tracer) Option {
	return func(s *settings) {
		s.tracer = t
	}
}

// WithLogger replaces the default logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *settings) {
		s.log = l
	}
}

// WithRegistry makes a Suite open regions through r.
func WithRegistry(r *region.Registry) Option {
	return func(s *settings) {
		s.registry = r
	}
}

// WithDomain makes a Suite open regions in domain.
func WithDomain(domain string) Option {
	return func(s *settings) {
		s.domain = domain
	}
}

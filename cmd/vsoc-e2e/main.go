// Command vsoc-e2e creates shared memory windows and runs the E2E region
// handshake against them.
//
//	vsoc-e2e create -window /dev/shm/vsoc_e2e
//	vsoc-e2e run -window /dev/shm/vsoc_e2e -side host
//	vsoc-e2e run -window /dev/shm/vsoc_e2e -side guest
//	vsoc-e2e run -window "" -side both
//	vsoc-e2e serve -side guest -addr :20000
//	vsoc-e2e layout [-verify tables.yaml]
//	vsoc-e2e dump -window /dev/shm/vsoc_e2e
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/srediag/vsoc-shm/adapter"
	"github.com/srediag/vsoc-shm/internal/logging"
	"github.com/srediag/vsoc-shm/pkg/e2e"
	"github.com/srediag/vsoc-shm/pkg/layout"
	"github.com/srediag/vsoc-shm/pkg/region"
	"github.com/srediag/vsoc-shm/pkg/shm"
)

const instrumentationName = "github.com/srediag/vsoc-shm/cmd/vsoc-e2e"

var errSuitePending = errors.New("self-test has not finished")

type flags struct {
	fs       *flag.FlagSet
	config   string
	window   string
	domain   string
	side     string
	logLevel string
	addr     string
	dataSize uint64
	force    bool
	verify   string
}

func newFlags(name string, stderr io.Writer) *flags {
	f := &flags{fs: flag.NewFlagSet(name, flag.ContinueOnError)}
	f.fs.SetOutput(stderr)
	f.fs.StringVar(&f.config, "config", "", "YAML config file")
	f.fs.StringVar(&f.window, "window", defaultWindow, "window file; empty uses a heap window")
	f.fs.StringVar(&f.domain, "domain", "", "region domain")
	f.fs.StringVar(&f.side, "side", "guest", "host, guest or both")
	f.fs.StringVar(&f.logLevel, "log-level", "", "trace, debug, info, warn, error or none")
	f.fs.StringVar(&f.addr, "addr", defaultAddr, "serve listen address")
	f.fs.Uint64Var(&f.dataSize, "size", shm.DefaultE2EDataSize, "payload size of the primary and secondary regions")
	f.fs.BoolVar(&f.force, "force", false, "create: remove an existing window first")
	f.fs.StringVar(&f.verify, "verify", "", "layout: compare against offset tables from another build")
	return f
}

// load merges defaults, the config file, the environment and set flags,
// later ones winning.
func (f *flags) load() (config, error) {
	cfg, err := loadConfig(f.config)
	if err != nil {
		return cfg, err
	}
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "window":
			cfg.Window = f.window
		case "domain":
			cfg.Domain = f.domain
		case "side":
			cfg.Side = f.side
		case "log-level":
			cfg.LogLevel = f.logLevel
		case "addr":
			cfg.Addr = f.addr
		case "size":
			cfg.DataSize = f.dataSize
		}
	})
	return cfg, cfg.apply()
}

type command struct {
	usage string
	run   func(ctx context.Context, f *flags, stdout io.Writer) error
}

var commands = map[string]command{
	"create": {"create a window holding the E2E regions", cmdCreate},
	"run":    {"run the E2E self-test for a side", cmdRun},
	"serve":  {"run the self-test and serve /live, /ready and /metrics", cmdServe},
	"layout": {"print or verify the shared layout offset tables", cmdLayout},
	"dump":   {"print a window's header and regions", cmdDump},
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: vsoc-e2e <command> [flags]")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-8s %s\n", name, commands[name].usage)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return 2
	}
	f := newFlags(args[0], stderr)
	if err := f.fs.Parse(args[1:]); err != nil {
		return 2
	}
	if err := cmd.run(ctx, f, stdout); err != nil {
		fmt.Fprintf(stderr, "vsoc-e2e %s: %v\n", args[0], err)
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func parseSides(s string) ([]layout.Side, error) {
	if strings.EqualFold(s, "both") {
		return []layout.Side{layout.Host, layout.Guest}, nil
	}
	side, err := layout.ParseSide(strings.ToLower(s))
	if err != nil {
		return nil, err
	}
	return []layout.Side{side}, nil
}

// openWindow attaches to the configured window, or creates a heap window.
func openWindow(ctx context.Context, cfg config, log *logging.Logger) (*shm.Window, error) {
	if cfg.Window == "" {
		return shm.Create(ctx, shm.CreateOptions{Regions: cfg.regions(), Logger: log})
	}
	return shm.Open(ctx, shm.OpenOptions{Path: cfg.Window, Logger: log})
}

// runSuites runs one suite per side concurrently and merges their results.
func runSuites(ctx context.Context, sides []layout.Side, opts ...e2e.Option) ([]e2e.Result, error) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []e2e.Result
		errs    []error
	)
	for _, side := range sides {
		side := side
		s, err := e2e.NewSuite(side, opts...)
		if err != nil {
			return nil, err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := s.Run(ctx)
			mu.Lock()
			defer mu.Unlock()
			results = append(results, r...)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", side, err))
			}
		}()
	}
	wg.Wait()
	return results, errors.Join(errs...)
}

func printResults(w io.Writer, results []e2e.Result) {
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = r.Err.Error()
		}
		fmt.Fprintf(w, "%-18s %-6s %-12s %s\n", r.Check, r.Side, r.Elapsed.Round(time.Microsecond), status)
	}
}

func cmdCreate(ctx context.Context, f *flags, stdout io.Writer) error {
	cfg, err := f.load()
	if err != nil {
		return err
	}
	if cfg.Window == "" {
		return errors.New("create needs a window file")
	}
	log := logging.New("vsoc-e2e", os.Stderr)
	if f.force {
		if err := shm.Remove(cfg.Window); err != nil {
			return err
		}
	}
	w, err := shm.Create(ctx, shm.CreateOptions{Path: cfg.Window, Regions: cfg.regions(), Logger: log})
	if err != nil {
		return err
	}
	return errors.Join(w.Sync(), w.Dump(stdout), w.Close())
}

func cmdRun(ctx context.Context, f *flags, stdout io.Writer) error {
	cfg, err := f.load()
	if err != nil {
		return err
	}
	sides, err := parseSides(cfg.Side)
	if err != nil {
		return err
	}
	log := logging.New("vsoc-e2e", os.Stderr)
	w, err := openWindow(ctx, cfg, log)
	if err != nil {
		return err
	}
	reg := region.NewRegistry()
	reg.Register(cfg.Domain, w)
	results, err := runSuites(ctx, sides,
		e2e.WithRegistry(reg),
		e2e.WithDomain(cfg.Domain),
		e2e.WithConfig(cfg.E2E),
		e2e.WithLogger(log),
	)
	printResults(stdout, results)
	return errors.Join(err, w.Close())
}

func cmdServe(ctx context.Context, f *flags, stdout io.Writer) error {
	cfg, err := f.load()
	if err != nil {
		return err
	}
	sides, err := parseSides(cfg.Side)
	if err != nil {
		return err
	}
	log := logging.New("vsoc-e2e", os.Stderr)

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promObserver, err := adapter.NewPrometheusObserver(metrics)
	if err != nil {
		return err
	}
	otelObserver, err := adapter.NewOTelObserver(otel.GetMeterProvider().Meter(instrumentationName))
	if err != nil {
		return err
	}
	health := adapter.NewHealthReporter(10000)
	health.ReportHealth("e2e/suite", errSuitePending)

	w, err := openWindow(ctx, cfg, log)
	if err != nil {
		return err
	}
	reg := region.NewRegistry()
	reg.Register(cfg.Domain, w)

	suiteCtx, cancelSuite := context.WithCancel(ctx)
	defer cancelSuite()
	suiteDone := make(chan struct{})
	go func() {
		defer close(suiteDone)
		results, err := runSuites(suiteCtx, sides,
			e2e.WithRegistry(reg),
			e2e.WithDomain(cfg.Domain),
			e2e.WithConfig(cfg.E2E),
			e2e.WithLogger(log),
			e2e.WithTracer(otel.Tracer(instrumentationName)),
			e2e.WithObservers(promObserver, otelObserver),
			e2e.WithHealthReporters(health),
		)
		printResults(stdout, results)
		health.ReportHealth("e2e/suite", err)
		if err != nil {
			log.Errorf("self-test failed: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics, promhttp.HandlerOpts{}))
	mux.HandleFunc("/live", health.Handler().LiveEndpoint)
	mux.HandleFunc("/ready", health.Handler().ReadyEndpoint)
	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("serving on %s", cfg.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = srv.Shutdown(shutdownCtx)
	case err = <-serveErr:
	}
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	if err != nil {
		cancelSuite()
	}
	<-suiteDone
	return errors.Join(err, w.Close())
}

func cmdLayout(ctx context.Context, f *flags, stdout io.Writer) error {
	if _, err := f.load(); err != nil {
		return err
	}
	if f.verify != "" {
		data, err := os.ReadFile(f.verify)
		if err != nil {
			return err
		}
		if err := layout.CompareTables(data); err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, "layouts match")
		return err
	}
	if err := layout.VerifyCatalog(); err != nil {
		return err
	}
	data, err := layout.MarshalTables()
	if err != nil {
		return err
	}
	_, err = stdout.Write(data)
	return err
}

func cmdDump(ctx context.Context, f *flags, stdout io.Writer) error {
	cfg, err := f.load()
	if err != nil {
		return err
	}
	if cfg.Window == "" {
		return errors.New("dump needs a window file")
	}
	return shm.DebugWindowDetail(stdout, cfg.Window)
}

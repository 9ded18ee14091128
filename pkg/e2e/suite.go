package e2e

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/panjf2000/ants/v2"

	"github.com/srediag/vsoc-shm/pkg/layout"
	"github.com/srediag/vsoc-shm/pkg/region"
)

// Result is the outcome of one Suite check.
type Result struct {
	// Check is the region the check ran on.
	Check   string
	Side    layout.Side
	Elapsed time.Duration
	Err     error
}

// Suite is the boot self-test of one side: the primary and secondary
// handshakes, the unfindable region and the manager/managed pair.
type Suite struct {
	settings
	side layout.Side
}

// NewSuite returns the suite for side.
func NewSuite(side layout.Side, opts ...Option) (*Suite, error) {
	s := &Suite{settings: newSettings(opts), side: side}
	if err := VerifyConfig(s.cfg); err != nil {
		return nil, err
	}
	return s, nil
}

type check struct {
	name string
	run  func(ctx context.Context) error
}

type indexedResult struct {
	index int
	Result
}

func (s *Suite) checks() []check {
	return []check{
		{layout.E2EPrimaryRegionName, func(ctx context.Context) error {
			return runHandshake[layout.E2EPrimaryTestRegionLayout](ctx, s)
		}},
		{layout.E2ESecondaryRegionName, func(ctx context.Context) error {
			return runHandshake[layout.E2ESecondaryTestRegionLayout](ctx, s)
		}},
		{layout.E2EUnfindableRegionName, s.checkUnfindable},
		{layout.E2EManagedRegionName, s.checkManaged},
	}
}

// Run executes every check on a worker pool and returns the results in
// check order together with the joined errors of the failed ones.
func (s *Suite) Run(ctx context.Context) ([]Result, error) {
	pool, err := ants.NewPool(s.cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("e2e suite: %w", err)
	}
	defer pool.Release()

	checks := s.checks()
	done := queue.New(int64(len(checks)))
	defer done.Dispose()

	for i, c := range checks {
		i, c := i, c
		task := func() {
			start := time.Now()
			err := s.guard(ctx, c)
			_ = done.Put(indexedResult{i, Result{Check: c.name, Side: s.side, Elapsed: time.Since(start), Err: err}})
		}
		if err := pool.Submit(task); err != nil {
			_ = done.Put(indexedResult{i, Result{Check: c.name, Side: s.side, Err: err}})
		}
	}

	results := make([]Result, len(checks))
	for got := 0; got < len(checks); {
		items, err := done.Get(int64(len(checks) - got))
		if err != nil {
			return nil, fmt.Errorf("e2e suite: %w", err)
		}
		for _, item := range items {
			r := item.(indexedResult)
			results[r.index] = r.Result
			got++
		}
	}

	var errs []error
	for _, r := range results {
		for _, h := range s.reporters {
			h.ReportHealth("e2e/"+r.Check, r.Err)
		}
		if r.Err != nil {
			s.log.Errorf("%s %s: check failed: %v", r.Check, r.Side, r.Err)
			errs = append(errs, r.Err)
		}
	}
	return results, errors.Join(errs...)
}

// guard runs c, turning a panic into its error.
func (s *Suite) guard(ctx context.Context, c check) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", c.name, r)
		}
	}()
	return c.run(ctx)
}

func (s *Suite) viewOptions() []region.ViewOption {
	return []region.ViewOption{
		region.WithRegistry(s.registry),
		region.WithDomain(s.domain),
		region.WithLogger(s.log),
	}
}

func (s *Suite) testerOptions() []Option {
	return []Option{
		WithConfig(s.cfg),
		WithObservers(s.observers...),
		WithTracer(s.tracer),
		WithLogger(s.log),
	}
}

func runHandshake[L layout.TestRegionLayout, P headerLayout[L]](ctx context.Context, s *Suite) error {
	v := region.NewView[L](s.viewOptions()...)
	if err := v.Open(ctx); err != nil {
		return err
	}
	defer func() { _ = v.Close() }()
	r, err := FromView[L, P](v)
	if err != nil {
		return err
	}
	t, err := NewTester(r, s.side, s.testerOptions()...)
	if err != nil {
		return err
	}
	return t.Run(ctx)
}

func (s *Suite) checkUnfindable(ctx context.Context) error {
	v := region.NewView[layout.E2EUnfindableRegionLayout](s.viewOptions()...)
	err := v.Open(ctx)
	if err == nil {
		_ = v.Close()
		return fmt.Errorf("%w: %s", ErrUnexpectedRegion, v.Name())
	}
	if errors.Is(err, region.ErrRegionNotFound) {
		return nil
	}
	return err
}

func (s *Suite) checkManaged(ctx context.Context) error {
	mgr := region.NewView[layout.E2EManagerTestRegionLayout](s.viewOptions()...)
	if err := mgr.Open(ctx); err != nil {
		return err
	}
	defer func() { _ = mgr.Close() }()
	managed, err := region.OpenManaged[layout.E2EManagedTestRegionLayout](ctx, mgr)
	if err != nil {
		return err
	}
	return managed.Close()
}

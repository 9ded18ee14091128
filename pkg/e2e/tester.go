package e2e

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/Workiva/go-datastructures/bitarray"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/vsoc-shm/pkg/layout"
)

// Tester runs one side of the handshake on one region:
//
//  1. fill the own half of every record, publish MEMORY_FILLED
//  2. wait for the peer's MEMORY_FILLED
//  3. verify the peer half of every record, publish PEER_MEMORY_READ
//
// Either side may start first. Stage registers only move forward.
type Tester struct {
	settings
	region  *Region
	side    layout.Side
	records []layout.E2EMemoryFill
	own     *layout.StageRegister
	peer    *layout.StageRegister
}

// NewTester returns the side tester of r. Regions that hold no fill record
// fail with ErrDegenerateRegion.
func NewTester(r *Region, side layout.Side, opts ...Option) (*Tester, error) {
	n := layout.NumFillRecords(r.DataSize)
	if n == 0 {
		return nil, fmt.Errorf("%s: %w: data size %d is below %d", r.Name, ErrDegenerateRegion, r.DataSize, layout.E2ETestRegionLayoutSize)
	}
	t := &Tester{
		settings: newSettings(opts),
		region:   r,
		side:     side,
		records:  r.Layout.FillRecords(n),
		own:      r.Layout.Status(side),
		peer:     r.Layout.Status(side.Peer()),
	}
	if err := VerifyConfig(t.cfg); err != nil {
		return nil, err
	}
	return t, nil
}

// Side returns the side t runs.
func (t *Tester) Side() layout.Side {
	return t.side
}

// Region returns the region t runs on.
func (t *Tester) Region() *Region {
	return t.region
}

// Records returns the number of fill records covering the region.
func (t *Tester) Records() uint64 {
	return uint64(len(t.records))
}

// Stage returns the own register.
func (t *Tester) Stage() layout.Stage {
	return t.own.Value()
}

// PeerStage returns the peer register.
func (t *Tester) PeerStage() layout.Stage {
	return t.peer.Value()
}

func (t *Tester) attrs() trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.String("vsoc.region", t.region.Name),
		attribute.String("vsoc.side", t.side.String()),
	)
}

// publish raises the own register to stage. Only this side writes it.
func (t *Tester) publish(stage layout.Stage) {
	if t.own.Value() >= stage {
		return
	}
	t.own.SetValue(stage)
	t.log.Debugf("%s %s: stage %s", t.region.Name, t.side, stage)
	for _, o := range t.observers {
		o.StageChanged(t.region.Name, t.side, stage)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// FillOwn writes the own pattern into the own half of every record and then
// publishes MEMORY_FILLED. It may be called again; the content is the same.
func (t *Tester) FillOwn(ctx context.Context) error {
	_, span := t.tracer.Start(ctx, "e2e.fill", t.attrs())
	if err := ctx.Err(); err != nil {
		endSpan(span, err)
		return err
	}
	pattern := t.region.Pattern(t.side)
	for i := range t.records {
		copy(t.records[i].Writable(t.side), pattern[:])
	}
	t.publish(layout.StageMemoryFilled)
	span.SetAttributes(attribute.Int64("vsoc.records", int64(len(t.records))))
	endSpan(span, nil)
	return nil
}

// WaitForPeer polls the peer register until it reaches want. It gives up
// with a *StallError after Config.StallTimeout, or with ctx's error.
func (t *Tester) WaitForPeer(ctx context.Context, want layout.Stage) (err error) {
	ctx, span := t.tracer.Start(ctx, "e2e.wait", t.attrs(), trace.WithAttributes(attribute.String("vsoc.want", want.String())))
	defer func() { endSpan(span, err) }()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.cfg.PollInterval
	b.MaxInterval = t.cfg.MaxPollInterval
	b.MaxElapsedTime = 0
	b.Reset()

	start := time.Now()
	var got layout.Stage
	err = backoff.Retry(func() error {
		if got = t.peer.Value(); got >= want {
			return nil
		}
		if t.cfg.StallTimeout > 0 && time.Since(start) >= t.cfg.StallTimeout {
			return backoff.Permanent(errNotYet)
		}
		return errNotYet
	}, backoff.WithContext(b, ctx))
	if err == nil {
		t.log.Debugf("%s %s: peer reached %s after %s", t.region.Name, t.side, got, time.Since(start))
		return nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	err = &StallError{
		Region: t.region.Name,
		Side:   t.side,
		Want:   want,
		Got:    got,
		Waited: time.Since(start),
	}
	t.log.Warnf("%v", err)
	return err
}

// VerifyPeer checks the peer half of every record against the peer pattern.
// On success it publishes PEER_MEMORY_READ. On a mismatch the own register
// stays where it is and a *MismatchError lists the bad records.
func (t *Tester) VerifyPeer(ctx context.Context) (err error) {
	_, span := t.tracer.Start(ctx, "e2e.verify", t.attrs())
	defer func() { endSpan(span, err) }()
	if err = ctx.Err(); err != nil {
		return err
	}

	peer := t.side.Peer()
	want := t.region.Pattern(peer)
	bad := bitarray.NewBitArray(uint64(len(t.records)))
	var first layout.Pattern
	found := false
	for i := range t.records {
		got := t.records[i].Writable(peer)
		if bytes.Equal(got, want[:]) {
			continue
		}
		if !found {
			copy(first[:], got)
			found = true
		}
		if err := bad.SetBit(uint64(i)); err != nil {
			return err
		}
	}
	if found {
		err = &MismatchError{
			Region:     t.region.Name,
			Side:       t.side,
			Records:    uint64(len(t.records)),
			Mismatched: bad.ToNums(),
			Want:       want,
			Got:        first,
		}
		t.log.Errorf("%v", err)
		return err
	}
	t.publish(layout.StagePeerMemoryRead)
	return nil
}

// Run performs the full handshake. With Config.AwaitPeerCompletion it also
// waits until the peer has read the own half.
func (t *Tester) Run(ctx context.Context) (err error) {
	start := time.Now()
	ctx, span := t.tracer.Start(ctx, "e2e.run", t.attrs())
	defer func() {
		elapsed := time.Since(start)
		endSpan(span, err)
		for _, o := range t.observers {
			o.RunFinished(t.region.Name, t.side, elapsed, err)
		}
		if err == nil {
			t.log.Infof("%s %s: handshake done in %s, %d records", t.region.Name, t.side, elapsed, len(t.records))
		}
	}()

	if err = t.FillOwn(ctx); err != nil {
		return err
	}
	if err = t.WaitForPeer(ctx, layout.StageMemoryFilled); err != nil {
		return err
	}
	if err = t.VerifyPeer(ctx); err != nil {
		return err
	}
	if t.cfg.AwaitPeerCompletion {
		return t.WaitForPeer(ctx, layout.StagePeerMemoryRead)
	}
	return nil
}

package api

import (
	"time"

	"github.com/srediag/vsoc-shm/pkg/layout"
)

// Observer follows E2E handshakes. Calls may come from several goroutines.
type Observer interface {
	// StageChanged is called after side publishes stage on region.
	StageChanged(region string, side layout.Side, stage layout.Stage)
	// RunFinished is called once per handshake run with its outcome.
	RunFinished(region string, side layout.Side, elapsed time.Duration, err error)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) StageChanged(string, layout.Side, layout.Stage) {}

func (NopObserver) RunFinished(string, layout.Side, time.Duration, error) {}

// Package adapter exports E2E handshake events to metrics and health
// endpoints.
package adapter

import (
	"context"
	"errors"

	"github.com/srediag/vsoc-shm/pkg/e2e"
)

// Result labels of a finished run.
const (
	ResultOK       = "ok"
	ResultStall    = "stall"
	ResultMismatch = "mismatch"
	ResultCanceled = "canceled"
	ResultError    = "error"
)

// ResultLabel classifies the error of a finished run.
func ResultLabel(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, e2e.ErrStall):
		return ResultStall
	case errors.Is(err, e2e.ErrContentMismatch):
		return ResultMismatch
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ResultCanceled
	}
	return ResultError
}

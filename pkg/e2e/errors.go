package e2e

import (
	"errors"
	"fmt"
	"time"

	"github.com/srediag/vsoc-shm/pkg/layout"
)

var (
	// ErrDegenerateRegion is returned for regions too small to hold a fill record.
	ErrDegenerateRegion = errors.New("region holds no fill records")
	// ErrStall matches every *StallError.
	ErrStall = errors.New("peer stalled")
	// ErrContentMismatch matches every *MismatchError.
	ErrContentMismatch = errors.New("peer memory content mismatch")
	// ErrUnexpectedRegion is returned when a region that must not exist opens.
	ErrUnexpectedRegion = errors.New("region must not be found")

	errNotYet = errors.New("peer stage not reached")
)

// StallError reports a peer that did not reach a stage in time.
type StallError struct {
	Region string
	Side   layout.Side
	Want   layout.Stage
	Got    layout.Stage
	Waited time.Duration
}

func (e *StallError) Error() string {
	return fmt.Sprintf("%s %s: %s waited %s for %s peer to reach %s, peer is at %s",
		e.Region, e.Side, ErrStall, e.Waited, e.Side.Peer(), e.Want, e.Got)
}

func (e *StallError) Is(target error) bool {
	return target == ErrStall
}

// MismatchError reports fill records whose peer half does not hold the peer
// pattern.
type MismatchError struct {
	Region string
	Side   layout.Side
	// Records is the number of records checked.
	Records uint64
	// Mismatched lists the indices of bad records in ascending order.
	Mismatched []uint64
	Want       layout.Pattern
	// Got is the content of the first bad record.
	Got layout.Pattern
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s %s: %s in %d of %d records, first at %d: got %q want %q",
		e.Region, e.Side, ErrContentMismatch, len(e.Mismatched), e.Records, e.Mismatched[0], e.Got, e.Want)
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrContentMismatch
}

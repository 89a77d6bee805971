package app

import "github.com/dkeye/Buster/internal/domain"

type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	CloseContext
)

// BackpressurePolicy decides what happens to a context whose outbound queue
// is full. dropped counts consecutive dropped frames.
type BackpressurePolicy interface {
	OnBackpressure(ref domain.ContextRef, dropped int64) BackpressureAction
}

// ThresholdPolicy drops frames until MaxDropped in a row, then closes the
// context so its agent reconnects with a fresh queue.
type ThresholdPolicy struct {
	MaxDropped int64
}

func (p ThresholdPolicy) OnBackpressure(_ domain.ContextRef, dropped int64) BackpressureAction {
	if p.MaxDropped > 0 && dropped >= p.MaxDropped {
		return CloseContext
	}
	return DropFrame
}

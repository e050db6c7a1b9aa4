package status

import (
	"context"
	"sync/atomic"
	"time"

	"statusbot/internal/transport"
)

type entryState int32

const (
	entryActive entryState = iota
	entryStopped
	entryOrphaned
)

func (s entryState) String() string {
	switch s {
	case entryActive:
		return "active"
	case entryStopped:
		return "stopped"
	default:
		return "orphaned"
	}
}

// entry is the in-memory schedule of one published report.
type entry struct {
	id            string
	targetID      string
	ref           transport.MessageRef
	settings      Settings
	chartInterval time.Duration // jittered once, at creation

	// lastChartAt is only touched by the entry's own tick.
	lastChartAt time.Time

	state  atomic.Int32
	cancel context.CancelFunc
	onStop func(e *entry)
}

func (e *entry) current() entryState { return entryState(e.state.Load()) }

func (e *entry) active() bool { return e.current() == entryActive }

// transition moves an active entry to a terminal state and cancels its context.
// Only the first transition wins.
func (e *entry) transition(to entryState) bool {
	if !e.state.CompareAndSwap(int32(entryActive), int32(to)) {
		return false
	}
	if e.cancel != nil {
		e.cancel()
	}
	return true
}

// Cancel stops the entry (STOPPED). It implements Handle.
func (e *entry) Cancel() {
	if e.transition(entryStopped) && e.onStop != nil {
		e.onStop(e)
	}
}

func (e *entry) chartDue(now time.Time) bool {
	return e.lastChartAt.IsZero() || now.Sub(e.lastChartAt) >= e.chartInterval
}

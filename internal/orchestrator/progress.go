package orchestrator

import (
	"github.com/joss/flowctl/internal/logging"
)

// ProgressSink receives execution snapshots as the scheduler advances.
// Notify must not block: the scheduler calls it inline.
type ProgressSink interface {
	Notify(snap Snapshot)
}

// ChannelSink delivers snapshots over a bounded channel. When the
// buffer is full the oldest snapshot is dropped, so a slow consumer
// sees fresh state and never stalls the scheduler.
type ChannelSink struct {
	ch chan Snapshot
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(size int) *ChannelSink {
	if size <= 0 {
		size = 16
	}
	return &ChannelSink{ch: make(chan Snapshot, size)}
}

// Events returns the receive side for consumers.
func (s *ChannelSink) Events() <-chan Snapshot {
	return s.ch
}

// Notify enqueues the snapshot, evicting the oldest entry if needed.
func (s *ChannelSink) Notify(snap Snapshot) {
	for {
		select {
		case s.ch <- snap:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// FuncSink adapts a callback into a sink. A panicking callback is
// contained so a broken observer cannot take down an execution.
type FuncSink struct {
	fn  func(Snapshot)
	log *logging.Logger
}

// NewFuncSink wraps fn as a ProgressSink.
func NewFuncSink(fn func(Snapshot)) *FuncSink {
	return &FuncSink{fn: fn, log: logging.New("progress")}
}

// Notify invokes the callback, recovering panics.
func (s *FuncSink) Notify(snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("progress_callback_panic", map[string]interface{}{
				"execution": snap.ExecutionID,
				"panic":     r,
			}, nil)
		}
	}()
	s.fn(snap)
}

// MultiSink fans a snapshot out to several sinks.
type MultiSink []ProgressSink

// Notify delivers the snapshot to every sink in order.
func (m MultiSink) Notify(snap Snapshot) {
	for _, s := range m {
		s.Notify(snap)
	}
}

package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysShub/gamecap"
	"github.com/lysShub/netkit/debug"
)

// Recorder capture counters
type Recorder interface {
	IncTotalPackets()
	IncDroppedPackets()
	IncPassedPackets()
}

// Event a diverted packet, with the tunnel it should be relayed by.
type Event struct {
	Descriptor
	Tunnel gamecap.TunnelConfig
}

func (e Event) SessionID() string { return e.Tunnel.SessionID }

// Sink relay collaborator consume divert events, called on a dedicated
// goroutine, never on the capture loop. Divert should not block: Stop waits
// the queued events drained, only up to a drain timeout.
type Sink interface {
	Divert(e Event)
}

type SinkFunc func(e Event)

func (f SinkFunc) Divert(e Event) { f(e) }

type logSink struct{ logger *slog.Logger }

// LogSink only log the diverted packet
func LogSink(logger *slog.Logger) Sink { return &logSink{logger: logger} }

func (s *logSink) Divert(e Event) {
	level := slog.LevelDebug
	if debug.Debug() {
		level = slog.LevelInfo
	}
	s.logger.Log(context.Background(), level, "redirect",
		slog.String("flow", e.Descriptor.String()),
		slog.Int("payload", len(e.Payload)),
		slog.String("node", e.Tunnel.Node().String()),
		slog.String("session", e.Tunnel.SessionID),
	)
}

// Redirector count redirected packet and hand it off to sink by a bounded
// queue, a full queue drop the event.
type Redirector struct {
	tunnel   gamecap.TunnelConfig
	sink     Sink
	recorder Recorder
	logger   *slog.Logger

	events chan Event
	done   chan struct{}
}

func NewRedirector(tunnel gamecap.TunnelConfig, sink Sink, recorder Recorder, queue int, logger *slog.Logger) *Redirector {
	if queue <= 0 {
		queue = 1
	}
	var r = &Redirector{
		tunnel:   tunnel,
		sink:     sink,
		recorder: recorder,
		logger:   logger,
		events:   make(chan Event, queue),
		done:     make(chan struct{}),
	}
	go r.drainService()
	return r
}

// Redirect the packet is consumed, always handled.
func (r *Redirector) Redirect(d Descriptor) (handled bool) {
	r.recorder.IncTotalPackets()

	select {
	case r.events <- Event{Descriptor: d, Tunnel: r.tunnel}:
	default:
		r.recorder.IncDroppedPackets()
		r.logger.Warn("redirect queue overflow", slog.String("flow", d.String()))
	}
	return true
}

func (r *Redirector) drainService() {
	defer close(r.done)
	for e := range r.events {
		r.divert(e)
	}
}

func (r *Redirector) divert(e Event) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error(fmt.Sprintf("sink panic: %v", p), slog.String("flow", e.Descriptor.String()))
		}
	}()
	r.sink.Divert(e)
}

// Close wait queued events consumed at most timeout, return false if the
// sink not drained in time, the remaining events are consumed in background.
// Must not call Redirect after Close.
func (r *Redirector) Close(timeout time.Duration) (drained bool) {
	close(r.events)

	var timer = time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-r.done:
		return true
	case <-timer.C:
		r.logger.Warn("redirect sink drain timeout",
			slog.Duration("timeout", timeout),
			slog.Int("pending", len(r.events)),
		)
		return false
	}
}

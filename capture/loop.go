package capture

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/lysShub/gamecap/divert"
	"github.com/lysShub/netkit/debug"
	"github.com/lysShub/netkit/errorx"
	"github.com/lysShub/netkit/packet"
	"github.com/pkg/errors"
)

// MaxPacketSize largest packet the diversion facility can hand over, a
// smaller receive buffer would fail on large (LSO/GSO) outbound segments.
const MaxPacketSize = 40 + 0xffff

type Config struct {
	Game     string
	Database Lookuper
	Policy   *Policy
	Redirect *Redirector
	Recorder Recorder

	// MaxRecvBuff raised to MaxPacketSize if smaller
	MaxRecvBuff int
	Logger      *slog.Logger
}

// Loop capture service, receive packet from handle, redirect it or
// re-inject it unchanged.
type Loop struct {
	config *Config
	handle divert.Handle

	stopping atomic.Bool
	stopOnce sync.Once
	done     chan struct{}
}

func Start(handle divert.Handle, config *Config) *Loop {
	var l = &Loop{
		config: config,
		handle: handle,
		done:   make(chan struct{}),
	}
	go l.captureService()
	return l
}

func (l *Loop) captureService() {
	defer close(l.done)

	var (
		size = max(l.config.MaxRecvBuff, MaxPacketSize)
		ip   = packet.Make(0, size)
		addr divert.Address
	)
	for !l.stopping.Load() {
		n, err := l.handle.Recv(ip.Sets(0, size).Bytes(), &addr)
		if err != nil {
			if l.stopping.Load() || errors.Is(err, divert.ErrClosed) {
				return
			}
			l.config.Logger.Warn(err.Error(), errorx.Trace(err))
			continue
		} else if n == 0 {
			continue
		}
		ip.SetData(n)

		if l.process(ip.Bytes()) {
			continue
		}

		if _, err = l.handle.Send(ip.Bytes(), &addr); err != nil {
			if l.stopping.Load() || errors.Is(err, divert.ErrClosed) {
				return
			}
			l.config.Logger.Warn(err.Error(), errorx.Trace(err))
			continue
		}
		l.config.Recorder.IncPassedPackets()
	}
}

// process return true if the packet is redirected
func (l *Loop) process(ip []byte) (redirected bool) {
	defer func() {
		if p := recover(); p != nil {
			l.config.Logger.Error(fmt.Sprintf("process packet panic: %v", p))
			redirected = false
		}
	}()

	d, err := Classify(ip)
	if err != nil {
		if debug.Debug() && !errors.Is(err, ErrNotApplicable) {
			l.config.Logger.Debug(err.Error(), errorx.Trace(err))
		}
		return false
	}

	if !l.config.Policy.ShouldRedirect(d, l.config.Game, l.config.Database) {
		return false
	}
	return l.config.Redirect.Redirect(d)
}

// Stop set stop flag, close the handle and wait the loop exited.
func (l *Loop) Stop() (err error) {
	l.stopOnce.Do(func() {
		l.stopping.Store(true)
		err = l.handle.Close()
	})
	<-l.done
	return err
}

// Done closed when the loop exited
func (l *Loop) Done() <-chan struct{} { return l.done }

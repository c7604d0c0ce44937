package capture_test

import (
	"io"
	"log/slog"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/lysShub/gamecap"
	"github.com/lysShub/gamecap/capture"
	"github.com/lysShub/gamecap/metrics"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewJSONHandler(io.Discard, nil))

var tunnel = gamecap.TunnelConfig{
	NodeIP:    netip.MustParseAddr("10.0.0.1"),
	NodePort:  8080,
	SessionID: "s-1",
	Enabled:   true,
}

func Test_Redirector(t *testing.T) {
	t.Run("deliver", func(t *testing.T) {
		var (
			mu     sync.Mutex
			events []capture.Event
		)
		sink := capture.SinkFunc(func(e capture.Event) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		})
		m := metrics.New()
		r := capture.NewRedirector(tunnel, sink, m, 16, discard)

		for i := 0; i < 4; i++ {
			require.True(t, r.Redirect(desc(7001)))
		}
		require.True(t, r.Close(time.Second))

		require.Len(t, events, 4)
		require.Equal(t, "s-1", events[0].SessionID())
		require.Equal(t, uint16(7001), events[0].Dst.Port())
		require.Equal(t, uint64(4), m.Get().TotalPackets)
		require.Zero(t, m.Get().DroppedPackets)
	})

	t.Run("overflow", func(t *testing.T) {
		var block = make(chan struct{})
		var entered = make(chan struct{}, 1)
		sink := capture.SinkFunc(func(e capture.Event) {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-block
		})
		m := metrics.New()
		r := capture.NewRedirector(tunnel, sink, m, 1, discard)

		require.True(t, r.Redirect(desc(7001)))
		<-entered // first event hold by sink
		require.True(t, r.Redirect(desc(7001)))
		require.True(t, r.Redirect(desc(7001)))

		close(block)
		require.True(t, r.Close(time.Second))

		require.Equal(t, uint64(3), m.Get().TotalPackets)
		require.Equal(t, uint64(1), m.Get().DroppedPackets)
	})

	t.Run("sink panic", func(t *testing.T) {
		var n int
		sink := capture.SinkFunc(func(e capture.Event) {
			n++
			if n == 1 {
				panic("relay")
			}
		})
		r := capture.NewRedirector(tunnel, sink, metrics.New(), 4, discard)
		r.Redirect(desc(7001))
		r.Redirect(desc(7001))
		require.True(t, r.Close(time.Second))
		require.Equal(t, 2, n)
	})

	t.Run("blocked sink", func(t *testing.T) {
		var block = make(chan struct{})
		defer close(block)
		sink := capture.SinkFunc(func(e capture.Event) { <-block })
		r := capture.NewRedirector(tunnel, sink, metrics.New(), 4, discard)
		r.Redirect(desc(7001))
		r.Redirect(desc(7001))

		start := time.Now()
		require.False(t, r.Close(time.Millisecond*50))
		require.Less(t, time.Since(start), time.Second)
	})

	t.Run("log sink", func(t *testing.T) {
		sink := capture.LogSink(discard)
		sink.Divert(capture.Event{Descriptor: desc(7001), Tunnel: tunnel})
	})
}

package engine_test

import (
	"io"
	"log/slog"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/lysShub/gamecap"
	"github.com/lysShub/gamecap/capture"
	"github.com/lysShub/gamecap/divert"
	"github.com/lysShub/gamecap/engine"
	"github.com/lysShub/gamecap/internal/testpkt"
	"github.com/lysShub/gamecap/process"
	"github.com/lysShub/rawsock/test"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

var valorant = gamecap.Game{ID: "valorant", Keywords: []string{"valorant.exe"}, Ports: []uint16{7000, 7001, 7002}}

var tunnel = gamecap.TunnelConfig{
	NodeIP:    netip.MustParseAddr("10.0.0.1"),
	NodePort:  8080,
	SessionID: "session-1",
	Enabled:   true,
}

const (
	wait  = time.Second * 2
	check = time.Millisecond * 5
)

type env struct {
	mem    *divert.Memory
	e      *engine.Engine
	events chan capture.Event
}

func newEnv(t *testing.T, procs ...process.Process) *env {
	if procs == nil {
		procs = []process.Process{{Pid: 4, Name: "System"}, {Pid: 1021, Name: "VALORANT.exe"}}
	}
	var v = &env{
		mem:    divert.NewMemory(16),
		events: make(chan capture.Event, 16),
	}
	v.e = engine.New(v.mem, process.Static(procs), &engine.Config{
		Logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Sink:   capture.SinkFunc(func(e capture.Event) { v.events <- e }),
	})
	v.e.SetAppDatabase([]gamecap.Game{valorant})
	t.Cleanup(func() { v.e.Close() })
	return v
}

func Test_Engine(t *testing.T) {
	var (
		src  = netip.AddrPortFrom(test.RandIP(), test.RandPort())
		addr = divert.Address{Outbound: true, IfIdx: 1}
	)

	t.Run("end to end", func(t *testing.T) {
		v := newEnv(t)

		require.True(t, v.e.Start("valorant", tunnel))
		require.True(t, v.e.IsCapturing())
		require.Equal(t, []string{"outbound and (processId == 1021)"}, v.mem.Filters())

		udp := testpkt.UDP(src, netip.MustParseAddrPort("1.2.3.4:7001"), []byte("game"))
		v.mem.Inject(udp, addr)
		e := <-v.events
		require.Equal(t, gamecap.UDP, e.Proto)
		require.Equal(t, uint16(7001), e.Dst.Port())
		require.Equal(t, "session-1", e.SessionID())
		require.Equal(t, uint16(gamecap.DefaultLocalProxyPort), e.Tunnel.LocalProxyPort)
		require.Equal(t, uint64(1), v.e.Metrics().TotalPackets)

		tcp := testpkt.TCP(src, netip.MustParseAddrPort("1.2.3.4:9999"), []byte("web"))
		v.mem.Inject(tcp, addr)
		require.Eventually(t, func() bool { return len(v.mem.Sent()) == 1 }, wait, check)

		sent := v.mem.Sent()
		require.Equal(t, tcp, sent[0].IP)
		require.Equal(t, addr, sent[0].Addr)
		require.Equal(t, uint64(1), v.e.Metrics().TotalPackets)

		require.True(t, v.e.Stop())
		require.False(t, v.e.IsCapturing())
		require.Len(t, v.mem.Sent(), 1)
	})

	t.Run("stop idempotent", func(t *testing.T) {
		v := newEnv(t)

		require.True(t, v.e.Stop())
		require.True(t, v.e.Start("valorant", tunnel))
		require.True(t, v.e.Stop())
		require.True(t, v.e.Stop())
		require.False(t, v.e.IsCapturing())
		require.Equal(t, engine.Idle, v.e.State())
	})

	t.Run("restart", func(t *testing.T) {
		v := newEnv(t)

		require.True(t, v.e.Start("valorant", tunnel))
		require.True(t, v.e.Stop())
		require.True(t, v.e.Start("valorant", tunnel))
		require.True(t, v.e.IsCapturing())

		v.mem.Inject(testpkt.UDP(src, netip.MustParseAddrPort("1.2.3.4:7000"), nil), addr)
		e := <-v.events
		require.Equal(t, uint16(7000), e.Dst.Port())
	})

	t.Run("start while capturing", func(t *testing.T) {
		v := newEnv(t)

		require.True(t, v.e.Start("valorant", tunnel))
		require.False(t, v.e.Start("valorant", tunnel))
		require.True(t, errors.Is(v.e.Err(), engine.ErrCapturing))
		require.True(t, v.e.IsCapturing())
		require.Len(t, v.mem.Filters(), 1)
	})

	t.Run("no process", func(t *testing.T) {
		v := newEnv(t, process.Process{Pid: 1023, Name: "chrome.exe"})

		require.False(t, v.e.IsAppRunning("valorant"))
		require.False(t, v.e.Start("valorant", tunnel))
		require.True(t, errors.Is(v.e.Err(), engine.ErrNoProcess))
		require.False(t, v.e.IsCapturing())
		require.Empty(t, v.mem.Filters())
	})

	t.Run("unknown game", func(t *testing.T) {
		v := newEnv(t)

		require.False(t, v.e.IsAppRunning("unknown"))
		require.False(t, v.e.Start("unknown", tunnel))
		require.True(t, errors.Is(v.e.Err(), engine.ErrNoProcess))
	})

	t.Run("open fail", func(t *testing.T) {
		v := newEnv(t)
		v.mem.SetOpenErr(divert.ErrNotSupported)

		require.False(t, v.e.Initialize())
		require.True(t, errors.Is(v.e.Err(), divert.ErrNotSupported))
		require.False(t, v.e.Start("valorant", tunnel))
		require.False(t, v.e.IsCapturing())

		v.mem.SetOpenErr(nil)
		require.True(t, v.e.Start("valorant", tunnel))
	})

	t.Run("initialize", func(t *testing.T) {
		v := newEnv(t)

		require.True(t, v.e.Initialize())
		require.Equal(t, []string{"false"}, v.mem.Filters())
		require.False(t, v.e.IsCapturing())
	})

	t.Run("is app running", func(t *testing.T) {
		v := newEnv(t)
		require.True(t, v.e.IsAppRunning("valorant"))

		v.e.SetAppDatabase(nil)
		require.False(t, v.e.IsAppRunning("valorant"))
		require.Empty(t, v.e.Games())
	})

	t.Run("handle invalidated", func(t *testing.T) {
		v := newEnv(t)

		require.True(t, v.e.Start("valorant", tunnel))
		v.mem.InjectErr(errors.WithStack(divert.ErrClosed))
		require.Eventually(t, func() bool { return !v.e.IsCapturing() }, wait, check)

		require.True(t, v.e.Stop())
		require.True(t, v.e.Start("valorant", tunnel))
	})

	t.Run("database replaced while capturing", func(t *testing.T) {
		v := newEnv(t)

		require.True(t, v.e.Start("valorant", tunnel))
		v.e.SetAppDatabase([]gamecap.Game{{ID: "valorant", Keywords: []string{"valorant.exe"}, Ports: []uint16{8180}}})

		v.mem.Inject(testpkt.UDP(src, netip.MustParseAddrPort("1.2.3.4:8180"), nil), addr)
		e := <-v.events
		require.Equal(t, uint16(8180), e.Dst.Port())
	})

	t.Run("status", func(t *testing.T) {
		v := newEnv(t)

		s := v.e.Status()
		require.False(t, s.Capturing)
		require.Equal(t, "idle", s.State)
		require.Nil(t, s.StartedAt)

		require.True(t, v.e.Start("valorant", tunnel))
		s = v.e.Status()
		require.True(t, s.Capturing)
		require.Equal(t, "running", s.State)
		require.Equal(t, "valorant", s.Game)
		require.Equal(t, []uint32{1021}, s.Pids)
		require.Equal(t, "outbound and (processId == 1021)", s.Filter)
		require.Equal(t, "10.0.0.1:8080", s.Node)
		require.Equal(t, "session-1", s.SessionID)
		require.NotNil(t, s.StartedAt)
	})

	t.Run("oversize packets", func(t *testing.T) {
		v := newEnv(t)
		require.True(t, v.e.Start("valorant", tunnel))

		tcp := testpkt.TCP(src, netip.MustParseAddrPort("1.2.3.4:9999"), make([]byte, 4000))
		v.mem.Inject(tcp, addr)
		require.Eventually(t, func() bool { return len(v.mem.Sent()) == 1 }, wait, check)
		require.Equal(t, tcp, v.mem.Sent()[0].IP)

		v.mem.Inject(testpkt.UDP(src, netip.MustParseAddrPort("1.2.3.4:7001"), make([]byte, 8000)), addr)
		e := <-v.events
		require.Len(t, e.Payload, 8000)
		require.Equal(t, uint64(1), v.e.Metrics().TotalPackets)
	})

	t.Run("stop with blocked sink", func(t *testing.T) {
		var (
			mem   = divert.NewMemory(4)
			block = make(chan struct{})
		)
		defer close(block)
		e := engine.New(mem, process.Static{{Pid: 1021, Name: "valorant.exe"}}, &engine.Config{
			Logger:       slog.New(slog.NewJSONHandler(io.Discard, nil)),
			Sink:         capture.SinkFunc(func(capture.Event) { <-block }),
			DrainTimeout: time.Millisecond * 50,
		})
		e.SetAppDatabase([]gamecap.Game{valorant})

		require.True(t, e.Start("valorant", tunnel))
		mem.Inject(testpkt.UDP(src, netip.MustParseAddrPort("1.2.3.4:7001"), nil), addr)
		mem.Inject(testpkt.UDP(src, netip.MustParseAddrPort("1.2.3.4:7001"), nil), addr)
		require.Eventually(t, func() bool { return e.Metrics().TotalPackets == 2 }, wait, check)

		start := time.Now()
		require.True(t, e.Stop())
		require.Less(t, time.Since(start), time.Second)
		require.False(t, e.IsCapturing())
	})

	t.Run("concurrent metrics", func(t *testing.T) {
		v := newEnv(t)
		require.True(t, v.e.Start("valorant", tunnel))

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 32; i++ {
				v.mem.Inject(testpkt.UDP(src, netip.MustParseAddrPort("1.2.3.4:7002"), []byte{byte(i)}), addr)
			}
		}()
		for i := 0; i < 32; i++ {
			<-v.events
			m := v.e.Metrics()
			require.LessOrEqual(t, m.TotalPackets, uint64(32))
		}
		wg.Wait()
		require.Equal(t, uint64(32), v.e.Metrics().TotalPackets)
	})
}

package capture_test

import (
	"net/netip"
	"testing"

	"github.com/lysShub/gamecap"
	"github.com/lysShub/gamecap/capture"
	"github.com/lysShub/gamecap/games"
	"github.com/stretchr/testify/require"
)

func desc(port uint16) capture.Descriptor {
	return capture.Descriptor{
		Src:   netip.MustParseAddrPort("192.168.1.10:52000"),
		Dst:   netip.AddrPortFrom(netip.MustParseAddr("1.2.3.4"), port),
		Proto: gamecap.UDP,
	}
}

func Test_Policy(t *testing.T) {
	db := games.New(gamecap.Game{ID: "valorant", Keywords: []string{"valorant"}, Ports: []uint16{7000, 7001, 8180}})
	p := capture.NewPolicy(nil)

	t.Run("game port", func(t *testing.T) {
		require.True(t, p.ShouldRedirect(desc(8180), "valorant", db))
	})

	t.Run("fallback without game", func(t *testing.T) {
		require.True(t, p.ShouldRedirect(desc(3074), "unknown", db))
	})

	t.Run("game port of other game", func(t *testing.T) {
		require.False(t, p.ShouldRedirect(desc(8180), "unknown", db))
	})

	t.Run("not matched", func(t *testing.T) {
		require.False(t, p.ShouldRedirect(desc(9999), "valorant", db))
	})

	t.Run("source port not consulted", func(t *testing.T) {
		d := desc(9999)
		d.Src = netip.AddrPortFrom(d.Src.Addr(), 7001)
		require.False(t, p.ShouldRedirect(d, "valorant", db))
	})

	t.Run("custom fallback", func(t *testing.T) {
		p := capture.NewPolicy([]uint16{9999})
		require.True(t, p.ShouldRedirect(desc(9999), "unknown", db))
		require.False(t, p.ShouldRedirect(desc(3074), "unknown", db))
		require.True(t, p.Fallback(9999))
	})

	t.Run("database replaced", func(t *testing.T) {
		db := games.New(gamecap.Game{ID: "valorant", Ports: []uint16{8180}})
		require.True(t, p.ShouldRedirect(desc(8180), "valorant", db))

		db.Replace([]gamecap.Game{{ID: "valorant", Ports: []uint16{8181}}})
		require.False(t, p.ShouldRedirect(desc(8180), "valorant", db))
		require.True(t, p.ShouldRedirect(desc(8181), "valorant", db))
	})
}

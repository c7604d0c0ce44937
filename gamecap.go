package gamecap

import (
	"fmt"
	"net/netip"
	"slices"
)

// Proto transport protocol number
type Proto uint8

const (
	TCP Proto = 6
	UDP Proto = 17
)

func (p Proto) String() string {
	switch p {
	case TCP:
		return "tcp"
	case UDP:
		return "udp"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(p))
	}
}

// Game a known target application, identified by ID, matched to
// OS processes by Keywords.
type Game struct {
	ID       string   `json:"gameId"`
	Name     string   `json:"name,omitempty"`
	Keywords []string `json:"processKeywords"`
	Ports    []uint16 `json:"defaultPorts"`
}

func (g Game) Clone() Game {
	return Game{
		ID:       g.ID,
		Name:     g.Name,
		Keywords: slices.Clone(g.Keywords),
		Ports:    slices.Clone(g.Ports),
	}
}

func (g Game) HasPort(port uint16) bool { return slices.Contains(g.Ports, port) }

// DefaultLocalProxyPort local relay endpoint port
const DefaultLocalProxyPort = 8888

// TunnelConfig relay node of one capture session
type TunnelConfig struct {
	NodeIP         netip.Addr `json:"nodeIp"`
	NodePort       uint16     `json:"nodePort"`
	SessionID      string     `json:"sessionId"`
	Enabled        bool       `json:"enabled"`
	LocalProxyPort uint16     `json:"localProxyPort,omitempty"`
}

func (t TunnelConfig) Node() netip.AddrPort { return netip.AddrPortFrom(t.NodeIP, t.NodePort) }

func (t TunnelConfig) String() string {
	return fmt.Sprintf("%s session %s enabled %t", t.Node().String(), t.SessionID, t.Enabled)
}

// FallbackPorts well-known gaming/service destination ports, always redirected,
// whether or not the current game is in the database.
var FallbackPorts = []uint16{
	27015, 27016, 27017, // source engine
	7000, 7001, 7002, // valorant
	5000, 5001, 5002, // league of legends
	3074,    // xbox live
	80, 443, // http/https
}

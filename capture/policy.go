package capture

import (
	"github.com/lysShub/gamecap"
)

// Lookuper games table
type Lookuper interface {
	Lookup(id string) (gamecap.Game, bool)
}

// Policy redirect packet if the destination port is one of current game's
// default ports, or one of the fallback ports. Source is not consulted.
type Policy struct {
	fallback map[uint16]struct{}
}

// NewPolicy nil fallback use gamecap.FallbackPorts
func NewPolicy(fallback []uint16) *Policy {
	if fallback == nil {
		fallback = gamecap.FallbackPorts
	}
	var p = &Policy{fallback: make(map[uint16]struct{}, len(fallback))}
	for _, e := range fallback {
		p.fallback[e] = struct{}{}
	}
	return p
}

func (p *Policy) ShouldRedirect(d Descriptor, game string, db Lookuper) bool {
	port := d.Dst.Port()
	if g, has := db.Lookup(game); has && g.HasPort(port) {
		return true
	}
	_, has := p.fallback[port]
	return has
}

func (p *Policy) Fallback(port uint16) bool {
	_, has := p.fallback[port]
	return has
}

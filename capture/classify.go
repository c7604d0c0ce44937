package capture

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/lysShub/gamecap"
	"github.com/pkg/errors"
	"gvisor.dev/gvisor/pkg/tcpip/header"
)

var (
	// ErrNotApplicable packet not carry a complete tcp/udp header (icmp, fragment...)
	ErrNotApplicable = errors.New("not tcp/udp packet")

	// ErrMalformed ip header can't be parsed
	ErrMalformed = errors.New("malformed ip packet")
)

// Descriptor normalized outbound tcp/udp packet
type Descriptor struct {
	Src       netip.AddrPort
	Dst       netip.AddrPort
	Proto     gamecap.Proto
	Payload   []byte // copied
	Timestamp time.Time
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s:%s->%s", d.Proto.String(), d.Src.String(), d.Dst.String())
}

// Classify parse ip packet, return ErrNotApplicable if not a tcp/udp packet,
// ErrMalformed if the ip header is corrupt.
func Classify(ip []byte) (Descriptor, error) {
	var (
		src, dst netip.Addr
		proto    uint8
		hdr      []byte
	)
	switch ver := header.IPVersion(ip); ver {
	case 4:
		if len(ip) < header.IPv4MinimumSize {
			return Descriptor{}, errors.Wrapf(ErrMalformed, "ipv4 length %d", len(ip))
		}
		ip := header.IPv4(ip)
		hl, tl := int(ip.HeaderLength()), int(ip.TotalLength())
		if hl < header.IPv4MinimumSize || hl > tl || tl > len(ip) {
			return Descriptor{}, errors.Wrapf(ErrMalformed, "ipv4 header length %d total length %d", hl, tl)
		}
		if ip.More() || ip.FragmentOffset() != 0 {
			return Descriptor{}, errors.WithStack(ErrNotApplicable)
		}

		src = netip.AddrFrom4(ip.SourceAddress().As4())
		dst = netip.AddrFrom4(ip.DestinationAddress().As4())
		proto = ip.Protocol()
		hdr = ip[hl:tl]
	case 6:
		if len(ip) < header.IPv6MinimumSize {
			return Descriptor{}, errors.Wrapf(ErrMalformed, "ipv6 length %d", len(ip))
		}
		ip := header.IPv6(ip)
		n := header.IPv6MinimumSize + int(ip.PayloadLength())
		if n > len(ip) {
			return Descriptor{}, errors.Wrapf(ErrMalformed, "ipv6 payload length %d", ip.PayloadLength())
		}

		src = netip.AddrFrom16(ip.SourceAddress().As16())
		dst = netip.AddrFrom16(ip.DestinationAddress().As16())
		proto = ip.NextHeader() // extension headers are not applicable
		hdr = ip[header.IPv6MinimumSize:n]
	default:
		return Descriptor{}, errors.Wrapf(ErrMalformed, "invalid ip version %d", ver)
	}

	var d = Descriptor{Timestamp: time.Now()}
	var payload []byte
	switch proto {
	case uint8(header.TCPProtocolNumber):
		if len(hdr) < header.TCPMinimumSize {
			return Descriptor{}, errors.WithStack(ErrNotApplicable)
		}
		tcp := header.TCP(hdr)
		off := int(tcp.DataOffset())
		if off < header.TCPMinimumSize || off > len(tcp) {
			return Descriptor{}, errors.WithStack(ErrNotApplicable)
		}
		d.Src = netip.AddrPortFrom(src, tcp.SourcePort())
		d.Dst = netip.AddrPortFrom(dst, tcp.DestinationPort())
		d.Proto = gamecap.TCP
		payload = tcp[off:]
	case uint8(header.UDPProtocolNumber):
		if len(hdr) < header.UDPMinimumSize {
			return Descriptor{}, errors.WithStack(ErrNotApplicable)
		}
		udp := header.UDP(hdr)
		d.Src = netip.AddrPortFrom(src, udp.SourcePort())
		d.Dst = netip.AddrPortFrom(dst, udp.DestinationPort())
		d.Proto = gamecap.UDP
		if n := int(udp.Length()); header.UDPMinimumSize <= n && n <= len(udp) {
			payload = udp[header.UDPMinimumSize:n]
		} else {
			payload = udp[header.UDPMinimumSize:]
		}
	default:
		return Descriptor{}, errors.WithStack(ErrNotApplicable)
	}

	d.Payload = make([]byte, len(payload))
	copy(d.Payload, payload)
	return d, nil
}

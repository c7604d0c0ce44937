// Package testpkt build synthetic ip packets for tests.
package testpkt

import (
	"net/netip"

	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/checksum"
	"gvisor.dev/gvisor/pkg/tcpip/header"
)

func UDP(src, dst netip.AddrPort, payload []byte) []byte {
	if src.Addr().Is6() {
		return udp6(src, dst, payload)
	}

	ip := ipv4(src.Addr(), dst.Addr(), header.UDPProtocolNumber, header.UDPMinimumSize+len(payload))
	u := header.UDP(ip.Payload())
	u.Encode(&header.UDPFields{
		SrcPort: src.Port(),
		DstPort: dst.Port(),
		Length:  uint16(len(u)),
	})
	copy(u.Payload(), payload)
	sum := header.PseudoHeaderChecksum(header.UDPProtocolNumber, ip.SourceAddress(), ip.DestinationAddress(), uint16(len(u)))
	u.SetChecksum(^checksum.Checksum(u, sum))
	return ip
}

func TCP(src, dst netip.AddrPort, payload []byte) []byte {
	ip := ipv4(src.Addr(), dst.Addr(), header.TCPProtocolNumber, header.TCPMinimumSize+len(payload))
	t := header.TCP(ip.Payload())
	t.Encode(&header.TCPFields{
		SrcPort:    src.Port(),
		DstPort:    dst.Port(),
		SeqNum:     1,
		AckNum:     1,
		DataOffset: header.TCPMinimumSize,
		Flags:      header.TCPFlagAck | header.TCPFlagPsh,
		WindowSize: 0xffff,
	})
	copy(t.Payload(), payload)
	sum := header.PseudoHeaderChecksum(header.TCPProtocolNumber, ip.SourceAddress(), ip.DestinationAddress(), uint16(len(t)))
	t.SetChecksum(^checksum.Checksum(t, sum))
	return ip
}

// ICMP echo request
func ICMP(src, dst netip.Addr) []byte {
	ip := ipv4(src, dst, header.ICMPv4ProtocolNumber, header.ICMPv4MinimumSize)
	icmp := header.ICMPv4(ip.Payload())
	icmp.SetType(header.ICMPv4Echo)
	icmp.SetChecksum(^checksum.Checksum(icmp, 0))
	return ip
}

// Fragment set ipv4 more-fragments flag
func Fragment(ip []byte) []byte {
	hdr := header.IPv4(ip)
	hdr.SetFlagsFragmentOffset(header.IPv4FlagMoreFragments, 0)
	hdr.SetChecksum(0)
	hdr.SetChecksum(^hdr.CalculateChecksum())
	return ip
}

func ipv4(src, dst netip.Addr, proto tcpip.TransportProtocolNumber, n int) header.IPv4 {
	ip := header.IPv4(make([]byte, header.IPv4MinimumSize+n))
	ip.Encode(&header.IPv4Fields{
		TotalLength: uint16(len(ip)),
		TTL:         64,
		Protocol:    uint8(proto),
		SrcAddr:     tcpip.AddrFrom4(src.As4()),
		DstAddr:     tcpip.AddrFrom4(dst.As4()),
	})
	ip.SetChecksum(^ip.CalculateChecksum())
	return ip
}

func udp6(src, dst netip.AddrPort, payload []byte) []byte {
	n := header.UDPMinimumSize + len(payload)
	ip := header.IPv6(make([]byte, header.IPv6MinimumSize+n))
	ip.Encode(&header.IPv6Fields{
		PayloadLength:     uint16(n),
		TransportProtocol: header.UDPProtocolNumber,
		HopLimit:          64,
		SrcAddr:           tcpip.AddrFrom16(src.Addr().As16()),
		DstAddr:           tcpip.AddrFrom16(dst.Addr().As16()),
	})
	u := header.UDP(ip.Payload())
	u.Encode(&header.UDPFields{
		SrcPort: src.Port(),
		DstPort: dst.Port(),
		Length:  uint16(n),
	})
	copy(u.Payload(), payload)
	sum := header.PseudoHeaderChecksum(header.UDPProtocolNumber, ip.SourceAddress(), ip.DestinationAddress(), uint16(n))
	u.SetChecksum(^checksum.Checksum(u, sum))
	return ip
}

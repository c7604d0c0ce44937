// Package divert is the kernel packet diversion capability the capture engine
// runs on. On windows it is backed by WinDivert, Memory replays synthetic
// packets in process.
package divert

import (
	"github.com/pkg/errors"
)

var (
	// ErrClosed handle was closed or shutdown, no more packets will be received.
	ErrClosed = errors.New("divert handle closed")

	ErrNotSupported = errors.New("divert not supported on this platform")
)

type Mode uint8

const (
	// Divert intercept matched packets, the packets must be sent back
	// by Send, otherwise they are dropped.
	Divert Mode = iota

	// Probe sniff only, used to test the diversion facility is usable.
	Probe
)

func (m Mode) String() string {
	switch m {
	case Divert:
		return "divert"
	case Probe:
		return "probe"
	default:
		return "unknown"
	}
}

type Opener interface {
	Open(filter string, mode Mode) (Handle, error)
}

// Handle a opened diversion handle. Recv return ErrClosed (errors.Is) after
// Close, other errors are transient.
type Handle interface {
	Recv(ip []byte, addr *Address) (int, error)
	Send(ip []byte, addr *Address) (int, error)
	Close() error
}

// Address capture metadata of a packet, must be passed back unchanged
// when re-inject the packet.
type Address struct {
	Outbound bool
	IfIdx    uint32

	sys sysAddress
}

//go:build windows
// +build windows

package divert

import (
	"net"
	"os"
	"sync"
	"sync/atomic"

	dg "github.com/lysShub/divert-go"
	"github.com/lysShub/netkit/errorx"
	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

type sysAddress = dg.Address

var (
	loadOnce sync.Once
	loadErr  error
)

// load WinDivert dll once, already loaded (by another package) is fine.
func load() error {
	loadOnce.Do(func() {
		if err := dg.Load(dg.DLL); err != nil && !errors.Is(err, dg.ErrLoaded{}) {
			loadErr = errors.WithMessage(err, "load WinDivert")
		}
	})
	return loadErr
}

type system struct {
	priority int16
}

// System WinDivert network layer
func System(priority int16) Opener { return &system{priority: priority} }

func (s *system) Open(filter string, mode Mode) (Handle, error) {
	if err := load(); err != nil {
		return nil, err
	}

	var (
		h   *dg.Handle
		err error
	)
	switch mode {
	case Probe:
		h, err = dg.Open(filter, dg.Network, s.priority, dg.Sniff|dg.ReadOnly)
	default:
		h, err = dg.Open(filter, dg.Network, s.priority, 0)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &handle{h: h}, nil
}

type handle struct {
	h      *dg.Handle
	closed atomic.Bool
}

func (h *handle) Recv(ip []byte, addr *Address) (int, error) {
	n, err := h.h.Recv(ip, &addr.sys)
	if err != nil {
		return 0, h.wrap(err)
	}
	addr.Outbound = true
	addr.IfIdx = addr.sys.Network().IfIdx
	return n, nil
}

func (h *handle) Send(ip []byte, addr *Address) (int, error) {
	n, err := h.h.Send(ip, &addr.sys)
	if err != nil {
		return 0, h.wrap(err)
	}
	return n, nil
}

func (h *handle) wrap(err error) error {
	if h.closed.Load() ||
		errors.Is(err, windows.ERROR_NO_DATA) ||
		errors.Is(err, windows.ERROR_INVALID_HANDLE) ||
		errors.Is(err, windows.ERROR_OPERATION_ABORTED) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) {
		return errors.WithStack(ErrClosed)
	}
	return errorx.WrapTemp(errors.WithStack(err))
}

func (h *handle) Close() error {
	if h.closed.CompareAndSwap(false, true) {
		return errors.WithStack(h.h.Close())
	}
	return nil
}

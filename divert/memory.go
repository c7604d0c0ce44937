package divert

import (
	"slices"
	"sync"

	"github.com/lysShub/netkit/errorx"
	"github.com/pkg/errors"
)

// Memory in process diversion facility, packets are queued by Inject and
// received by the opened handle, re-injected packets are recorded.
type Memory struct {
	queue chan frame

	mu      sync.Mutex
	openErr error
	filters []string
	sent    []Frame
	recved  int
}

type frame struct {
	ip   []byte
	addr Address
	err  error
}

type Frame struct {
	IP   []byte
	Addr Address
}

var _ Opener = (*Memory)(nil)

func NewMemory(queue int) *Memory {
	if queue <= 0 {
		queue = 64
	}
	return &Memory{queue: make(chan frame, queue)}
}

// SetOpenErr make following Open fail with err, nil restore.
func (m *Memory) SetOpenErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr = err
}

func (m *Memory) Open(filter string, mode Mode) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return nil, m.openErr
	}
	m.filters = append(m.filters, filter)
	return &memHandle{m: m, mode: mode, closed: make(chan struct{})}, nil
}

// Inject queue a packet to be received, block if the queue is full.
func (m *Memory) Inject(ip []byte, addr Address) {
	m.queue <- frame{ip: slices.Clone(ip), addr: addr}
}

// InjectErr make a Recv fail with err.
func (m *Memory) InjectErr(err error) {
	m.queue <- frame{err: err}
}

// Sent packets re-injected by Send
func (m *Memory) Sent() []Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.sent)
}

// Received count of packets received by handles
func (m *Memory) Received() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recved
}

// Filters filter of every opened handle
func (m *Memory) Filters() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.filters)
}

type memHandle struct {
	m      *Memory
	mode   Mode
	once   sync.Once
	closed chan struct{}
}

func (h *memHandle) Recv(ip []byte, addr *Address) (int, error) {
	select {
	case <-h.closed:
		return 0, errors.WithStack(ErrClosed)
	default:
	}

	select {
	case <-h.closed:
		return 0, errors.WithStack(ErrClosed)
	case f := <-h.m.queue:
		if f.err != nil {
			return 0, f.err
		}
		if len(ip) < len(f.ip) {
			return 0, errorx.WrapTemp(errorx.ShortBuff(len(f.ip), len(ip)))
		}

		h.m.mu.Lock()
		h.m.recved++
		h.m.mu.Unlock()

		*addr = f.addr
		return copy(ip, f.ip), nil
	}
}

func (h *memHandle) Send(ip []byte, addr *Address) (int, error) {
	select {
	case <-h.closed:
		return 0, errors.WithStack(ErrClosed)
	default:
	}
	if h.mode == Probe {
		return 0, errors.New("probe handle can't send")
	}

	h.m.mu.Lock()
	h.m.sent = append(h.m.sent, Frame{IP: slices.Clone(ip), Addr: *addr})
	h.m.mu.Unlock()
	return len(ip), nil
}

func (h *memHandle) Close() error {
	h.once.Do(func() { close(h.closed) })
	return nil
}

package metrics

import (
	"sync"
	"time"
)

// NetworkMetrics snapshot, ping and jitter in milliseconds.
type NetworkMetrics struct {
	AvgPing        float64 `json:"avgPing"`
	Jitter         float64 `json:"jitter"`
	PacketLoss     float64 `json:"packetLoss"`
	TotalPackets   uint64  `json:"totalPackets"`
	DroppedPackets uint64  `json:"droppedPackets"`
	PassedPackets  uint64  `json:"passedPackets"`
}

// Aggregator all reads and writes hold one lock, only for the counter update.
type Aggregator struct {
	mu sync.Mutex
	m  NetworkMetrics

	lastRTT time.Duration
	pinged  bool

	pl *PLStats
}

func New() *Aggregator {
	return &Aggregator{pl: NewPLStats()}
}

func (a *Aggregator) Get() NetworkMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.m
}

func (a *Aggregator) IncTotalPackets() {
	a.mu.Lock()
	a.m.TotalPackets++
	a.mu.Unlock()
}

func (a *Aggregator) IncDroppedPackets() {
	a.mu.Lock()
	a.m.DroppedPackets++
	a.mu.Unlock()
}

func (a *Aggregator) IncPassedPackets() {
	a.mu.Lock()
	a.m.PassedPackets++
	a.mu.Unlock()
}

// ObservePing update average ping (srtt, gain 1/8) and jitter (RFC 3550,
// gain 1/16) by a round-trip sample.
func (a *Aggregator) ObservePing(rtt time.Duration) {
	if rtt <= 0 {
		return
	}
	ms := float64(rtt) / float64(time.Millisecond)

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.pinged {
		a.m.AvgPing = ms
		a.pinged = true
	} else {
		a.m.AvgPing += (ms - a.m.AvgPing) / 8

		d := ms - float64(a.lastRTT)/float64(time.Millisecond)
		if d < 0 {
			d = -d
		}
		a.m.Jitter += (d - a.m.Jitter) / 16
	}
	a.lastRTT = rtt
}

// ObserveLoss set packet loss ratio, clamped to [0, 1].
func (a *Aggregator) ObserveLoss(pl float64) {
	pl = min(max(pl, 0), 1)
	a.mu.Lock()
	a.m.PacketLoss = pl
	a.mu.Unlock()
}

// ObserveSequence record a relay packet sequence id, the loss ratio is
// updated once enough ids are collected. Called by the relay collaborator
// (the Sink owner) per packet received from the node, never by the capture loop.
func (a *Aggregator) ObserveSequence(id int) {
	a.pl.ID(id)
	if pl, ok := a.pl.PL(); ok {
		a.ObserveLoss(pl)
	}
}

package metrics

import (
	"sync"
)

// PLStats estimate packet loss by increasing sequence ids, small
// reordering is tolerated. The capture engine never sees sequence ids, the
// relay collaborator feeds the ids of the packets it receives back from the
// node through Engine.Aggregator().ObserveSequence.
type PLStats struct {
	dimension int

	mu       sync.Mutex
	deltaSum int
	count    int
	lastId   int
}

func NewPLStats() *PLStats {
	return NewPLStatsWithDimension(64)
}

func NewPLStatsWithDimension(dimension int) *PLStats {
	if dimension < 0 {
		dimension = -dimension
	}
	if dimension < 1 {
		dimension = 1
	}
	return &PLStats{dimension: dimension}
}

// PL return loss ratio and reset the window, ok is false if the
// window has not enough ids.
func (p *PLStats) PL() (pl float64, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.deltaSum < 0 {
		p.deltaSum = -p.deltaSum
	}
	if p.deltaSum < p.dimension {
		return 0, false
	}

	//  125  4 3
	// 12345 4 5
	dropped := p.deltaSum - (p.count - 1)
	if dropped < 0 {
		dropped = -dropped
	}
	pl = float64(dropped) / float64(p.count+dropped)

	p.deltaSum = 0
	p.count = 0
	p.lastId = 0
	return pl, true
}

func (p *PLStats) ID(id int) int {
	if id < 0 {
		panic("require >= 0")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.count == 0 {
		p.lastId = id
	} else {
		n := id - p.lastId
		if -p.dimension < n && n < p.dimension {
			p.deltaSum += n
		} else {
			p.deltaSum += 1
		}
		p.lastId = id
	}
	p.count++

	return p.count
}

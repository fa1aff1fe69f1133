package arq

import (
	"sync"
	"time"

	"hdlc-toolkit/util/math"
)

// RTTStats tracks the time from sending a data frame to its first
// acknowledgment. Retransmitted frames are not sampled.
type RTTStats struct {
	min      time.Duration
	smoothed time.Duration
	variance time.Duration

	mu sync.RWMutex
}

func (rs *RTTStats) Min() time.Duration {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.min
}

func (rs *RTTStats) Var() time.Duration {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.variance
}

func (rs *RTTStats) Smoothed() time.Duration {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.smoothed
}

func (rs *RTTStats) Update(rtt time.Duration) {
	if rtt < 0 {
		return
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.min <= 0 || rs.min > rtt {
		rs.min = rtt
	}

	if rs.smoothed <= 0 {
		rs.smoothed = rtt
	} else {
		rs.smoothed = (rs.smoothed * 7 / 8) + (rtt / 8)
	}
	if rs.variance <= 0 {
		rs.variance = rtt / 2
	} else {
		sample := math.AbsDuration(rs.smoothed - rtt)
		rs.variance = (rs.variance * 3 / 4) + (sample / 4)
	}
}

func (rs *RTTStats) Reset() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.min, rs.smoothed, rs.variance = 0, 0, 0
}

package internal

import (
	"time"
)

const pacingWaitLogInterval = time.Second

// Pacer holds a wall-clock anchor for a timestamp sequence so a producer
// can emit buffers at their nominal rate. The synthetic capture source uses
// one per stream to pace silence/solid-color emission in real time.
type Pacer struct {
	baseWallTime time.Time
	basePTS      int64         // milliseconds
	initialized  bool
	maxWait      time.Duration // clamp for wild timestamp jumps
}

// NewPacer returns a pacer that never sleeps longer than maxWait at once.
func NewPacer(maxWait time.Duration) *Pacer {
	return &Pacer{
		maxWait: maxWait,
	}
}

// Wait sleeps until timestampMs is due relative to the anchor. A timestamp
// behind the anchor re-anchors instead of sleeping, so a producer that has
// fallen behind real time catches up immediately.
func (p *Pacer) Wait(timestampMs int64) {
	if !p.initialized {
		p.resync(timestampMs)
		return
	}

	ptsDiff := timestampMs - p.basePTS
	if ptsDiff < 0 {
		p.resync(timestampMs)
		return
	}

	expectedTime := p.baseWallTime.Add(time.Duration(ptsDiff) * time.Millisecond)
	waitDuration := time.Until(expectedTime)

	if waitDuration > 0 {
		if waitDuration > p.maxWait {
			DebugLog("Pacing: clamping wait from %v to %v (timestamp jump detected)\n", waitDuration, p.maxWait)
			waitDuration = p.maxWait
		}
		DebugLogPeriodic("pacer.wait", pacingWaitLogInterval, "Pacing: waiting %v (ts: %dms)\n", waitDuration, timestampMs)
		time.Sleep(waitDuration)
	}
}

// Reset drops the anchor; the next Wait re-establishes it.
func (p *Pacer) Reset() {
	p.initialized = false
	p.baseWallTime = time.Time{}
	p.basePTS = 0
}

func (p *Pacer) resync(timestampMs int64) {
	p.baseWallTime = time.Now()
	p.basePTS = timestampMs
	p.initialized = true
}

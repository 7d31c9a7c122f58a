package live

import (
	"math/big"
	"sync/atomic"
)

// Countdown counts envelope ticks down to the next loop boundary. The loop
// length is exact: loopBeats*60*envelopeRate/tempo rarely comes out whole, so
// the fractional remainder is carried into the next loop and the loops never
// drift against the tempo.
//
// Only the Sequencer goroutine mutates a Countdown; the UI reads the derived
// positions.
type Countdown struct {
	next     atomic.Int64 // ticks until the loop restarts
	total    atomic.Int64 // ticks in the current loop
	critical atomic.Int64 // ticks before the boundary after which a commit is late
	carry    big.Rat
}

// Step advances the countdown by elapsed ticks and reports whether the loop
// boundary has been reached.
func (c *Countdown) Step(elapsed int) bool {
	return c.next.Add(-int64(elapsed)) <= 0
}

// Restart begins a new loop with the current settings. Ticks already past
// the boundary are taken from the new loop.
func (c *Countdown) Restart(loopBeats int, tempo float64, envelopeRate int, critical int) {
	if loopBeats <= 0 {
		loopBeats = 1
	}
	var bpm big.Rat
	if tempo <= 0 || bpm.SetFloat64(tempo) == nil {
		bpm.SetInt64(120)
	}
	exact := new(big.Rat).SetInt64(int64(loopBeats) * 60 * int64(envelopeRate))
	exact.Quo(exact, &bpm)
	exact.Add(exact, &c.carry)
	whole := new(big.Int).Quo(exact.Num(), exact.Denom())
	c.carry.Sub(exact, new(big.Rat).SetInt(whole))
	ticks := whole.Int64()
	if ticks < 1 {
		ticks = 1
	}
	c.total.Store(ticks)
	c.critical.Store(int64(critical))
	c.next.Add(ticks)
}

func (c *Countdown) Next() int64  { return c.next.Load() }
func (c *Countdown) Total() int64 { return c.total.Load() }

// Position is the fraction of the current loop already played, in [0, 1].
func (c *Countdown) Position() float64 {
	total := c.total.Load()
	if total <= 0 {
		return 0
	}
	return clamp01(1 - float64(c.next.Load())/float64(total))
}

// CriticalThreshold is the loop position after which a commit will probably
// miss the coming boundary, in [0, 1].
func (c *Countdown) CriticalThreshold() float64 {
	total := c.total.Load()
	if total <= 0 {
		return 1
	}
	return clamp01(1 - float64(c.critical.Load())/float64(total))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

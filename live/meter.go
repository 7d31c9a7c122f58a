package live

import (
	"math"
	"sync"

	"github.com/outofphase/liveseq"
	"github.com/viterin/vek/vek32"
)

// Meter tracks the level of the rendered audio for the UI. The short window
// is the block peak; the long window is a peak detector that decays with the
// release time constant. Both keep their maximum until taken.
type Meter struct {
	rate    int
	release float64 // seconds

	mu        sync.Mutex
	tmp       []float32
	detector  float32
	shortPeak float32
	longPeak  float32
}

func NewMeter(sampleRate int, release float64) *Meter {
	return &Meter{rate: sampleRate, release: release}
}

// Process measures one rendered block. Called from the synthesis goroutine.
func (m *Meter) Process(buf liveseq.AudioBuffer) {
	if len(buf) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cap(m.tmp) < len(buf) {
		m.tmp = make([]float32, len(buf))
	}
	abs := vek32.Abs_Into(m.tmp[:len(buf)], buf)
	peak := vek32.Max(abs)
	if m.release > 0 && m.rate > 0 {
		decay := math.Exp(-float64(buf.Frames()) / (m.release * float64(m.rate)))
		m.detector *= float32(decay)
	} else {
		m.detector = 0
	}
	m.detector = max(m.detector, peak)
	m.shortPeak = max(m.shortPeak, peak)
	m.longPeak = max(m.longPeak, m.detector)
}

// Take returns the maxima since the previous Take and resets them.
func (m *Meter) Take() (short, long float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	short, long = m.shortPeak, m.longPeak
	m.shortPeak, m.longPeak = 0, 0
	return
}

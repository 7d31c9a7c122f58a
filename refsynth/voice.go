package refsynth

import (
	"math"

	"github.com/outofphase/liveseq"
)

type (
	// sweep is a parameter value moving linearly towards a target.
	sweep struct {
		value, target, step float64
		ticks               int
	}

	// paramSet holds the swept parameters of a player, keyed by the absolute
	// opcode of each parameter.
	paramSet map[liveseq.Opcode]*sweep

	effectChain struct {
		params paramSet
		queue  []*liveseq.EffectCommand
		lowL   float64
		lowR   float64
	}

	voice struct {
		waveform Waveform
		freq     float64
		phase    float64 // in cycles
		amp      float64
		gainL    float64
		gainR    float64
		age      int
		gate     int // samples
		release  int // samples
	}
)

const (
	attackSeconds  = 0.004
	releaseSeconds = 0.08
)

// opKind splits an opcode into its parameter's absolute opcode and the
// operation: 0 reset, 1 absolute, 2 relative.
func opKind(op liveseq.Opcode) (abs liveseq.Opcode, kind int) {
	kind = int(op-1) % 3
	return op - liveseq.Opcode(kind) + 1, kind
}

func defaultValue(abs liveseq.Opcode) float64 {
	switch abs {
	case liveseq.OpLoudnessAbs, liveseq.OpDurationAbs, liveseq.OpHurryUpAbs:
		return 1
	}
	return 0
}

func newParamSet() paramSet { return make(paramSet) }

func (s paramSet) get(abs liveseq.Opcode) *sweep {
	p, ok := s[abs]
	if !ok {
		v := defaultValue(abs)
		p = &sweep{value: v, target: v}
		s[abs] = p
	}
	return p
}

func (s paramSet) value(op liveseq.Opcode) float64 {
	abs, _ := opKind(op)
	if p, ok := s[abs]; ok {
		return p.value
	}
	return defaultValue(abs)
}

// apply starts a sweep over ticks envelope ticks; 0 ticks sets the value at
// once.
func (s paramSet) apply(op liveseq.Opcode, value float64, ticks int) {
	if op <= liveseq.OpNone {
		return
	}
	abs, kind := opKind(op)
	p := s.get(abs)
	target := value
	switch kind {
	case 0:
		target = defaultValue(abs)
	case 2:
		target = p.value + value
	}
	if ticks <= 0 {
		p.value, p.target, p.ticks = target, target, 0
		return
	}
	p.target = target
	p.step = (target - p.value) / float64(ticks)
	p.ticks = ticks
}

func (s paramSet) tick() {
	for _, p := range s {
		if p.ticks > 0 {
			p.ticks--
			p.value += p.step
			if p.ticks == 0 {
				p.value = p.target
			}
		}
	}
}

func newEffectChain() *effectChain { return &effectChain{params: newParamSet()} }

// tick applies the effect commands queued since the previous tick.
func (c *effectChain) tick(beatsToTicks func(float64) int) {
	for _, cmd := range c.queue {
		c.params.apply(cmd.Op, cmd.Value, beatsToTicks(cmd.Duration))
	}
	clear(c.queue)
	c.queue = c.queue[:0]
	c.params.tick()
}

// process runs the track bus through the effects: fx1 is drive, fx2 a
// one-pole lowpass amount.
func (c *effectChain) process(l, r float64) (float64, float64) {
	if drive := c.params.value(liveseq.OpEffectAccentBase + 1); drive > 0 {
		k := 1 + 10*drive
		l = math.Tanh(k*l) / math.Tanh(k)
		r = math.Tanh(k*r) / math.Tanh(k)
	}
	if amount := c.params.value(liveseq.OpEffectAccentBase + 4); amount > 0 {
		a := 1 - min(amount, 0.99)
		c.lowL += a * (l - c.lowL)
		c.lowR += a * (r - c.lowR)
		l, r = c.lowL, c.lowR
	}
	return l, r
}

func (p *player) newVoice(ev event, rate int, samplesPerTick float64) *voice {
	semis := float64(ev.note) - 69 + p.params.value(liveseq.OpDetuneAbs)
	// constant power pan law, pan in [-1, 1]
	pan := max(-1, min(1, p.params.value(liveseq.OpPanAbs)))
	angle := (pan + 1) * math.Pi / 4
	amp := 0.2 * p.params.value(liveseq.OpLoudnessAbs) * (1 + p.params.value(liveseq.OpAccentBase+1))
	return &voice{
		waveform: p.waveform,
		freq:     440 * math.Pow(2, semis/12),
		amp:      amp,
		gainL:    math.Cos(angle),
		gainR:    math.Sin(angle),
		gate:     int(float64(ev.ticks) * samplesPerTick),
		release:  int(releaseSeconds * float64(rate)),
	}
}

func (v *voice) done() bool {
	return v.age >= v.gate+v.release
}

func (v *voice) next(rate int) (l, r float64) {
	env := 1.0
	t := float64(v.age) / float64(rate)
	switch {
	case t < attackSeconds:
		env = t / attackSeconds
	case v.age >= v.gate:
		env = max(0, 1-float64(v.age-v.gate)/float64(max(v.release, 1)))
	}
	s := v.osc() * env * v.amp
	v.phase += v.freq / float64(rate)
	v.phase -= math.Floor(v.phase)
	v.age++
	return s * v.gainL, s * v.gainR
}

func (v *voice) osc() float64 {
	switch v.waveform {
	case Square:
		if v.phase < 0.5 {
			return 1
		}
		return -1
	case Saw:
		return 2*v.phase - 1
	case Triangle:
		return 1 - 4*math.Abs(v.phase-0.5)
	default:
		return math.Sin(2 * math.Pi * v.phase)
	}
}

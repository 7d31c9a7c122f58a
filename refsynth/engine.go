package refsynth

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/outofphase/liveseq"
	"github.com/sirupsen/logrus"
)

type (
	// Engine implements liveseq.Engine. A track player steps through its
	// pattern once per envelope tick; triggered notes wait ScanningGap ticks
	// in a queue before they start sounding, like events between the
	// scanning front and the audible position of a real engine.
	Engine struct {
		session        *Session
		rate           int
		envelopeRate   int
		gap            int
		samplesPerTick float64
		log            logrus.FieldLogger

		tempo  float64
		volume float64
		scan   liveseq.ScanPos
		phase  float64 // samples since the last tick
		duty   float64

		players    map[liveseq.PlayerHandle]*player
		order      []*player
		nextHandle liveseq.PlayerHandle
	}

	Config struct {
		SampleRate   int
		EnvelopeRate int
		ScanningGap  int
		Logger       logrus.FieldLogger
	}

	player struct {
		id       liveseq.TrackID
		waveform Waveform
		def      *TrackDef // nil for tracks the session does not define

		pattern Pattern
		queued  Pattern // switched to when the current pattern wraps
		row     int
		rowPos  float64 // fraction of the current row played

		params  paramSet
		effects *effectChain
		pending []event
		voices  []*voice
	}

	// event is a note between the scanning front and the audible position.
	event struct {
		at    liveseq.ScanPos
		note  byte
		ticks int // gate length
	}
)

var ErrUnknownHandle = errors.New("unknown player handle")

func NewEngine(session *Session, c Config) *Engine {
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return &Engine{
		session:        session,
		rate:           c.SampleRate,
		envelopeRate:   c.EnvelopeRate,
		gap:            c.ScanningGap,
		samplesPerTick: float64(c.SampleRate) / float64(c.EnvelopeRate),
		log:            c.Logger.WithField("component", "refsynth"),
		tempo:          session.Tempo(),
		volume:         session.Volume(),
		players:        make(map[liveseq.PlayerHandle]*player),
	}
}

func (e *Engine) get(h liveseq.PlayerHandle) (*player, error) {
	p, ok := e.players[h]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownHandle, h)
	}
	return p, nil
}

func (e *Engine) AddTrack(track liveseq.TrackID, doc liveseq.Document, params liveseq.ParamProvider) (liveseq.PlayerHandle, error) {
	p := &player{id: track, waveform: Sine, params: newParamSet(), effects: newEffectChain()}
	if def, ok := e.session.Track(track); ok {
		p.def = def
		if def.Waveform != "" {
			p.waveform = def.Waveform
		}
	} else {
		e.log.WithField("track", track).Warn("track not in session, it will stay silent")
	}
	e.nextHandle++
	e.players[e.nextHandle] = p
	e.order = append(e.order, p)
	return e.nextHandle, nil
}

func (e *Engine) DeleteTrack(h liveseq.PlayerHandle) error {
	p, err := e.get(h)
	if err != nil {
		return err
	}
	delete(e.players, h)
	for i, q := range e.order {
		if q == p {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	return nil
}

func (e *Engine) TerminateSequencing(h liveseq.PlayerHandle, scan liveseq.ScanPos) error {
	p, err := e.get(h)
	if err != nil {
		return err
	}
	p.pattern, p.queued = nil, nil
	return nil
}

func (e *Engine) InvokeSequence(h liveseq.PlayerHandle, self liveseq.TrackID, sequence string, scan liveseq.ScanPos, mode liveseq.JumpMode) error {
	p, err := e.get(h)
	if err != nil {
		return err
	}
	var pat Pattern
	if p.def != nil {
		pat = p.def.Sequences[sequence]
	}
	if pat == nil {
		e.log.WithFields(logrus.Fields{"track": self, "sequence": sequence}).Warn("unknown sequence")
		p.pattern, p.queued = nil, nil
		return nil
	}
	if mode == liveseq.JumpAtEnd && p.pattern != nil {
		p.queued = pat
		return nil
	}
	p.pattern, p.queued = pat, nil
	p.row, p.rowPos = -1, 1
	return nil
}

func (e *Engine) ExecuteParamCommand(h liveseq.PlayerHandle, cmd *liveseq.ParamCommand) error {
	p, err := e.get(h)
	if err != nil {
		return err
	}
	p.params.apply(cmd.Op, cmd.Value, e.beatsToTicks(cmd.Duration))
	return nil
}

func (e *Engine) EffectGenerators(h liveseq.PlayerHandle) []liveseq.EffectGenerator {
	p, ok := e.players[h]
	if !ok {
		return nil
	}
	return []liveseq.EffectGenerator{p.effects}
}

func (e *Engine) EffectHandleCommand(gen liveseq.EffectGenerator, cmd *liveseq.EffectCommand, scan liveseq.ScanPos) error {
	chain, ok := gen.(*effectChain)
	if !ok {
		return fmt.Errorf("not a refsynth effect generator: %T", gen)
	}
	chain.queue = append(chain.queue, cmd)
	return nil
}

func (e *Engine) Peek(h liveseq.PlayerHandle, op liveseq.Opcode) (float64, bool) {
	p, ok := e.players[h]
	if !ok {
		return 0, false
	}
	if op >= liveseq.OpEffectAccentBase {
		return p.effects.params.value(op), true
	}
	return p.params.value(op), true
}

func (e *Engine) PendingEvents(h liveseq.PlayerHandle) int {
	if p, ok := e.players[h]; ok {
		return len(p.pending)
	}
	return 0
}

func (e *Engine) ActiveBanks(h liveseq.PlayerHandle) int {
	if p, ok := e.players[h]; ok {
		return len(p.voices)
	}
	return 0
}

func (e *Engine) SetVolume(v float64) { e.volume = v }
func (e *Engine) DutyCycle() float64  { return e.duty }

func (e *Engine) SetTempo(bpm float64) {
	if bpm > 0 {
		e.tempo = bpm
	}
}

func (e *Engine) beatsToTicks(beats float64) int {
	return int(math.Round(beats * 60 / e.tempo * float64(e.envelopeRate)))
}

// Render fills buf, calling cycle at every envelope tick before the tick's
// sequencing is done.
func (e *Engine) Render(buf liveseq.AudioBuffer, cycle liveseq.CycleFunc) (int, error) {
	start := time.Now()
	frames := buf.Frames()
	for i := 0; i < frames; i++ {
		e.phase++
		if e.phase >= e.samplesPerTick {
			e.phase -= e.samplesPerTick
			e.scan++
			if err := cycle(e.scan, 1); err != nil {
				return i, err
			}
			e.tick()
		}
		var l, r float64
		for _, p := range e.order {
			pl, pr := p.mix(e.rate)
			l += pl
			r += pr
		}
		buf[2*i] = float32(l * e.volume)
		buf[2*i+1] = float32(r * e.volume)
	}
	if frames > 0 {
		e.duty = time.Since(start).Seconds() * float64(e.rate) / float64(frames)
	}
	return frames, nil
}

func (e *Engine) tick() {
	rowsPerTick := e.tempo / 60 * float64(e.session.RowsPerBeat) / float64(e.envelopeRate)
	ticksPerRow := 1 / rowsPerTick
	for _, p := range e.order {
		p.params.tick()
		p.effects.tick(e.beatsToTicks)
		if p.pattern != nil {
			for p.rowPos >= 1 && p.pattern != nil {
				p.rowPos--
				p.advance(e.scan+liveseq.ScanPos(e.gap), ticksPerRow)
			}
			p.rowPos += rowsPerTick * p.params.value(liveseq.OpHurryUpAbs)
		}
		kept := p.pending[:0]
		for _, ev := range p.pending {
			if ev.at > e.scan {
				kept = append(kept, ev)
				continue
			}
			p.voices = append(p.voices, p.newVoice(ev, e.rate, e.samplesPerTick))
		}
		p.pending = kept
	}
}

// advance moves to the next row and queues the note it triggers, if any.
func (p *player) advance(at liveseq.ScanPos, ticksPerRow float64) {
	p.row++
	if p.row >= len(p.pattern) {
		p.row = 0
		if p.queued != nil {
			p.pattern, p.queued = p.queued, nil
		}
	}
	note := p.pattern.Get(p.row)
	if note <= holdRow {
		return
	}
	gate := float64(p.pattern.HoldRows(p.row)) * ticksPerRow * p.params.value(liveseq.OpDurationAbs)
	p.pending = append(p.pending, event{at: at, note: note, ticks: max(1, int(gate))})
}

func (p *player) mix(rate int) (l, r float64) {
	kept := p.voices[:0]
	for _, v := range p.voices {
		vl, vr := v.next(rate)
		l += vl
		r += vr
		if !v.done() {
			kept = append(kept, v)
		}
	}
	clear(p.voices[len(kept):])
	p.voices = kept
	return p.effects.process(l, r)
}

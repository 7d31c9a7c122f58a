package live_test

import (
	"errors"
	"fmt"
	"sync"

	"github.com/outofphase/liveseq"
	"github.com/outofphase/liveseq/live"
	"github.com/sirupsen/logrus"
)

type (
	// fakeEngine records the calls made by the Sequencer.
	fakeEngine struct {
		mu         sync.Mutex
		calls      []string
		handles    map[liveseq.PlayerHandle]liveseq.TrackID
		pending    map[liveseq.TrackID]int
		banks      map[liveseq.TrackID]int
		values     map[liveseq.TrackID]map[liveseq.Opcode]float64
		effectCmds []*liveseq.EffectCommand
		generators int
		volume     float64
		tempo      float64
		tempoCalls int
		failAdd    error
		failRender error

		scan          liveseq.ScanPos
		ticksPerBlock int
		sample        float32
	}

	testDoc struct {
		tracks []liveseq.TrackID
		tempo  float64
		loop   int
		volume float64
	}
)

var errEngine = errors.New("engine exploded")

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		handles:       make(map[liveseq.PlayerHandle]liveseq.TrackID),
		pending:       make(map[liveseq.TrackID]int),
		banks:         make(map[liveseq.TrackID]int),
		values:        make(map[liveseq.TrackID]map[liveseq.Opcode]float64),
		generators:    1,
		ticksPerBlock: 1,
		sample:        0.5,
	}
}

func (e *fakeEngine) record(format string, args ...any) {
	e.calls = append(e.calls, fmt.Sprintf(format, args...))
}

func (e *fakeEngine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *fakeEngine) ResetCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
}

func (e *fakeEngine) SetPending(track liveseq.TrackID, events, banks int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending[track] = events
	e.banks[track] = banks
}

func (e *fakeEngine) SetValue(track liveseq.TrackID, op liveseq.Opcode, v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.values[track] == nil {
		e.values[track] = make(map[liveseq.Opcode]float64)
	}
	e.values[track][op] = v
}

func (e *fakeEngine) AddTrack(track liveseq.TrackID, doc liveseq.Document, params liveseq.ParamProvider) (liveseq.PlayerHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failAdd != nil {
		return 0, e.failAdd
	}
	h := liveseq.PlayerHandle(len(e.handles) + 1)
	e.handles[h] = track
	e.record("add %v", track)
	return h, nil
}

func (e *fakeEngine) DeleteTrack(h liveseq.PlayerHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("delete %v", e.handles[h])
	return nil
}

func (e *fakeEngine) TerminateSequencing(h liveseq.PlayerHandle, scan liveseq.ScanPos) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("terminate %v", e.handles[h])
	return nil
}

func (e *fakeEngine) InvokeSequence(h liveseq.PlayerHandle, self liveseq.TrackID, sequence string, scan liveseq.ScanPos, mode liveseq.JumpMode) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("invoke %v %v", e.handles[h], sequence)
	return nil
}

func (e *fakeEngine) ExecuteParamCommand(h liveseq.PlayerHandle, cmd *liveseq.ParamCommand) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	track := e.handles[h]
	e.record("param %v %v %v %v", track, cmd.Op, cmd.Value, cmd.Duration)
	if e.values[track] == nil {
		e.values[track] = make(map[liveseq.Opcode]float64)
	}
	e.values[track][cmd.Op] = cmd.Value
	return nil
}

func (e *fakeEngine) EffectGenerators(h liveseq.PlayerHandle) []liveseq.EffectGenerator {
	e.mu.Lock()
	defer e.mu.Unlock()
	gens := make([]liveseq.EffectGenerator, e.generators)
	for i := range gens {
		gens[i] = fmt.Sprintf("%v/%d", e.handles[h], i)
	}
	return gens
}

func (e *fakeEngine) EffectHandleCommand(gen liveseq.EffectGenerator, cmd *liveseq.EffectCommand, scan liveseq.ScanPos) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("effect %v %v %v %v", gen, cmd.Op, cmd.Value, cmd.Duration)
	e.effectCmds = append(e.effectCmds, cmd)
	return nil
}

func (e *fakeEngine) Peek(h liveseq.PlayerHandle, op liveseq.Opcode) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.values[e.handles[h]][op]
	return v, ok
}

func (e *fakeEngine) PendingEvents(h liveseq.PlayerHandle) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending[e.handles[h]]
}

func (e *fakeEngine) ActiveBanks(h liveseq.PlayerHandle) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.banks[e.handles[h]]
}

func (e *fakeEngine) SetVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = v
}

func (e *fakeEngine) SetTempo(bpm float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tempo = bpm
	e.tempoCalls++
}

func (e *fakeEngine) TempoCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tempoCalls
}

func (e *fakeEngine) DutyCycle() float64 { return 0.25 }

// Render advances ticksPerBlock envelope ticks and fills buf with a constant.
func (e *fakeEngine) Render(buf liveseq.AudioBuffer, cycle liveseq.CycleFunc) (int, error) {
	if e.failRender != nil {
		return 0, e.failRender
	}
	for i := 0; i < e.ticksPerBlock; i++ {
		e.scan++
		if err := cycle(e.scan, 1); err != nil {
			return 0, err
		}
	}
	for i := range buf {
		buf[i] = e.sample
	}
	return buf.Frames(), nil
}

func (d *testDoc) Name() string              { return "test" }
func (d *testDoc) Volume() float64           { return d.volume }
func (d *testDoc) Tempo() float64            { return d.tempo }
func (d *testDoc) LoopBeats() int            { return d.loop }
func (d *testDoc) Tracks() []liveseq.TrackID { return d.tracks }

func newTestDoc(tracks ...liveseq.TrackID) *testDoc {
	return &testDoc{tracks: tracks, tempo: 60, loop: 1, volume: 0.7}
}

// testConfig gives a loop of 4 envelope ticks at the test document's tempo
// and a scanning gap of 2 ticks.
func testConfig() live.Config {
	c := live.DefaultConfig()
	c.SampleRate = 1000
	c.BlockFrames = 10
	c.EnvelopeRate = 4
	c.ScanningGap = 2
	c.BufferSeconds = 0.1
	c.StartThreshold = 0.02
	return c
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

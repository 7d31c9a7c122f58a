package live

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/outofphase/liveseq"
)

type (
	// Session is the part of a Player the Controller drives.
	Session interface {
		SetRequest(batch []liveseq.TrackRequest)
		PeekRequest() []liveseq.TrackRequest
		TakeStatus() []liveseq.TrackStatus
		EnqueueParamBoardEntry(e *ParamBoardEntry)
		ParamBoard() BoardView
		Params() *liveseq.ParamTable

		Mute() bool
		SetMute(mute bool)
		LoopPosition() float64
		CriticalThreshhold() float64
		DutyCycle() float64
		MeterLevel() (short, long float32)
		BufferLevel() float64
		Underruns() int64
	}

	// Controller keeps the UI-side state of a session: commands staged but
	// not committed, the last published track status and the parameter
	// bindings. Its methods may be called from several UI goroutines.
	Controller struct {
		session Session
		doc     liveseq.Document
		params  liveseq.ParamProvider

		mu     sync.Mutex
		staged []liveseq.TrackRequest
		last   []liveseq.TrackStatus
		bound  map[Moniker]*ParamBoardEntry
	}

	// TrackView is one row of the track display.
	TrackView struct {
		Track         liveseq.TrackID
		Sequence      string
		PendingDelete bool
		Live          bool   // the track is instantiated in the engine
		HasQueued     bool   // a committed command waits for the loop boundary
		Queued        string // the waiting command
	}

	// BoardRow is one bound parameter as shown by the UI.
	BoardRow struct {
		Moniker Moniker
		Value   float64
		Changed bool // the synth changed the value since the last Refresh
	}
)

var (
	ErrAlreadyBound = errors.New("parameter already bound")
	ErrNotBound     = errors.New("parameter not bound")
	ErrUnknownParam = errors.New("unknown parameter")
)

// NewController creates a Controller for session. doc and params are put in
// every request it commits.
func NewController(session Session, doc liveseq.Document, params liveseq.ParamProvider) *Controller {
	return &Controller{
		session: session,
		doc:     doc,
		params:  params,
		bound:   make(map[Moniker]*ParamBoardEntry),
	}
}

func (c *Controller) Session() Session { return c.session }

// Stage sets the command for a track; the empty track addresses every track
// of the document. A later Stage for the same track replaces the earlier one
// and moves it last, so commit order follows staging order.
func (c *Controller) Stage(track liveseq.TrackID, command string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staged = slices.DeleteFunc(c.staged, func(r liveseq.TrackRequest) bool { return r.Track == track })
	c.staged = append(c.staged, liveseq.TrackRequest{
		Document: c.doc,
		Track:    track,
		Params:   c.params,
		Command:  strings.TrimSpace(command),
	})
}

// Unstage forgets the staged command of a track.
func (c *Controller) Unstage(track liveseq.TrackID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.staged)
	c.staged = slices.DeleteFunc(c.staged, func(r liveseq.TrackRequest) bool { return r.Track == track })
	return len(c.staged) != n
}

func (c *Controller) Staged() []liveseq.TrackRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.staged)
}

// Commit hands the staged commands to the session and clears them. With
// nothing staged it does nothing and returns 0, leaving an earlier commit
// still queued.
func (c *Controller) Commit() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.staged)
	if n == 0 {
		return 0
	}
	c.session.SetRequest(c.staged)
	c.staged = nil
	return n
}

// Poll returns the track display: the last published status merged with the
// committed commands that have not been applied yet.
func (c *Controller) Poll() []TrackView {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st := c.session.TakeStatus(); st != nil {
		c.last = st
	}
	views := make([]TrackView, 0, len(c.last))
	index := make(map[liveseq.TrackID]int, len(c.last))
	add := func(track liveseq.TrackID) int {
		if i, ok := index[track]; ok {
			return i
		}
		index[track] = len(views)
		views = append(views, TrackView{Track: track})
		return len(views) - 1
	}
	for _, s := range c.last {
		i := add(s.Track)
		views[i].Sequence = s.Sequence
		views[i].PendingDelete = s.PendingDelete
		views[i].Live = true
	}
	for _, r := range c.session.PeekRequest() {
		tracks := []liveseq.TrackID{r.Track}
		if r.Track == "" {
			tracks = nil
			if r.Document != nil {
				tracks = r.Document.Tracks()
			}
		}
		for _, t := range tracks {
			i := add(t)
			views[i].HasQueued = true
			views[i].Queued = r.Command
		}
	}
	return views
}

// Snapshot gathers everything the status line shows. It polls the session,
// so it resets the meter maxima.
func (c *Controller) Snapshot() StatusSnapshot {
	short, long := c.session.MeterLevel()
	return StatusSnapshot{
		Position:  c.session.LoopPosition() * 100,
		Critical:  c.session.CriticalThreshhold() * 100,
		Duty:      c.session.DutyCycle() * 100,
		Buffered:  c.session.BufferLevel(),
		Underruns: c.session.Underruns(),
		Muted:     c.session.Mute(),
		ShortBars: Bars(short),
		LongBars:  Bars(long),
		Tracks:    c.Poll(),
	}
}

// moniker resolves param to its canonical name, so aliases share a binding.
func (c *Controller) moniker(track liveseq.TrackID, param string) (Moniker, error) {
	def, ok := c.session.Params().Lookup(param)
	if !ok {
		return Moniker{}, fmt.Errorf("%w: %q", ErrUnknownParam, param)
	}
	return MakeMoniker(track, def.Names[0]), nil
}

// Bind creates a binding for a track parameter with an initial value. The
// synth value is read back into the binding until the UI changes it.
// Rebinding an unbound parameter fails until the Sequencer has applied the
// removal.
func (c *Controller) Bind(track liveseq.TrackID, param string, value float64) (*ParamBoardEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bind(track, param, value)
}

func (c *Controller) bind(track liveseq.TrackID, param string, value float64) (*ParamBoardEntry, error) {
	m, err := c.moniker(track, param)
	if err != nil {
		return nil, err
	}
	if _, ok := c.bound[m]; ok || c.session.ParamBoard().Has(m) {
		return nil, fmt.Errorf("%w: %v", ErrAlreadyBound, m)
	}
	e := NewParamBoardEntry(m, value)
	c.bound[m] = e
	c.session.EnqueueParamBoardEntry(e)
	return e, nil
}

// SetParam sets a bound parameter from the UI, binding it first if needed.
func (c *Controller) SetParam(track liveseq.TrackID, param string, value float64) (*ParamBoardEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, err := c.moniker(track, param)
	if err != nil {
		return nil, err
	}
	if e, ok := c.bound[m]; ok {
		e.SetValueFromUI(value)
		return e, nil
	}
	e, err := c.bind(track, param, value)
	if err != nil {
		return nil, err
	}
	e.ForceSynthPush()
	return e, nil
}

func (c *Controller) Binding(track liveseq.TrackID, param string) (*ParamBoardEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, err := c.moniker(track, param)
	if err != nil {
		return nil, false
	}
	e, ok := c.bound[m]
	return e, ok
}

func (c *Controller) Unbind(track liveseq.TrackID, param string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, err := c.moniker(track, param)
	if err != nil {
		return err
	}
	if _, ok := c.bound[m]; !ok {
		return fmt.Errorf("%w: %v", ErrNotBound, m)
	}
	delete(c.bound, m)
	c.session.EnqueueParamBoardEntry(NewTombstone(m))
	return nil
}

func (c *Controller) ClearBoard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.bound)
	c.session.EnqueueParamBoardEntry(nil)
}

// Refresh lists the bindings in moniker order, consuming the synth-side
// change flags.
func (c *Controller) Refresh() []BoardRow {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows := make([]BoardRow, 0, len(c.bound))
	for m, e := range c.bound {
		changed := e.GetUpdateUI()
		rows = append(rows, BoardRow{Moniker: m, Value: e.Value(), Changed: changed})
	}
	slices.SortFunc(rows, func(a, b BoardRow) int {
		switch {
		case a.Moniker.Less(b.Moniker):
			return -1
		case b.Moniker.Less(a.Moniker):
			return 1
		}
		return 0
	})
	return rows
}

func (c *Controller) Mute() bool        { return c.session.Mute() }
func (c *Controller) SetMute(mute bool) { c.session.SetMute(mute) }

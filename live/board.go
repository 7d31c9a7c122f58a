package live

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/btree"
	"github.com/outofphase/liveseq"
)

type (
	// Moniker names a parameter on a track.
	Moniker struct {
		Track liveseq.TrackID
		Param string
	}

	// EntryState tells which side of a binding is stale. Only one direction
	// is tracked at a time: a UI edit waiting to be pushed to the synth wins
	// over a synth-side change waiting to be shown.
	EntryState int32

	// ParamBoardEntry binds a UI control to a live parameter. The value and
	// its state are swapped together, so both goroutines always see a
	// consistent pair.
	ParamBoardEntry struct {
		Moniker Moniker
		delete  bool
		snap    atomic.Pointer[entrySnapshot]
	}

	entrySnapshot struct {
		value float64
		state EntryState
	}

	// ParamBoard is the set of live parameter bindings. The UI enqueues
	// changes; the Sequencer applies them once per cycle to a clone of the
	// published tree and publishes the clone, so readers of View never see a
	// half-applied batch. Applying a batch costs one clone of the tree.
	ParamBoard struct {
		mu    sync.Mutex
		queue []*ParamBoardEntry // nil entry means clear all

		published atomic.Pointer[btree.BTreeG[*ParamBoardEntry]]
	}

	// BoardView is a read-only published version of the board.
	BoardView struct {
		tree *btree.BTreeG[*ParamBoardEntry]
	}
)

const (
	Clean EntryState = iota
	NeedsSynthPush
	NeedsUIRefresh
)

const boardDegree = 8

func (s EntryState) String() string {
	switch s {
	case NeedsSynthPush:
		return "needs-synth-push"
	case NeedsUIRefresh:
		return "needs-ui-refresh"
	default:
		return "clean"
	}
}

// MakeMoniker normalizes the parameter name so it matches the ParamTable's
// case-insensitive lookup.
func MakeMoniker(track liveseq.TrackID, param string) Moniker {
	return Moniker{Track: track, Param: strings.ToLower(strings.TrimSpace(param))}
}

func (m Moniker) Less(o Moniker) bool {
	if m.Track != o.Track {
		return m.Track < o.Track
	}
	return m.Param < o.Param
}

func (m Moniker) String() string { return string(m.Track) + "." + m.Param }

func entryLess(a, b *ParamBoardEntry) bool { return a.Moniker.Less(b.Moniker) }

func NewParamBoardEntry(m Moniker, value float64) *ParamBoardEntry {
	e := &ParamBoardEntry{Moniker: m}
	e.snap.Store(&entrySnapshot{value: value, state: Clean})
	return e
}

// NewTombstone returns an entry that removes the binding for m when applied.
func NewTombstone(m Moniker) *ParamBoardEntry {
	e := NewParamBoardEntry(m, 0)
	e.delete = true
	return e
}

func (e *ParamBoardEntry) Deleted() bool     { return e.delete }
func (e *ParamBoardEntry) Value() float64    { return e.snap.Load().value }
func (e *ParamBoardEntry) State() EntryState { return e.snap.Load().state }

// SetValueFromUI stores value and, if it changed, raises the one-shot synth
// push flag. It returns whether the value changed.
func (e *ParamBoardEntry) SetValueFromUI(value float64) bool {
	for {
		cur := e.snap.Load()
		if cur.value == value {
			return false
		}
		if e.snap.CompareAndSwap(cur, &entrySnapshot{value: value, state: NeedsSynthPush}) {
			return true
		}
	}
}

// ForceSynthPush raises the synth push flag without changing the value.
func (e *ParamBoardEntry) ForceSynthPush() {
	for {
		cur := e.snap.Load()
		if e.snap.CompareAndSwap(cur, &entrySnapshot{value: cur.value, state: NeedsSynthPush}) {
			return
		}
	}
}

// GetUpdateSynth reports and clears the synth push flag.
func (e *ParamBoardEntry) GetUpdateSynth() bool {
	return e.clear(NeedsSynthPush)
}

// UpdateValueFromSynth stores a value read back from the synth and raises the
// one-shot UI refresh flag if it differs from the cached one. A pending UI
// edit takes precedence: in that case nothing changes and false is returned.
func (e *ParamBoardEntry) UpdateValueFromSynth(value float64) bool {
	for {
		cur := e.snap.Load()
		if cur.state == NeedsSynthPush || cur.value == value {
			return false
		}
		if e.snap.CompareAndSwap(cur, &entrySnapshot{value: value, state: NeedsUIRefresh}) {
			return true
		}
	}
}

// GetUpdateUI reports and clears the UI refresh flag.
func (e *ParamBoardEntry) GetUpdateUI() bool {
	return e.clear(NeedsUIRefresh)
}

func (e *ParamBoardEntry) clear(state EntryState) bool {
	for {
		cur := e.snap.Load()
		if cur.state != state {
			return false
		}
		if e.snap.CompareAndSwap(cur, &entrySnapshot{value: cur.value, state: Clean}) {
			return true
		}
	}
}

func NewParamBoard() *ParamBoard {
	b := &ParamBoard{}
	b.published.Store(btree.NewG(boardDegree, entryLess))
	return b
}

// Enqueue queues an entry to be added (or replaced), a tombstone to remove a
// binding, or nil to clear the board. Safe to call from any goroutine.
func (b *ParamBoard) Enqueue(e *ParamBoardEntry) {
	b.mu.Lock()
	b.queue = append(b.queue, e)
	b.mu.Unlock()
}

func (b *ParamBoard) HasQueuedUpdates() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue) > 0
}

// View returns the currently published board.
func (b *ParamBoard) View() BoardView {
	return BoardView{tree: b.published.Load()}
}

// DrainAndApply applies all queued changes and returns the newly published
// view. Only the Sequencer goroutine may call it.
func (b *ParamBoard) DrainAndApply() BoardView {
	b.mu.Lock()
	queue := b.queue
	b.queue = nil
	b.mu.Unlock()
	if len(queue) == 0 {
		return b.View()
	}
	next := b.published.Load().Clone()
	for _, e := range queue {
		switch {
		case e == nil:
			next = btree.NewG(boardDegree, entryLess)
		case e.delete:
			next.Delete(e)
		default:
			next.ReplaceOrInsert(e)
		}
	}
	b.published.Store(next)
	return BoardView{tree: next}
}

func (v BoardView) Len() int { return v.tree.Len() }

func (v BoardView) Has(m Moniker) bool {
	return v.tree.Has(&ParamBoardEntry{Moniker: m})
}

func (v BoardView) Get(m Moniker) (*ParamBoardEntry, bool) {
	return v.tree.Get(&ParamBoardEntry{Moniker: m})
}

// Ascend calls f for every entry in moniker order until f returns false.
func (v BoardView) Ascend(f func(e *ParamBoardEntry) bool) {
	v.tree.Ascend(btree.ItemIteratorG[*ParamBoardEntry](f))
}

func (v BoardView) Entries() []*ParamBoardEntry {
	ret := make([]*ParamBoardEntry, 0, v.tree.Len())
	v.tree.Ascend(func(e *ParamBoardEntry) bool {
		ret = append(ret, e)
		return true
	})
	return ret
}

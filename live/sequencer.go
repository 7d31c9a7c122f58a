package live

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/outofphase/liveseq"
	"github.com/sirupsen/logrus"
)

type (
	// Sequencer is the per-cycle state machine of a live session. Cycle is
	// called by the engine on the synthesis goroutine; everything else the UI
	// may call from any goroutine.
	Sequencer struct {
		engine liveseq.Engine
		doc    liveseq.Document
		params *liveseq.ParamTable
		config Config
		broker *Broker
		log    logrus.FieldLogger

		requests Mailbox[[]liveseq.TrackRequest]
		status   Mailbox[[]liveseq.TrackStatus]
		board    *ParamBoard

		countdown Countdown
		duty      atomic.Uint64 // math.Float64bits

		tracks   []*liveTrack // in order of first appearance
		byID     map[liveseq.TrackID]*liveTrack
		paramCmd liveseq.ParamCommand
	}

	liveTrack struct {
		id            liveseq.TrackID
		doc           liveseq.Document
		handle        liveseq.PlayerHandle
		sequence      string
		pendingDelete bool
	}

	SequencerConfig struct {
		Engine   liveseq.Engine
		Document liveseq.Document
		Params   *liveseq.ParamTable // nil means liveseq.DefaultParamTable()
		Config   Config
		Broker   *Broker
		Logger   logrus.FieldLogger
	}
)

func NewSequencer(c SequencerConfig) *Sequencer {
	if c.Params == nil {
		c.Params = liveseq.DefaultParamTable()
	}
	if c.Broker == nil {
		c.Broker = NewBroker()
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return &Sequencer{
		engine: c.Engine,
		doc:    c.Document,
		params: c.Params,
		config: c.Config,
		broker: c.Broker,
		log:    c.Logger.WithField("component", "sequencer"),
		board:  NewParamBoard(),
		byID:   make(map[liveseq.TrackID]*liveTrack),
	}
}

// SetRequest commits a batch of track requests, replacing any batch not yet
// applied. The batch is copied.
func (s *Sequencer) SetRequest(batch []liveseq.TrackRequest) {
	b := append([]liveseq.TrackRequest(nil), batch...)
	s.requests.Set(&b)
}

// PeekRequest returns the committed batch not yet applied, or nil.
func (s *Sequencer) PeekRequest() []liveseq.TrackRequest {
	if b := s.requests.Peek(); b != nil {
		return append([]liveseq.TrackRequest(nil), (*b)...)
	}
	return nil
}

// TakeStatus returns the status published since the last call, or nil if
// there is none.
func (s *Sequencer) TakeStatus() []liveseq.TrackStatus {
	if st := s.status.Take(); st != nil {
		return *st
	}
	return nil
}

func (s *Sequencer) Board() *ParamBoard          { return s.board }
func (s *Sequencer) Countdown() *Countdown       { return &s.countdown }
func (s *Sequencer) DutyCycle() float64          { return math.Float64frombits(s.duty.Load()) }
func (s *Sequencer) Params() *liveseq.ParamTable { return s.params }

// Cycle runs one envelope cycle. It is a liveseq.CycleFunc.
func (s *Sequencer) Cycle(scan liveseq.ScanPos, elapsed int) error {
	defer s.publishStatus()
	if err := s.sweepDeleted(); err != nil {
		return err
	}
	if s.doc != nil {
		s.engine.SetVolume(s.doc.Volume())
	}
	if scan < liveseq.ScanPos(s.config.ScanningGap) {
		return nil
	}
	if s.countdown.Step(elapsed) {
		tempo := 120.0
		loopBeats := 1
		if s.doc != nil {
			tempo, loopBeats = s.doc.Tempo(), s.doc.LoopBeats()
		}
		s.countdown.Restart(loopBeats, tempo, s.config.EnvelopeRate, s.config.CriticalTicks())
		s.engine.SetTempo(tempo)
		if batch := s.requests.Take(); batch != nil {
			if err := s.applyBatch(*batch, scan); err != nil {
				return err
			}
		}
	}
	return s.applyBoard(scan)
}

// sweepDeleted removes tracks marked for deletion once they are silent.
func (s *Sequencer) sweepDeleted() error {
	kept := s.tracks[:0]
	for _, t := range s.tracks {
		if t.pendingDelete && s.engine.PendingEvents(t.handle) == 0 && s.engine.ActiveBanks(t.handle) == 0 {
			if err := s.engine.DeleteTrack(t.handle); err != nil {
				return fmt.Errorf("could not delete track %v: %w", t.id, err)
			}
			delete(s.byID, t.id)
			s.log.WithField("track", t.id).Debug("track deleted")
			continue
		}
		kept = append(kept, t)
	}
	clear(s.tracks[len(kept):])
	s.tracks = kept
	return nil
}

// resolve expands whole-document requests and drops all but the last
// request for each track, keeping the order of last occurrence.
func (s *Sequencer) resolve(batch []liveseq.TrackRequest) []liveseq.TrackRequest {
	expanded := make([]liveseq.TrackRequest, 0, len(batch))
	for _, r := range batch {
		if r.Document == nil {
			r.Document = s.doc
		}
		if r.Track != "" || r.Document == nil {
			if r.Track != "" {
				expanded = append(expanded, r)
			}
			continue
		}
		for _, id := range r.Document.Tracks() {
			e := r
			e.Track = id
			expanded = append(expanded, e)
		}
	}
	last := make(map[liveseq.TrackID]int, len(expanded))
	for i, r := range expanded {
		last[r.Track] = i
	}
	ret := expanded[:0]
	for i, r := range expanded {
		if last[r.Track] == i {
			ret = append(ret, r)
		}
	}
	return ret
}

func (s *Sequencer) applyBatch(batch []liveseq.TrackRequest, scan liveseq.ScanPos) error {
	for _, r := range s.resolve(batch) {
		if err := s.applyRequest(r, scan); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequencer) applyRequest(r liveseq.TrackRequest, scan liveseq.ScanPos) error {
	cmd, parseErr := liveseq.ParseCommand(r.Command)
	s.reportArgumentErrors(r.Track, parseErr)
	t, ok := s.byID[r.Track]
	if !ok {
		if cmd.Sentinel == liveseq.DeleteTrack {
			return nil
		}
		h, err := s.engine.AddTrack(r.Track, r.Document, r.Params)
		if err != nil {
			return fmt.Errorf("could not add track %v: %w", r.Track, err)
		}
		t = &liveTrack{id: r.Track, doc: r.Document, handle: h}
		s.tracks = append(s.tracks, t)
		s.byID[r.Track] = t
		s.log.WithField("track", r.Track).Debug("track added")
	}
	log := s.log.WithField("track", r.Track)
	switch {
	case cmd.Sentinel == liveseq.EndSequencing:
		if err := s.engine.TerminateSequencing(t.handle, scan); err != nil {
			return fmt.Errorf("could not end sequencing of track %v: %w", t.id, err)
		}
		t.sequence = ""
		log.Debug("sequencing ended")
		return nil
	case cmd.Sentinel == liveseq.DeleteTrack:
		if err := s.engine.TerminateSequencing(t.handle, scan); err != nil {
			return fmt.Errorf("could not end sequencing of track %v: %w", t.id, err)
		}
		t.sequence = ""
		t.pendingDelete = true
		log.Debug("track marked for deletion")
		return nil
	case cmd.Sequence != "":
		if err := s.engine.InvokeSequence(t.handle, t.id, cmd.Sequence, scan, liveseq.JumpImmediate); err != nil {
			return fmt.Errorf("could not invoke sequence %q on track %v: %w", cmd.Sequence, t.id, err)
		}
		t.sequence = cmd.Sequence
		t.pendingDelete = false
		log.WithField("sequence", cmd.Sequence).Debug("sequence invoked")
	}
	return s.applyArgs(t, cmd.Args, scan)
}

func (s *Sequencer) applyArgs(t *liveTrack, args []liveseq.Arg, scan liveseq.ScanPos) error {
	for _, arg := range args {
		sweep, ok, err := s.params.Resolve(arg)
		if !ok {
			continue
		}
		if err != nil {
			s.reportArgumentErrors(t.id, &liveseq.ArgumentError{Key: arg.Key, Text: arg.Text, Err: err})
			continue
		}
		if err := s.sendSweep(t, sweep, scan); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequencer) sendSweep(t *liveTrack, sweep liveseq.ParamSweep, scan liveseq.ScanPos) error {
	switch sweep.Def.Target {
	case liveseq.TargetTrack:
		for _, gen := range s.engine.EffectGenerators(t.handle) {
			cmd := &liveseq.EffectCommand{Op: sweep.Opcode(), Value: sweep.Value, Duration: sweep.Duration}
			if err := s.engine.EffectHandleCommand(gen, cmd, scan); err != nil {
				return fmt.Errorf("could not send effect command to track %v: %w", t.id, err)
			}
		}
	default:
		s.paramCmd = liveseq.ParamCommand{Op: sweep.Opcode(), Value: sweep.Value, Duration: sweep.Duration}
		if err := s.engine.ExecuteParamCommand(t.handle, &s.paramCmd); err != nil {
			return fmt.Errorf("could not send parameter command to track %v: %w", t.id, err)
		}
	}
	return nil
}

// applyBoard pushes UI edits to the synth and reads back the current values
// of the other bound parameters.
func (s *Sequencer) applyBoard(scan liveseq.ScanPos) error {
	var err error
	s.board.DrainAndApply().Ascend(func(e *ParamBoardEntry) bool {
		t, ok := s.byID[e.Moniker.Track]
		if !ok || t.pendingDelete {
			return true
		}
		def, ok := s.params.Lookup(e.Moniker.Param)
		if !ok {
			return true
		}
		if e.GetUpdateSynth() {
			sweep := liveseq.ParamSweep{Def: def, Mode: liveseq.AbsoluteSweep, Value: e.Value()}
			err = s.sendSweep(t, sweep, scan)
			return err == nil
		}
		if def.Peek != nil {
			if v, ok := def.Peek(s.engine, t.handle); ok {
				e.UpdateValueFromSynth(v)
			}
		}
		return true
	})
	return err
}

func (s *Sequencer) reportArgumentErrors(track liveseq.TrackID, err error) {
	if err == nil {
		return
	}
	var errs []error
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		errs = j.Unwrap()
	} else {
		errs = []error{err}
	}
	for _, e := range errs {
		var argErr *liveseq.ArgumentError
		if !errors.As(e, &argErr) {
			argErr = &liveseq.ArgumentError{Err: e}
		}
		argErr.Track = track
		s.log.WithFields(logrus.Fields{"track": track, "arg": argErr.Text}).WithError(argErr.Err).Warn("skipped malformed argument")
		TrySend[any](s.broker.ToUI, argErr)
	}
}

func (s *Sequencer) publishStatus() {
	st := make([]liveseq.TrackStatus, len(s.tracks))
	for i, t := range s.tracks {
		st[i] = liveseq.TrackStatus{Document: t.doc, Track: t.id, Sequence: t.sequence, PendingDelete: t.pendingDelete}
	}
	s.status.Set(&st)
	s.duty.Store(math.Float64bits(s.engine.DutyCycle()))
}

package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/outofphase/liveseq"
	"github.com/outofphase/liveseq/output"
	"github.com/sirupsen/logrus"
)

type (
	// Player is a live session: it renders the engine block by block on its
	// own goroutine, runs the Sequencer once per envelope cycle and posts the
	// audio into a Sink.
	Player struct {
		seq    *Sequencer
		engine liveseq.Engine
		sink   *output.Sink
		meter  *Meter
		broker *Broker
		config Config
		log    logrus.FieldLogger

		mute     atomic.Bool
		draining atomic.Bool

		mu     sync.Mutex
		state  playerState
		cancel context.CancelFunc
		done   chan struct{}
		err    error
	}

	PlayerConfig struct {
		Engine      liveseq.Engine
		Document    liveseq.Document
		Destination liveseq.Destination
		Params      *liveseq.ParamTable // nil means liveseq.DefaultParamTable()
		Config      Config
		Broker      *Broker // nil creates a new one
		Logger      logrus.FieldLogger
	}

	playerState int
)

const (
	playerCreated playerState = iota
	playerRunning
	playerStopped
	playerDisposed
)

var (
	ErrAlreadyStarted = errors.New("player already started")
	ErrNotStarted     = errors.New("player not started")
	ErrDisposed       = errors.New("player disposed")
)

func NewPlayer(c PlayerConfig) (*Player, error) {
	if c.Engine == nil {
		return nil, errors.New("player needs an engine")
	}
	if c.Destination == nil {
		return nil, errors.New("player needs a destination")
	}
	if err := c.Config.Validate(); err != nil {
		return nil, err
	}
	if c.Destination.SampleRate() != c.Config.SampleRate {
		return nil, fmt.Errorf("%w: destination runs at %v Hz, config asks for %v Hz", ErrInvalidConfig, c.Destination.SampleRate(), c.Config.SampleRate)
	}
	if c.Broker == nil {
		c.Broker = NewBroker()
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	sinkConfig := c.Config.SinkConfig()
	sinkConfig.Logger = c.Logger
	return &Player{
		seq: NewSequencer(SequencerConfig{
			Engine:   c.Engine,
			Document: c.Document,
			Params:   c.Params,
			Config:   c.Config,
			Broker:   c.Broker,
			Logger:   c.Logger,
		}),
		engine: c.Engine,
		sink:   output.NewSink(c.Destination, sinkConfig),
		meter:  NewMeter(c.Config.SampleRate, c.Config.MeterRelease),
		broker: c.Broker,
		config: c.Config,
		log:    c.Logger.WithField("component", "player"),
	}, nil
}

// Start launches the render loop. A stopped Player can be started again.
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case playerRunning:
		return ErrAlreadyStarted
	case playerDisposed:
		return ErrDisposed
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.state = playerRunning
	p.cancel = cancel
	p.done = make(chan struct{})
	p.err = nil
	p.draining.Store(false)
	go p.run(ctx, p.done)
	p.log.Info("player started")
	return nil
}

// Stop ends the render loop, dropping the buffered audio, and waits for it to
// exit. Stopping a Player that is not running does nothing.
func (p *Player) Stop() error {
	return p.halt(false)
}

// Drain ends the render loop like Stop, but lets the device play out what is
// already buffered.
func (p *Player) Drain() error {
	return p.halt(true)
}

func (p *Player) halt(drain bool) error {
	p.mu.Lock()
	if p.state != playerRunning {
		p.mu.Unlock()
		return nil
	}
	p.draining.Store(drain)
	p.cancel()
	done := p.done
	p.mu.Unlock()
	<-done
	return p.Err()
}

// Dispose stops the Player and releases the device.
func (p *Player) Dispose() error {
	if err := p.Stop(); err != nil {
		p.log.WithError(err).Debug("player had failed before dispose")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == playerDisposed {
		return nil
	}
	p.state = playerDisposed
	if err := p.sink.Close(); err != nil {
		return fmt.Errorf("could not close sink: %w", err)
	}
	return nil
}

// Wait blocks until the render loop exits and returns its error.
func (p *Player) Wait() error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return ErrNotStarted
	}
	<-done
	return p.Err()
}

// Err returns the error that ended the last run, or nil.
func (p *Player) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Player) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	buf := make(liveseq.AudioBuffer, p.config.BlockFrames*2)
	var runErr error
	for ctx.Err() == nil {
		n, err := p.engine.Render(buf, p.seq.Cycle)
		if err != nil {
			runErr = fmt.Errorf("engine failed: %w", err)
			break
		}
		block := buf[:n*2]
		if p.mute.Load() {
			clear(block)
		}
		p.meter.Process(block)
		if err := p.sink.Post(ctx, block); err != nil {
			if !errors.Is(err, context.Canceled) {
				runErr = err
			}
			break
		}
	}
	abort := runErr != nil || !p.draining.Load()
	if err := p.sink.Finish(abort); err != nil && runErr == nil {
		runErr = err
	}
	p.mu.Lock()
	p.err = runErr
	if p.state == playerRunning {
		p.state = playerStopped
	}
	p.mu.Unlock()
	if runErr != nil {
		p.log.WithError(runErr).Error("player crashed")
		TrySend[any](p.broker.ToUI, Alert{
			Name:     "PlayerCrash",
			Priority: Error,
			Message:  runErr.Error(),
			Duration: defaultAlertDuration,
		})
	} else {
		p.log.Info("player stopped")
	}
	TrySend[any](p.broker.ToUI, StoppedMsg{Err: runErr})
}

// SetRequest commits a batch of track requests. It is applied at the next
// loop boundary unless a later commit replaces it first.
func (p *Player) SetRequest(batch []liveseq.TrackRequest) { p.seq.SetRequest(batch) }

// PeekRequest returns the committed batch not yet applied.
func (p *Player) PeekRequest() []liveseq.TrackRequest { return p.seq.PeekRequest() }

// TakeStatus returns the track status published since the last call, or nil.
func (p *Player) TakeStatus() []liveseq.TrackStatus { return p.seq.TakeStatus() }

func (p *Player) EnqueueParamBoardEntry(e *ParamBoardEntry) { p.seq.Board().Enqueue(e) }
func (p *Player) HasQueuedUpdates() bool                    { return p.seq.Board().HasQueuedUpdates() }
func (p *Player) ParamBoard() BoardView                     { return p.seq.Board().View() }

func (p *Player) Mute() bool         { return p.mute.Load() }
func (p *Player) SetMute(mute bool)  { p.mute.Store(mute) }
func (p *Player) Broker() *Broker    { return p.broker }
func (p *Player) Sink() *output.Sink { return p.sink }

func (p *Player) Params() *liveseq.ParamTable { return p.seq.Params() }

func (p *Player) LoopPosition() float64 { return p.seq.Countdown().Position() }

// CriticalThreshhold is the loop position after which a commit will likely
// miss the coming loop boundary.
func (p *Player) CriticalThreshhold() float64 { return p.seq.Countdown().CriticalThreshold() }

func (p *Player) DutyCycle() float64 { return p.seq.DutyCycle() }

// MeterLevel returns the peak levels since the previous call and resets them.
func (p *Player) MeterLevel() (short, long float32) { return p.meter.Take() }

// BufferLevel is the audio buffered ahead of the device, in seconds.
func (p *Player) BufferLevel() float64 { return p.sink.Level() }

func (p *Player) Underruns() int64 { return p.sink.Stats().Underruns }

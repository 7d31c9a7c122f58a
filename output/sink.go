/*
Package output buffers rendered audio into a liveseq.Destination.

The Sink does not start the device until StartThreshold frames are queued, so
playback never begins with a glitch. If the device drains to empty while
playing, the Sink stops it and waits for the threshold to be reached again
instead of restarting on a nearly empty buffer: a short silence is preferred
over an audible buzz.

When the device buffer has no room, Post blocks the calling goroutine,
rechecking every PollInterval, and starts the device if it was not running.
*/
package output

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/outofphase/liveseq"
	"github.com/sirupsen/logrus"
)

type (
	// Clock abstracts the polling waits so tests can simulate the device
	// draining while the Sink sleeps.
	Clock interface {
		After(d time.Duration) <-chan time.Time
	}

	SinkConfig struct {
		StartThreshold int // frames queued before the device is started
		ChunkFrames    int // frames staged before writing to the device
		PollInterval   time.Duration
		FinishTimeout  time.Duration
		Clock          Clock
		Logger         logrus.FieldLogger
	}

	Sink struct {
		dest   liveseq.Destination
		config SinkConfig
		log    logrus.FieldLogger

		mu     sync.Mutex // serializes Post, Finish and Close
		staged liveseq.AudioBuffer
		closed bool

		started      atomic.Bool
		framesPosted atomic.Int64
		underruns    atomic.Int64
		starts       atomic.Int64
	}

	SinkStats struct {
		FramesPosted int64
		Underruns    int64
		Starts       int64
		Running      bool
	}

	realClock struct{}
)

const (
	DefaultPollInterval  = 50 * time.Millisecond
	DefaultFinishTimeout = 5 * time.Second
	DefaultChunkFrames   = 512
)

var (
	ErrClosed      = errors.New("sink is closed")
	ErrHalfFrame   = errors.New("sample count is not a whole number of stereo frames")
	ErrFinishStall = errors.New("device did not take the staged audio in time")
)

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// NewSink wraps dest. Zero config fields get defaults; a StartThreshold
// larger than the device buffer is clamped to the buffer size.
func NewSink(dest liveseq.Destination, config SinkConfig) *Sink {
	if config.ChunkFrames <= 0 {
		config.ChunkFrames = DefaultChunkFrames
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.FinishTimeout <= 0 {
		config.FinishTimeout = DefaultFinishTimeout
	}
	if config.Clock == nil {
		config.Clock = realClock{}
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	if config.StartThreshold > dest.BufferFrames() {
		config.StartThreshold = dest.BufferFrames()
	}
	if config.ChunkFrames > dest.BufferFrames() {
		config.ChunkFrames = dest.BufferFrames()
	}
	return &Sink{
		dest:   dest,
		config: config,
		log:    config.Logger.WithField("component", "sink"),
		staged: make(liveseq.AudioBuffer, 0, config.ChunkFrames*2),
	}
}

// Post queues interleaved stereo samples. It blocks while the device buffer
// is full and returns ctx.Err() if ctx is cancelled while waiting. Device
// failures are returned wrapped and leave the Sink unusable for playback.
func (s *Sink) Post(ctx context.Context, samples liveseq.AudioBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if len(samples)%2 != 0 {
		return fmt.Errorf("%w: got %d samples", ErrHalfFrame, len(samples))
	}
	for len(samples) > 0 {
		n := min(len(samples), cap(s.staged)-len(s.staged))
		s.staged = append(s.staged, samples[:n]...)
		samples = samples[n:]
		s.framesPosted.Add(int64(n / 2))
		if len(s.staged) == cap(s.staged) {
			if err := s.flush(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Finish ends playback. Unless abort is set, the staged tail is written, the
// device is started if needed and Finish waits until the device reports no
// pending frames. Writing the tail and waiting for the device are each bounded
// by FinishTimeout; a tail the device never takes is dropped and reported as
// ErrFinishStall. The device is stopped in any case.
func (s *Sink) Finish(abort bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.finish(abort)
}

func (s *Sink) finish(abort bool) error {
	if abort {
		s.staged = s.staged[:0]
		return s.stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.config.FinishTimeout)
	defer cancel()
	if err := s.flush(ctx); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		s.log.WithField("frames", len(s.staged)/2).Warn("dropping audio the device did not take")
		s.staged = s.staged[:0]
		if stopErr := s.stop(); stopErr != nil {
			return stopErr
		}
		return fmt.Errorf("%w after %v", ErrFinishStall, s.config.FinishTimeout)
	}
	for waited := time.Duration(0); waited < s.config.FinishTimeout; waited += s.config.PollInterval {
		padding, err := s.dest.Padding()
		if err != nil {
			return fmt.Errorf("could not query device padding: %w", err)
		}
		if padding == 0 {
			break
		}
		if !s.started.Load() {
			if err := s.start(); err != nil {
				return err
			}
		}
		<-s.config.Clock.After(s.config.PollInterval)
	}
	return s.stop()
}

// Close stops and releases the device. It is safe to call more than once.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	stopErr := s.stop()
	if err := s.dest.Close(); err != nil {
		return fmt.Errorf("could not close device: %w", err)
	}
	return stopErr
}

// Level returns the buffered audio, in seconds.
func (s *Sink) Level() float64 {
	padding, err := s.dest.Padding()
	if err != nil {
		return 0
	}
	return s.seconds(padding)
}

// Maximum returns the device buffer size, in seconds.
func (s *Sink) Maximum() float64 { return s.seconds(s.dest.BufferFrames()) }

// Critical returns the start threshold, in seconds.
func (s *Sink) Critical() float64 { return s.seconds(s.config.StartThreshold) }

func (s *Sink) Stats() SinkStats {
	return SinkStats{
		FramesPosted: s.framesPosted.Load(),
		Underruns:    s.underruns.Load(),
		Starts:       s.starts.Load(),
		Running:      s.started.Load(),
	}
}

func (s *Sink) seconds(frames int) float64 {
	rate := s.dest.SampleRate()
	if rate <= 0 {
		return 0
	}
	return float64(frames) / float64(rate)
}

// flush writes all staged frames to the device, waiting for space as needed.
// On cancellation the unwritten frames stay staged.
func (s *Sink) flush(ctx context.Context) error {
	buf := s.staged
	defer func() {
		n := copy(s.staged, buf)
		s.staged = s.staged[:n]
	}()
	for len(buf) > 0 {
		padding, err := s.dest.Padding()
		if err != nil {
			return fmt.Errorf("could not query device padding: %w", err)
		}
		if padding == 0 && s.started.Load() {
			s.underruns.Add(1)
			s.log.Warn("audio underrun, stopping device until the buffer refills")
			if err := s.stop(); err != nil {
				return err
			}
		}
		if space := s.dest.BufferFrames() - padding; space > 0 {
			n, err := s.dest.Write(buf[:min(space*2, len(buf))])
			if err != nil {
				return fmt.Errorf("could not write to device: %w", err)
			}
			buf = buf[n*2:]
			if !s.started.Load() && padding+n >= s.config.StartThreshold {
				if err := s.start(); err != nil {
					return err
				}
			}
			if n > 0 {
				continue
			}
		}
		if len(buf) == 0 {
			break
		}
		if !s.started.Load() {
			if err := s.start(); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.config.Clock.After(s.config.PollInterval):
		}
	}
	return nil
}

func (s *Sink) start() error {
	if err := s.dest.Start(); err != nil {
		return fmt.Errorf("could not start device: %w", err)
	}
	s.started.Store(true)
	s.starts.Add(1)
	s.log.Debug("device started")
	return nil
}

func (s *Sink) stop() error {
	if !s.started.Load() {
		return nil
	}
	s.started.Store(false)
	if err := s.dest.Stop(); err != nil {
		return fmt.Errorf("could not stop device: %w", err)
	}
	s.log.Debug("device stopped")
	return nil
}

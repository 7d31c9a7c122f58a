package output

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/outofphase/liveseq"
)

// NullDestination is a simulated device. Frames are queued by Write and
// consumed by Drain (or by Run in real time) only while the device is
// started. When Record is set, drained frames are kept in Played.
type NullDestination struct {
	Record bool

	mu       sync.Mutex
	rate     int
	capacity int
	queue    liveseq.AudioBuffer
	played   liveseq.AudioBuffer
	started  bool
	closed   bool
	starts   int
	stops    int
}

var errDestinationClosed = errors.New("null destination is closed")

func NewNullDestination(sampleRate, bufferFrames int) *NullDestination {
	return &NullDestination{rate: sampleRate, capacity: bufferFrames}
}

func (d *NullDestination) SampleRate() int   { return d.rate }
func (d *NullDestination) BufferFrames() int { return d.capacity }

func (d *NullDestination) Padding() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, errDestinationClosed
	}
	return len(d.queue) / 2, nil
}

func (d *NullDestination) Write(buf liveseq.AudioBuffer) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, errDestinationClosed
	}
	n := min(len(buf)/2, d.capacity-len(d.queue)/2)
	d.queue = append(d.queue, buf[:n*2]...)
	return n, nil
}

func (d *NullDestination) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errDestinationClosed
	}
	if !d.started {
		d.started = true
		d.starts++
	}
	return nil
}

func (d *NullDestination) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		d.started = false
		d.stops++
	}
	return nil
}

func (d *NullDestination) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = false
	d.closed = true
	return nil
}

// Drain plays up to frames frames if the device is started and returns the
// number of frames played.
func (d *NullDestination) Drain(frames int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return 0
	}
	n := min(frames, len(d.queue)/2)
	if d.Record {
		d.played = append(d.played, d.queue[:n*2]...)
	}
	d.queue = append(d.queue[:0], d.queue[n*2:]...)
	return n
}

// Run drains the device in real time until ctx is done.
func (d *NullDestination) Run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	frames := int(float64(d.rate) * tick.Seconds())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Drain(frames)
		}
	}
}

func (d *NullDestination) Started() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

// Counts returns how many times the device was started and stopped.
func (d *NullDestination) Counts() (starts, stops int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts, d.stops
}

// Played returns a copy of the recorded frames.
func (d *NullDestination) Played() liveseq.AudioBuffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append(liveseq.AudioBuffer(nil), d.played...)
}

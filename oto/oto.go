// Package oto implements a liveseq.Destination on top of oto v3.
package oto

import (
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/outofphase/liveseq"
)

// Destination feeds an oto player from a frame ring. The device buffer seen by
// the Sink is the ring plus the audio oto has already pulled but not played;
// the silence oto pulls from an empty ring does not count.
type Destination struct {
	ctx    *oto.Context
	player player
	ring   *Ring
	rate   int
	frames int

	mu      sync.Mutex // only for Start/Stop/Close
	playing bool
	closed  bool
}

// player is the part of *oto.Player the Destination uses.
type player interface {
	Play()
	Pause()
	Close() error
	Err() error
	BufferedSize() int
}

const bytesPerFrame = 8 // two float32 channels

// NewDestination opens the default output device. bufferFrames is the total
// device buffer the Sink may fill.
func NewDestination(sampleRate, bufferFrames int) (*Destination, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	ring := NewRing(bufferFrames)
	p := ctx.NewPlayer(ring)
	// keep oto's own buffer small so that the ring holds most of the audio
	p.SetBufferSize(min(bufferFrames/4, 2048) * bytesPerFrame)
	d := newDestination(p, ring, sampleRate, bufferFrames)
	d.ctx = ctx
	return d, nil
}

func newDestination(p player, ring *Ring, sampleRate, bufferFrames int) *Destination {
	return &Destination{player: p, ring: ring, rate: sampleRate, frames: bufferFrames}
}

func (d *Destination) SampleRate() int   { return d.rate }
func (d *Destination) BufferFrames() int { return d.frames }

func (d *Destination) Padding() (int, error) {
	if err := d.player.Err(); err != nil {
		return 0, fmt.Errorf("oto player failed: %w", err)
	}
	return d.ring.Queued(d.player.BufferedSize()), nil
}

func (d *Destination) Write(buf liveseq.AudioBuffer) (int, error) {
	padding, err := d.Padding()
	if err != nil {
		return 0, err
	}
	room := max(d.frames-padding, 0)
	return d.ring.Write(buf[:min(len(buf), room*2)]), nil
}

func (d *Destination) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("cannot start closed oto destination")
	}
	if !d.playing {
		d.player.Play()
		d.playing = true
	}
	return d.player.Err()
}

func (d *Destination) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.playing && !d.closed {
		d.player.Pause()
		d.playing = false
	}
	return nil
}

func (d *Destination) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.playing = false
	if err := d.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}

package oto

import (
	"sync"

	"github.com/outofphase/liveseq"
)

// Ring is a fixed capacity FIFO of stereo frames. Write never overwrites
// queued frames; Read implements io.Reader for the oto player and pads with
// silence when the ring runs dry.
//
// The player keeps its own buffer full no matter what, so Ring also remembers
// which of the bytes it handed out were audio and which were padding. Queued
// uses that to tell real audio from silence in the player's buffer.
type Ring struct {
	mu     sync.Mutex
	buf    liveseq.AudioBuffer
	start  int // index of the first queued sample
	length int // number of queued samples

	reads     []readChunk // most recent reads, oldest first
	readBytes int         // total bytes in reads

	scratch []float32 // used by Read only
}

// readChunk is one Read: audio bytes first, then silence bytes.
type readChunk struct {
	audio, silence int
}

func NewRing(frames int) *Ring {
	return &Ring{buf: make(liveseq.AudioBuffer, frames*2)}
}

func (r *Ring) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.length / 2
}

// Queued returns the frames not yet played: those still in the ring, plus
// the audio frames among the last buffered bytes handed to the player.
func (r *Ring) Queued(buffered int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	audio := 0
	for i := len(r.reads) - 1; i >= 0 && buffered > 0; i-- {
		c := r.reads[i]
		buffered -= min(c.silence, buffered)
		n := min(c.audio, buffered)
		audio += n
		buffered -= n
	}
	return r.length/2 + audio/bytesPerFrame
}

// Write queues as many whole frames from values as fit and returns the number
// of frames queued.
func (r *Ring) Write(values liveseq.AudioBuffer) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := min(len(values), len(r.buf)-r.length) &^ 1
	end := (r.start + r.length) % len(r.buf)
	c := copy(r.buf[end:], values[:n])
	copy(r.buf, values[c:n])
	r.length += n
	return n / 2
}

// Pop moves up to len(dst) samples into dst and returns the count.
func (r *Ring) Pop(dst []float32) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pop(dst)
}

func (r *Ring) pop(dst []float32) int {
	n := min(len(dst), r.length)
	c := copy(dst[:n], r.buf[r.start:min(r.start+n, len(r.buf))])
	copy(dst[c:n], r.buf)
	r.start = (r.start + n) % len(r.buf)
	r.length -= n
	if r.length == 0 {
		r.start = 0
	}
	return n
}

// Read fills p with whole frames, padding with silence. It never fails.
func (r *Ring) Read(p []byte) (int, error) {
	samples := len(p) / bytesPerFrame * 2
	r.mu.Lock()
	defer r.mu.Unlock()
	if cap(r.scratch) < samples {
		r.scratch = make([]float32, samples)
	}
	tmp := r.scratch[:samples]
	n := r.pop(tmp)
	clear(tmp[n:])
	r.remember(readChunk{audio: n * 4, silence: (samples - n) * 4})
	return FloatBufferTo32BitLE(tmp, p), nil
}

// remember records a read, forgetting reads older than the ring capacity in
// bytes; the player never buffers that much.
func (r *Ring) remember(c readChunk) {
	if last := len(r.reads) - 1; last >= 0 && c.audio == 0 {
		r.reads[last].silence += c.silence
	} else {
		r.reads = append(r.reads, c)
	}
	r.readBytes += c.audio + c.silence
	limit := len(r.buf) * 4
	drop := 0
	for drop < len(r.reads)-1 {
		oldest := r.reads[drop].audio + r.reads[drop].silence
		if r.readBytes-oldest < limit {
			break
		}
		r.readBytes -= oldest
		drop++
	}
	if drop > 0 {
		r.reads = append(r.reads[:0], r.reads[drop:]...)
	}
}

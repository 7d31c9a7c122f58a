package liveseq

// Destination is a platform audio output device. It accepts interleaved
// stereo frames into a device buffer of BufferFrames frames and reports how
// many frames are still waiting to be played.
type Destination interface {
	SampleRate() int
	BufferFrames() int
	// Padding returns the number of frames queued but not yet played.
	Padding() (int, error)
	// Write copies at most BufferFrames-Padding frames into the device
	// buffer and returns the number of frames copied.
	Write(buf AudioBuffer) (int, error)
	Start() error
	Stop() error
	Close() error
}

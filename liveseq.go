package liveseq

type (
	// TrackID names a track inside a document. The empty TrackID in a
	// TrackRequest addresses every track of the document.
	TrackID string

	// PlayerHandle is the engine's handle for a live track player.
	PlayerHandle int

	// ScanPos is the position of the scanning front, in envelope ticks.
	ScanPos int64

	// ParamProvider is passed through to the engine when a track is
	// instantiated; the core never looks inside it.
	ParamProvider = any

	// AudioBuffer is interleaved stereo audio, [L R L R ...].
	AudioBuffer []float32

	// Document is the part of the song document the live core reads: the
	// global settings that may change between loops and the list of tracks.
	Document interface {
		Name() string
		Volume() float64
		Tempo() float64 // beats per minute
		LoopBeats() int
		Tracks() []TrackID
	}

	// TrackRequest is one pending sequencing instruction committed by the UI.
	// Command is "sequence[:key=value[/duration],...]" or one of the
	// sentinels "-" (end sequencing) and "/" (delete track).
	TrackRequest struct {
		Document Document
		Track    TrackID
		Params   ParamProvider
		Command  string
	}

	// TrackStatus is a snapshot of one live track, published every cycle.
	TrackStatus struct {
		Document      Document
		Track         TrackID
		Sequence      string
		PendingDelete bool
	}

	// JumpMode tells the engine how to enter a sequence.
	JumpMode int

	// CycleFunc is called by the engine once per envelope cycle. scan is the
	// scanning front and elapsed the number of envelope ticks since the
	// previous call.
	CycleFunc func(scan ScanPos, elapsed int) error

	// EffectGenerator is an engine-side handle to an instrument's effect
	// chain.
	EffectGenerator any

	// ParamCommand is delivered synchronously to a track's per-instrument
	// parameter controller. The engine must not retain the pointer.
	ParamCommand struct {
		Op       Opcode
		Value    float64
		Duration float64 // in beats, 0 means immediate
	}

	// EffectCommand is delivered to an effect generator. The engine may queue
	// it, so each send uses a freshly allocated command.
	EffectCommand struct {
		Op       Opcode
		Value    float64
		Duration float64
	}

	// Engine is the synthesis engine collaborator. Every method is called
	// from the synthesis goroutine only.
	Engine interface {
		AddTrack(track TrackID, doc Document, params ParamProvider) (PlayerHandle, error)
		DeleteTrack(h PlayerHandle) error
		TerminateSequencing(h PlayerHandle, scan ScanPos) error
		InvokeSequence(h PlayerHandle, self TrackID, sequence string, scan ScanPos, mode JumpMode) error
		ExecuteParamCommand(h PlayerHandle, cmd *ParamCommand) error
		EffectGenerators(h PlayerHandle) []EffectGenerator
		EffectHandleCommand(gen EffectGenerator, cmd *EffectCommand, scan ScanPos) error
		Peek(h PlayerHandle, op Opcode) (float64, bool)

		// PendingEvents is the number of events of the track still inside
		// the scanning gap; ActiveBanks the number of sounding oscillator
		// banks over all its instruments.
		PendingEvents(h PlayerHandle) int
		ActiveBanks(h PlayerHandle) int

		SetVolume(volume float64)
		SetTempo(bpm float64)
		DutyCycle() float64

		// Render fills buf, calling cycle once per envelope cycle. It returns
		// the number of stereo frames rendered.
		Render(buf AudioBuffer, cycle CycleFunc) (int, error)
	}
)

const (
	// JumpImmediate breaks the current sequence wherever it is.
	JumpImmediate JumpMode = iota
	// JumpAtEnd waits for the current sequence to finish.
	JumpAtEnd
)

// Frames returns the number of stereo frames in the buffer.
func (b AudioBuffer) Frames() int { return len(b) / 2 }

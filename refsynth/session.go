// Package refsynth is a small reference synthesis engine for liveseq. It
// plays looping note patterns with simple oscillators so that a live session
// can be heard without the full instrument engine.
package refsynth

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/outofphase/liveseq"
	"gopkg.in/yaml.v3"
)

type (
	// Session is a song document: global settings and a list of tracks, each
	// with named sequences. Session implements liveseq.Document.
	Session struct {
		Title       string     `yaml:"name"`
		BPM         float64    `yaml:"bpm"`
		RowsPerBeat int        `yaml:"rowsPerBeat"`
		Loop        int        `yaml:"loopBeats"`
		Gain        float64    `yaml:"volume"`
		TrackDefs   []TrackDef `yaml:"tracks"`
	}

	// TrackDef describes one track. Start names the sequence the track plays
	// when the session begins; empty means the track starts silent.
	TrackDef struct {
		Name      string             `yaml:"name"`
		Waveform  Waveform           `yaml:"waveform,omitempty"`
		Start     string             `yaml:"start,omitempty"`
		Sequences map[string]Pattern `yaml:"sequences"`
	}

	// Pattern is a sequence of rows in the usual tracker encoding: 0 releases
	// the sounding note, 1 holds it and values above 1 are MIDI note numbers
	// that trigger a new note.
	Pattern []byte

	Waveform string
)

const (
	Sine     Waveform = "sine"
	Square   Waveform = "square"
	Saw      Waveform = "saw"
	Triangle Waveform = "triangle"
)

const (
	releaseRow byte = 0
	holdRow    byte = 1
)

// Get returns the value at index, or hold if the index is out of range.
func (p Pattern) Get(index int) byte {
	if index < 0 || index >= len(p) {
		return holdRow
	}
	return p[index]
}

// HoldRows returns how many rows the note triggered at row keeps sounding,
// including the row itself. The pattern is treated as looping.
func (p Pattern) HoldRows(row int) int {
	n := 1
	for n < len(p) && p.Get((row+n)%len(p)) == holdRow {
		n++
	}
	return n
}

// MarshalYAML writes patterns as flow sequences of numbers instead of the
// binary string yaml.v3 would produce for a byte slice.
func (p Pattern) MarshalYAML() (any, error) {
	ints := make([]int, len(p))
	for i, v := range p {
		ints[i] = int(v)
	}
	node := &yaml.Node{}
	if err := node.Encode(ints); err != nil {
		return nil, err
	}
	node.Style = yaml.FlowStyle
	return node, nil
}

func (p *Pattern) UnmarshalYAML(value *yaml.Node) error {
	var ints []int
	if err := value.Decode(&ints); err != nil {
		return err
	}
	ret := make(Pattern, len(ints))
	for i, v := range ints {
		if v < 0 || v > 127 {
			return fmt.Errorf("line %d: note %d out of range 0..127", value.Line, v)
		}
		ret[i] = byte(v)
	}
	*p = ret
	return nil
}

func (s *Session) Name() string    { return s.Title }
func (s *Session) Volume() float64 { return s.Gain }
func (s *Session) Tempo() float64  { return s.BPM }
func (s *Session) LoopBeats() int  { return s.Loop }

func (s *Session) Tracks() []liveseq.TrackID {
	ret := make([]liveseq.TrackID, len(s.TrackDefs))
	for i, t := range s.TrackDefs {
		ret[i] = liveseq.TrackID(t.Name)
	}
	return ret
}

// Track finds a track definition by name.
func (s *Session) Track(id liveseq.TrackID) (*TrackDef, bool) {
	i := slices.IndexFunc(s.TrackDefs, func(t TrackDef) bool { return liveseq.TrackID(t.Name) == id })
	if i < 0 {
		return nil, false
	}
	return &s.TrackDefs[i], true
}

// StartRequests returns the requests that start every track with its Start
// sequence.
func (s *Session) StartRequests() []liveseq.TrackRequest {
	var ret []liveseq.TrackRequest
	for _, t := range s.TrackDefs {
		if t.Start != "" {
			ret = append(ret, liveseq.TrackRequest{Document: s, Track: liveseq.TrackID(t.Name), Command: t.Start})
		}
	}
	return ret
}

// Validate checks that the session can be played: positive tempo and loop
// length, uniquely named tracks, known waveforms and start sequences.
func (s *Session) Validate() error {
	if s.BPM <= 0 {
		return errors.New("bpm should be > 0")
	}
	if s.RowsPerBeat < 1 {
		return errors.New("rowsPerBeat should be > 0")
	}
	if s.Loop < 1 {
		return errors.New("loopBeats should be > 0")
	}
	if s.Gain < 0 {
		return errors.New("volume should not be negative")
	}
	seen := make(map[string]bool, len(s.TrackDefs))
	for _, t := range s.TrackDefs {
		if t.Name == "" {
			return errors.New("track without a name")
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate track %q", t.Name)
		}
		seen[t.Name] = true
		switch t.Waveform {
		case "", Sine, Square, Saw, Triangle:
		default:
			return fmt.Errorf("track %q: unknown waveform %q", t.Name, t.Waveform)
		}
		for name, p := range t.Sequences {
			if len(p) == 0 {
				return fmt.Errorf("track %q: sequence %q is empty", t.Name, name)
			}
		}
		if _, ok := t.Sequences[t.Start]; t.Start != "" && !ok {
			return fmt.Errorf("track %q: unknown start sequence %q", t.Name, t.Start)
		}
	}
	return nil
}

// LoadSession decodes and validates a YAML session. Missing global settings
// get the values of DefaultSession.
func LoadSession(r io.Reader) (*Session, error) {
	s := &Session{BPM: 120, RowsPerBeat: 4, Loop: 4, Gain: 1}
	if err := yaml.NewDecoder(r).Decode(s); err != nil {
		return nil, fmt.Errorf("could not decode session: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session: %w", err)
	}
	return s, nil
}

// DefaultSession is a two-track groove used when no session file is given.
func DefaultSession() *Session {
	return &Session{
		Title:       "default",
		BPM:         120,
		RowsPerBeat: 4,
		Loop:        4,
		Gain:        0.8,
		TrackDefs: []TrackDef{
			{
				Name:     "bass",
				Waveform: Saw,
				Start:    "groove",
				Sequences: map[string]Pattern{
					"groove": {36, 1, 0, 0, 36, 1, 0, 0, 43, 1, 0, 0, 41, 1, 39, 0},
					"walk":   {36, 0, 38, 0, 39, 0, 41, 0, 43, 0, 41, 0, 39, 0, 38, 0},
				},
			},
			{
				Name:     "lead",
				Waveform: Triangle,
				Sequences: map[string]Pattern{
					"hook":  {72, 1, 1, 0, 75, 1, 0, 0, 79, 1, 1, 1, 77, 1, 75, 0},
					"drone": {60, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
				},
			},
		},
	}
}

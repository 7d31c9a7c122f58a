//go:build !cgo

package cmd

import (
	"errors"

	"github.com/outofphase/liveseq/midicc"
)

// with no cgo, there is no MIDI driver
var errNoMIDI = errors.New("MIDI input needs a build with cgo")

func MIDIInputs() ([]string, error) {
	return nil, errNoMIDI
}

func ListenMIDI(prefix string, b *midicc.Binder) (stop func(), err error) {
	return nil, errNoMIDI
}

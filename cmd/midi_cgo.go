//go:build cgo

package cmd

import (
	"fmt"
	"strings"

	"github.com/outofphase/liveseq/midicc"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// MIDIInputs lists the names of the MIDI input ports.
func MIDIInputs() ([]string, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("could not open MIDI driver: %w", err)
	}
	defer drv.Close()
	ins, err := drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("could not list MIDI inputs: %w", err)
	}
	ret := make([]string, len(ins))
	for i, in := range ins {
		ret[i] = in.String()
	}
	return ret, nil
}

// ListenMIDI opens the first MIDI input whose name starts with prefix and
// feeds it to b; an empty prefix takes the first input. stop closes the
// input and the driver.
func ListenMIDI(prefix string, b *midicc.Binder) (stop func(), err error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("could not open MIDI driver: %w", err)
	}
	ins, err := drv.Ins()
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("could not list MIDI inputs: %w", err)
	}
	for _, in := range ins {
		if !strings.HasPrefix(in.String(), prefix) {
			continue
		}
		unlisten, err := b.Listen(in)
		if err != nil {
			drv.Close()
			return nil, err
		}
		return func() {
			unlisten()
			drv.Close()
		}, nil
	}
	drv.Close()
	return nil, fmt.Errorf("could not find a MIDI input starting with %q", prefix)
}

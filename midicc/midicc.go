// Package midicc maps MIDI control change messages to parameter board
// bindings, so hardware knobs can sweep track parameters while a session
// plays.
package midicc

import (
	"errors"
	"fmt"
	"io"

	"github.com/outofphase/liveseq"
	"github.com/outofphase/liveseq/live"
	"github.com/sirupsen/logrus"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gopkg.in/yaml.v3"
)

type (
	// Binding maps one controller on one channel linearly onto [Min, Max]
	// of a track parameter.
	Binding struct {
		Channel    uint8           `yaml:"channel"`
		Controller uint8           `yaml:"controller"`
		Track      liveseq.TrackID `yaml:"track"`
		Param      string          `yaml:"param"`
		Min        float64         `yaml:"min"`
		Max        float64         `yaml:"max"`
	}

	// Setter is the part of live.Controller a Binder writes to.
	Setter interface {
		SetParam(track liveseq.TrackID, param string, value float64) (*live.ParamBoardEntry, error)
	}

	Binder struct {
		setter   Setter
		bindings map[key][]Binding
		log      logrus.FieldLogger
	}

	key struct {
		channel, controller uint8
	}
)

var ErrInvalidBinding = errors.New("invalid MIDI binding")

// LoadBindings decodes a YAML list of bindings. A binding without min and
// max maps onto [0, 1].
func LoadBindings(r io.Reader) ([]Binding, error) {
	var ret []Binding
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&ret); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("could not decode MIDI bindings: %w", err)
	}
	for i := range ret {
		if ret[i].Min == 0 && ret[i].Max == 0 {
			ret[i].Max = 1
		}
	}
	return ret, nil
}

func (b Binding) validate() error {
	switch {
	case b.Channel > 15:
		return fmt.Errorf("%w: channel %v out of range 0..15", ErrInvalidBinding, b.Channel)
	case b.Controller > 127:
		return fmt.Errorf("%w: controller %v out of range 0..127", ErrInvalidBinding, b.Controller)
	case b.Track == "" || b.Param == "":
		return fmt.Errorf("%w: channel %v controller %v needs a track and a param", ErrInvalidBinding, b.Channel, b.Controller)
	}
	return nil
}

// Map converts a 7-bit controller value to the parameter range.
func (b Binding) Map(value uint8) float64 {
	return b.Min + (b.Max-b.Min)*float64(min(value, 127))/127
}

// NewBinder creates a Binder. Several bindings may share a controller; each
// of them is written when the controller moves.
func NewBinder(setter Setter, bindings []Binding, log logrus.FieldLogger) (*Binder, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	b := &Binder{
		setter:   setter,
		bindings: make(map[key][]Binding, len(bindings)),
		log:      log.WithField("component", "midicc"),
	}
	for _, x := range bindings {
		if err := x.validate(); err != nil {
			return nil, err
		}
		k := key{x.Channel, x.Controller}
		b.bindings[k] = append(b.bindings[k], x)
	}
	return b, nil
}

// HandleMessage applies a control change to the bound parameters; other
// messages are ignored. It has the signature midi.ListenTo expects.
func (b *Binder) HandleMessage(msg midi.Message, timestampms int32) {
	var channel, controller, value uint8
	if !msg.GetControlChange(&channel, &controller, &value) {
		return
	}
	for _, x := range b.bindings[key{channel, controller}] {
		v := x.Map(value)
		if _, err := b.setter.SetParam(x.Track, x.Param, v); err != nil {
			b.log.WithFields(logrus.Fields{"track": x.Track, "param": x.Param, "err": err}).Warn("could not apply MIDI control change")
		}
	}
}

// Listen opens in if needed and feeds its messages to the Binder until stop
// is called.
func (b *Binder) Listen(in drivers.In) (stop func(), err error) {
	if !in.IsOpen() {
		if err := in.Open(); err != nil {
			return nil, fmt.Errorf("opening MIDI input failed: %w", err)
		}
	}
	stop, err = midi.ListenTo(in, b.HandleMessage, midi.HandleError(func(err error) {
		b.log.WithField("err", err).Warn("MIDI input error")
	}))
	if err != nil {
		in.Close()
		return nil, fmt.Errorf("listening to MIDI input failed: %w", err)
	}
	b.log.WithField("input", in.String()).Info("listening to MIDI input")
	return func() {
		stop()
		in.Close()
	}, nil
}

package live

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/outofphase/liveseq/output"
	"gopkg.in/yaml.v3"
)

// Config holds the tunables of a live session.
type Config struct {
	SampleRate   int `yaml:"sampleRate"`
	BlockFrames  int `yaml:"blockFrames"`  // frames rendered per Engine.Render call
	EnvelopeRate int `yaml:"envelopeRate"` // envelope ticks per second
	ScanningGap  int `yaml:"scanningGap"`  // ticks between scheduling and audibility

	BufferSeconds  float64 `yaml:"bufferSeconds"`
	StartThreshold float64 `yaml:"startThreshold"` // seconds buffered before the device starts

	PollInterval  time.Duration `yaml:"pollInterval"`
	FinishTimeout time.Duration `yaml:"finishTimeout"`

	MeterRelease float64 `yaml:"meterRelease"` // seconds

	StatusTemplate string `yaml:"statusTemplate,omitempty"`
}

var ErrInvalidConfig = errors.New("invalid config")

func DefaultConfig() Config {
	return Config{
		SampleRate:     44100,
		BlockFrames:    1024,
		EnvelopeRate:   400,
		ScanningGap:    40,
		BufferSeconds:  0.5,
		StartThreshold: 0.1,
		PollInterval:   output.DefaultPollInterval,
		FinishTimeout:  output.DefaultFinishTimeout,
		MeterRelease:   1.5,
		StatusTemplate: DefaultStatusTemplate,
	}
}

// LoadConfig reads a YAML config. Keys missing from the document keep their
// default values.
func LoadConfig(r io.Reader) (Config, error) {
	c := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("could not decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sampleRate must be positive, got %v", ErrInvalidConfig, c.SampleRate)
	case c.BlockFrames <= 0:
		return fmt.Errorf("%w: blockFrames must be positive, got %v", ErrInvalidConfig, c.BlockFrames)
	case c.EnvelopeRate <= 0 || c.EnvelopeRate > c.SampleRate:
		return fmt.Errorf("%w: envelopeRate must be in 1..sampleRate, got %v", ErrInvalidConfig, c.EnvelopeRate)
	case c.ScanningGap < 0:
		return fmt.Errorf("%w: scanningGap must not be negative, got %v", ErrInvalidConfig, c.ScanningGap)
	case c.BufferSeconds <= 0:
		return fmt.Errorf("%w: bufferSeconds must be positive, got %v", ErrInvalidConfig, c.BufferSeconds)
	case c.StartThreshold < 0 || c.StartThreshold > c.BufferSeconds:
		return fmt.Errorf("%w: startThreshold must be in 0..bufferSeconds, got %v", ErrInvalidConfig, c.StartThreshold)
	case c.MeterRelease <= 0:
		return fmt.Errorf("%w: meterRelease must be positive, got %v", ErrInvalidConfig, c.MeterRelease)
	}
	return nil
}

// BufferFrames is the device buffer size in frames.
func (c Config) BufferFrames() int {
	return max(1, int(math.Round(c.BufferSeconds*float64(c.SampleRate))))
}

// SinkConfig derives the output.SinkConfig of the session.
func (c Config) SinkConfig() output.SinkConfig {
	return output.SinkConfig{
		StartThreshold: int(math.Round(c.StartThreshold * float64(c.SampleRate))),
		ChunkFrames:    min(c.BlockFrames, c.BufferFrames()),
		PollInterval:   c.PollInterval,
		FinishTimeout:  c.FinishTimeout,
	}
}

// CriticalTicks is how many envelope ticks before a loop boundary a commit
// must arrive to be applied at it: the scanning gap plus the audio buffered
// ahead of the device.
func (c Config) CriticalTicks() int {
	return c.ScanningGap + int(c.BufferSeconds*float64(c.EnvelopeRate))
}

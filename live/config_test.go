package live_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/outofphase/liveseq/live"
)

func TestLoadConfigKeepsDefaults(t *testing.T) {
	c, err := live.LoadConfig(strings.NewReader("sampleRate: 48000\npollInterval: 20ms\n"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if c.SampleRate != 48000 || c.PollInterval != 20*time.Millisecond {
		t.Errorf("expected the given values, got %v and %v", c.SampleRate, c.PollInterval)
	}
	if c.EnvelopeRate != 400 || c.ScanningGap != 40 || c.BlockFrames != 1024 {
		t.Errorf("expected defaults for the missing keys, got %+v", c)
	}
	if got := c.BufferFrames(); got != 24000 {
		t.Errorf("expected 24000 buffer frames, got %v", got)
	}
	if got := c.SinkConfig().StartThreshold; got != 4800 {
		t.Errorf("expected a start threshold of 4800 frames, got %v", got)
	}
}

func TestLoadConfigEmptyDocument(t *testing.T) {
	c, err := live.LoadConfig(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if c != live.DefaultConfig() {
		t.Errorf("expected the default config, got %+v", c)
	}
}

func TestLoadConfigRejects(t *testing.T) {
	for _, text := range []string{
		"sampleRate: 0",
		"envelopeRate: 100000",
		"startThreshold: 2",
		"unknownKey: 1",
		"pollInterval: soon",
	} {
		t.Run(text, func(t *testing.T) {
			if _, err := live.LoadConfig(strings.NewReader(text)); err == nil {
				t.Fatalf("expected %q to be rejected", text)
			}
		})
	}
	_, err := live.LoadConfig(strings.NewReader("meterRelease: -1"))
	if !errors.Is(err, live.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

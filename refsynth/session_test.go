package refsynth_test

import (
	"strings"
	"testing"

	"github.com/outofphase/liveseq/refsynth"
	"gopkg.in/yaml.v3"
)

const sessionYAML = `
name: jam
bpm: 90
tracks:
  - name: bass
    waveform: square
    start: groove
    sequences:
      groove: [36, 1, 0, 0]
  - name: lead
    sequences:
      hook: [72, 0]
`

func TestLoadSession(t *testing.T) {
	s, err := refsynth.LoadSession(strings.NewReader(sessionYAML))
	if err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}
	if s.Name() != "jam" || s.Tempo() != 90 {
		t.Errorf("unexpected globals %+v", s)
	}
	if s.RowsPerBeat != 4 || s.LoopBeats() != 4 || s.Volume() != 1 {
		t.Errorf("missing globals should get defaults, got %+v", s)
	}
	tracks := s.Tracks()
	if len(tracks) != 2 || tracks[0] != "bass" || tracks[1] != "lead" {
		t.Fatalf("unexpected tracks %v", tracks)
	}
	bass, ok := s.Track("bass")
	if !ok || bass.Waveform != refsynth.Square || len(bass.Sequences["groove"]) != 4 {
		t.Fatalf("unexpected bass track %+v", bass)
	}
	if _, ok := s.Track("drums"); ok {
		t.Fatal("found a track that does not exist")
	}
	reqs := s.StartRequests()
	if len(reqs) != 1 || reqs[0].Track != "bass" || reqs[0].Command != "groove" || reqs[0].Document != s {
		t.Fatalf("unexpected start requests %+v", reqs)
	}
}

func TestLoadSessionErrors(t *testing.T) {
	for _, tc := range []struct {
		name, doc string
	}{
		{"note out of range", "tracks: [{name: a, sequences: {x: [200]}}]"},
		{"negative bpm", "bpm: -1"},
		{"duplicate track", "tracks: [{name: a}, {name: a}]"},
		{"unnamed track", "tracks: [{waveform: saw}]"},
		{"unknown waveform", "tracks: [{name: a, waveform: noise}]"},
		{"unknown start", "tracks: [{name: a, start: x, sequences: {y: [60]}}]"},
		{"empty sequence", "tracks: [{name: a, sequences: {x: []}}]"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := refsynth.LoadSession(strings.NewReader(tc.doc)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestPatternHoldRows(t *testing.T) {
	p := refsynth.Pattern{60, 1, 1, 0, 62, 1}
	if n := p.HoldRows(0); n != 3 {
		t.Errorf("expected 3 rows, got %v", n)
	}
	if n := p.HoldRows(4); n != 2 {
		t.Errorf("expected 2 rows, got %v", n)
	}
	if n := (refsynth.Pattern{60, 1}).HoldRows(0); n != 2 {
		t.Errorf("a held note should stop at the pattern length, got %v", n)
	}
	if p.Get(-1) != 1 || p.Get(len(p)) != 1 {
		t.Error("rows outside the pattern should hold")
	}
}

func TestPatternMarshalsAsNumbers(t *testing.T) {
	out, err := yaml.Marshal(map[string]refsynth.Pattern{"x": {36, 1, 0}})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(out), "[36, 1, 0]") {
		t.Fatalf("expected a flow list of numbers, got %q", out)
	}
}

func TestDefaultSessionIsValid(t *testing.T) {
	s := refsynth.DefaultSession()
	if err := s.Validate(); err != nil {
		t.Fatalf("default session is invalid: %v", err)
	}
	if len(s.StartRequests()) == 0 {
		t.Fatal("default session should start something")
	}
}

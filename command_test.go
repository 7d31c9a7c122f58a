package liveseq_test

import (
	"errors"
	"math"
	"testing"

	"github.com/outofphase/liveseq"
)

func TestParseCommandWithSweeps(t *testing.T) {
	cmd, err := liveseq.ParseCommand("verse1:+pan=0.5/2.0,loudness=0.8")
	if err != nil {
		t.Fatalf("ParseCommand failed: %v", err)
	}
	if cmd.Sequence != "verse1" || cmd.Sentinel != liveseq.NoSentinel {
		t.Fatalf("expected sequence verse1, got %q (sentinel %v)", cmd.Sequence, cmd.Sentinel)
	}
	if len(cmd.Args) != 2 {
		t.Fatalf("expected 2 arguments, got %v", len(cmd.Args))
	}
	table := liveseq.DefaultParamTable()
	pan, ok, err := table.Resolve(cmd.Args[0])
	if !ok || err != nil {
		t.Fatalf("could not resolve pan: ok=%v err=%v", ok, err)
	}
	if pan.Mode != liveseq.RelativeSweep || pan.Value != 0.5 || pan.Duration != 2.0 {
		t.Errorf("pan resolved to %+v", pan)
	}
	if pan.Opcode() != liveseq.OpPanRel {
		t.Errorf("expected relative pan opcode, got %v", pan.Opcode())
	}
	loud, ok, err := table.Resolve(cmd.Args[1])
	if !ok || err != nil {
		t.Fatalf("could not resolve loudness: ok=%v err=%v", ok, err)
	}
	if loud.Mode != liveseq.AbsoluteSweep || math.Abs(loud.Value-0.8) > 1e-12 || loud.Duration != 0 {
		t.Errorf("loudness resolved to %+v", loud)
	}
}

func TestParseCommandSentinels(t *testing.T) {
	cases := []struct {
		text string
		want liveseq.Sentinel
	}{
		{"-", liveseq.EndSequencing},
		{" - ", liveseq.EndSequencing},
		{"-:pan=0.3", liveseq.EndSequencing},
		{"-trailing junk,=", liveseq.EndSequencing},
		{"/", liveseq.DeleteTrack},
		{"/:loudness=1", liveseq.DeleteTrack},
		{"chorus", liveseq.NoSentinel},
	}
	for _, c := range cases {
		cmd, err := liveseq.ParseCommand(c.text)
		if err != nil {
			t.Errorf("%q: unexpected error %v", c.text, err)
			continue
		}
		if cmd.Sentinel != c.want {
			t.Errorf("%q: expected sentinel %v, got %v", c.text, c.want, cmd.Sentinel)
		}
		if c.want != liveseq.NoSentinel && len(cmd.Args) != 0 {
			t.Errorf("%q: sentinel command should carry no arguments, got %v", c.text, cmd.Args)
		}
	}
}

func TestParseCommandArgumentsOnly(t *testing.T) {
	cmd, err := liveseq.ParseCommand(":/pan, detune=-3st")
	if err != nil {
		t.Fatalf("ParseCommand failed: %v", err)
	}
	if cmd.Sequence != "" {
		t.Errorf("expected no sequence, got %q", cmd.Sequence)
	}
	want := []liveseq.Arg{
		{Key: "pan", Mode: liveseq.ResetToDefault, Text: "/pan"},
		{Key: "detune", Mode: liveseq.AbsoluteSweep, Value: "-3st", Text: "detune=-3st"},
	}
	if len(cmd.Args) != len(want) {
		t.Fatalf("expected %v args, got %v", len(want), cmd.Args)
	}
	for i := range want {
		if cmd.Args[i] != want[i] {
			t.Errorf("arg %d: expected %+v, got %+v", i, want[i], cmd.Args[i])
		}
	}
}

func TestParseCommandSkipsMalformedArguments(t *testing.T) {
	cmd, err := liveseq.ParseCommand("bridge:pan,=3,loudness=0.5,+detune=")
	if err == nil {
		t.Fatal("expected an error for malformed arguments")
	}
	if !errors.Is(err, liveseq.ErrMalformedArgument) {
		t.Errorf("expected ErrMalformedArgument, got %v", err)
	}
	var argErr *liveseq.ArgumentError
	if !errors.As(err, &argErr) {
		t.Errorf("expected an *ArgumentError in %v", err)
	}
	if cmd.Sequence != "bridge" {
		t.Errorf("expected sequence bridge, got %q", cmd.Sequence)
	}
	if len(cmd.Args) != 1 || cmd.Args[0].Key != "loudness" {
		t.Errorf("expected only the loudness argument to survive, got %+v", cmd.Args)
	}
}

func TestResolveRejectsBadNumbers(t *testing.T) {
	table := liveseq.DefaultParamTable()
	_, ok, err := table.Resolve(liveseq.Arg{Key: "pan", Value: "left"})
	if !ok {
		t.Fatal("pan should be a known parameter")
	}
	if !errors.Is(err, liveseq.ErrMalformedArgument) {
		t.Errorf("expected ErrMalformedArgument, got %v", err)
	}
	if _, _, err := table.Resolve(liveseq.Arg{Key: "pan", Value: "0", Duration: "-1"}); err == nil {
		t.Error("expected negative duration to be rejected")
	}
}

func TestResolveUnknownParameterIsIgnored(t *testing.T) {
	table := liveseq.DefaultParamTable()
	_, ok, err := table.Resolve(liveseq.Arg{Key: "wobble", Value: "12"})
	if ok || err != nil {
		t.Errorf("unknown parameters should resolve to ok=false err=nil, got ok=%v err=%v", ok, err)
	}
}

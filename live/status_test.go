package live_test

import (
	"strings"
	"testing"

	"github.com/outofphase/liveseq/live"
)

func TestStatusFormatterDefaultTemplate(t *testing.T) {
	f, err := live.NewStatusFormatter("")
	if err != nil {
		t.Fatalf("NewStatusFormatter failed: %v", err)
	}
	var b strings.Builder
	err = f.Format(&b, live.StatusSnapshot{
		Position:  90,
		Critical:  80,
		Duty:      12.5,
		Buffered:  0.2,
		Muted:     true,
		ShortBars: 5,
		Tracks: []live.TrackView{
			{Track: "bass", Sequence: "intro", Live: true, HasQueued: true, Queued: "verse"},
			{Track: "drums", Live: true, PendingDelete: true},
		},
	})
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	got := b.String()
	for _, want := range []string{"[#####               ]", " 90.0%!", "duty 12.5%", "MUTED", "bass=intro>verse", "drums=-(del)"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in %q", want, got)
		}
	}
}

func TestStatusFormatterCustomTemplate(t *testing.T) {
	f, err := live.NewStatusFormatter(`{{ len .Tracks }} tracks{{ if .Muted }} {{ "muted" | upper }}{{ end }}`)
	if err != nil {
		t.Fatalf("NewStatusFormatter failed: %v", err)
	}
	var b strings.Builder
	if err := f.Format(&b, live.StatusSnapshot{Muted: true}); err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if got := b.String(); got != "0 tracks MUTED" {
		t.Errorf("unexpected output %q", got)
	}
	if _, err := live.NewStatusFormatter("{{ .Position "); err == nil {
		t.Error("expected a parse error")
	}
}

func TestBars(t *testing.T) {
	for _, c := range []struct {
		level float32
		bars  int
	}{{0, 0}, {1, live.MeterBars}, {2, live.MeterBars}, {0.001, 0}, {0.1, 13}} {
		if got := live.Bars(c.level); got != c.bars {
			t.Errorf("Bars(%v) = %v, want %v", c.level, got, c.bars)
		}
	}
}

package tui_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/outofphase/liveseq"
	"github.com/outofphase/liveseq/live"
	"github.com/outofphase/liveseq/tui"
)

type fakeSession struct {
	requests []liveseq.TrackRequest
	status   []liveseq.TrackStatus
	board    *live.ParamBoard
	muted    bool
}

func (s *fakeSession) SetRequest(batch []liveseq.TrackRequest)        { s.requests = batch }
func (s *fakeSession) PeekRequest() []liveseq.TrackRequest            { return s.requests }
func (s *fakeSession) TakeStatus() []liveseq.TrackStatus              { return s.status }
func (s *fakeSession) EnqueueParamBoardEntry(e *live.ParamBoardEntry) { s.board.Enqueue(e) }
func (s *fakeSession) ParamBoard() live.BoardView                     { return s.board.View() }
func (s *fakeSession) Params() *liveseq.ParamTable                    { return liveseq.DefaultParamTable() }
func (s *fakeSession) Mute() bool                                     { return s.muted }
func (s *fakeSession) SetMute(mute bool)                              { s.muted = mute }
func (s *fakeSession) LoopPosition() float64                          { return 0.95 }
func (s *fakeSession) CriticalThreshhold() float64                    { return 0.9 }
func (s *fakeSession) DutyCycle() float64                             { return 0.1 }
func (s *fakeSession) MeterLevel() (short, long float32)              { return 1, 1 }
func (s *fakeSession) BufferLevel() float64                           { return 0.25 }
func (s *fakeSession) Underruns() int64                               { return 0 }

func newTestModel() (tui.Model, *live.Controller, *fakeSession, *live.Broker) {
	s := &fakeSession{board: live.NewParamBoard()}
	c := live.NewController(s, nil, nil)
	b := live.NewBroker()
	return tui.New(c, b, time.Millisecond), c, s, b
}

func typeLine(t *testing.T, m tui.Model, line string) tui.Model {
	t.Helper()
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(line)})
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(tui.Model)
}

func TestModelStagesAndCommits(t *testing.T) {
	m, c, s, _ := newTestModel()
	m = typeLine(t, m, "bass intro:pan=1")
	m = typeLine(t, m, "* outro")
	staged := c.Staged()
	if len(staged) != 2 || staged[0].Track != "bass" || staged[0].Command != "intro:pan=1" || staged[1].Track != "" {
		t.Fatalf("unexpected staged commands %+v", staged)
	}
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	if len(s.requests) != 2 || len(c.Staged()) != 0 {
		t.Fatalf("ctrl+s should commit, got %+v", s.requests)
	}
	if view := next.View(); !strings.Contains(view, "committed 2 command(s)") {
		t.Fatalf("expected a commit alert in the view:\n%v", view)
	}
}

func TestModelRejectsBadInput(t *testing.T) {
	m, c, _, _ := newTestModel()
	m = typeLine(t, m, "bass")
	if len(c.Staged()) != 0 {
		t.Fatal("a line without a command should not stage anything")
	}
	if !strings.Contains(m.View(), "> bass") {
		t.Fatal("the rejected line should stay on the prompt")
	}
	if err := m.Submit("@bass pan loud"); err == nil {
		t.Fatal("expected an error for a bad value")
	}
	if err := m.Submit("@bass wobble 1"); !errors.Is(err, live.ErrUnknownParam) {
		t.Fatalf("expected ErrUnknownParam, got %v", err)
	}
}

func TestModelSetsParams(t *testing.T) {
	m, c, s, _ := newTestModel()
	m = typeLine(t, m, "@bass pan -0.5")
	e, ok := c.Binding("bass", "pan")
	if !ok || e.Value() != -0.5 {
		t.Fatalf("expected a bound pan at -0.5, got %v %v", e, ok)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlT})
	if !s.muted {
		t.Fatal("ctrl+t should mute")
	}
}

func TestModelShowsStatusAndAlerts(t *testing.T) {
	m, _, s, b := newTestModel()
	s.status = []liveseq.TrackStatus{{Track: "bass", Sequence: "groove"}}
	s.requests = []liveseq.TrackRequest{{Track: "bass", Command: "walk"}}
	live.TrySend[any](b.ToUI, live.Alert{Name: "Test", Priority: live.Error, Message: "engine on fire", Duration: time.Minute})
	batch, ok := m.Init()().(tea.BatchMsg)
	if !ok {
		t.Fatal("expected Init to start polling and listening")
	}
	var next tea.Model = m
	for _, cmd := range batch {
		if cmd != nil {
			next, _ = next.Update(cmd())
		}
	}
	view := next.View()
	for _, want := range []string{"Bass", "groove", "> walk", "engine on fire"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected %q in the view:\n%v", want, view)
		}
	}
	if strings.Contains(view, "MUTED") {
		t.Errorf("the session is not muted:\n%v", view)
	}
}

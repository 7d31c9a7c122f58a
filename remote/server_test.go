package remote_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/outofphase/liveseq"
	"github.com/outofphase/liveseq/live"
	"github.com/outofphase/liveseq/remote"
	"github.com/sirupsen/logrus"
)

type fakeSession struct {
	requests []liveseq.TrackRequest
	status   []liveseq.TrackStatus
	board    *live.ParamBoard
	params   *liveseq.ParamTable
	muted    bool
}

func (s *fakeSession) SetRequest(batch []liveseq.TrackRequest) {
	s.requests = append([]liveseq.TrackRequest(nil), batch...)
}
func (s *fakeSession) PeekRequest() []liveseq.TrackRequest            { return s.requests }
func (s *fakeSession) TakeStatus() []liveseq.TrackStatus              { return s.status }
func (s *fakeSession) EnqueueParamBoardEntry(e *live.ParamBoardEntry) { s.board.Enqueue(e) }
func (s *fakeSession) ParamBoard() live.BoardView                     { return s.board.View() }
func (s *fakeSession) Params() *liveseq.ParamTable                    { return s.params }
func (s *fakeSession) Mute() bool                                     { return s.muted }
func (s *fakeSession) SetMute(mute bool)                              { s.muted = mute }
func (s *fakeSession) LoopPosition() float64                          { return 0.5 }
func (s *fakeSession) CriticalThreshhold() float64                    { return 0.9 }
func (s *fakeSession) DutyCycle() float64                             { return 0.1 }
func (s *fakeSession) MeterLevel() (short, long float32)              { return 0, 0 }
func (s *fakeSession) BufferLevel() float64                           { return 0.25 }
func (s *fakeSession) Underruns() int64                               { return 3 }

func newTestServer() (*remote.Server, *fakeSession) {
	s := &fakeSession{board: live.NewParamBoard(), params: liveseq.DefaultParamTable()}
	log := logrus.New()
	log.SetOutput(io.Discard)
	return remote.NewServer(live.NewController(s, nil, nil), log), s
}

func do(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(method, path, r))
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("could not decode reply %q: %v", w.Body.String(), err)
	}
	return v
}

func TestStageAndCommit(t *testing.T) {
	srv, s := newTestServer()
	w := do(t, srv, http.MethodPost, "/stage", `{"track": "bass", "command": "intro"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("stage failed: %v %v", w.Code, w.Body)
	}
	if staged := decode[[]remote.Request](t, w); len(staged) != 1 || staged[0].Command != "intro" {
		t.Fatalf("unexpected staged commands %+v", staged)
	}
	w = do(t, srv, http.MethodPost, "/commit", `[{"track": "lead", "command": "hook"}]`)
	if got := decode[map[string]int](t, w); got["committed"] != 2 {
		t.Fatalf("expected 2 committed requests, got %v", got)
	}
	if len(s.requests) != 2 || s.requests[0].Track != "bass" || s.requests[1].Track != "lead" {
		t.Fatalf("unexpected requests %+v", s.requests)
	}
	w = do(t, srv, http.MethodPost, "/commit", "")
	if got := decode[map[string]int](t, w); got["committed"] != 0 {
		t.Fatalf("expected an empty commit, got %v", got)
	}
	if w := do(t, srv, http.MethodPost, "/stage", `{"track": `); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for broken JSON, got %v", w.Code)
	}
}

func TestStatus(t *testing.T) {
	srv, s := newTestServer()
	s.status = []liveseq.TrackStatus{{Track: "bass", Sequence: "intro"}}
	s.requests = []liveseq.TrackRequest{{Track: "lead", Command: "hook"}}
	st := decode[remote.Status](t, do(t, srv, http.MethodGet, "/status", ""))
	if st.Position != 50 || st.Critical != 90 || st.Underruns != 3 || st.Buffered != 0.25 {
		t.Errorf("unexpected status %+v", st)
	}
	if len(st.Tracks) != 2 {
		t.Fatalf("expected two tracks, got %+v", st.Tracks)
	}
	if bass := st.Tracks[0]; !bass.Live || bass.Sequence != "intro" || bass.Queued != nil {
		t.Errorf("unexpected bass %+v", bass)
	}
	if lead := st.Tracks[1]; lead.Live || lead.Queued == nil || *lead.Queued != "hook" {
		t.Errorf("unexpected lead %+v", lead)
	}
}

func TestBoard(t *testing.T) {
	srv, s := newTestServer()
	w := do(t, srv, http.MethodPut, "/board/bass/stereo", `{"value": 0.5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT failed: %v %v", w.Code, w.Body)
	}
	if p := decode[remote.Param](t, w); p.Param != "pan" || p.Value != 0.5 {
		t.Fatalf("expected the canonical parameter name, got %+v", p)
	}
	s.board.DrainAndApply()
	rows := decode[[]remote.Param](t, do(t, srv, http.MethodGet, "/board", ""))
	if len(rows) != 1 || rows[0].Track != "bass" || rows[0].Value != 0.5 {
		t.Fatalf("unexpected board %+v", rows)
	}
	if w := do(t, srv, http.MethodPut, "/board/bass/wobble", `{"value": 1}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown parameter, got %v", w.Code)
	}
	if w := do(t, srv, http.MethodPut, "/board/bass/pan", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a value, got %v", w.Code)
	}
	if w := do(t, srv, http.MethodDelete, "/board/bass/pan", ""); w.Code != http.StatusNoContent {
		t.Fatalf("DELETE failed: %v %v", w.Code, w.Body)
	}
	if w := do(t, srv, http.MethodDelete, "/board/bass/pan", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unbound parameter, got %v", w.Code)
	}
	s.board.DrainAndApply()
	if s.board.View().Len() != 0 {
		t.Fatal("expected the binding to leave the board")
	}
}

func TestMute(t *testing.T) {
	srv, s := newTestServer()
	w := do(t, srv, http.MethodPost, "/mute", `{"mute": true}`)
	if got := decode[map[string]bool](t, w); !got["mute"] || !s.muted {
		t.Fatalf("expected the session to be muted, got %v", got)
	}
	if w := do(t, srv, http.MethodPost, "/mute", `{"volume": 1}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without mute, got %v", w.Code)
	}
}

func TestPreflight(t *testing.T) {
	srv, _ := newTestServer()
	w := do(t, srv, http.MethodOptions, "/commit", "")
	if w.Code != http.StatusOK || w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("unexpected preflight reply %v %v", w.Code, w.Header())
	}
	if w := do(t, srv, http.MethodGet, "/commit", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %v", w.Code)
	}
}

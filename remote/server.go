// Package remote exposes a live session over HTTP, so commands can be
// staged and committed from scripts or another machine.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/outofphase/liveseq"
	"github.com/outofphase/liveseq/live"
	"github.com/sirupsen/logrus"
)

type (
	Server struct {
		ctrl   *live.Controller
		router *mux.Router
		log    logrus.FieldLogger
	}

	// Request is a track command as sent by clients. An empty track
	// addresses every track of the document.
	Request struct {
		Track   liveseq.TrackID `json:"track"`
		Command string          `json:"command"`
	}

	Track struct {
		Track         liveseq.TrackID `json:"track"`
		Sequence      string          `json:"sequence,omitempty"`
		PendingDelete bool            `json:"pendingDelete,omitempty"`
		Live          bool            `json:"live"`
		Queued        *string         `json:"queued,omitempty"`
	}

	Status struct {
		Position  float64 `json:"position"`
		Critical  float64 `json:"critical"`
		Duty      float64 `json:"duty"`
		Buffered  float64 `json:"buffered"`
		Underruns int64   `json:"underruns"`
		Muted     bool    `json:"muted"`
		Tracks    []Track `json:"tracks"`
	}

	Param struct {
		Track   liveseq.TrackID `json:"track"`
		Param   string          `json:"param"`
		Value   float64         `json:"value"`
		Changed bool            `json:"changed,omitempty"`
	}
)

const shutdownTimeout = 2 * time.Second

func NewServer(ctrl *live.Controller, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{ctrl: ctrl, router: mux.NewRouter(), log: log.WithField("component", "remote")}
	s.router.Use(s.cors)
	s.router.HandleFunc("/stage", s.handleStage).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/commit", s.handleCommit).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/board", s.handleBoard).Methods(http.MethodGet)
	s.router.HandleFunc("/board/{track}/{param}", s.handleSetParam).Methods(http.MethodPut, http.MethodOptions)
	s.router.HandleFunc("/board/{track}/{param}", s.handleUnbind).Methods(http.MethodDelete)
	s.router.HandleFunc("/mute", s.handleMute).Methods(http.MethodPost, http.MethodOptions)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.WithField("addr", addr).Info("remote control listening")
	select {
	case err := <-errc:
		return fmt.Errorf("remote control server failed: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("could not shut down remote control server: %w", err)
	}
	return nil
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStage(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON input: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.ctrl.Stage(req.Track, req.Command)
	staged := s.ctrl.Staged()
	ret := make([]Request, len(staged))
	for i, t := range staged {
		ret[i] = Request{Track: t.Track, Command: t.Command}
	}
	s.reply(w, http.StatusOK, ret)
}

// handleCommit stages the requests in the body, if any, and commits
// everything staged.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var reqs []Request
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid JSON input: "+err.Error(), http.StatusBadRequest)
		return
	}
	for _, req := range reqs {
		s.ctrl.Stage(req.Track, req.Command)
	}
	n := s.ctrl.Commit()
	s.log.WithField("requests", n).Debug("committed from remote")
	s.reply(w, http.StatusOK, map[string]int{"committed": n})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.ctrl.Snapshot()
	st := Status{
		Position:  snap.Position,
		Critical:  snap.Critical,
		Duty:      snap.Duty,
		Buffered:  snap.Buffered,
		Underruns: snap.Underruns,
		Muted:     snap.Muted,
		Tracks:    make([]Track, len(snap.Tracks)),
	}
	for i, v := range snap.Tracks {
		st.Tracks[i] = Track{Track: v.Track, Sequence: v.Sequence, PendingDelete: v.PendingDelete, Live: v.Live}
		if v.HasQueued {
			q := v.Queued
			st.Tracks[i].Queued = &q
		}
	}
	s.reply(w, http.StatusOK, st)
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	rows := s.ctrl.Refresh()
	ret := make([]Param, len(rows))
	for i, row := range rows {
		ret[i] = Param{Track: row.Moniker.Track, Param: row.Moniker.Param, Value: row.Value, Changed: row.Changed}
	}
	s.reply(w, http.StatusOK, ret)
}

func (s *Server) handleSetParam(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var body struct {
		Value *float64 `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Value == nil {
		http.Error(w, `Invalid JSON input: expected {"value": number}`, http.StatusBadRequest)
		return
	}
	e, err := s.ctrl.SetParam(liveseq.TrackID(vars["track"]), vars["param"], *body.Value)
	if err != nil {
		s.replyError(w, err)
		return
	}
	s.reply(w, http.StatusOK, Param{Track: e.Moniker.Track, Param: e.Moniker.Param, Value: e.Value()})
}

func (s *Server) handleUnbind(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.ctrl.Unbind(liveseq.TrackID(vars["track"]), vars["param"]); err != nil {
		s.replyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mute *bool `json:"mute"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Mute == nil {
		http.Error(w, `Invalid JSON input: expected {"mute": bool}`, http.StatusBadRequest)
		return
	}
	s.ctrl.SetMute(*body.Mute)
	s.reply(w, http.StatusOK, map[string]bool{"mute": s.ctrl.Mute()})
}

func (s *Server) replyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, live.ErrUnknownParam):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, live.ErrNotBound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, live.ErrAlreadyBound):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) reply(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithField("err", err).Debug("could not write reply")
	}
}

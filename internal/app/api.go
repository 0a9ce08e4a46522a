package app

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"

	"github.com/MrWong99/solace/internal/conversation"
	"github.com/MrWong99/solace/internal/observe"
	"github.com/MrWong99/solace/pkg/session"
)

// maxBodyBytes bounds request bodies on the control API.
const maxBodyBytes = 4 << 10

type voiceRequest struct {
	Voice string `json:"voice"`
}

type welcomeResponse struct {
	FirstLaunchDone bool `json:"first_launch_done"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// routes builds the control API mux wrapped in the observe middleware.
func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/conversation/start", a.handleStart)
	mux.HandleFunc("POST /api/conversation/stop", a.handleStop)
	mux.HandleFunc("GET /api/status", a.handleStatus)
	mux.HandleFunc("PUT /api/voice", a.handleVoice)
	mux.HandleFunc("GET /api/session", a.handleSession)
	mux.HandleFunc("DELETE /api/session", a.handleClearSession)
	mux.HandleFunc("GET /api/welcome", a.handleWelcome)
	mux.HandleFunc("POST /api/welcome", a.handleAcknowledge)
	a.health.Register(mux)
	if a.telemetry != nil && a.telemetry.MetricsHandler != nil {
		mux.Handle("GET /metrics", a.telemetry.MetricsHandler)
	}
	return observe.Middleware(a.metrics)(mux)
}

// handleStart answers 409 while a stopped loop is still finishing its reply,
// which can take up to the reply timeout, instead of holding the request.
func (a *App) handleStart(w http.ResponseWriter, r *http.Request) {
	if a.controller.Stopping() {
		writeError(w, http.StatusConflict, conversation.ErrStopping)
		return
	}
	// The loop outlives the request.
	err := a.controller.Start(r.Context())
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, conversation.ErrCapabilityUnavailable), errors.Is(err, conversation.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (a *App) handleStop(w http.ResponseWriter, _ *http.Request) {
	a.controller.Stop()
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.controller.Status())
}

func (a *App) handleVoice(w http.ResponseWriter, r *http.Request) {
	var req voiceRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	v, err := conversation.ParseVoice(req.Voice)
	if err == nil {
		err = a.controller.SetVoice(v)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSession lists the history newest first, as the transcript view
// shows it.
func (a *App) handleSession(w http.ResponseWriter, _ *http.Request) {
	entries := a.controller.History()
	if entries == nil {
		entries = []session.Entry{}
	}
	slices.Reverse(entries)
	writeJSON(w, http.StatusOK, entries)
}

func (a *App) handleClearSession(w http.ResponseWriter, r *http.Request) {
	if err := a.controller.ClearHistory(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleWelcome(w http.ResponseWriter, r *http.Request) {
	done, err := a.controller.FirstLaunchDone(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, welcomeResponse{FirstLaunchDone: done})
}

func (a *App) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	if err := a.controller.AcknowledgeFirstLaunch(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		slog.Warn("control API request failed", "status", status, "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeJSON marshals v first so an encoding failure can still produce a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

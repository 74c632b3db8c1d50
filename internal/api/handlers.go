package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/aebridge/internal/auth"
	"github.com/mattjoyce/aebridge/internal/events"
	"github.com/mattjoyce/aebridge/internal/registry"
)

const maxArgsBody = 1 << 20

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		ChannelDir:    s.config.ChannelDir,
	}
	if rec, ok := s.controller.Current(); ok {
		resp.CurrentCommand = rec.Command
		resp.CommandStatus = string(rec.Status)
	}
	respondJSON(w, http.StatusOK, resp)
}

// handlePublish handles POST /commands/{name}. The body, when present, is
// the args object.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	op, ok := registry.ParseOperation(name)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "unknown command: "+name)
		return
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	required := []string{auth.ScopeCommandsRW}
	if op.Access() == registry.AccessRead {
		required = append(required, auth.ScopeCommandsRO)
	}
	if !auth.HasAnyScope(principal, required...) {
		s.writeError(w, http.StatusForbidden, "insufficient scope to publish "+name)
		return
	}

	args, err := decodeArgs(r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.controller.Submit(name, args)
	if err != nil {
		s.logger.Error("failed to publish command", "command", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to publish command")
		return
	}
	respondJSON(w, http.StatusAccepted, rec)
}

// handleCurrent handles GET /command.
func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.controller.Current()
	if !ok {
		s.writeError(w, http.StatusNotFound, "no command published")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// handleResult handles GET /result. The payload is written verbatim.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	payload, err := s.controller.GetResult()
	if err != nil {
		s.logger.Error("failed to read result", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read result")
		return
	}

	contentType := "text/plain; charset=utf-8"
	if json.Valid(payload) {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// handleEvents handles GET /events?since=N.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r.URL.Query().Get("since"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	evs := s.events.SnapshotSince(since)
	if evs == nil {
		evs = []events.Event{}
	}
	resp := EventsResponse{Events: evs, LastID: since}
	if len(evs) > 0 {
		resp.LastID = evs[len(evs)-1].ID
	}
	respondJSON(w, http.StatusOK, resp)
}

func decodeArgs(body io.Reader) (map[string]any, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxArgsBody))
	if err != nil {
		return nil, errInvalidBody
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	var args map[string]any
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, errArgsNotObject
	}
	return args, nil
}

func parseSince(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, errInvalidSince
	}
	return n, nil
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/aebridge/internal/events"
)

// streamKeepAlive is the idle gap after which an SSE comment is sent.
const streamKeepAlive = 15 * time.Second

// handleEventStream handles GET /events/stream as server-sent events.
// Buffered events newer than Last-Event-ID (or ?since=N) are replayed first.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r.Header.Get("Last-Event-ID"))
	if err != nil || since == 0 {
		if since, err = parseSince(r.URL.Query().Get("since")); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	rc := http.NewResponseController(w)
	// The server write timeout would cut the stream.
	_ = rc.SetWriteDeadline(time.Time{})

	// Subscribe before the replay so nothing published in between is lost.
	ch, cancel := s.events.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	lastSent := since
	for _, ev := range s.events.SnapshotSince(since) {
		if err := writeSSE(w, ev); err != nil {
			return
		}
		lastSent = ev.ID
	}
	if err := rc.Flush(); err != nil {
		s.logger.Warn("event stream flush failed", "error", err)
		return
	}

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.ID <= lastSent {
				continue
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
			lastSent = ev.ID
		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// writeSSE frames one event. Event data is single-line JSON.
func writeSSE(w io.Writer, ev events.Event) error {
	_, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", strconv.FormatInt(ev.ID, 10), ev.Type, ev.Data)
	return err
}

package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// handleEvents streams the session's progress events as Server-Sent Events.
// The stream ends when the session reaches a terminal state (the bridge
// closes the channel) or the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sub, err := s.mgr.Subscribe(sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer sub.Cancel()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable buffering for nginx
	w.WriteHeader(http.StatusOK)

	// Initial comment establishes the stream before the first event.
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case ev, open := <-sub.C:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				zap.L().Warn("api: marshal event",
					zap.String("session_id", sessionID),
					zap.Error(err),
				)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

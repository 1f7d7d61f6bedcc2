package api

import (
	"net/http"
	"time"
)

// handleLive answers as long as the process serves HTTP
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status": "alive",
		"uptime": s.health.Uptime().Round(time.Second).String(),
	})
}

// handleReady answers 200 once startup initialization has completed
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.health.Check(); err != nil {
		writeCoreError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":  s.health.State().String(),
		"startup": s.health.StartupDuration().Round(time.Millisecond).String(),
	})
}

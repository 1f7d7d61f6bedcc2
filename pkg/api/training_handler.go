package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/seasonal/forecastd/pkg/models"
)

// handleRetrain retrains a model from its stored measurements. The call waits for the
// run unless ?async=true, in which case the queued run is returned with 202.
func (s *Server) handleRetrain(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["model"]

	async, err := queryBool(r, "async", false)
	if err != nil {
		writeCoreError(w, r, err)
		return
	}

	if async {
		run, err := s.trainer.Submit(name, models.RunTriggerAPI)
		if err != nil {
			writeCoreError(w, r, err)
			return
		}
		writeJSONResponse(w, http.StatusAccepted, models.RetrainResponse{Status: string(run.Status), Run: run})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	run, err := s.trainer.Retrain(ctx, name, models.RunTriggerAPI)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && run != nil {
			// Still running; the client can poll the run
			writeJSONResponse(w, http.StatusAccepted, models.RetrainResponse{Status: string(models.RunStatusRunning), Run: run})
			return
		}
		writeCoreError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"message": "Models have been retrained to fit the data in the db",
		"run":     run,
	})
}

// handleGetRun reports the status of a training run
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.trainer.GetRun(mux.Vars(r)["id"])
	if err != nil {
		writeCoreError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, run)
}

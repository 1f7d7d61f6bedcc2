package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/seasonal/forecastd/pkg/models"
)

// handleListModels lists models with measurements, or every registered model with
// ?source=registry
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	var (
		names []string
		err   error
	)
	switch source := r.URL.Query().Get("source"); source {
	case "", "measurements":
		names, err = s.lifecycle.ListNames(r.Context())
	case "registry":
		names, err = s.lifecycle.ListRegistered(r.Context())
	default:
		writeBadRequestResponse(w, fmt.Sprintf("unknown source %q, expected measurements or registry", source))
		return
	}
	if err != nil {
		writeCoreError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"models": names})
}

// handleUpsertModel stores the full configuration of a model
func (s *Server) handleUpsertModel(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["model"]

	var req models.ModelConfigRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeCoreError(w, r, err)
			return
		}
	}

	cfg, err := s.lifecycle.UpsertConfig(r.Context(), name, &req)
	if err != nil {
		writeCoreError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{
		"message": fmt.Sprintf("Model %s was configured", name),
		"config":  cfg,
	})
}

// handleGetModel returns the stored configuration and the resolved parameters
func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	info, err := s.lifecycle.Describe(r.Context(), mux.Vars(r)["model"])
	if err != nil {
		writeCoreError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, info)
}

// handleDeleteModel removes every trace of a model
func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["model"]
	if err := s.lifecycle.Delete(r.Context(), name); err != nil {
		writeCoreError(w, r, err)
		return
	}
	writeMessageResponse(w, http.StatusOK, fmt.Sprintf("Model %s was deleted", name))
}

// handleReset wipes measurements, configurations and the registry. Trained artifacts
// stay on disk.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.lifecycle.ResetAll(r.Context()); err != nil {
		writeCoreError(w, r, err)
		return
	}
	writeMessageResponse(w, http.StatusOK, "Measurements and model configurations were reset")
}

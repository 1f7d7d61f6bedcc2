package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/seasonal/forecastd/pkg/models"
)

// maxCSVBody bounds a bulk import upload
const maxCSVBody = 64 << 20

// handleFeed stores a single measurement
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["model"]

	var req models.MeasurementRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeCoreError(w, r, err)
		return
	}
	ts, err := req.Validate()
	if err != nil {
		writeCoreError(w, r, err)
		return
	}

	if err := s.ingest.Record(r.Context(), name, ts, req.Value); err != nil {
		writeCoreError(w, r, err)
		return
	}
	writeMessageResponse(w, http.StatusCreated, fmt.Sprintf("Measurement was stored in the db for model %s", name))
}

// handleFeedCSV imports a CSV body. Any malformed row rejects the whole upload.
func (s *Server) handleFeedCSV(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["model"]
	if r.Body == nil {
		writeBadRequestResponse(w, "request body is required")
		return
	}

	n, err := s.ingest.ImportCSV(r.Context(), name, http.MaxBytesReader(w, r.Body, maxCSVBody))
	if err != nil {
		writeCoreError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{
		"message": fmt.Sprintf("%d measurements were stored in the db for model %s", n, name),
		"rows":    n,
	})
}

// handleFeedTestData seeds synthetic measurements
func (s *Server) handleFeedTestData(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["model"]

	req, err := seedRequestFromQuery(r)
	if err != nil {
		writeCoreError(w, r, err)
		return
	}

	n, err := s.ingest.Seed(r.Context(), name, req)
	if err != nil {
		writeCoreError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{
		"message": fmt.Sprintf("Sample metrics were created in the db for model %s", name),
		"rows":    n,
	})
}

func seedRequestFromQuery(r *http.Request) (models.SeedRequest, error) {
	req := models.DefaultSeedRequest()
	var err error
	if req.Days, err = queryInt(r, "days", req.Days); err != nil {
		return req, err
	}
	if req.TrendFactor, err = queryFloat(r, "daysTrendFactor", req.TrendFactor); err != nil {
		return req, err
	}
	if req.OffHoursFactor, err = queryFloat(r, "offHoursFactor", req.OffHoursFactor); err != nil {
		return req, err
	}
	if req.Jitter, err = queryFloat(r, "jitter", req.Jitter); err != nil {
		return req, err
	}
	return req, req.Validate()
}

package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/seasonal/forecastd/pkg/forecast"
	"github.com/seasonal/forecastd/pkg/logging"
	"github.com/seasonal/forecastd/pkg/models"
)

// handlePredict returns point estimates for a horizon
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["model"]

	var req models.PredictRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeCoreError(w, r, err)
		return
	}
	start, err := req.Validate()
	if err != nil {
		writeCoreError(w, r, err)
		return
	}

	points, err := s.forecasts.Forecast(r.Context(), name, start, req.Periods, req.Freq)
	if err != nil {
		writeCoreError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.ForecastResponse{Forecast: points})
}

// handleGraph renders a forecast chart as PNG or text
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["model"]

	req, err := renderRequestFromQuery(r)
	if err != nil {
		writeCoreError(w, r, err)
		return
	}

	img, err := s.forecasts.Render(r.Context(), name, req)
	if err != nil {
		writeCoreError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", req.Options.ContentType())
	w.Header().Set("Content-Length", strconv.FormatInt(img.Size(), 10))
	w.WriteHeader(http.StatusOK)
	if _, err := img.WriteTo(w); err != nil {
		s.log.Warn("Failed to write chart", logging.Model(name), logging.Err(err))
	}
}

func renderRequestFromQuery(r *http.Request) (forecast.RenderRequest, error) {
	q := r.URL.Query()
	req := forecast.RenderRequest{
		Freq:    q.Get("freq"),
		Options: models.DefaultRenderOptions(),
	}
	if req.Freq == "" {
		req.Freq = models.DefaultForecastFreq
	}

	var err error
	if req.Periods, err = queryInt(r, "periods", models.DefaultGraphPeriods); err != nil {
		return req, err
	}
	if req.Start, err = queryTime(r, "start"); err != nil {
		return req, err
	}

	opts := &req.Options
	if opts.VisibleWindowStart, err = queryTime(r, "dataStart"); err != nil {
		return req, err
	}
	if opts.IncludeLegend, err = queryBool(r, "legend", opts.IncludeLegend); err != nil {
		return req, err
	}
	if opts.ShowUncertaintyBand, err = queryBool(r, "uncertainty", opts.ShowUncertaintyBand); err != nil {
		return req, err
	}
	if opts.ShowTrendChangepoints, err = queryBool(r, "trend", opts.ShowTrendChangepoints); err != nil {
		return req, err
	}
	if opts.DecomposeIntoComponents, err = queryBool(r, "components", opts.DecomposeIntoComponents); err != nil {
		return req, err
	}

	switch format := q.Get("format"); format {
	case "", string(models.RenderPNG):
		opts.Format = models.RenderPNG
	case string(models.RenderText):
		opts.Format = models.RenderText
	default:
		return req, models.InvalidRequest(fmt.Sprintf("unknown format %q, expected png or text", format))
	}
	return req, nil
}

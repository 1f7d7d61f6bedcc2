package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/seasonal/forecastd/pkg/logging"
	"github.com/seasonal/forecastd/pkg/models"
)

// writeJSONResponse writes a JSON response with the given status code
func writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeMessageResponse writes the {"message": ...} envelope
func writeMessageResponse(w http.ResponseWriter, statusCode int, message string) {
	writeJSONResponse(w, statusCode, map[string]any{"message": message})
}

// writeErrorResponse writes an error response with the given status code and message
func writeErrorResponse(w http.ResponseWriter, statusCode int, kind models.ErrorKind, message string) {
	body := map[string]any{
		"status": "error",
		"error":  message,
	}
	if kind != "" {
		body["kind"] = kind
	}
	writeJSONResponse(w, statusCode, body)
}

// writeBadRequestResponse writes a 400 Bad Request response
func writeBadRequestResponse(w http.ResponseWriter, message string) {
	writeErrorResponse(w, http.StatusBadRequest, models.KindInvalidRequest, message)
}

// statusForKind maps an error kind onto an HTTP status. Core failures share one
// generic status; the kind in the body tells them apart.
func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.KindInvalidRequest:
		return http.StatusBadRequest
	case models.KindNotReady:
		return http.StatusServiceUnavailable
	case models.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeCoreError reports err with its kind and remediation hint
func writeCoreError(w http.ResponseWriter, r *http.Request, err error) {
	kind := models.KindOf(err)
	status := statusForKind(kind)

	message := err.Error()
	if hint := models.HintOf(err); hint != "" {
		message += ". " + strings.ToUpper(hint[:1]) + hint[1:]
	}

	if status >= http.StatusInternalServerError {
		logging.GetLogger().Error("Request failed", err,
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.String("kind", string(kind)),
			logging.RequestID(requestIDFrom(r.Context())),
			logging.Component("http"))
	}
	writeErrorResponse(w, status, kind, message)
}

// decodeJSON decodes the request body into v, rejecting unknown fields
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return models.InvalidRequest("request body is required")
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return models.InvalidRequest(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

const maxJSONBody = 1 << 20

// queryInt reads an integer query parameter, returning def when absent
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, models.InvalidRequest(fmt.Sprintf("%s must be an integer, got %q", key, raw))
	}
	return n, nil
}

// queryFloat reads a float query parameter, returning def when absent
func queryFloat(r *http.Request, key string, def float64) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, models.InvalidRequest(fmt.Sprintf("%s must be a number, got %q", key, raw))
	}
	return f, nil
}

// queryBool reads a boolean query parameter, returning def when absent
func queryBool(r *http.Request, key string, def bool) (bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, models.InvalidRequest(fmt.Sprintf("%s must be true or false, got %q", key, raw))
	}
	return b, nil
}

// queryTime reads an optional timestamp query parameter
func queryTime(r *http.Request, key string) (*time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	ts, err := models.ParseTimestamp(raw)
	if err != nil {
		return nil, models.InvalidRequest(fmt.Sprintf("%s: %v", key, err))
	}
	return &ts, nil
}

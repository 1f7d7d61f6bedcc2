package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/seasonal/forecastd/pkg/models"
)

// MaxCSVRows bounds a single bulk import
const MaxCSVRows = 1_000_000

var (
	timeColumns  = map[string]bool{"timestamp": true, "ds": true, "date": true, "time": true}
	valueColumns = map[string]bool{"value": true, "y": true}
)

// ParseCSV reads a bulk import body with a header naming a time column (timestamp, ds,
// date or time) and a value column (value or y). Any malformed row fails the whole
// import with an ingest error naming the line, so nothing is written partially.
func ParseCSV(model string, r io.Reader) ([]models.Measurement, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, models.Ingest(model, fmt.Errorf("empty CSV body"))
	}
	if err != nil {
		return nil, models.Ingest(model, fmt.Errorf("failed to read CSV header: %w", err))
	}

	timeIdx, valueIdx := -1, -1
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.Trim(h, "\"\ufeff")))
		switch {
		case timeColumns[h] && timeIdx == -1:
			timeIdx = i
		case valueColumns[h] && valueIdx == -1:
			valueIdx = i
		}
	}
	if timeIdx == -1 || valueIdx == -1 {
		return nil, models.Ingest(model, fmt.Errorf("CSV header must contain timestamp,value or ds,y columns, got %q", strings.Join(header, ",")))
	}

	var out []models.Measurement
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, models.Ingest(model, err)
		}
		line, _ := reader.FieldPos(0)
		if timeIdx >= len(record) || valueIdx >= len(record) {
			return nil, models.Ingest(model, fmt.Errorf("line %d: expected at least %d fields, got %d", line, max(timeIdx, valueIdx)+1, len(record)))
		}

		ts, err := models.ParseTimestamp(record[timeIdx])
		if err != nil {
			return nil, models.Ingest(model, fmt.Errorf("line %d: %w", line, err))
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(record[valueIdx]), 64)
		if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, models.Ingest(model, fmt.Errorf("line %d: invalid value %q", line, record[valueIdx]))
		}

		out = append(out, models.Measurement{ModelName: model, Timestamp: ts, Value: value})
		if len(out) > MaxCSVRows {
			return nil, models.Ingest(model, fmt.Errorf("import exceeds %d rows", MaxCSVRows))
		}
	}

	if len(out) == 0 {
		return nil, models.Ingest(model, fmt.Errorf("CSV contains no data rows"))
	}
	return out, nil
}

// Package ingest reads raw CPAP recordings into validated numeric sample
// matrices. Malformed rows never reach the analysis pipeline: any row with
// a non-numeric field, a non-finite value, too few channels, or a timestamp
// behind the previous sample is dropped and logged, matching the
// acquisition hardware's occasional glitch lines.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
)

// MinColumns is the narrowest row the analysis pipeline accepts:
// time plus the three patient-side pressure taps.
const MinColumns = 4

// ErrInvalidRow reports a sample line that failed validation.
var ErrInvalidRow = errors.New("ingest: invalid sample row")

// ParseRow parses one comma-separated sample line into a numeric row.
// Returns ErrInvalidRow (wrapped with detail) for non-numeric fields,
// non-finite values, or fewer than MinColumns fields.
func ParseRow(line string) ([]float64, error) {
	fields := strings.Split(line, ",")
	if len(fields) < MinColumns {
		return nil, fmt.Errorf("%w: %d fields, need at least %d", ErrInvalidRow, len(fields), MinColumns)
	}

	row := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: field %d %q is not numeric", ErrInvalidRow, i, f)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: field %d is not finite", ErrInvalidRow, i)
		}
		row[i] = v
	}
	return row, nil
}

// ReadRecording reads a recording file into a sample matrix. The first line
// is a header and is skipped; each subsequent line is validated with
// ParseRow. Invalid rows are logged and dropped, never fatal — a recording
// with glitched lines still analyses on its remaining samples.
func ReadRecording(path string, logger *log.Logger) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	return readRecording(f, logger)
}

// ReadRecordingFrom reads a recording from an already-open stream, such as
// an HTTP upload. Same header and validation behaviour as ReadRecording.
func ReadRecordingFrom(r io.Reader, logger *log.Logger) ([][]float64, error) {
	return readRecording(r, logger)
}

func readRecording(r io.Reader, logger *log.Logger) ([][]float64, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // row width is validated per row

	// Skip the header line
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("recording is empty")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var matrix [][]float64
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// csv-level errors (bare quotes etc) are treated the same as
			// unparseable rows: logged and skipped
			logger.Printf("ERROR: invalid input row skipped: %v", err)
			continue
		}

		row, err := ParseRow(strings.Join(record, ","))
		if err != nil {
			logger.Printf("ERROR: invalid input row skipped: %v", err)
			continue
		}
		// The acquisition clock is non-decreasing; a row with a timestamp
		// before the last accepted one is a clock glitch, not valid data.
		if n := len(matrix); n > 0 && row[0] < matrix[n-1][0] {
			logger.Printf("ERROR: invalid input row skipped: time %g before previous sample %g", row[0], matrix[n-1][0])
			continue
		}
		matrix = append(matrix, row)
	}

	return matrix, nil
}

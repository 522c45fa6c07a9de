// Package breath implements the CPAP waveform analysis pipeline: it turns a
// validated matrix of raw pressure samples into a signed flow-rate series,
// detects breath peaks on a lowpass-filtered copy of that series, classifies
// apnea events from inter-breath gaps, integrates mask leakage, and
// aggregates the results into a reporting Metrics record.
package breath

import (
	"errors"
	"fmt"

	"github.com/airway-data/breath.report/internal/units"
)

// Sample is one point of the signed volumetric flow series. Rate is in
// m^3/s; positive values are inspiration-dominant, negative expiration.
type Sample struct {
	Time float64
	Rate float64
}

// Converter bundles the physical constants needed to turn raw ADC rows into
// flow rates. Passing it explicitly keeps runs independent of each other and
// lets tests pin exact calibration values.
type Converter struct {
	Calibration units.Calibration
	Geometry    units.TubeGeometry
	AirDensity  float64
}

// DefaultConverter returns the converter for the current sensor batch and
// patient-side Venturi tube.
func DefaultConverter() Converter {
	return Converter{
		Calibration: units.DefaultCalibration(),
		Geometry:    units.DefaultTubeGeometry(),
		AirDensity:  units.MoistAirDensity,
	}
}

// ErrNonMonotonicTime reports a sample matrix whose time axis goes
// backwards. Downstream rate inference and integration require a
// non-decreasing acquisition clock.
var ErrNonMonotonicTime = errors.New("breath: time axis is not non-decreasing")

// Raw sample matrix column layout. Additional columns carry the CPAP-side
// Venturi channels and are ignored by this pipeline.
const (
	colTime = iota
	colP2ADC
	colP1InsADC
	colP1ExpADC
	minColumns = 4
)

// BuildFlowSeries converts a raw sample matrix into a time-ordered signed
// flow series. For each row the three pressure taps are converted to
// pascals, the higher of the two patient-side taps is taken as the upstream
// pressure, and the flow direction is negated when the expiration tap reads
// higher than the inspiration tap.
//
// Rows whose constriction pressure exceeds both patient-side taps have no
// real Venturi solution; those samples are recorded as zero flow and
// counted in the returned clamped total so callers can surface the anomaly.
func BuildFlowSeries(matrix [][]float64, conv Converter) ([]Sample, int, error) {
	series := make([]Sample, 0, len(matrix))
	clamped := 0

	for i, row := range matrix {
		if len(row) < minColumns {
			return nil, 0, fmt.Errorf("row %d has %d columns, need at least %d", i, len(row), minColumns)
		}
		if i > 0 && row[colTime] < matrix[i-1][colTime] {
			return nil, 0, fmt.Errorf("%w: row %d time %g after %g", ErrNonMonotonicTime, i, row[colTime], matrix[i-1][colTime])
		}

		p1InsPa := conv.Calibration.PressurePa(row[colP1InsADC])
		p1ExpPa := conv.Calibration.PressurePa(row[colP1ExpADC])
		p2Pa := conv.Calibration.PressurePa(row[colP2ADC])

		// Only one direction of flow is active at a time; the tap that
		// currently reads higher is the physically active upstream side.
		p1Pa := p1InsPa
		if p1ExpPa > p1InsPa {
			p1Pa = p1ExpPa
		}

		rate, err := units.VenturiFlowRate(conv.Geometry, p1Pa, p2Pa, conv.AirDensity)
		if err != nil {
			if !errors.Is(err, units.ErrNegativeRadicand) {
				return nil, 0, fmt.Errorf("row %d: %w", i, err)
			}
			clamped++
			rate = 0
		}

		if p1ExpPa > p1InsPa {
			rate = -rate
		}

		series = append(series, Sample{Time: row[colTime], Rate: rate})
	}

	return series, clamped, nil
}

// times extracts the time axis of a flow series.
func times(series []Sample) []float64 {
	out := make([]float64, len(series))
	for i, s := range series {
		out[i] = s.Time
	}
	return out
}

// rates extracts the flow values of a flow series.
func rates(series []Sample) []float64 {
	out := make([]float64, len(series))
	for i, s := range series {
		out[i] = s.Rate
	}
	return out
}

package breath

import (
	"bytes"
	"log"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airway-data/breath.report/internal/config"
)

// breathingMatrix synthesises a raw ADC matrix for sinusoidal breathing
// with the given period: the inspiration tap is driven on positive
// half-cycles and the expiration tap on negative ones, with the
// constriction tap at the calibration zero.
func breathingMatrix(durationSec, periodSec, fs, adcSwing float64) [][]float64 {
	cal := DefaultConverter().Calibration
	n := int(durationSec * fs)
	matrix := make([][]float64, n)
	for i := range matrix {
		tm := float64(i) / fs
		s := math.Sin(2 * math.Pi * tm / periodSec)
		ins, exp := cal.ADCLow, cal.ADCLow
		if s >= 0 {
			ins += adcSwing * s
		} else {
			exp -= adcSwing * s
		}
		matrix[i] = []float64{tm, cal.ADCLow, ins, exp}
	}
	return matrix
}

func TestAnalyzeSinusoidalBreathing(t *testing.T) {
	// 30 s of 3 s-period breathing at 100 Hz: exactly 10 breaths,
	// no apneas, rate about 20 bpm.
	matrix := breathingMatrix(30, 3, 100, 5000)

	logger := log.New(&bytes.Buffer{}, "", 0)
	res, err := Analyze(matrix, DefaultAnalysisParams(), logger)
	require.NoError(t, err)

	assert.Equal(t, 10, res.Metrics.Breaths)
	assert.Equal(t, 0, res.Metrics.ApneaCount)
	assert.InDelta(t, 20.0, res.Metrics.BreathRateBPM, 0.1)
	assert.Equal(t, 0, res.ClampedSamples)

	// Structural invariants of the metrics record
	assert.Equal(t, res.Metrics.Breaths, len(res.Metrics.BreathTimes))
	assert.Len(t, res.Detection.Filtered, len(res.Series))

	// Symmetric breathing nets out to near-zero leakage
	assert.InDelta(t, 0.0, res.Metrics.Leakage, 0.5)
}

func TestAnalyzeApneaGap(t *testing.T) {
	// Two breath bursts separated by 15 s of silence: one apnea event.
	cal := DefaultConverter().Calibration
	const fs = 100.0
	var matrix [][]float64
	for i := 0; i < int(20*fs); i++ {
		tm := float64(i) / fs
		ins := cal.ADCLow
		// A 1 s inspiration bump at t=1 and another at t=16
		for _, center := range []float64{1.0, 16.0} {
			if d := tm - center; d > -0.5 && d < 0.5 {
				ins += 5000 * math.Cos(math.Pi*d)
			}
		}
		matrix = append(matrix, []float64{tm, cal.ADCLow, ins, cal.ADCLow})
	}

	logger := log.New(&bytes.Buffer{}, "", 0)
	res, err := Analyze(matrix, DefaultAnalysisParams(), logger)
	require.NoError(t, err)

	require.Equal(t, 2, res.Metrics.Breaths, "peak times: %v", res.Metrics.BreathTimes)
	assert.Equal(t, 1, res.Metrics.ApneaCount)
}

func TestAnalyzeDegenerateMatrix(t *testing.T) {
	cal := DefaultConverter().Calibration
	logger := log.New(&bytes.Buffer{}, "", 0)

	// A single-row matrix cannot support sampling-rate inference and must
	// fail rather than return a result.
	_, err := Analyze([][]float64{{0, cal.ADCLow, cal.ADCLow, cal.ADCLow}}, DefaultAnalysisParams(), logger)
	assert.Error(t, err)

	_, err = Analyze(nil, DefaultAnalysisParams(), logger)
	assert.Error(t, err)
}

func TestAnalyzeNonMonotonicTime(t *testing.T) {
	// A clock-glitched matrix must fail with an explicit error before the
	// leakage integration, which cannot tolerate an unsorted time axis.
	cal := DefaultConverter().Calibration
	matrix := [][]float64{}
	for _, tm := range []float64{0, 0.01, 0.03, 0.02, 0.04} {
		matrix = append(matrix, []float64{tm, cal.ADCLow, cal.ADCLow + 100, cal.ADCLow})
	}

	logger := log.New(&bytes.Buffer{}, "", 0)
	_, err := Analyze(matrix, DefaultAnalysisParams(), logger)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNonMonotonicTime)
}

func TestAnalyzeLogsClampedSamples(t *testing.T) {
	cal := DefaultConverter().Calibration
	matrix := breathingMatrix(10, 3, 100, 5000)
	// Poison one row with a constriction reading above both patient taps.
	matrix[50][colP2ADC] = cal.ADCLow + 9000

	buf := &bytes.Buffer{}
	logger := log.New(buf, "", 0)
	res, err := Analyze(matrix, DefaultAnalysisParams(), logger)
	require.NoError(t, err)

	assert.Equal(t, 1, res.ClampedSamples)
	assert.Contains(t, buf.String(), "zero flow")
}

func TestParamsFromTuning(t *testing.T) {
	cutoff := 1.25
	gap := 8.0
	distance := 120
	cfg := &config.TuningConfig{
		CutoffHz:        &cutoff,
		ApneaGapSeconds: &gap,
		MinPeakDistance: &distance,
	}

	p := ParamsFromTuning(cfg)
	assert.Equal(t, 1.25, p.Detector.CutoffHz)
	assert.Equal(t, 8.0, p.ApneaGapSeconds)
	assert.Equal(t, 120, p.Detector.MinDistance)
	// Unset fields keep defaults
	assert.Equal(t, 0.00009, p.Detector.MinHeight)
	assert.Equal(t, 0.5, p.Detector.ProminenceRatio)

	// Nil config falls back entirely to defaults
	assert.Equal(t, DefaultAnalysisParams(), ParamsFromTuning(nil))
}

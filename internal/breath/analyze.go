package breath

import (
	"fmt"
	"log"

	"github.com/airway-data/breath.report/internal/config"
)

// AnalysisParams collects everything one analysis run needs. Each run gets
// its own value; nothing is cached between runs, so concurrent analyses of
// different recordings are independent by construction.
type AnalysisParams struct {
	Converter       Converter
	Detector        DetectorParams
	ApneaGapSeconds float64
}

// DefaultAnalysisParams returns the bench defaults for every stage.
func DefaultAnalysisParams() AnalysisParams {
	return AnalysisParams{
		Converter:       DefaultConverter(),
		Detector:        DefaultDetectorParams(),
		ApneaGapSeconds: 10.0,
	}
}

// ParamsFromTuning builds analysis parameters from a loaded tuning config,
// falling back to the defaults for any unset field.
func ParamsFromTuning(cfg *config.TuningConfig) AnalysisParams {
	p := DefaultAnalysisParams()
	if cfg == nil {
		return p
	}
	p.Detector.CutoffHz = cfg.GetCutoffHz()
	p.Detector.MinHeight = cfg.GetMinPeakHeight()
	p.Detector.MinDistance = cfg.GetMinPeakDistance()
	p.Detector.ProminenceRatio = cfg.GetProminenceStdRatio()
	p.ApneaGapSeconds = cfg.GetApneaGapSeconds()
	return p
}

// Result is the complete output of one analysis run. Series and Detection
// are retained alongside the metrics for diagnostic plotting and charting.
type Result struct {
	Metrics        Metrics
	Series         []Sample
	Detection      Detection
	ClampedSamples int
}

// Analyze runs the full pipeline over a validated raw sample matrix:
// flow conversion, breath detection, apnea classification, leakage
// integration, and metric aggregation. The logger receives non-fatal
// diagnostics (clamped samples, negative leakage); computation errors
// abort the run.
func Analyze(matrix [][]float64, p AnalysisParams, logger *log.Logger) (*Result, error) {
	series, clamped, err := BuildFlowSeries(matrix, p.Converter)
	if err != nil {
		return nil, fmt.Errorf("flow conversion failed: %w", err)
	}
	if clamped > 0 {
		logger.Printf("WARNING: %d samples had constriction pressure above both patient taps; recorded as zero flow", clamped)
	}

	detection, err := DetectBreaths(series, p.Detector)
	if err != nil {
		return nil, fmt.Errorf("breath detection failed: %w", err)
	}

	apneas := CountApneas(detection.PeakTimes, p.ApneaGapSeconds)
	leakage := Leakage(series, logger)
	metrics := ComputeMetrics(series, detection.PeakTimes, apneas, leakage)

	return &Result{
		Metrics:        metrics,
		Series:         series,
		Detection:      detection,
		ClampedSamples: clamped,
	}, nil
}

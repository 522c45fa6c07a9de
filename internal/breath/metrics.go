package breath

import "math"

// Metrics is the fixed-shape reporting record produced once per analysis
// run. Field names and types are a stable contract with the persistence
// layer and downstream consumers; floating values are rounded to 3 decimal
// places for reporting stability.
type Metrics struct {
	Duration      float64   `json:"duration"`
	Breaths       int       `json:"breaths"`
	BreathRateBPM float64   `json:"breath_rate_bpm"`
	BreathTimes   []float64 `json:"breath_times"`
	ApneaCount    int       `json:"apnea_count"`
	Leakage       float64   `json:"leakage"`
}

// ComputeMetrics assembles the final metrics record from the pipeline
// outputs. Breath timestamps are copied verbatim from the detection so the
// exact detected times survive for display and audit. A non-positive
// duration yields a zero breath rate rather than a division error.
func ComputeMetrics(series []Sample, peakTimes []float64, apneas int, leakageLiters float64) Metrics {
	var duration float64
	if len(series) > 0 {
		duration = series[len(series)-1].Time - series[0].Time
	}

	var rateBPM float64
	if duration > 0 {
		rateBPM = float64(len(peakTimes)) / (duration / 60)
	}

	breathTimes := make([]float64, len(peakTimes))
	copy(breathTimes, peakTimes)

	return Metrics{
		Duration:      round3(duration),
		Breaths:       len(peakTimes),
		BreathRateBPM: round3(rateBPM),
		BreathTimes:   breathTimes,
		ApneaCount:    apneas,
		Leakage:       round3(leakageLiters),
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

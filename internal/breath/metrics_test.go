package breath

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestComputeMetrics(t *testing.T) {
	series := []Sample{
		{Time: 0, Rate: 0},
		{Time: 30, Rate: 0},
	}
	peaks := []float64{0.75, 3.75, 6.75}

	m := ComputeMetrics(series, peaks, 1, 2.3456789)

	if m.Duration != 30 {
		t.Errorf("Duration = %g, want 30", m.Duration)
	}
	if m.Breaths != 3 {
		t.Errorf("Breaths = %d, want 3", m.Breaths)
	}
	// 3 breaths over half a minute
	if m.BreathRateBPM != 6 {
		t.Errorf("BreathRateBPM = %g, want 6", m.BreathRateBPM)
	}
	if m.ApneaCount != 1 {
		t.Errorf("ApneaCount = %d, want 1", m.ApneaCount)
	}
	if m.Leakage != 2.346 {
		t.Errorf("Leakage = %g, want 2.346 (rounded)", m.Leakage)
	}
	if diff := cmp.Diff(peaks, m.BreathTimes); diff != "" {
		t.Errorf("BreathTimes mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeMetricsCopiesBreathTimes(t *testing.T) {
	series := []Sample{{Time: 0}, {Time: 10}}
	peaks := []float64{1, 2, 3}

	m := ComputeMetrics(series, peaks, 0, 0)
	peaks[0] = 99
	if m.BreathTimes[0] == 99 {
		t.Error("BreathTimes aliases the caller's slice")
	}
}

func TestComputeMetricsZeroDuration(t *testing.T) {
	tests := []struct {
		name   string
		series []Sample
	}{
		{"empty series", nil},
		{"single sample", []Sample{{Time: 5}}},
		{"zero span", []Sample{{Time: 5}, {Time: 5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ComputeMetrics(tt.series, []float64{1, 2}, 0, 0)
			if m.BreathRateBPM != 0 {
				t.Errorf("BreathRateBPM = %g, want 0 for degenerate duration", m.BreathRateBPM)
			}
		})
	}
}

func TestComputeMetricsConsistency(t *testing.T) {
	series := []Sample{{Time: 0}, {Time: 29.99}}
	peaks := []float64{1, 4, 7, 10, 13}

	m := ComputeMetrics(series, peaks, 0, 0)

	if m.Breaths != len(m.BreathTimes) {
		t.Errorf("Breaths (%d) != len(BreathTimes) (%d)", m.Breaths, len(m.BreathTimes))
	}
	want := math.Round(float64(len(peaks))/(29.99/60)*1000) / 1000
	if m.BreathRateBPM != want {
		t.Errorf("BreathRateBPM = %g, want %g", m.BreathRateBPM, want)
	}
}

func TestRound3(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{1.23456, 1.235},
		{1.2344, 1.234},
		{-1.23456, -1.235},
		{0, 0},
	}
	for _, tt := range tests {
		if got := round3(tt.in); got != tt.want {
			t.Errorf("round3(%g) = %g, want %g", tt.in, got, tt.want)
		}
	}
}

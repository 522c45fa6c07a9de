package breath

import "testing"

func TestCountApneas(t *testing.T) {
	tests := []struct {
		name     string
		peaks    []float64
		gap      float64
		expected int
	}{
		{"no peaks", nil, 10, 0},
		{"single peak", []float64{5}, 10, 0},
		{"regular breathing", []float64{0, 3, 6, 9, 12}, 10, 0},
		{"one long gap", []float64{0, 15}, 10, 1},
		{"gap exactly at threshold not counted", []float64{0, 10}, 10, 0},
		{"two gaps", []float64{0, 11, 14, 26}, 10, 2},
		{"custom threshold", []float64{0, 8}, 5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CountApneas(tt.peaks, tt.gap)
			if got != tt.expected {
				t.Errorf("CountApneas(%v, %g) = %d, want %d", tt.peaks, tt.gap, got, tt.expected)
			}
		})
	}
}

// Inserting an extra over-threshold gap never decreases the count; removing
// one never increases it.
func TestCountApneasMonotonicity(t *testing.T) {
	base := []float64{0, 3, 6, 9}
	baseCount := CountApneas(base, 10)

	// Append a breath 15 s after the last: adds one qualifying gap.
	extended := append(append([]float64{}, base...), base[len(base)-1]+15)
	if got := CountApneas(extended, 10); got < baseCount {
		t.Errorf("adding a gap decreased the count: %d -> %d", baseCount, got)
	}

	// Removing the appended gap restores the original count.
	if got := CountApneas(extended[:len(extended)-1], 10); got > CountApneas(extended, 10) {
		t.Error("removing a gap increased the count")
	}
}

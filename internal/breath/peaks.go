package breath

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DetectorParams control peak-detection sensitivity. The zero value is not
// useful; start from DefaultDetectorParams.
type DetectorParams struct {
	// CutoffHz is the lowpass cutoff applied before peak detection.
	CutoffHz float64
	// MinHeight is the minimum filtered flow value for an accepted peak.
	MinHeight float64
	// MinDistance is the minimum number of samples between accepted peaks.
	MinDistance int
	// ProminenceRatio scales the filtered signal's standard deviation to
	// obtain the minimum peak prominence, making the detector adaptive to
	// each recording's amplitude.
	ProminenceRatio float64
}

// DefaultDetectorParams returns the bench-tuned detection parameters.
func DefaultDetectorParams() DetectorParams {
	return DetectorParams{
		CutoffHz:        2.0,
		MinHeight:       0.00009,
		MinDistance:     80,
		ProminenceRatio: 0.5,
	}
}

// Detection is the output of breath detection: the timestamps of accepted
// peaks, the filtered signal they were found on (kept for diagnostic
// display), and the inferred sampling rate.
type Detection struct {
	PeakTimes  []float64
	Filtered   []float64
	SampleRate float64
}

// DetectBreaths conditions the flow series with a lowpass filter tuned to
// the inferred sampling rate and locates breath peaks subject to the
// height, spacing, and prominence constraints in p.
//
// A series with fewer than 2 samples, or one whose time axis yields no
// finite sampling rate, fails with ErrDegenerateSeries.
func DetectBreaths(series []Sample, p DetectorParams) (Detection, error) {
	timeAxis := times(series)

	rate, err := InferSampleRate(timeAxis)
	if err != nil {
		return Detection{}, err
	}

	filtered, err := Lowpass(rates(series), p.CutoffHz, rate)
	if err != nil {
		return Detection{}, fmt.Errorf("filter design failed at %g Hz sampling: %w", rate, err)
	}

	prominence := p.ProminenceRatio * stat.StdDev(filtered, nil)
	peaks := findPeaks(filtered, p.MinHeight, p.MinDistance, prominence)

	peakTimes := make([]float64, len(peaks))
	for i, idx := range peaks {
		peakTimes[i] = timeAxis[idx]
	}

	return Detection{
		PeakTimes:  peakTimes,
		Filtered:   filtered,
		SampleRate: rate,
	}, nil
}

// findPeaks locates indices of local maxima in x that clear the minimum
// height, are at least distance samples apart, and rise at least
// minProminence above their surrounding baseline. Conditions are applied in
// that order; distance pruning keeps the taller of two close peaks.
func findPeaks(x []float64, minHeight float64, distance int, minProminence float64) []int {
	peaks := localMaxima(x)

	// Height condition
	kept := peaks[:0]
	for _, p := range peaks {
		if x[p] >= minHeight {
			kept = append(kept, p)
		}
	}
	peaks = kept

	if distance > 1 {
		peaks = selectByDistance(x, peaks, distance)
	}

	if minProminence > 0 {
		kept = peaks[:0]
		for _, p := range peaks {
			if prominence(x, p) >= minProminence {
				kept = append(kept, p)
			}
		}
		peaks = kept
	}

	return peaks
}

// localMaxima returns the indices of strict local maxima. A plateau of
// equal values flanked by lower neighbours yields a single peak at the
// plateau midpoint. The first and last samples can never be maxima.
func localMaxima(x []float64) []int {
	var peaks []int
	i := 1
	last := len(x) - 1
	for i < last {
		if x[i-1] < x[i] {
			ahead := i + 1
			for ahead < last && x[ahead] == x[i] {
				ahead++
			}
			if x[ahead] < x[i] {
				peaks = append(peaks, (i+ahead-1)/2)
				i = ahead
			}
		}
		i++
	}
	return peaks
}

// selectByDistance removes peaks closer than distance samples to a higher
// peak. Peaks are visited in descending height order so the tallest of any
// crowded cluster survives.
func selectByDistance(x []float64, peaks []int, distance int) []int {
	keep := make([]bool, len(peaks))
	for i := range keep {
		keep[i] = true
	}

	order := make([]int, len(peaks))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return x[peaks[order[a]]] > x[peaks[order[b]]]
	})

	for _, j := range order {
		if !keep[j] {
			continue
		}
		for k := j - 1; k >= 0 && peaks[j]-peaks[k] < distance; k-- {
			keep[k] = false
		}
		for k := j + 1; k < len(peaks) && peaks[k]-peaks[j] < distance; k++ {
			keep[k] = false
		}
	}

	out := make([]int, 0, len(peaks))
	for i, p := range peaks {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

// prominence measures how far the peak at index p rises above the lowest
// contour line connecting it to higher terrain. The search extends in each
// direction until a sample higher than the peak or the series edge, and the
// prominence is the peak height minus the higher of the two valley minima.
func prominence(x []float64, p int) float64 {
	leftMin := x[p]
	for i := p - 1; i >= 0 && x[i] <= x[p]; i-- {
		if x[i] < leftMin {
			leftMin = x[i]
		}
	}

	rightMin := x[p]
	for i := p + 1; i < len(x) && x[i] <= x[p]; i++ {
		if x[i] < rightMin {
			rightMin = x[i]
		}
	}

	base := leftMin
	if rightMin > base {
		base = rightMin
	}
	return x[p] - base
}

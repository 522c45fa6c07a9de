package breath

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

// ErrDegenerateSeries reports a flow series too short or too malformed for
// the sampling rate to be inferred. The breath detector fails the run on
// this rather than producing a misleading result.
var ErrDegenerateSeries = errors.New("breath: series too short or time axis degenerate")

// InferSampleRate estimates the acquisition rate in Hz as the reciprocal of
// the mean spacing between consecutive timestamps. Deriving the rate from
// the recording itself makes the lowpass filter self-tuning to whatever
// rate the source hardware used.
func InferSampleRate(timeAxis []float64) (float64, error) {
	if len(timeAxis) < 2 {
		return 0, ErrDegenerateSeries
	}

	diffs := make([]float64, len(timeAxis)-1)
	for i := 1; i < len(timeAxis); i++ {
		diffs[i-1] = timeAxis[i] - timeAxis[i-1]
	}

	meanDiff := stat.Mean(diffs, nil)
	rate := 1.0 / meanDiff
	if math.IsInf(rate, 0) || math.IsNaN(rate) || rate <= 0 {
		return 0, ErrDegenerateSeries
	}
	return rate, nil
}

// biquad is a single second-order IIR filter section with a0 normalised
// to 1.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

// butterworthLowpass designs a 2nd-order Butterworth lowpass section via the
// bilinear transform with frequency prewarping. The coefficients match a
// standard digital Butterworth design (scipy's order-2 SOS output) to
// float64 precision.
func butterworthLowpass(cutoffHz, sampleRate float64) biquad {
	k := math.Tan(math.Pi * cutoffHz / sampleRate)
	norm := 1 / (1 + math.Sqrt2*k + k*k)
	return biquad{
		b0: k * k * norm,
		b1: 2 * k * k * norm,
		b2: k * k * norm,
		a1: 2 * (k*k - 1) * norm,
		a2: (1 - math.Sqrt2*k + k*k) * norm,
	}
}

// apply runs the filter over x using the direct-form-II transposed
// recurrence with zero initial state, returning a new slice.
func (f biquad) apply(x []float64) []float64 {
	y := make([]float64, len(x))
	var s1, s2 float64
	for i, xn := range x {
		yn := f.b0*xn + s1
		s1 = f.b1*xn - f.a1*yn + s2
		s2 = f.b2*xn - f.a2*yn
		y[i] = yn
	}
	return y
}

// Lowpass filters x with a 2nd-order Butterworth lowpass at cutoffHz.
// The cutoff must sit below the Nyquist frequency of sampleRate.
func Lowpass(x []float64, cutoffHz, sampleRate float64) ([]float64, error) {
	if cutoffHz <= 0 || cutoffHz >= sampleRate/2 {
		return nil, errors.New("breath: cutoff frequency must be positive and below Nyquist")
	}
	return butterworthLowpass(cutoffHz, sampleRate).apply(x), nil
}

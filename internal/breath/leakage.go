package breath

import (
	"log"

	"gonum.org/v1/gonum/integrate"
)

// Leakage integrates the unfiltered signed flow series over time with the
// trapezoidal rule and returns the net volume in litres. The net imbalance
// between inspired and expired air is attributed to mask leakage.
//
// A negative result indicates a measurement or sign-convention anomaly
// rather than a valid physical state; it is logged as a warning but
// returned unchanged, since the caller may still want the magnitude.
func Leakage(series []Sample, logger *log.Logger) float64 {
	if len(series) < 2 {
		return 0
	}

	liters := integrate.Trapezoidal(times(series), rates(series)) * 1000

	if liters < 0 {
		logger.Printf("WARNING: negative leakage detected (%.3f L)", liters)
	}
	return liters
}

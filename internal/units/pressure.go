// Package units converts raw CPAP sensor readings into physical quantities:
// ADC counts to pressure in pascals, and differential pressure to volumetric
// flow rate via the Venturi equation.
package units

// CmH2OToPa is the conversion factor from centimetres of water to pascals.
const CmH2OToPa = 98.0665

// Calibration maps raw ADC counts from a pressure tap onto centimetres of
// water. The span and endpoints are fixed per sensor batch; passing the
// calibration in explicitly (rather than reading package constants) keeps
// per-run analysis deterministic and allows recalibration without a rebuild.
type Calibration struct {
	SpanCmH2O float64 // full-scale pressure across the calibrated range
	ADCLow    float64 // ADC count at zero pressure
	ADCHigh   float64 // ADC count at full-scale pressure
}

// DefaultCalibration returns the calibration for the current sensor batch.
func DefaultCalibration() Calibration {
	return Calibration{
		SpanCmH2O: 25.4,
		ADCLow:    1638,
		ADCHigh:   14745,
	}
}

// PressurePa converts a raw ADC count to pressure in pascals.
//
// The mapping is linear and unclamped: readings outside the calibrated ADC
// range produce out-of-physical-range pressures rather than an error. The
// ingestion layer is responsible for rejecting non-finite values before they
// reach this conversion.
func (c Calibration) PressurePa(adc float64) float64 {
	cmH2O := (c.SpanCmH2O / (c.ADCHigh - c.ADCLow)) * (adc - c.ADCLow)
	return cmH2O * CmH2OToPa
}

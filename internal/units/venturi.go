package units

import (
	"errors"
	"math"
)

// MoistAirDensity is the density of saturated air in the breathing circuit
// in kg/m^3.
const MoistAirDensity = 1.199

// ErrNegativeRadicand reports that the upstream pressure was below the
// downstream pressure, which has no real solution in the Venturi equation.
// Callers decide whether to treat the sample as zero flow or abort.
var ErrNegativeRadicand = errors.New("venturi: upstream pressure below downstream pressure")

// TubeGeometry describes a Venturi tube by its two internal diameters in
// metres: D1 at the wide section and D2 at the constriction. D1 must be
// strictly larger than D2 for the flow equation to be meaningful.
type TubeGeometry struct {
	D1 float64
	D2 float64
}

// DefaultTubeGeometry returns the geometry of the patient-side Venturi tube
// (15 mm bore narrowing to 12 mm).
func DefaultTubeGeometry() TubeGeometry {
	return TubeGeometry{D1: 0.015, D2: 0.012}
}

// AreaUpstream returns the cross-sectional area of the wide section in m^2.
func (g TubeGeometry) AreaUpstream() float64 {
	return math.Pi * (g.D1 / 2) * (g.D1 / 2)
}

// AreaConstriction returns the cross-sectional area of the constriction in m^2.
func (g TubeGeometry) AreaConstriction() float64 {
	return math.Pi * (g.D2 / 2) * (g.D2 / 2)
}

// VenturiFlowRate computes the volumetric flow rate in m^3/s through the
// tube given upstream and constriction pressures in pascals and the gas
// density in kg/m^3:
//
//	Q = A1 * sqrt(2*(p1 - p2) / (rho * ((A1/A2)^2 - 1)))
//
// The result is always non-negative; direction is applied by the caller.
// Returns ErrNegativeRadicand when pUpstream < pDownstream.
func VenturiFlowRate(g TubeGeometry, pUpstreamPa, pDownstreamPa, rho float64) (float64, error) {
	if pUpstreamPa < pDownstreamPa {
		return 0, ErrNegativeRadicand
	}
	a1 := g.AreaUpstream()
	a2 := g.AreaConstriction()
	ratio := a1 / a2
	numerator := 2 * (pUpstreamPa - pDownstreamPa)
	denominator := rho * (ratio*ratio - 1)
	return a1 * math.Sqrt(numerator/denominator), nil
}

package physics

import "math"

// Unit conversions.
const (
	MPHToMS   = 0.44704
	FtToM     = 0.3048
	MToYards  = 1.0936133
	MToFt     = 3.280839895
	RPMToRadS = 2 * math.Pi / 60
)

// Ball and air constants. The ball values are the USGA-conforming
// 1.68 in / 1.62 oz ball.
const (
	BallMassKg     = 0.04593
	BallDiameterM  = 0.04267
	BallRadiusM    = BallDiameterM / 2
	BallAreaM2     = math.Pi * BallRadiusM * BallRadiusM
	GravityMS2     = 9.80665
	AirViscosity   = 1.8e-5 // dynamic viscosity of air, Pa·s
	DryAirGasConst = 287.058
	VaporGasConst  = 461.495

	// StandardPressureInHg is mean sea-level pressure.
	StandardPressureInHg = 29.92
)

type tableEntry struct {
	key   float64
	value float64
}

// dragTable maps Reynolds number / 1e5 to drag coefficient. Wind-tunnel
// data for a dimpled ball: the drag crisis sits well below smooth-sphere
// Reynolds numbers and Cd flattens out in the supercritical regime.
var dragTable = []tableEntry{
	{0.4, 0.3300},
	{0.6, 0.3000},
	{0.8, 0.2600},
	{1.0, 0.2450},
	{1.2, 0.2400},
	{1.4, 0.2350},
	{1.6, 0.2300},
	{1.8, 0.2275},
	{2.0, 0.2250},
}

// supercriticalDrag applies at and above normalized Reynolds 2.0.
const supercriticalDrag = 0.2250

// liftTable maps spin factor ωr/V to lift coefficient.
var liftTable = []tableEntry{
	{0.00, 0.000},
	{0.04, 0.080},
	{0.08, 0.145},
	{0.12, 0.195},
	{0.16, 0.235},
	{0.20, 0.270},
	{0.30, 0.330},
	{0.40, 0.380},
	{0.50, 0.420},
}

// maxLift clamps lift above the top table entry.
const maxLift = 0.420

// interpolate does piecewise-linear interpolation over a table sorted by
// key, clamping to the end values outside the covered range.
func interpolate(table []tableEntry, key float64) float64 {
	if key <= table[0].key {
		return table[0].value
	}
	last := table[len(table)-1]
	if key >= last.key {
		return last.value
	}
	for i := 1; i < len(table); i++ {
		if key <= table[i].key {
			lo, hi := table[i-1], table[i]
			frac := (key - lo.key) / (hi.key - lo.key)
			return lo.value + frac*(hi.value-lo.value)
		}
	}
	return last.value
}

package physics

import "math"

// Aerodynamic primitives. Every function here is stateless and
// referentially transparent; the simulator calls them once per
// integration step and tests exercise them in isolation.

// AirDensity returns air density in kg/m³ for the given temperature
// (°F), elevation (ft), and relative humidity (%), at standard
// sea-level pressure.
func AirDensity(tempF, elevationFt, humidityPct float64) float64 {
	return AirDensityAtPressure(tempF, elevationFt, humidityPct, StandardPressureInHg)
}

// AirDensityAtPressure is AirDensity with an explicit sea-level
// pressure in inches of mercury. The station pressure is derived with
// the barometric formula, the saturation vapor pressure with the
// Magnus formula, and the result treats moist air as an ideal mixture
// of dry air and water vapor.
func AirDensityAtPressure(tempF, elevationFt, humidityPct, pressureInHg float64) float64 {
	tempC := (tempF - 32) * 5 / 9
	tempK := tempC + 273.15
	if tempK <= 0 {
		return 0
	}

	seaLevelPa := pressureInHg * 3386.389
	elevationM := elevationFt * FtToM
	stationPa := seaLevelPa * math.Pow(1-2.25577e-5*elevationM, 5.25588)

	// Magnus formula, hPa -> Pa.
	saturationPa := 610.94 * math.Exp(17.625*tempC/(tempC+243.04))
	vaporPa := clamp(humidityPct, 0, 100) / 100 * saturationPa
	if vaporPa > stationPa {
		vaporPa = stationPa
	}
	dryPa := stationPa - vaporPa

	return dryPa/(DryAirGasConst*tempK) + vaporPa/(VaporGasConst*tempK)
}

// Reynolds returns the Reynolds number for a ball moving at the given
// speed (m/s) through air of the given density.
func Reynolds(velocityMS, airDensity float64) float64 {
	return airDensity * velocityMS * BallDiameterM / AirViscosity
}

// SpinFactor returns ωr/V, the dimensionless ratio governing lift.
// Near-zero velocities return 0 rather than blowing up the division.
func SpinFactor(spinRPM, velocityMS float64) float64 {
	if velocityMS < 1e-6 {
		return 0
	}
	return spinRPM * RPMToRadS * BallRadiusM / velocityMS
}

// DragCoefficient interpolates the empirical drag table by normalized
// Reynolds number (Re/1e5). Below the table it clamps to the first
// entry; at and above 2.0 the flow is supercritical and Cd is constant.
func DragCoefficient(reynolds float64) float64 {
	normalized := reynolds / 1e5
	if normalized >= 2.0 {
		return supercriticalDrag
	}
	return interpolate(dragTable, normalized)
}

// LiftCoefficient interpolates the empirical lift table by spin
// factor. Non-positive spin factors produce no lift; values above the
// table clamp to the maximum.
func LiftCoefficient(spinFactor float64) float64 {
	if spinFactor <= 0 {
		return 0
	}
	if spinFactor >= liftTable[len(liftTable)-1].key {
		return maxLift
	}
	return interpolate(liftTable, spinFactor)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

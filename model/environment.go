package model

// Surface selects the ground model applied after landing. It only
// affects bounce and roll, never the airborne phase.
type Surface int

const (
	SurfaceFairway Surface = iota
	SurfaceRough
	SurfaceGreen
)

func (s Surface) String() string {
	switch s {
	case SurfaceFairway:
		return "fairway"
	case SurfaceRough:
		return "rough"
	case SurfaceGreen:
		return "green"
	default:
		return "unknown"
	}
}

// EnvironmentalConditions describe the playing environment for one
// simulation request. They are passed explicitly per call and never
// retained, so identical inputs always reproduce identical flights.
//
// WindDirectionDeg is relative to the target line: 0 is a pure
// headwind, 90 blows left-to-right.
type EnvironmentalConditions struct {
	TemperatureF     float64
	ElevationFt      float64
	HumidityPct      float64
	WindSpeedMPH     float64
	WindDirectionDeg float64
}

// StandardConditions is 70°F at sea level, 50% humidity, calm air.
func StandardConditions() EnvironmentalConditions {
	return EnvironmentalConditions{
		TemperatureF: 70,
		HumidityPct:  50,
	}
}

package model

// FlightSample is one integration sample of the airborne phase.
// X is downrange toward the target, Y is height, Z is lateral
// (+ right of the target line). All metres, time in seconds.
type FlightSample struct {
	T       float64
	X, Y, Z float64
}

// TrajectoryResult is the outcome of simulating one accepted shot.
// Distances are in yards and heights in feet, matching what the
// consuming layer displays. The simulator keeps no reference to a
// returned result.
type TrajectoryResult struct {
	CarryYards   float64
	RollYards    float64
	TotalYards   float64 // CarryYards + RollYards
	ApexFt       float64
	OfflineYards float64 // + right of the target line, at rest
	FlightTimeS  float64

	// FlightPath is the sampled airborne polyline, decimated for
	// rendering. Nil when the caller asked for distances only.
	FlightPath []FlightSample
}

package physics

import (
	"math"

	"github.com/openlaunch/launchmon/model"
)

// surfaceParams tune the bounce/roll model. retention is the fraction
// of horizontal speed surviving impact on a flat descent; friction is
// the rolling deceleration coefficient.
type surfaceParams struct {
	retention float64
	friction  float64
}

var surfaces = map[model.Surface]surfaceParams{
	model.SurfaceFairway: {retention: 0.62, friction: 0.28},
	model.SurfaceRough:   {retention: 0.30, friction: 0.55},
	model.SurfaceGreen:   {retention: 0.45, friction: 0.40},
}

// Simulator integrates ball flight with a fixed timestep. It holds
// only configuration; Simulate is safe to call concurrently for
// independent shots.
type Simulator struct {
	// TimeStep is the integration step in seconds.
	TimeStep float64
	// MaxFlightTime bounds the airborne phase; together with TimeStep
	// it caps the iteration count so degenerate inputs cannot spin.
	MaxFlightTime float64
	// RecordPath, when set, attaches a decimated flight polyline to
	// results (one sample per PathSampleEvery seconds).
	RecordPath      bool
	PathSampleEvery float64
}

// NewSimulator returns a simulator with the tuned default step. The
// coefficient tables were calibrated against this semi-implicit Euler
// scheme at 1 ms.
func NewSimulator() *Simulator {
	return &Simulator{
		TimeStep:        0.001,
		MaxFlightTime:   20,
		PathSampleEvery: 0.02,
	}
}

// Simulate computes the trajectory of one shot under the given
// conditions. It never returns NaN or infinite values: degenerate
// inputs yield a near-zero result instead.
//
// Offline distance keeps accruing through the roll phase: the ball
// rolls along the horizontal direction of its landing velocity.
func (s *Simulator) Simulate(shot model.ShotTelemetry, env model.EnvironmentalConditions, surface model.Surface) model.TrajectoryResult {
	dt := s.TimeStep
	if dt <= 0 {
		dt = 0.001
	}
	maxT := s.MaxFlightTime
	if maxT <= 0 {
		maxT = 20
	}
	maxSteps := int(maxT/dt) + 1

	speed0 := shot.BallSpeedMPH * MPHToMS
	if speed0 < 0.01 || math.IsNaN(speed0) || math.IsInf(speed0, 0) {
		return model.TrajectoryResult{}
	}

	launch := shot.LaunchDeg * math.Pi / 180
	direction := shot.DirectionDeg * math.Pi / 180
	vel := Vec3{
		X: speed0 * math.Cos(launch) * math.Cos(direction),
		Y: speed0 * math.Sin(launch),
		Z: speed0 * math.Cos(launch) * math.Sin(direction),
	}

	// Backspin spins about +Z (lift up for forward flight), positive
	// sidespin about -Y (curves the ball right).
	spin := Vec3{
		Y: -shot.SideSpinRPM * RPMToRadS,
		Z: shot.BackSpinRPM * RPMToRadS,
	}
	spinRPM := spin.Norm() / RPMToRadS

	windDir := env.WindDirectionDeg * math.Pi / 180
	wind := Vec3{
		X: -env.WindSpeedMPH * MPHToMS * math.Cos(windDir),
		Z: env.WindSpeedMPH * MPHToMS * math.Sin(windDir),
	}

	rho := AirDensity(env.TemperatureF, env.ElevationFt, env.HumidityPct)
	q := 0.5 * rho * BallAreaM2 / BallMassKg // accel = q * C * v²
	gravity := Vec3{Y: -GravityMS2}

	var (
		pos      Vec3
		apex     float64
		elapsed  float64
		path     []model.FlightSample
		nextSamp float64
		prevPos  Vec3
	)
	if s.RecordPath {
		path = append(path, model.FlightSample{})
	}

	for step := 0; step < maxSteps; step++ {
		rel := vel.Sub(wind)
		relSpeed := rel.Norm()

		accel := gravity
		if relSpeed > 1e-6 {
			re := Reynolds(relSpeed, rho)
			cd := DragCoefficient(re)
			cl := LiftCoefficient(SpinFactor(spinRPM, relSpeed))

			drag := rel.Scale(-q * cd * relSpeed)
			accel = accel.Add(drag)

			liftDir := spin.Cross(rel).Normalized()
			if cl > 0 {
				accel = accel.Add(liftDir.Scale(q * cl * relSpeed * relSpeed))
			}
		}

		vel = vel.Add(accel.Scale(dt))
		prevPos = pos
		pos = pos.Add(vel.Scale(dt))
		elapsed += dt

		if pos.Y > apex {
			apex = pos.Y
		}
		if s.RecordPath && elapsed >= nextSamp {
			path = append(path, model.FlightSample{T: elapsed, X: pos.X, Y: pos.Y, Z: pos.Z})
			nextSamp += s.PathSampleEvery
		}

		if pos.Y <= 0 && vel.Y < 0 {
			break
		}
	}

	// Interpolate the landing point back to ground level.
	landing := pos
	if pos.Y < 0 && prevPos.Y > pos.Y {
		frac := prevPos.Y / (prevPos.Y - pos.Y)
		landing = prevPos.Add(pos.Sub(prevPos).Scale(frac))
	}
	landing.Y = 0
	if s.RecordPath {
		path = append(path, model.FlightSample{T: elapsed, X: landing.X, Y: 0, Z: landing.Z})
	}

	carryM := landing.HorizontalNorm()

	// Ground interaction: the horizontal speed surviving impact decays
	// under rolling friction; steeper descents kill more of it.
	params := surfaces[surface]
	horizSpeed := vel.HorizontalNorm()
	rollM := 0.0
	rest := landing
	if horizSpeed > 1e-6 {
		descentDeg := math.Atan2(-vel.Y, horizSpeed) * 180 / math.Pi
		rollSpeed := horizSpeed * params.retention * clamp(1-descentDeg/90, 0, 1)
		rollM = rollSpeed * rollSpeed / (2 * params.friction * GravityMS2)
		rollDir := Vec3{X: vel.X, Z: vel.Z}.Normalized()
		rest = landing.Add(rollDir.Scale(rollM))
	}

	result := model.TrajectoryResult{
		CarryYards:   carryM * MToYards,
		RollYards:    rollM * MToYards,
		TotalYards:   (carryM + rollM) * MToYards,
		ApexFt:       apex * MToFt,
		OfflineYards: rest.Z * MToYards,
		FlightTimeS:  elapsed,
		FlightPath:   path,
	}
	return sanitize(result)
}

// sanitize clamps any non-finite field to zero so numeric failures
// never escape the simulator.
func sanitize(r model.TrajectoryResult) model.TrajectoryResult {
	fix := func(v *float64) {
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			*v = 0
		}
	}
	fix(&r.CarryYards)
	fix(&r.RollYards)
	fix(&r.TotalYards)
	fix(&r.ApexFt)
	fix(&r.OfflineYards)
	fix(&r.FlightTimeS)
	return r
}

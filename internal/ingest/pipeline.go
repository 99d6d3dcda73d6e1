// Package ingest validates decoded shot telemetry and runs accepted
// shots through the trajectory simulator.
package ingest

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/openlaunch/launchmon/internal/logging"
	"github.com/openlaunch/launchmon/internal/observability"
	"github.com/openlaunch/launchmon/internal/physics"
	"github.com/openlaunch/launchmon/model"
)

// Physical plausibility bounds. Readings outside these are sensor
// glitches, not golf shots.
const (
	MinBallSpeedMPH = 10.0
	MaxBallSpeedMPH = 220.0
	MinLaunchDeg    = -10.0
	MaxLaunchDeg    = 60.0
	MaxDirectionDeg = 45.0
	MaxSpinAxisDeg  = 90.0

	// Above this speed a near-zero spin reading means the cameras
	// lost the ball's dimple pattern.
	spinConsistencySpeedMPH = 80.0
	minConsistentSpinRPM    = 100.0
)

// Rejection is the typed "not a plausible shot" outcome. Reason is a
// short machine-friendly label; the error text is human-readable.
type Rejection struct {
	Reason string
	Detail string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("shot rejected (%s): %s", r.Reason, r.Detail)
}

func reject(reason, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// flightSimulator is what the pipeline needs from the physics layer.
type flightSimulator interface {
	Simulate(shot model.ShotTelemetry, env model.EnvironmentalConditions, surface model.Surface) model.TrajectoryResult
}

// Pipeline runs validation then simulation for each shot. It holds no
// per-shot state and is safe for concurrent use.
type Pipeline struct {
	sim     flightSimulator
	log     logging.Logger
	metrics *observability.Collector
	tracer  trace.Tracer
}

// New builds a pipeline. A nil simulator gets the default integrator;
// logger and metrics may be nil.
func New(sim *physics.Simulator, log logging.Logger, metrics *observability.Collector) *Pipeline {
	if sim == nil {
		sim = physics.NewSimulator()
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Pipeline{
		sim:     sim,
		log:     log,
		metrics: metrics,
		tracer:  otel.Tracer("launchmon/ingest"),
	}
}

// Process validates the shot and, if plausible, simulates its flight.
// The returned error is a *Rejection for every expected failure mode;
// simulation panics are converted, never propagated.
func (p *Pipeline) Process(ctx context.Context, shot model.ShotTelemetry, env model.EnvironmentalConditions, surface model.Surface) (model.TrajectoryResult, error) {
	ctx, span := p.tracer.Start(ctx, "ingest.Process",
		trace.WithAttributes(
			attribute.Int("shot.id", shot.ShotID),
			attribute.Float64("shot.speed_mph", shot.BallSpeedMPH),
			attribute.String("surface", surface.String()),
		))
	defer span.End()

	if rej := p.validate(shot); rej != nil {
		p.metrics.RecordRejection(rej.Reason)
		span.SetStatus(codes.Error, rej.Reason)
		p.log.Info(ctx, "shot rejected",
			logging.Int("shot_id", shot.ShotID),
			logging.String("reason", rej.Reason),
			logging.String("detail", rej.Detail),
		)
		return model.TrajectoryResult{}, rej
	}

	result, rej := p.simulate(shot, env, surface)
	if rej != nil {
		p.metrics.RecordRejection(rej.Reason)
		span.SetStatus(codes.Error, rej.Reason)
		p.log.Error(ctx, "simulation failed",
			logging.Int("shot_id", shot.ShotID),
			logging.String("detail", rej.Detail),
		)
		return model.TrajectoryResult{}, rej
	}

	span.SetAttributes(
		attribute.Float64("result.carry_yards", result.CarryYards),
		attribute.Float64("result.total_yards", result.TotalYards),
	)
	p.log.Debug(ctx, "shot simulated",
		logging.Int("shot_id", shot.ShotID),
		logging.Float("carry_yards", result.CarryYards),
		logging.Float("total_yards", result.TotalYards),
		logging.Float("apex_ft", result.ApexFt),
	)
	return result, nil
}

// validate applies the plausibility rules in a fixed order and stops at
// the first failure.
func (p *Pipeline) validate(shot model.ShotTelemetry) *Rejection {
	switch {
	case shot.BallSpeedMPH < MinBallSpeedMPH:
		return reject("speed_too_low",
			"ball speed %.1f mph below minimum %.0f mph", shot.BallSpeedMPH, MinBallSpeedMPH)
	case shot.BallSpeedMPH > MaxBallSpeedMPH:
		return reject("speed_too_high",
			"ball speed %.1f mph above maximum %.0f mph", shot.BallSpeedMPH, MaxBallSpeedMPH)
	case shot.LaunchDeg < MinLaunchDeg || shot.LaunchDeg > MaxLaunchDeg:
		return reject("launch_out_of_range",
			"launch angle %.1f deg outside %.0f to %.0f deg", shot.LaunchDeg, MinLaunchDeg, MaxLaunchDeg)
	case shot.DirectionDeg < -MaxDirectionDeg || shot.DirectionDeg > MaxDirectionDeg:
		return reject("direction_out_of_range",
			"direction %.1f deg outside ±%.0f deg", shot.DirectionDeg, MaxDirectionDeg)
	case shot.BallSpeedMPH > spinConsistencySpeedMPH && shot.TotalSpinRPM < minConsistentSpinRPM:
		return reject("spin_implausible",
			"total spin %.0f rpm implausible at %.1f mph", shot.TotalSpinRPM, shot.BallSpeedMPH)
	case shot.SpinAxisDeg < -MaxSpinAxisDeg || shot.SpinAxisDeg > MaxSpinAxisDeg:
		return reject("spin_axis_out_of_range",
			"spin axis %.1f deg outside ±%.0f deg", shot.SpinAxisDeg, MaxSpinAxisDeg)
	}
	return nil
}

// simulate runs the integrator with a panic fence: a numeric blow-up
// in the physics becomes a rejection, never a crash.
func (p *Pipeline) simulate(shot model.ShotTelemetry, env model.EnvironmentalConditions, surface model.Surface) (result model.TrajectoryResult, rej *Rejection) {
	defer func() {
		if r := recover(); r != nil {
			result = model.TrajectoryResult{}
			rej = reject("simulation_failed", "simulation failed: %v", r)
		}
	}()

	start := time.Now()
	result = p.sim.Simulate(shot, env, surface)
	p.metrics.RecordSimulation(time.Since(start).Seconds())
	return result, nil
}

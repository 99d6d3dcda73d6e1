package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openlaunch/launchmon/internal/ingest"
	"github.com/openlaunch/launchmon/internal/logging"
	"github.com/openlaunch/launchmon/internal/observability"
	"github.com/openlaunch/launchmon/internal/relay"
	"github.com/openlaunch/launchmon/internal/session"
	"github.com/openlaunch/launchmon/model"
)

// runtime bundles everything one session run needs.
type runtime struct {
	log       logging.Logger
	collector *observability.Collector
	pipeline  *ingest.Pipeline
	gspro     *relay.GSProClient
	mqtt      *relay.MQTTPublisher
	env       model.EnvironmentalConditions
	surface   model.Surface

	metricsSrv  *http.Server
	stopTracing func(context.Context) error
}

func buildRuntime(ctx context.Context) (*runtime, error) {
	log := logging.NewFromEnv()

	surface, err := surfaceFromFlags()
	if err != nil {
		return nil, err
	}

	collector, err := observability.NewCollector(nil)
	if err != nil {
		return nil, fmt.Errorf("initialise metrics: %w", err)
	}

	stopTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return nil, fmt.Errorf("initialise tracing: %w", err)
	}

	rt := &runtime{
		log:         log,
		collector:   collector,
		pipeline:    ingest.New(nil, log, collector),
		env:         environmentFromFlags(),
		surface:     surface,
		stopTracing: stopTracing,
	}

	if flagMetricsAddr != "" {
		rt.metricsSrv = serveMetrics(flagMetricsAddr, collector, log)
	}

	if flagGSProAddr != "" {
		rt.gspro = relay.NewGSProClient(relay.GSProConfig{Address: flagGSProAddr, Logger: log})
		if err := rt.gspro.Connect(ctx); err != nil {
			rt.shutdown(ctx)
			return nil, err
		}
		go rt.gspro.RunHeartbeats(ctx, 2*time.Second)
	}

	if flagMQTTBroker != "" {
		rt.mqtt = relay.NewMQTTPublisher(relay.MQTTConfig{
			BrokerURL:   flagMQTTBroker,
			TopicPrefix: flagMQTTTopic,
			Logger:      log,
		})
		if err := rt.mqtt.Connect(ctx); err != nil {
			rt.shutdown(ctx)
			return nil, err
		}
	}

	return rt, nil
}

func (rt *runtime) shutdown(ctx context.Context) {
	if rt.gspro != nil {
		rt.gspro.Close()
	}
	if rt.mqtt != nil {
		rt.mqtt.Close()
	}
	if rt.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		rt.metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}
	observability.ShutdownWithTimeout(ctx, rt.stopTracing, rt.log)
}

// handleShot runs the pipeline and fans the outcome out to stdout and
// the configured relays.
func (rt *runtime) handleShot(ctx context.Context, shot model.ShotTelemetry) {
	result, err := rt.pipeline.Process(ctx, shot, rt.env, rt.surface)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return
	}
	printResult(shot, result)

	if rt.gspro != nil {
		if _, err := rt.gspro.SendShot(shot); err != nil {
			rt.log.Warn(ctx, "gspro relay failed", logging.Err(err))
		}
	}
	if rt.mqtt != nil {
		if err := rt.mqtt.PublishResult(shot, result); err != nil {
			rt.log.Warn(ctx, "mqtt publish failed", logging.Err(err))
		}
	}
}

func (rt *runtime) handleStatus(ctx context.Context, status model.DeviceStatus) {
	rt.log.Info(ctx, "device status",
		logging.Any("ready", status.Ready),
		logging.Any("ball_detected", status.BallDetected),
		logging.Int("balls", status.BallCount),
	)
	if rt.gspro != nil {
		if err := rt.gspro.SendStatus(status); err != nil {
			rt.log.Warn(ctx, "gspro status relay failed", logging.Err(err))
		}
	}
	if rt.mqtt != nil {
		if err := rt.mqtt.PublishStatus(status); err != nil {
			rt.log.Warn(ctx, "mqtt status publish failed", logging.Err(err))
		}
	}
}

func runSession(parent context.Context, connector session.Connector, reconnect bool) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.shutdown(context.Background())

	sess := session.New(session.Config{
		Connector:     connector,
		Logger:        rt.log,
		Metrics:       rt.collector,
		AutoReconnect: reconnect,
	}, session.Callbacks{
		OnShot:   func(shot model.ShotTelemetry) { rt.handleShot(ctx, shot) },
		OnStatus: func(status model.DeviceStatus) { rt.handleStatus(ctx, status) },
		OnStateChanged: func(state model.ConnectionState) {
			rt.log.Info(ctx, "session state", logging.String("state", state.String()))
		},
		OnError: func(msg string) {
			rt.log.Error(ctx, "session error", logging.String("message", msg))
		},
	})
	defer sess.Close()

	if err := sess.Connect(ctx); err != nil {
		return err
	}
	rt.log.Info(ctx, "session started",
		logging.String("role", connector.Role().String()),
		logging.String("surface", rt.surface.String()),
	)

	<-ctx.Done()
	rt.log.Info(context.Background(), "shutting down")
	return nil
}

func runOneShot(parent context.Context, speed, launch, direction, backspin, sidespin float64) error {
	log := logging.NewFromEnv()

	surface, err := surfaceFromFlags()
	if err != nil {
		return err
	}

	totalSpin := math.Hypot(backspin, sidespin)
	shot := model.ShotTelemetry{
		ShotID:       1,
		TimestampMS:  time.Now().UnixMilli(),
		BallSpeedMPH: speed,
		LaunchDeg:    launch,
		DirectionDeg: direction,
		TotalSpinRPM: totalSpin,
		BackSpinRPM:  backspin,
		SideSpinRPM:  sidespin,
		SpinAxisDeg:  math.Atan2(sidespin, backspin) * 180 / math.Pi,
	}

	pipeline := ingest.New(nil, log, nil)
	result, err := pipeline.Process(parent, shot, environmentFromFlags(), surface)
	if err != nil {
		return err
	}
	printResult(shot, result)
	return nil
}

func printResult(shot model.ShotTelemetry, result model.TrajectoryResult) {
	out := struct {
		ShotID       int     `json:"shot_id"`
		CarryYards   float64 `json:"carry_yards"`
		RollYards    float64 `json:"roll_yards"`
		TotalYards   float64 `json:"total_yards"`
		ApexFt       float64 `json:"apex_ft"`
		OfflineYards float64 `json:"offline_yards"`
		FlightTimeS  float64 `json:"flight_time_s"`
	}{
		ShotID:       shot.ShotID,
		CarryYards:   round1(result.CarryYards),
		RollYards:    round1(result.RollYards),
		TotalYards:   round1(result.TotalYards),
		ApexFt:       round1(result.ApexFt),
		OfflineYards: round1(result.OfflineYards),
		FlightTimeS:  round1(result.FlightTimeS),
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal result: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func serveMetrics(addr string, collector *observability.Collector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()
	log.Info(context.Background(), "serving metrics", logging.String("addr", addr))
	return srv
}

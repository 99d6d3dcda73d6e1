package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/openlaunch/launchmon/internal/logging"
	"github.com/openlaunch/launchmon/model"
)

// MQTTConfig configures the broker publisher.
type MQTTConfig struct {
	BrokerURL   string // e.g. tcp://localhost:1883
	ClientID    string // default launchmon
	TopicPrefix string // default launchmon
	QoS         byte
	Logger      logging.Logger
}

// MQTTPublisher publishes shots, results, and device status as JSON to
// an MQTT broker.
type MQTTPublisher struct {
	cfg    MQTTConfig
	log    logging.Logger
	client mqtt.Client
}

// shotRecord is the published shape for one processed shot.
type shotRecord struct {
	ShotID      int     `json:"shot_id"`
	TimestampMS int64   `json:"timestamp_ms"`
	SpeedMPH    float64 `json:"speed_mph"`
	LaunchDeg   float64 `json:"launch_deg"`
	DirDeg      float64 `json:"direction_deg"`
	TotalSpin   float64 `json:"total_spin_rpm"`
	BackSpin    float64 `json:"back_spin_rpm"`
	SideSpin    float64 `json:"side_spin_rpm"`

	CarryYards   float64 `json:"carry_yards"`
	TotalYards   float64 `json:"total_yards"`
	RollYards    float64 `json:"roll_yards"`
	ApexFt       float64 `json:"apex_ft"`
	OfflineYards float64 `json:"offline_yards"`
	FlightTimeS  float64 `json:"flight_time_s"`
}

type statusRecord struct {
	Ready        bool `json:"ready"`
	BallDetected bool `json:"ball_detected"`
	BallCount    int  `json:"ball_count"`
}

// NewMQTTPublisher builds a publisher; no I/O happens until Connect.
func NewMQTTPublisher(cfg MQTTConfig) *MQTTPublisher {
	if cfg.ClientID == "" {
		cfg.ClientID = "launchmon"
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "launchmon"
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Noop()
	}
	return &MQTTPublisher{cfg: cfg, log: log}
}

// Connect dials the broker, retrying with exponential backoff until it
// succeeds or ctx is cancelled.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(p.cfg.BrokerURL).
		SetClientID(p.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)
	client := mqtt.NewClient(opts)

	connect := func() error {
		token := client.Connect()
		if !token.WaitTimeout(10 * time.Second) {
			return fmt.Errorf("connect to %s: timeout", p.cfg.BrokerURL)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("connect to %s: %w", p.cfg.BrokerURL, err)
		}
		return nil
	}
	policy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(time.Minute)), ctx)
	if err := backoff.Retry(connect, policy); err != nil {
		return err
	}

	p.client = client
	p.log.Info(ctx, "connected to mqtt broker", logging.String("broker", p.cfg.BrokerURL))
	return nil
}

// Close flushes and disconnects.
func (p *MQTTPublisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

// PublishResult publishes a processed shot with its computed flight.
func (p *MQTTPublisher) PublishResult(shot model.ShotTelemetry, result model.TrajectoryResult) error {
	return p.publish("shots", resultRecord(shot, result))
}

// PublishStatus publishes a device status change.
func (p *MQTTPublisher) PublishStatus(status model.DeviceStatus) error {
	return p.publish("status", statusRecord{
		Ready:        status.Ready,
		BallDetected: status.BallDetected,
		BallCount:    status.BallCount,
	})
}

func resultRecord(shot model.ShotTelemetry, result model.TrajectoryResult) shotRecord {
	return shotRecord{
		ShotID:       shot.ShotID,
		TimestampMS:  shot.TimestampMS,
		SpeedMPH:     shot.BallSpeedMPH,
		LaunchDeg:    shot.LaunchDeg,
		DirDeg:       shot.DirectionDeg,
		TotalSpin:    shot.TotalSpinRPM,
		BackSpin:     shot.BackSpinRPM,
		SideSpin:     shot.SideSpinRPM,
		CarryYards:   result.CarryYards,
		TotalYards:   result.TotalYards,
		RollYards:    result.RollYards,
		ApexFt:       result.ApexFt,
		OfflineYards: result.OfflineYards,
		FlightTimeS:  result.FlightTimeS,
	}
}

func (p *MQTTPublisher) publish(topic string, payload any) error {
	if p.client == nil {
		return fmt.Errorf("mqtt publisher not connected")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal mqtt payload: %w", err)
	}
	full := p.cfg.TopicPrefix + "/" + topic
	token := p.client.Publish(full, p.cfg.QoS, false, data)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", full)
	}
	return token.Error()
}

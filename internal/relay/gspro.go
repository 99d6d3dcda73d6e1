// Package relay forwards shots and device status to downstream
// consumers: a GSPro simulator over its Open Connect API, and an MQTT
// broker for anything else listening.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/openlaunch/launchmon/internal/logging"
	"github.com/openlaunch/launchmon/model"
)

// GSProDefaultPort is the Open Connect API v1 port.
const GSProDefaultPort = 921

// GSProResponse is the simulator's reply to a shot message. Heartbeats
// and status updates get no reply.
type GSProResponse struct {
	Code    int             `json:"Code"`
	Message string          `json:"Message"`
	Player  json.RawMessage `json:"Player,omitempty"`
}

type gsproBallData struct {
	Speed     float64 `json:"Speed"`
	SpinAxis  float64 `json:"SpinAxis"`
	TotalSpin float64 `json:"TotalSpin"`
	BackSpin  float64 `json:"BackSpin"`
	SideSpin  float64 `json:"SideSpin"`
	HLA       float64 `json:"HLA"`
	VLA       float64 `json:"VLA"`
}

type gsproClubData struct {
	Speed         float64 `json:"Speed"`
	AngleOfAttack float64 `json:"AngleOfAttack"`
	FaceToTarget  float64 `json:"FaceToTarget"`
	Path          float64 `json:"Path"`
	Loft          float64 `json:"Loft"`
}

type gsproShotOptions struct {
	ContainsBallData          bool `json:"ContainsBallData"`
	ContainsClubData          bool `json:"ContainsClubData"`
	LaunchMonitorIsReady      bool `json:"LaunchMonitorIsReady"`
	LaunchMonitorBallDetected bool `json:"LaunchMonitorBallDetected"`
	IsHeartBeat               bool `json:"IsHeartBeat"`
}

type gsproShotMessage struct {
	DeviceID        string           `json:"DeviceID"`
	Units           string           `json:"Units"`
	ShotNumber      int              `json:"ShotNumber"`
	APIVersion      string           `json:"APIversion"`
	BallData        *gsproBallData   `json:"BallData,omitempty"`
	ClubData        *gsproClubData   `json:"ClubData,omitempty"`
	ShotDataOptions gsproShotOptions `json:"ShotDataOptions"`
}

// GSProConfig configures the Open Connect client.
type GSProConfig struct {
	Address         string        // host:port, default 127.0.0.1:921
	DialTimeout     time.Duration // default 5s
	ResponseTimeout time.Duration // default 5s
	Logger          logging.Logger
}

// GSProClient relays shots to a GSPro instance. A circuit breaker sits
// in front of shot sends so a dead simulator degrades to fast local
// failures instead of per-shot timeouts.
type GSProClient struct {
	cfg     GSProConfig
	log     logging.Logger
	breaker *gobreaker.CircuitBreaker

	mu         sync.Mutex
	conn       net.Conn
	shotNumber int
	lastReady  bool
	lastBall   bool
}

// NewGSProClient builds a client; no I/O happens until Connect.
func NewGSProClient(cfg GSProConfig) *GSProClient {
	if cfg.Address == "" {
		cfg.Address = fmt.Sprintf("127.0.0.1:%d", GSProDefaultPort)
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = 5 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Noop()
	}

	c := &GSProClient{cfg: cfg, log: log, lastReady: true}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "gspro",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn(context.Background(), "gspro breaker state changed",
				logging.String("from", from.String()),
				logging.String("to", to.String()),
			)
		},
	})
	return c
}

// Connect dials the simulator and registers with an initial heartbeat.
func (c *GSProClient) Connect(ctx context.Context) error {
	d := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.cfg.Address)
	if err != nil {
		return fmt.Errorf("dial gspro %s: %w", c.cfg.Address, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.mu.Unlock()

	c.log.Info(ctx, "connected to gspro", logging.String("address", c.cfg.Address))
	return c.SendHeartbeat()
}

// Close drops the connection. Safe to call repeatedly.
func (c *GSProClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// SendShot forwards one shot and waits for the simulator's reply.
func (c *GSProClient) SendShot(shot model.ShotTelemetry) (*GSProResponse, error) {
	out, err := c.breaker.Execute(func() (any, error) {
		c.mu.Lock()
		c.shotNumber++
		msg := gsproShotMessage{
			DeviceID:   "GC2",
			Units:      "Yards",
			ShotNumber: c.shotNumber,
			APIVersion: "1",
			BallData: &gsproBallData{
				Speed:     shot.BallSpeedMPH,
				SpinAxis:  shot.SpinAxisDeg,
				TotalSpin: shot.TotalSpinRPM,
				BackSpin:  shot.BackSpinRPM,
				SideSpin:  shot.SideSpinRPM,
				HLA:       shot.DirectionDeg,
				VLA:       shot.LaunchDeg,
			},
			ShotDataOptions: gsproShotOptions{
				ContainsBallData:          true,
				LaunchMonitorIsReady:      c.lastReady,
				LaunchMonitorBallDetected: c.lastBall,
			},
		}
		if shot.HasClubData() {
			msg.ShotDataOptions.ContainsClubData = true
			msg.ClubData = &gsproClubData{
				Speed:         shot.Club.SpeedMPH,
				AngleOfAttack: shot.Club.AttackDeg,
				FaceToTarget:  shot.Club.FaceToTarget,
				Path:          shot.Club.PathDeg,
				Loft:          shot.Club.DynamicLoft,
			}
		}
		c.mu.Unlock()
		return c.send(msg, true)
	})
	if err != nil {
		return nil, err
	}
	return out.(*GSProResponse), nil
}

// SendStatus tells the simulator whether the monitor is ready and a
// ball is teed. No reply is expected.
func (c *GSProClient) SendStatus(status model.DeviceStatus) error {
	c.mu.Lock()
	c.lastReady = status.Ready
	c.lastBall = status.BallDetected
	msg := gsproShotMessage{
		DeviceID:   "GC2",
		Units:      "Yards",
		ShotNumber: c.shotNumber,
		APIVersion: "1",
		ShotDataOptions: gsproShotOptions{
			LaunchMonitorIsReady:      status.Ready,
			LaunchMonitorBallDetected: status.BallDetected,
		},
	}
	c.mu.Unlock()
	_, err := c.send(msg, false)
	return err
}

// SendHeartbeat keeps the registration alive. No reply is expected.
func (c *GSProClient) SendHeartbeat() error {
	c.mu.Lock()
	msg := gsproShotMessage{
		DeviceID:   "GC2",
		Units:      "Yards",
		ShotNumber: c.shotNumber,
		APIVersion: "1",
		ShotDataOptions: gsproShotOptions{
			LaunchMonitorIsReady: c.lastReady,
			IsHeartBeat:          true,
		},
	}
	c.mu.Unlock()
	_, err := c.send(msg, false)
	return err
}

// RunHeartbeats sends a heartbeat every interval until ctx is done.
func (c *GSProClient) RunHeartbeats(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.SendHeartbeat(); err != nil {
				c.log.Debug(ctx, "heartbeat failed", logging.Err(err))
			}
		}
	}
}

func (c *GSProClient) send(msg gsproShotMessage, expectResponse bool) (*GSProResponse, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, errors.New("not connected to gspro")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal gspro message: %w", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("write to gspro: %w", err)
	}
	if !expectResponse {
		return nil, nil
	}

	conn.SetReadDeadline(time.Now().Add(c.cfg.ResponseTimeout))
	defer conn.SetReadDeadline(time.Time{})

	// Replies may arrive concatenated; decode only the first object.
	var resp GSProResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("read gspro response: %w", err)
	}
	return &resp, nil
}

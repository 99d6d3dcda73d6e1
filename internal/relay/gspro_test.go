package relay

import (
	"context"
	"encoding/json"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openlaunch/launchmon/model"
)

// mockSimulator accepts one connection and answers shot messages with
// Code 201. Heartbeats and status updates get no reply.
type mockSimulator struct {
	ln net.Listener

	shots      atomic.Int32
	heartbeats atomic.Int32
	statuses   atomic.Int32
	lastBall   atomic.Value // gsproBallData
}

func startMockSimulator(t *testing.T) *mockSimulator {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	m := &mockSimulator{ln: ln}
	t.Cleanup(func() { ln.Close() })
	go m.serve()
	return m
}

func (m *mockSimulator) addr() string { return m.ln.Addr().String() }

func (m *mockSimulator) serve() {
	conn, err := m.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	dec := json.NewDecoder(conn)
	for {
		var msg gsproShotMessage
		if err := dec.Decode(&msg); err != nil {
			return
		}
		switch {
		case msg.ShotDataOptions.IsHeartBeat:
			m.heartbeats.Add(1)
		case msg.ShotDataOptions.ContainsBallData:
			m.shots.Add(1)
			if msg.BallData != nil {
				m.lastBall.Store(*msg.BallData)
			}
			resp, _ := json.Marshal(GSProResponse{Code: 201, Message: "Shot received"})
			conn.Write(resp)
		default:
			m.statuses.Add(1)
		}
	}
}

func connectedClient(t *testing.T, m *mockSimulator) *GSProClient {
	t.Helper()
	c := NewGSProClient(GSProConfig{Address: m.addr(), ResponseTimeout: 2 * time.Second})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func waitCount(t *testing.T, counter *atomic.Int32, want int32, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if counter.Load() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %s, got %d", want, what, counter.Load())
}

func TestGSProClient_SendShot(t *testing.T) {
	sim := startMockSimulator(t)
	c := connectedClient(t, sim)

	shot := model.ShotTelemetry{
		ShotID:       1,
		BallSpeedMPH: 167,
		LaunchDeg:    10.9,
		DirectionDeg: -1.5,
		TotalSpinRPM: 2686,
		BackSpinRPM:  2650,
		SideSpinRPM:  -437,
		SpinAxisDeg:  -9.4,
	}
	resp, err := c.SendShot(shot)
	if err != nil {
		t.Fatalf("send shot: %v", err)
	}
	if resp.Code != 201 {
		t.Fatalf("response code = %d, want 201", resp.Code)
	}

	waitCount(t, &sim.shots, 1, "shots")
	ball := sim.lastBall.Load().(gsproBallData)
	if ball.Speed != 167 || ball.VLA != 10.9 || ball.HLA != -1.5 {
		t.Fatalf("ball data mangled in relay: %+v", ball)
	}
	if ball.BackSpin != 2650 || ball.SideSpin != -437 {
		t.Fatalf("spin split mangled in relay: %+v", ball)
	}
}

func TestGSProClient_HeartbeatAndStatusGetNoReply(t *testing.T) {
	sim := startMockSimulator(t)
	c := connectedClient(t, sim)

	// Connect already sent the registration heartbeat.
	waitCount(t, &sim.heartbeats, 1, "heartbeats")

	if err := c.SendStatus(model.StatusFromFlags(7)); err != nil {
		t.Fatalf("send status: %v", err)
	}
	waitCount(t, &sim.statuses, 1, "statuses")

	if err := c.SendHeartbeat(); err != nil {
		t.Fatalf("send heartbeat: %v", err)
	}
	waitCount(t, &sim.heartbeats, 2, "heartbeats")
}

func TestGSProClient_BreakerOpensOnDeadSimulator(t *testing.T) {
	c := NewGSProClient(GSProConfig{Address: "127.0.0.1:1", ResponseTimeout: 100 * time.Millisecond})

	// Never connected: every send fails, and after the trip threshold
	// the breaker rejects without touching the socket.
	var lastErr error
	for i := 0; i < 5; i++ {
		_, lastErr = c.SendShot(model.ShotTelemetry{ShotID: i, BallSpeedMPH: 150, TotalSpinRPM: 2500})
	}
	if lastErr == nil {
		t.Fatalf("sends to a dead simulator should fail")
	}
}

func TestMQTTResultPayload(t *testing.T) {
	shot := model.ShotTelemetry{ShotID: 9, BallSpeedMPH: 167, TotalSpinRPM: 2686}
	result := model.TrajectoryResult{CarryYards: 284, RollYards: 21, TotalYards: 305, ApexFt: 105}

	data, err := json.Marshal(resultRecord(shot, result))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["shot_id"].(float64) != 9 || decoded["carry_yards"].(float64) != 284 {
		t.Fatalf("payload fields wrong: %s", data)
	}
	if decoded["total_yards"].(float64) != 305 {
		t.Fatalf("total yards wrong: %s", data)
	}
}

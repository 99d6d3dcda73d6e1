package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/openlaunch/launchmon/internal/protocol"
	"github.com/openlaunch/launchmon/model"
)

// fakeConnector hands out a scripted sequence of transports; once the
// script is exhausted every Connect fails.
type fakeConnector struct {
	role Role

	mu         sync.Mutex
	dials      int
	transports []Transport
}

func (f *fakeConnector) Connect(ctx context.Context) (Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	if len(f.transports) == 0 {
		return nil, errors.New("dial refused")
	}
	t := f.transports[0]
	f.transports = f.transports[1:]
	return t, nil
}

func (f *fakeConnector) Role() Role   { return f.role }
func (f *fakeConnector) Close() error { return nil }

func (f *fakeConnector) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func recvShot(t *testing.T, ch <-chan model.ShotTelemetry) model.ShotTelemetry {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for shot")
		return model.ShotTelemetry{}
	}
}

func recvStatus(t *testing.T, ch <-chan model.DeviceStatus) model.DeviceStatus {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for status")
		return model.DeviceStatus{}
	}
}

func waitForState(t *testing.T, ch <-chan model.ConnectionState, want model.ConnectionState) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-ch:
			if st == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %v", want)
		}
	}
}

func testShot(id int) model.ShotTelemetry {
	return model.ShotTelemetry{
		ShotID:       id,
		TimestampMS:  1718000000123,
		BallSpeedMPH: 155,
		LaunchDeg:    12,
		DirectionDeg: 1,
		TotalSpinRPM: 2900,
		BackSpinRPM:  2850,
		SideSpinRPM:  300,
		SpinAxisDeg:  6,
	}
}

func TestSession_DeliversShotsAndStatuses(t *testing.T) {
	local, remote := net.Pipe()
	conn := &fakeConnector{role: RoleClient, transports: []Transport{local}}

	shots := make(chan model.ShotTelemetry, 8)
	statuses := make(chan model.DeviceStatus, 8)
	sess := New(Config{Connector: conn}, Callbacks{
		OnShot:   func(s model.ShotTelemetry) { shots <- s },
		OnStatus: func(s model.DeviceStatus) { statuses <- s },
	})
	defer sess.Close()

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	remote.Write(protocol.EncodeShot(testShot(7)))
	if got := recvShot(t, shots); got.ShotID != 7 {
		t.Fatalf("shot id = %d, want 7", got.ShotID)
	}

	remote.Write(protocol.EncodeStatus(model.StatusFromFlags(7)))
	if got := recvStatus(t, statuses); !got.Ready || !got.BallDetected {
		t.Fatalf("FLAGS=7 status should be ready with ball, got %+v", got)
	}

	// A repeated identical status must be suppressed; the next
	// delivery is the changed one.
	remote.Write(protocol.EncodeStatus(model.StatusFromFlags(7)))
	remote.Write(protocol.EncodeStatus(model.StatusFromFlags(1)))
	if got := recvStatus(t, statuses); got.RawFlags != 1 {
		t.Fatalf("duplicate status leaked through, got FLAGS=%d", got.RawFlags)
	}
}

func TestSession_StampsMissingTimestamp(t *testing.T) {
	local, remote := net.Pipe()
	conn := &fakeConnector{role: RoleClient, transports: []Transport{local}}

	shots := make(chan model.ShotTelemetry, 1)
	sess := New(Config{Connector: conn}, Callbacks{
		OnShot: func(s model.ShotTelemetry) { shots <- s },
	})
	defer sess.Close()

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	remote.Write([]byte("0H\nSHOT_ID=1\nSPEED_MPH=150\nELEVATION_DEG=12\nAZIMUTH_DEG=0\n" +
		"SPIN_RPM=3000\nBACK_RPM=3000\nSIDE_RPM=0\n\t"))

	if got := recvShot(t, shots); got.TimestampMS == 0 {
		t.Fatalf("arrival timestamp not stamped")
	}
}

func TestSession_MalformedMessageDoesNotStopStream(t *testing.T) {
	local, remote := net.Pipe()
	conn := &fakeConnector{role: RoleClient, transports: []Transport{local}}

	shots := make(chan model.ShotTelemetry, 1)
	sess := New(Config{Connector: conn}, Callbacks{
		OnShot: func(s model.ShotTelemetry) { shots <- s },
	})
	defer sess.Close()

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	// An early reading without the spin split fails decode and is
	// dropped; the complete shot behind it still comes through.
	remote.Write([]byte("0H\nSHOT_ID=3\nSPEED_MPH=160\nELEVATION_DEG=11\nAZIMUTH_DEG=1\nSPIN_RPM=2500\n\t"))
	remote.Write(protocol.EncodeShot(testShot(4)))

	if got := recvShot(t, shots); got.ShotID != 4 {
		t.Fatalf("shot id = %d, want 4", got.ShotID)
	}
}

func TestSession_ReconnectCeilingParksFailed(t *testing.T) {
	local, remote := net.Pipe()
	conn := &fakeConnector{role: RoleClient, transports: []Transport{local}}

	states := make(chan model.ConnectionState, 64)
	sess := New(Config{
		Connector:          conn,
		AutoReconnect:      true,
		ReconnectAttempts:  5,
		ReconnectBaseDelay: time.Millisecond,
	}, Callbacks{
		OnStateChanged: func(st model.ConnectionState) { states <- st },
	})
	defer sess.Close()

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitForState(t, states, model.StateConnected)

	remote.Close()
	waitForState(t, states, model.StateFailed)

	// Initial dial plus exactly five reconnect attempts.
	if got := conn.dialCount(); got != 6 {
		t.Fatalf("dial count = %d, want 6", got)
	}
	time.Sleep(20 * time.Millisecond)
	if got := conn.dialCount(); got != 6 {
		t.Fatalf("session kept dialing after the ceiling: %d", got)
	}
	if st := sess.State(); st != model.StateFailed {
		t.Fatalf("terminal state = %v, want failed", st)
	}
}

func TestSession_DeviceUnavailable(t *testing.T) {
	conn := &unavailableConnector{}
	states := make(chan model.ConnectionState, 8)
	sess := New(Config{Connector: conn}, Callbacks{
		OnStateChanged: func(st model.ConnectionState) { states <- st },
	})
	defer sess.Close()

	if err := sess.Connect(context.Background()); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("connect error = %v, want device unavailable", err)
	}
	waitForState(t, states, model.StateDeviceUnavailable)
}

type unavailableConnector struct{}

func (unavailableConnector) Connect(context.Context) (Transport, error) {
	return nil, fmt.Errorf("%w: no such device", ErrDeviceUnavailable)
}
func (unavailableConnector) Role() Role   { return RoleSerial }
func (unavailableConnector) Close() error { return nil }

func TestSession_CloseUnblocksIdleReadLoop(t *testing.T) {
	local, _ := net.Pipe()
	conn := &fakeConnector{role: RoleClient, transports: []Transport{local}}

	sess := New(Config{Connector: conn}, Callbacks{})
	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	done := make(chan struct{})
	go func() {
		sess.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("close did not return while the link was idle")
	}
	if st := sess.State(); st != model.StateDisconnected {
		t.Fatalf("state after close = %v, want disconnected", st)
	}
}

func TestSession_ConnectionChangedCallback(t *testing.T) {
	local, remote := net.Pipe()
	conn := &fakeConnector{role: RoleClient, transports: []Transport{local}}

	changes := make(chan bool, 8)
	sess := New(Config{Connector: conn}, Callbacks{
		OnConnectionChanged: func(connected bool) { changes <- connected },
	})
	defer sess.Close()

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	select {
	case connected := <-changes:
		if !connected {
			t.Fatalf("first connection change should report connected")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for connected callback")
	}

	remote.Close()
	select {
	case connected := <-changes:
		if connected {
			t.Fatalf("disconnect should report connected=false")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for disconnected callback")
	}
}

func TestTCPServer_SingleConnectionAndReaccept(t *testing.T) {
	srv := &TCPServer{Address: "127.0.0.1:0"}
	if err := srv.ensureListener(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := srv.Addr().String()

	shots := make(chan model.ShotTelemetry, 8)
	states := make(chan model.ConnectionState, 64)
	sess := New(Config{Connector: srv}, Callbacks{
		OnShot:         func(s model.ShotTelemetry) { shots <- s },
		OnStateChanged: func(st model.ConnectionState) { states <- st },
	})
	defer sess.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- sess.Connect(context.Background()) }()

	first, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer first.Close()
	if err := <-errCh; err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitForState(t, states, model.StateConnected)

	// A second simultaneous connection is rejected outright.
	second, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("second dial: %v", err)
	}
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := second.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("second connection should be closed, read err = %v", err)
	}
	second.Close()

	first.Write(protocol.EncodeShot(testShot(11)))
	if got := recvShot(t, shots); got.ShotID != 11 {
		t.Fatalf("shot id = %d, want 11", got.ShotID)
	}

	// After the sensor drops, the server goes back to accepting.
	first.Close()
	waitForState(t, states, model.StateConnecting)

	replacement, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("replacement dial: %v", err)
	}
	defer replacement.Close()
	waitForState(t, states, model.StateConnected)

	replacement.Write(protocol.EncodeShot(testShot(12)))
	if got := recvShot(t, shots); got.ShotID != 12 {
		t.Fatalf("shot id = %d, want 12", got.ShotID)
	}
}

func TestLinearBackOff(t *testing.T) {
	b := &linearBackOff{base: 10 * time.Millisecond}
	want := []time.Duration{10, 20, 30}
	for i, w := range want {
		if got := b.NextBackOff(); got != w*time.Millisecond {
			t.Fatalf("backoff %d = %v, want %v", i+1, got, w*time.Millisecond)
		}
	}
	b.Reset()
	if got := b.NextBackOff(); got != 10*time.Millisecond {
		t.Fatalf("reset backoff = %v, want 10ms", got)
	}
}

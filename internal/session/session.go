package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/openlaunch/launchmon/internal/logging"
	"github.com/openlaunch/launchmon/internal/observability"
	"github.com/openlaunch/launchmon/internal/protocol"
	"github.com/openlaunch/launchmon/model"
)

// ErrSessionClosed is returned by Connect after Close.
var ErrSessionClosed = errors.New("session closed")

const (
	defaultReconnectAttempts = 5
	defaultReconnectBase     = 1 * time.Second
	defaultReadBufferSize    = 4096
	defaultEventBuffer       = 64
)

// Config holds session construction parameters. Connector is the only
// required field.
type Config struct {
	Connector Connector
	Logger    logging.Logger
	Metrics   *observability.Collector

	// AutoReconnect enables bounded reconnection for client-role
	// connectors after an unexpected disconnect. Server-role
	// connectors always return to accepting.
	AutoReconnect      bool
	ReconnectAttempts  int           // default 5
	ReconnectBaseDelay time.Duration // default 1s

	ReadBufferSize int // default 4096
	EventBuffer    int // default 64
}

// Callbacks receive decoded messages and lifecycle transitions. All
// callbacks run on a single dispatcher goroutine, never on the read
// loop, so a slow consumer cannot stall framing.
type Callbacks struct {
	OnShot              func(model.ShotTelemetry)
	OnStatus            func(model.DeviceStatus)
	OnStateChanged      func(model.ConnectionState)
	OnConnectionChanged func(connected bool)
	OnError             func(msg string)
}

// Session owns one sensor link. Connect, Close, and State may be
// called from any goroutine; Connect and Close must not race each
// other.
type Session struct {
	cfg Config
	cb  Callbacks
	log logging.Logger

	mu         sync.Mutex
	state      model.ConnectionState
	transport  Transport
	lastStatus *model.DeviceStatus
	closed     bool
	cancel     context.CancelFunc

	wg           sync.WaitGroup
	events       chan event
	dispatchDone chan struct{}
}

type event struct {
	shot       *model.ShotTelemetry
	status     *model.DeviceStatus
	state      *model.ConnectionState
	connChange bool
	errMsg     string
}

// New builds a session around the given connector. The dispatcher
// goroutine starts immediately; no I/O happens until Connect.
func New(cfg Config, cb Callbacks) *Session {
	if cfg.Logger == nil {
		cfg.Logger = logging.Noop()
	}
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = defaultReconnectAttempts
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = defaultReconnectBase
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = defaultReadBufferSize
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}

	s := &Session{
		cfg:          cfg,
		cb:           cb,
		log:          cfg.Logger.With(logging.String("role", cfg.Connector.Role().String())),
		state:        model.StateDisconnected,
		events:       make(chan event, cfg.EventBuffer),
		dispatchDone: make(chan struct{}),
	}
	go s.dispatch()
	return s
}

// State returns the current connection state.
func (s *Session) State() model.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect establishes the initial transport and starts the read loop.
// It blocks until the transport is up or the attempt fails; ctx bounds
// only this initial attempt.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.state == model.StateConnected || s.state == model.StateConnecting {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	s.setState(model.StateConnecting)
	t, err := s.cfg.Connector.Connect(ctx)
	if err != nil {
		if errors.Is(err, ErrDeviceUnavailable) {
			s.setState(model.StateDeviceUnavailable)
		} else {
			s.setState(model.StateFailed)
		}
		s.emitError(err.Error())
		return err
	}
	s.startReadLoop(runCtx, t)
	return nil
}

// Send writes raw bytes to the sensor, if connected.
func (s *Session) Send(p []byte) error {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	if t == nil {
		return errors.New("not connected")
	}
	_, err := t.Write(p)
	return err
}

// Close tears down the transport, stops the read loop, and waits for
// the dispatcher to drain. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	t := s.transport
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if t != nil {
		t.Close()
	}
	s.cfg.Connector.Close()
	s.wg.Wait()
	close(s.events)
	<-s.dispatchDone

	s.mu.Lock()
	s.state = model.StateDisconnected
	s.mu.Unlock()
	return nil
}

func (s *Session) startReadLoop(ctx context.Context, t Transport) {
	s.mu.Lock()
	s.transport = t
	s.lastStatus = nil
	s.mu.Unlock()
	s.setState(model.StateConnected)

	s.wg.Add(1)
	go s.readLoop(ctx, t)
}

func (s *Session) readLoop(ctx context.Context, t Transport) {
	defer s.wg.Done()

	framer := &protocol.Framer{}
	buf := make([]byte, s.cfg.ReadBufferSize)
	for {
		n, err := t.Read(buf)
		if n > 0 {
			s.handleMessages(ctx, framer.Push(buf[:n]))
		}
		if err != nil {
			break
		}
	}
	t.Close()

	s.mu.Lock()
	s.transport = nil
	done := s.closed || ctx.Err() != nil
	s.mu.Unlock()

	s.setState(model.StateDisconnected)
	if done {
		return
	}
	s.log.Warn(ctx, "sensor link lost")

	switch s.cfg.Connector.Role() {
	case RoleServer:
		s.reaccept(ctx)
	default:
		if s.cfg.AutoReconnect {
			s.reconnect(ctx)
		}
	}
}

// reaccept returns a server session to accepting. The sensor decides
// when to dial back in, so there is no attempt ceiling here.
func (s *Session) reaccept(ctx context.Context) {
	s.setState(model.StateConnecting)
	t, err := s.cfg.Connector.Connect(ctx)
	if err != nil {
		s.mu.Lock()
		done := s.closed || ctx.Err() != nil
		s.mu.Unlock()
		if done {
			s.setState(model.StateDisconnected)
			return
		}
		s.setState(model.StateFailed)
		s.emitError(err.Error())
		return
	}
	s.startReadLoop(ctx, t)
}

// reconnect retries the connector up to the configured attempt
// ceiling, waiting attempt multiples of the base delay between tries.
// Exhausting the ceiling is terminal: the session parks in Failed.
func (s *Session) reconnect(ctx context.Context) {
	lb := &linearBackOff{base: s.cfg.ReconnectBaseDelay}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(lb, uint64(s.cfg.ReconnectAttempts-1)), ctx)

	var t Transport
	attempt := 0
	op := func() error {
		attempt++
		s.cfg.Metrics.RecordReconnectAttempt()
		s.setState(model.StateConnecting)
		s.log.Info(ctx, "reconnecting",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", s.cfg.ReconnectAttempts),
		)
		var err error
		t, err = s.cfg.Connector.Connect(ctx)
		if err != nil {
			if errors.Is(err, ErrDeviceUnavailable) {
				s.setState(model.StateDeviceUnavailable)
			} else {
				s.setState(model.StateDisconnected)
			}
			return err
		}
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		s.mu.Lock()
		done := s.closed || ctx.Err() != nil
		s.mu.Unlock()
		if done {
			s.setState(model.StateDisconnected)
			return
		}
		s.setState(model.StateFailed)
		s.emitError("reconnect failed: " + err.Error())
		s.log.Error(ctx, "reconnect attempts exhausted", logging.Err(err))
		return
	}
	s.startReadLoop(ctx, t)
}

func (s *Session) handleMessages(ctx context.Context, msgs [][]byte) {
	for _, raw := range msgs {
		msg, err := protocol.Decode(raw)
		if err != nil {
			s.cfg.Metrics.RecordDecodeFailure()
			s.log.Debug(ctx, "dropping malformed message", logging.Err(err))
			continue
		}
		switch m := msg.(type) {
		case *model.ShotTelemetry:
			shot := *m
			if shot.TimestampMS == 0 {
				shot.TimestampMS = time.Now().UnixMilli()
			}
			s.cfg.Metrics.RecordShotDecoded()
			s.emit(event{shot: &shot})
		case *model.DeviceStatus:
			s.mu.Lock()
			dup := s.lastStatus != nil && s.lastStatus.Equal(*m)
			if !dup {
				prev := *m
				s.lastStatus = &prev
			}
			s.mu.Unlock()
			if dup {
				continue
			}
			s.emit(event{status: m})
		}
	}
}

func (s *Session) setState(next model.ConnectionState) {
	s.mu.Lock()
	prev := s.state
	if prev == next {
		s.mu.Unlock()
		return
	}
	s.state = next
	closed := s.closed
	s.mu.Unlock()

	s.cfg.Metrics.RecordConnectionState(next)
	s.log.Info(context.Background(), "connection state changed",
		logging.String("from", prev.String()),
		logging.String("to", next.String()),
	)
	if closed {
		return
	}
	st := next
	s.emit(event{
		state:      &st,
		connChange: prev == model.StateConnected || next == model.StateConnected,
	})
}

func (s *Session) emitError(msg string) {
	s.emit(event{errMsg: msg})
}

func (s *Session) emit(ev event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.events <- ev
}

func (s *Session) dispatch() {
	defer close(s.dispatchDone)
	for ev := range s.events {
		switch {
		case ev.shot != nil:
			if s.cb.OnShot != nil {
				s.cb.OnShot(*ev.shot)
			}
		case ev.status != nil:
			if s.cb.OnStatus != nil {
				s.cb.OnStatus(*ev.status)
			}
		case ev.state != nil:
			if s.cb.OnStateChanged != nil {
				s.cb.OnStateChanged(*ev.state)
			}
			if ev.connChange && s.cb.OnConnectionChanged != nil {
				s.cb.OnConnectionChanged(*ev.state == model.StateConnected)
			}
		case ev.errMsg != "":
			if s.cb.OnError != nil {
				s.cb.OnError(ev.errMsg)
			}
		}
	}
}

// linearBackOff waits attempt multiples of a base delay: base, 2*base,
// 3*base, and so on.
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.base
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

package model

// Status flag bits as packed into the 0M FLAGS mask.
const (
	StatusFlagPower        = 0x01
	StatusFlagBallDetected = 0x02
	StatusFlagReady        = 0x04
)

// BallPosition is the camera-frame position of a detected ball.
type BallPosition struct {
	X, Y, Z float64
}

// DeviceStatus is a snapshot of the sensor's readiness. A new value is
// built for every 0M message; nothing mutates a status after
// construction, so plain == comparison is used to suppress duplicate
// notifications.
type DeviceStatus struct {
	Ready        bool
	BallDetected bool
	RawFlags     int
	BallCount    int
	Ball         *BallPosition // nil when the sensor reported no position
}

// StatusFromFlags derives a DeviceStatus from a raw FLAGS mask alone,
// for sources that do not report a ball count. A detected ball counts
// as one.
func StatusFromFlags(flags int) DeviceStatus {
	s := DeviceStatus{
		Ready:        flags&StatusFlagReady != 0,
		BallDetected: flags&StatusFlagBallDetected != 0,
		RawFlags:     flags,
	}
	if s.BallDetected {
		s.BallCount = 1
	}
	return s
}

// Equal reports whether two status snapshots describe the same device
// state, including ball position.
func (s DeviceStatus) Equal(o DeviceStatus) bool {
	if s.Ready != o.Ready || s.BallDetected != o.BallDetected ||
		s.RawFlags != o.RawFlags || s.BallCount != o.BallCount {
		return false
	}
	if (s.Ball == nil) != (o.Ball == nil) {
		return false
	}
	return s.Ball == nil || *s.Ball == *o.Ball
}

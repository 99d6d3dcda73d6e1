package model

// ConnectionState is the lifecycle state of a sensor link. The session
// owning the link is the single writer; everything else observes state
// through change notifications.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateDeviceUnavailable
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDeviceUnavailable:
		return "device-unavailable"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

package model

// ClubData is the optional head-tracking subset of a shot. It is present
// only when the sensor had an HMT attachment reporting club delivery.
type ClubData struct {
	SpeedMPH     float64 // club head speed at impact
	PathDeg      float64 // swing path, + in-to-out
	AttackDeg    float64 // angle of attack, + up
	FaceToTarget float64 // face angle relative to target line, + open
	DynamicLoft  float64 // delivered loft at impact
}

// ShotTelemetry is a single measured shot as reported by the launch
// monitor. It is immutable once decoded; the codec never hands out a
// partially filled record.
//
// TotalSpinRPM² ≈ BackSpinRPM² + SideSpinRPM² generally holds for real
// sensor data but is an observable property, not a decode-time guarantee.
type ShotTelemetry struct {
	ShotID      int
	TimestampMS int64 // epoch milliseconds

	BallSpeedMPH float64
	LaunchDeg    float64 // launch angle, + up
	DirectionDeg float64 // launch direction, + right of target line

	TotalSpinRPM float64
	BackSpinRPM  float64
	SideSpinRPM  float64
	SpinAxisDeg  float64 // + tilts right (fade for a right-hander)

	// Club is nil unless the message carried HMT=1.
	Club *ClubData
}

// HasClubData reports whether head-tracking data accompanied the shot.
func (s ShotTelemetry) HasClubData() bool { return s.Club != nil }

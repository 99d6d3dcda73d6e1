package protocol

import (
	"strconv"
	"strings"

	"github.com/openlaunch/launchmon/model"
)

// EncodeShot renders a shot in sensor wire format, terminator
// included. Decode(EncodeShot(s)) reproduces s exactly; float values
// are written at full precision.
func EncodeShot(shot model.ShotTelemetry) []byte {
	var b strings.Builder
	b.WriteString(typeShot)
	writeKV(&b, "SHOT_ID", strconv.Itoa(shot.ShotID))
	writeKV(&b, "TIMESTAMP_MS", strconv.FormatInt(shot.TimestampMS, 10))
	writeKV(&b, "SPEED_MPH", formatFloat(shot.BallSpeedMPH))
	writeKV(&b, "AZIMUTH_DEG", formatFloat(shot.DirectionDeg))
	writeKV(&b, "ELEVATION_DEG", formatFloat(shot.LaunchDeg))
	writeKV(&b, "SPIN_RPM", formatFloat(shot.TotalSpinRPM))
	writeKV(&b, "BACK_RPM", formatFloat(shot.BackSpinRPM))
	writeKV(&b, "SIDE_RPM", formatFloat(shot.SideSpinRPM))
	writeKV(&b, "SPIN_AXIS_DEG", formatFloat(shot.SpinAxisDeg))

	if shot.Club != nil {
		writeKV(&b, "HMT", "1")
		writeKV(&b, "CLUBSPEED_MPH", formatFloat(shot.Club.SpeedMPH))
		writeKV(&b, "HPATH_DEG", formatFloat(shot.Club.PathDeg))
		writeKV(&b, "VPATH_DEG", formatFloat(shot.Club.AttackDeg))
		writeKV(&b, "FACE_T_DEG", formatFloat(shot.Club.FaceToTarget))
		writeKV(&b, "DLOFT_DEG", formatFloat(shot.Club.DynamicLoft))
	} else {
		writeKV(&b, "HMT", "0")
	}

	b.WriteString(string(terminator))
	return []byte(b.String())
}

// EncodeStatus renders a device status in sensor wire format. RawFlags
// is the source of truth for the flag bits; build statuses with
// model.StatusFromFlags to keep encode/decode symmetric.
func EncodeStatus(status model.DeviceStatus) []byte {
	var b strings.Builder
	b.WriteString(typeStatus)
	writeKV(&b, "FLAGS", strconv.Itoa(status.RawFlags))
	writeKV(&b, "BALLS", strconv.Itoa(status.BallCount))
	if status.Ball != nil {
		b.WriteString("\nBALL1=")
		b.WriteString(formatFloat(status.Ball.X))
		b.WriteString(",")
		b.WriteString(formatFloat(status.Ball.Y))
		b.WriteString(",")
		b.WriteString(formatFloat(status.Ball.Z))
	}
	b.WriteString(string(terminator))
	return []byte(b.String())
}

func writeKV(b *strings.Builder, key, value string) {
	b.WriteString("\n")
	b.WriteString(key)
	b.WriteString("=")
	b.WriteString(value)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

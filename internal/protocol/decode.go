package protocol

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/openlaunch/launchmon/model"
)

// Message type discriminators, the first token of every message.
const (
	typeShot   = "0H"
	typeStatus = "0M"
)

// ErrMissingField marks a message that frames correctly but lacks a
// required key. The message is discarded; the stream stays usable.
var ErrMissingField = errors.New("missing required field")

// Decode parses one framed message payload into a *model.ShotTelemetry
// or *model.DeviceStatus. Unrecognized message types return (nil, nil):
// they are dropped silently for forward compatibility with newer
// sensor firmware.
func Decode(raw []byte) (any, error) {
	lines := strings.Split(strings.ReplaceAll(string(raw), "\r\n", "\n"), "\n")
	var msgType string
	fields := make(map[string]string)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if msgType == "" {
			msgType = line
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue // stray line, tolerated on a live link
		}
		fields[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	switch msgType {
	case typeShot:
		return decodeShot(fields)
	case typeStatus:
		return decodeStatus(fields)
	default:
		return nil, nil
	}
}

func decodeShot(fields map[string]string) (*model.ShotTelemetry, error) {
	shot := &model.ShotTelemetry{}

	id, err := requireInt(fields, "SHOT_ID")
	if err != nil {
		return nil, err
	}
	shot.ShotID = id

	required := []struct {
		key string
		dst *float64
	}{
		{"SPEED_MPH", &shot.BallSpeedMPH},
		{"ELEVATION_DEG", &shot.LaunchDeg},
		{"AZIMUTH_DEG", &shot.DirectionDeg},
		{"SPIN_RPM", &shot.TotalSpinRPM},
		{"BACK_RPM", &shot.BackSpinRPM},
		{"SIDE_RPM", &shot.SideSpinRPM},
	}
	for _, r := range required {
		v, err := requireFloat(fields, r.key)
		if err != nil {
			return nil, err
		}
		*r.dst = v
	}

	// Early readings omit spin axis; derive it from the spin split.
	if raw, ok := fields["SPIN_AXIS_DEG"]; ok {
		axis, err := parseFloat("SPIN_AXIS_DEG", raw)
		if err != nil {
			return nil, err
		}
		shot.SpinAxisDeg = axis
	} else {
		shot.SpinAxisDeg = math.Atan2(shot.SideSpinRPM, shot.BackSpinRPM) * 180 / math.Pi
	}

	if raw, ok := fields["TIMESTAMP_MS"]; ok {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad TIMESTAMP_MS %q: %w", raw, err)
		}
		shot.TimestampMS = ts
	}

	if fields["HMT"] == "1" {
		club := &model.ClubData{}
		optional := []struct {
			key string
			dst *float64
		}{
			{"CLUBSPEED_MPH", &club.SpeedMPH},
			{"HPATH_DEG", &club.PathDeg},
			{"VPATH_DEG", &club.AttackDeg},
			{"FACE_T_DEG", &club.FaceToTarget},
			{"DLOFT_DEG", &club.DynamicLoft},
		}
		for _, o := range optional {
			if raw, ok := fields[o.key]; ok {
				v, err := parseFloat(o.key, raw)
				if err != nil {
					return nil, err
				}
				*o.dst = v
			}
		}
		shot.Club = club
	}

	return shot, nil
}

func decodeStatus(fields map[string]string) (*model.DeviceStatus, error) {
	flags, err := requireInt(fields, "FLAGS")
	if err != nil {
		return nil, err
	}
	status := model.StatusFromFlags(flags)

	if raw, ok := fields["BALLS"]; ok {
		balls, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("bad BALLS %q: %w", raw, err)
		}
		status.BallCount = balls
	}

	if raw, ok := fields["BALL1"]; ok {
		parts := strings.Split(raw, ",")
		if len(parts) != 3 {
			return nil, fmt.Errorf("bad BALL1 %q: want x,y,z", raw)
		}
		var pos model.BallPosition
		for i, dst := range []*float64{&pos.X, &pos.Y, &pos.Z} {
			v, err := parseFloat("BALL1", parts[i])
			if err != nil {
				return nil, err
			}
			*dst = v
		}
		status.Ball = &pos
	}

	return &status, nil
}

func requireFloat(fields map[string]string, key string) (float64, error) {
	raw, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	return parseFloat(key, raw)
}

func requireInt(fields map[string]string, key string) (int, error) {
	raw, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("bad %s %q: %w", key, raw, err)
	}
	return v, nil
}

func parseFloat(key, raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q: %w", key, raw, err)
	}
	return v, nil
}

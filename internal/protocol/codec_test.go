package protocol

import (
	"bytes"
	"fmt"
	"reflect"
	"testing"

	"github.com/openlaunch/launchmon/model"
)

func sampleShot() model.ShotTelemetry {
	return model.ShotTelemetry{
		ShotID:       42,
		TimestampMS:  1718000000123,
		BallSpeedMPH: 167.25,
		LaunchDeg:    10.9,
		DirectionDeg: -1.5,
		TotalSpinRPM: 2686,
		BackSpinRPM:  2650,
		SideSpinRPM:  -437,
		SpinAxisDeg:  -9.4,
	}
}

func decodeOne(t *testing.T, raw []byte) any {
	t.Helper()
	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return msg
}

func TestShotRoundTrip(t *testing.T) {
	want := sampleShot()
	got := decodeOne(t, bytes.TrimSuffix(EncodeShot(want), terminator))
	shot, ok := got.(*model.ShotTelemetry)
	if !ok {
		t.Fatalf("decoded %T, want shot", got)
	}
	if !reflect.DeepEqual(*shot, want) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", *shot, want)
	}
}

func TestShotRoundTrip_WithClubData(t *testing.T) {
	want := sampleShot()
	want.Club = &model.ClubData{
		SpeedMPH:     112.5,
		PathDeg:      2.1,
		AttackDeg:    -1.2,
		FaceToTarget: 0.8,
		DynamicLoft:  13.4,
	}
	got := decodeOne(t, bytes.TrimSuffix(EncodeShot(want), terminator))
	shot, ok := got.(*model.ShotTelemetry)
	if !ok {
		t.Fatalf("decoded %T, want shot", got)
	}
	if !reflect.DeepEqual(*shot, want) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", *shot, want)
	}
	if !shot.HasClubData() {
		t.Fatalf("club data lost in round trip")
	}
}

func TestStatusRoundTrip(t *testing.T) {
	want := model.StatusFromFlags(7)
	want.Ball = &model.BallPosition{X: 198, Y: 206, Z: 12}
	got := decodeOne(t, bytes.TrimSuffix(EncodeStatus(want), terminator))
	status, ok := got.(*model.DeviceStatus)
	if !ok {
		t.Fatalf("decoded %T, want status", got)
	}
	if !status.Equal(want) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", *status, want)
	}
	if !status.Ready || !status.BallDetected {
		t.Fatalf("FLAGS=7 should mean ready with ball: %+v", *status)
	}
}

func TestDecode_StatusFlagBits(t *testing.T) {
	cases := []struct {
		flags int
		ready bool
		ball  bool
	}{
		{1, false, false},
		{3, false, true},
		{5, true, false},
		{7, true, true},
	}
	for _, c := range cases {
		raw := []byte(fmt.Sprintf("0M\nFLAGS=%d\nBALLS=0", c.flags))
		status := decodeOne(t, raw).(*model.DeviceStatus)
		if status.Ready != c.ready || status.BallDetected != c.ball {
			t.Fatalf("FLAGS=%d: got ready=%v ball=%v, want ready=%v ball=%v",
				c.flags, status.Ready, status.BallDetected, c.ready, c.ball)
		}
	}
}

func TestDecode_DerivesSpinAxis(t *testing.T) {
	raw := []byte("0H\nSHOT_ID=1\nSPEED_MPH=150\nELEVATION_DEG=12\nAZIMUTH_DEG=0\n" +
		"SPIN_RPM=3000\nBACK_RPM=3000\nSIDE_RPM=0")
	shot := decodeOne(t, raw).(*model.ShotTelemetry)
	if shot.SpinAxisDeg != 0 {
		t.Fatalf("pure backspin should derive axis 0, got %v", shot.SpinAxisDeg)
	}

	raw = []byte("0H\nSHOT_ID=2\nSPEED_MPH=150\nELEVATION_DEG=12\nAZIMUTH_DEG=0\n" +
		"SPIN_RPM=3000\nBACK_RPM=3000\nSIDE_RPM=3000")
	shot = decodeOne(t, raw).(*model.ShotTelemetry)
	if shot.SpinAxisDeg < 44.9 || shot.SpinAxisDeg > 45.1 {
		t.Fatalf("equal back/side spin should derive axis ~45, got %v", shot.SpinAxisDeg)
	}
}

func TestDecode_MissingRequiredKeyFails(t *testing.T) {
	// An early reading: no BACK_RPM/SIDE_RPM yet.
	raw := []byte("0H\nSHOT_ID=3\nSPEED_MPH=160\nELEVATION_DEG=11\nAZIMUTH_DEG=1\nSPIN_RPM=2500")
	if _, err := Decode(raw); err == nil {
		t.Fatalf("early reading without spin split should fail decode")
	}
}

func TestDecode_UnknownTypeDroppedSilently(t *testing.T) {
	msg, err := Decode([]byte("0Z\nSOME=thing"))
	if err != nil {
		t.Fatalf("unknown type should not error: %v", err)
	}
	if msg != nil {
		t.Fatalf("unknown type should decode to nil, got %T", msg)
	}
}

func TestFramer_FragmentedMessage(t *testing.T) {
	encoded := EncodeShot(sampleShot())
	split := len(encoded) / 2

	var f Framer
	if msgs := f.Push(encoded[:split]); len(msgs) != 0 {
		t.Fatalf("half a message should not frame, got %d", len(msgs))
	}
	msgs := f.Push(encoded[split:])
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one framed message, got %d", len(msgs))
	}
	shot := decodeOne(t, msgs[0]).(*model.ShotTelemetry)
	if shot.ShotID != 42 {
		t.Fatalf("framed shot id = %d, want 42", shot.ShotID)
	}
}

func TestFramer_ByteAtATime(t *testing.T) {
	encoded := EncodeShot(sampleShot())
	var f Framer
	var total int
	for _, b := range encoded {
		total += len(f.Push([]byte{b}))
	}
	if total != 1 {
		t.Fatalf("byte-at-a-time framing produced %d messages, want 1", total)
	}
}

func TestFramer_CoalescedMessages(t *testing.T) {
	var payload []byte
	payload = append(payload, EncodeStatus(model.StatusFromFlags(7))...)
	payload = append(payload, EncodeShot(sampleShot())...)
	payload = append(payload, EncodeStatus(model.StatusFromFlags(1))...)

	var f Framer
	msgs := f.Push(payload)
	if len(msgs) != 3 {
		t.Fatalf("coalesced read should frame 3 messages, got %d", len(msgs))
	}
	if f.Pending() != 0 {
		t.Fatalf("nothing should remain buffered, got %d bytes", f.Pending())
	}
}

func TestFramer_BlankLineFallback(t *testing.T) {
	var f Framer
	msgs := f.Push([]byte("0M\nFLAGS=7\nBALLS=1\n\n"))
	if len(msgs) != 1 {
		t.Fatalf("blank-line terminated message should frame, got %d", len(msgs))
	}
}

func TestFramer_ResetDropsPartial(t *testing.T) {
	var f Framer
	f.Push([]byte("0H\nSHOT_ID=9"))
	if f.Pending() == 0 {
		t.Fatalf("partial message should be buffered")
	}
	f.Reset()
	if f.Pending() != 0 {
		t.Fatalf("reset should drop the partial buffer")
	}
}

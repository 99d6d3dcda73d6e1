package physics

import (
	"math"
	"testing"
)

func TestAirDensity_StandardDay(t *testing.T) {
	// 59°F dry air at sea level is the ICAO standard atmosphere.
	got := AirDensity(59, 0, 0)
	if math.Abs(got-1.225) > 0.005 {
		t.Fatalf("standard day density = %.4f, want ~1.225", got)
	}
}

func TestAirDensity_HumidityThinsAir(t *testing.T) {
	dry := AirDensity(90, 0, 0)
	humid := AirDensity(90, 0, 100)
	if humid >= dry {
		t.Fatalf("humid air should be less dense: dry=%.4f humid=%.4f", dry, humid)
	}
}

func TestAirDensity_ElevationThinsAir(t *testing.T) {
	sea := AirDensity(70, 0, 50)
	denver := AirDensity(70, 5280, 50)
	if denver >= sea {
		t.Fatalf("altitude should reduce density: sea=%.4f denver=%.4f", sea, denver)
	}
	if denver < 0.9 || denver > 1.1 {
		t.Fatalf("density at 5280 ft out of plausible range: %.4f", denver)
	}
}

func TestReynolds_Scales(t *testing.T) {
	re := Reynolds(70, 1.2)
	want := 1.2 * 70 * BallDiameterM / AirViscosity
	if math.Abs(re-want) > 1 {
		t.Fatalf("Reynolds = %.0f, want %.0f", re, want)
	}
	if Reynolds(0, 1.2) != 0 {
		t.Fatalf("zero velocity should give zero Reynolds")
	}
}

func TestSpinFactor_NearZeroVelocity(t *testing.T) {
	if got := SpinFactor(3000, 0); got != 0 {
		t.Fatalf("spin factor at rest = %v, want 0", got)
	}
	if got := SpinFactor(3000, 1e-9); got != 0 {
		t.Fatalf("spin factor below threshold = %v, want 0", got)
	}
	got := SpinFactor(2686, 74.66)
	want := 2686 * RPMToRadS * BallRadiusM / 74.66
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("spin factor = %v, want %v", got, want)
	}
}

func TestDragCoefficient_ClampsAndInterpolates(t *testing.T) {
	// Below the table: clamp to the first entry.
	if got := DragCoefficient(0.1e5); got != dragTable[0].value {
		t.Fatalf("below-range Cd = %v, want %v", got, dragTable[0].value)
	}
	// Supercritical regime is a constant.
	if got := DragCoefficient(2.0e5); got != supercriticalDrag {
		t.Fatalf("supercritical Cd = %v, want %v", got, supercriticalDrag)
	}
	if got := DragCoefficient(9.9e5); got != supercriticalDrag {
		t.Fatalf("deep supercritical Cd = %v, want %v", got, supercriticalDrag)
	}
	// Midpoint of a segment interpolates linearly.
	mid := DragCoefficient(0.5e5)
	want := (dragTable[0].value + dragTable[1].value) / 2
	if math.Abs(mid-want) > 1e-9 {
		t.Fatalf("interpolated Cd = %v, want %v", mid, want)
	}
	// Cd never increases with Reynolds over the covered range.
	prev := DragCoefficient(0.4e5)
	for re := 0.5e5; re <= 2.5e5; re += 0.1e5 {
		cd := DragCoefficient(re)
		if cd > prev+1e-12 {
			t.Fatalf("Cd increased at Re=%.0f: %v -> %v", re, prev, cd)
		}
		prev = cd
	}
}

func TestLiftCoefficient_BoundsAndMonotonicity(t *testing.T) {
	if got := LiftCoefficient(0); got != 0 {
		t.Fatalf("Cl at zero spin factor = %v, want 0", got)
	}
	if got := LiftCoefficient(-0.5); got != 0 {
		t.Fatalf("Cl at negative spin factor = %v, want 0", got)
	}
	if got := LiftCoefficient(3.0); got != maxLift {
		t.Fatalf("Cl above table = %v, want %v", got, maxLift)
	}
	prev := 0.0
	for s := 0.01; s < 0.5; s += 0.01 {
		cl := LiftCoefficient(s)
		if cl < prev {
			t.Fatalf("Cl decreased at spin factor %.2f: %v -> %v", s, prev, cl)
		}
		prev = cl
	}
}

package magnet

import (
	"math"
	"testing"
)

func TestEnergyToCurrent_ReferencePoint(t *testing.T) {
	// 400 GeV: 2.974e-5*400^2 + 2.647e-1*400 = 4.7584 + 105.88
	amps, clamped := EnergyToCurrent(400)
	if clamped {
		t.Fatalf("400 GeV must not clamp (got %v A)", amps)
	}
	if math.Abs(amps-110.6384) > 1e-6 {
		t.Fatalf("EnergyToCurrent(400) = %v, want 110.6384", amps)
	}
}

func TestEnergyToCurrent_CeilingHolds(t *testing.T) {
	for _, energy := range []float64{0, 1, 50, 400, 961, 2000, 1e6} {
		amps, _ := EnergyToCurrent(energy)
		if amps > MaxCurrentA {
			t.Fatalf("EnergyToCurrent(%v) = %v, exceeds %v A ceiling", energy, amps, MaxCurrentA)
		}
	}
}

func TestEnergyToCurrent_ClampsHighEnergy(t *testing.T) {
	amps, clamped := EnergyToCurrent(3000)
	if !clamped || amps != MaxCurrentA {
		t.Fatalf("EnergyToCurrent(3000) = (%v, %v), want (%v, true)", amps, clamped, MaxCurrentA)
	}
}

func TestClampCurrent(t *testing.T) {
	if amps, clamped := ClampCurrent(500); amps != MaxCurrentA || !clamped {
		t.Fatalf("ClampCurrent(500) = (%v, %v), want (%v, true)", amps, clamped, MaxCurrentA)
	}
	if amps, clamped := ClampCurrent(100); amps != 100 || clamped {
		t.Fatalf("ClampCurrent(100) = (%v, %v), want (100, false)", amps, clamped)
	}
	if amps, clamped := ClampCurrent(MaxCurrentA); amps != MaxCurrentA || clamped {
		t.Fatalf("ClampCurrent(max) = (%v, %v), want (%v, false)", amps, clamped, MaxCurrentA)
	}
}

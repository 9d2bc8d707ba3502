package magnet

// MaxCurrentA is the hard ceiling on any current sent to a converter.
const MaxCurrentA = 362.0

// Dipole transfer-line calibration: current [A] as a quadratic in beam
// energy [GeV]. Coefficients take GeV directly; the 400 GeV reference point
// maps to ~110.6 A.
const (
	energyCoeffA = 2.974e-5
	energyCoeffB = 2.647e-1
	energyCoeffC = 3.565e-14
)

// EnergyToCurrent maps beam energy in GeV to magnet current in amps,
// clamped to MaxCurrentA. The second return reports whether clamping
// occurred. Pure and deterministic.
func EnergyToCurrent(energyGeV float64) (float64, bool) {
	amps := energyCoeffA*energyGeV*energyGeV + energyCoeffB*energyGeV + energyCoeffC
	return ClampCurrent(amps)
}

// ClampCurrent bounds a requested current to MaxCurrentA, reporting whether
// it was reduced.
func ClampCurrent(amps float64) (float64, bool) {
	if amps > MaxCurrentA {
		return MaxCurrentA, true
	}
	return amps, false
}

// Package magnet drives the spectrometer magnet power converters through
// their bring-up, shutdown and setpoint-change sequences.
package magnet

import (
	"time"

	"spectroctl"
)

// Parameter fields common to the FGC-style power converters.
const (
	FieldState        = "STATE"
	FieldModePC       = "MODE.PC"
	FieldFuncType     = "REF.FUNC.TYPE"
	FieldTrimFinal    = "REF.TRIM.FINAL"
	FieldTrimDuration = "REF.TRIM.DURATION"
	FieldPlepFinal    = "REF.PLEP.FINAL"
	FieldRun          = "REF.RUN"
	FieldMeasI        = "MEAS.I"
)

// QuadDisplayParam is the named display cell the spectrometer acquisition
// side reads the quadrupole setpoint from. Addressed by name, never by
// array offset.
const QuadDisplayParam = "TSG41.AWAKE-XTIM/SpectroQuadCurrent"

// Device describes one power converter: its gateway name, reference-function
// mode and the settle windows of its sequences. Settle durations double as
// the timeout for the corresponding state poll.
type Device struct {
	Name     string // converter device name on the gateway
	Label    string // short operator-facing name: "dipole", "quadrupole"
	FuncType string // CTRIM or PLEP

	// FinalField is the reference field holding the target current; the
	// dipole additionally requires a ramp duration (NeedsRamp).
	FinalField string
	NeedsRamp  bool

	OffSettle     time.Duration // wait for OFF before bring-up and on turn-off
	StandbySettle time.Duration // wait for ON_STANDBY before commanding IDLE
	PreTrimSettle time.Duration // extra settle between IDLE and trim writes
	TrimSettle    time.Duration // wait between trim write and read-back
	PostRunSettle time.Duration // wait before the final MEAS.I read (no ramp)

	// SupportsSetpoint marks converters that accept a setpoint change while
	// armed, without a full bring-up.
	SupportsSetpoint bool

	// DisplayParam, when set, receives the new setpoint on a setpoint change
	// so the acquisition display tracks it.
	DisplayParam string
}

// Param returns the full gateway parameter name for a field of this device.
func (d Device) Param(field string) string {
	return d.Name + "/" + field
}

// Dipole returns the spectrometer dipole descriptor. The dipole ramps its
// current over a configured duration (CTRIM).
func Dipole() Device {
	return Device{
		Name:          "RPPEF.BB4.RBIH.412435",
		Label:         "dipole",
		FuncType:      spectroctl.FuncCTRIM,
		FinalField:    FieldTrimFinal,
		NeedsRamp:     true,
		OffSettle:     10 * time.Second,
		StandbySettle: 5 * time.Second,
		TrimSettle:    3 * time.Second,
		PostRunSettle: 3 * time.Second,
	}
}

// Quadrupole returns the spectrometer quadrupole descriptor. The quadrupole
// goes straight to its endpoint (PLEP) and accepts armed setpoint changes.
func Quadrupole() Device {
	return Device{
		Name:             "RPADA.BB4.RQNI.412432",
		Label:            "quadrupole",
		FuncType:         spectroctl.FuncPLEP,
		FinalField:       FieldPlepFinal,
		NeedsRamp:        false,
		OffSettle:        5 * time.Second,
		StandbySettle:    10 * time.Second,
		PreTrimSettle:    5 * time.Second,
		TrimSettle:       3 * time.Second,
		PostRunSettle:    3 * time.Second,
		SupportsSetpoint: true,
		DisplayParam:     QuadDisplayParam,
	}
}

// TrimSettings are the values written before arming: the target current and,
// for ramping converters, the ramp duration.
type TrimSettings struct {
	CurrentA     float64
	RampDuration time.Duration
}

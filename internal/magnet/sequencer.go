package magnet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spectroctl"
	"spectroctl/internal/controls"
	"spectroctl/internal/logger"
)

// Sequencing errors. ErrNotArmed is a precondition failure, distinct from the
// transport errors surfaced by the controls client.
var (
	ErrNotArmed            = errors.New("power converter not in ARMED state")
	ErrRampRequired        = errors.New("ramping converter requires both current and ramp duration")
	ErrInvalidCurrent      = errors.New("target current must be non-negative")
	ErrSetpointUnsupported = errors.New("converter does not accept armed setpoint changes")
)

// StateTimeoutError reports that a converter did not reach the commanded
// state within its settle window.
type StateTimeoutError struct {
	Device  string
	Want    string
	Last    string
	Timeout time.Duration
}

func (e *StateTimeoutError) Error() string {
	return fmt.Sprintf("%s did not reach state %s within %s (last seen %s)",
		e.Device, e.Want, e.Timeout, e.Last)
}

// LogbookPoster appends audit entries for operator actions that change
// machine settings.
type LogbookPoster interface {
	PostEntry(ctx context.Context, text string) error
}

const (
	defaultPollPeriod = 500 * time.Millisecond
	funcTypeSettle    = time.Second
	runCheckSettle    = time.Second
)

// Sequencer drives a power converter through its fixed command sequences.
// All device state lives on the gateway; every decision re-reads it
// immediately before use.
type Sequencer struct {
	client controls.ParameterClient
	book   LogbookPoster
	log    *logger.Logger

	poll       time.Duration // state poll period
	funcSettle time.Duration // wait after REF.FUNC.TYPE write
	runSettle  time.Duration // wait after REF.RUN write before state check
}

// NewSequencer builds a sequencer around an open gateway session. The
// logbook poster may be nil on bench setups without an audit surface.
func NewSequencer(client controls.ParameterClient, book LogbookPoster, log *logger.Logger) *Sequencer {
	return &Sequencer{
		client:     client,
		book:       book,
		log:        log,
		poll:       defaultPollPeriod,
		funcSettle: funcTypeSettle,
		runSettle:  runCheckSettle,
	}
}

// TurnOn brings a converter from any state to running at the requested trim,
// returning the measured current after the ramp. The RUN trigger is gated on
// an ARMED state read taken immediately beforehand; any other state aborts
// with ErrNotArmed.
func (s *Sequencer) TurnOn(ctx context.Context, dev Device, trim TrimSettings) (float64, error) {
	if err := validateTrim(dev, trim); err != nil {
		return 0, err
	}
	trim.CurrentA = s.clamp(dev, trim.CurrentA)

	s.log.Infow("turn_on", "device", dev.Label, "current_a", trim.CurrentA,
		"ramp_s", trim.RampDuration.Seconds())

	if err := s.ensureOff(ctx, dev); err != nil {
		return 0, err
	}
	if err := s.bringUp(ctx, dev); err != nil {
		return 0, err
	}
	if err := s.arm(ctx, dev, trim); err != nil {
		return 0, err
	}
	if err := s.triggerRun(ctx, dev); err != nil {
		return 0, err
	}
	return s.settleAndMeasure(ctx, dev, trim)
}

// TurnOff commands a converter to OFF. Idempotent: a converter already
// reporting OFF is left untouched (zero writes).
func (s *Sequencer) TurnOff(ctx context.Context, dev Device) error {
	st, err := s.readState(ctx, dev)
	if err != nil {
		return err
	}
	if st == spectroctl.StateOff {
		s.log.Infow("already_off", "device", dev.Label)
		return nil
	}

	s.log.Infow("turning_off", "device", dev.Label, "state", st)
	if err := s.client.SetParameter(ctx, dev.Param(FieldModePC), controls.String(spectroctl.StateOff)); err != nil {
		return err
	}
	if err := s.waitForState(ctx, dev, spectroctl.StateOff, dev.OffSettle); err != nil {
		return err
	}
	s.log.Infow("pc_state", "device", dev.Label, "state", spectroctl.StateOff)
	return nil
}

// ChangeSetpoint moves an already-armed converter to a new target current
// without a bring-up, posts a logbook entry and updates the acquisition
// display cell. Supported on the quadrupole only.
func (s *Sequencer) ChangeSetpoint(ctx context.Context, dev Device, currentA float64) (float64, error) {
	if !dev.SupportsSetpoint {
		return 0, fmt.Errorf("%s: %w", dev.Label, ErrSetpointUnsupported)
	}
	if currentA < 0 {
		return 0, fmt.Errorf("%w: got %.3f", ErrInvalidCurrent, currentA)
	}
	amps := s.clamp(dev, currentA)

	s.log.Infow("change_setpoint", "device", dev.Label, "current_a", amps)

	trim := TrimSettings{CurrentA: amps}
	if err := s.arm(ctx, dev, trim); err != nil {
		return 0, err
	}
	if err := s.triggerRun(ctx, dev); err != nil {
		return 0, err
	}

	if dev.DisplayParam != "" {
		if err := s.client.SetParameter(ctx, dev.DisplayParam, controls.Float64(amps)); err != nil {
			return 0, fmt.Errorf("update display setpoint: %w", err)
		}
	}
	if s.book != nil {
		entry := fmt.Sprintf("Spectrometer %s setpoint changed to %.3f A", dev.Label, amps)
		if err := s.book.PostEntry(ctx, entry); err != nil {
			return 0, fmt.Errorf("post logbook entry: %w", err)
		}
	}

	return s.settleAndMeasure(ctx, dev, trim)
}

func validateTrim(dev Device, trim TrimSettings) error {
	if trim.CurrentA < 0 {
		return fmt.Errorf("%w: got %.3f", ErrInvalidCurrent, trim.CurrentA)
	}
	if dev.NeedsRamp && trim.RampDuration <= 0 {
		return fmt.Errorf("%s: %w", dev.Label, ErrRampRequired)
	}
	return nil
}

func (s *Sequencer) clamp(dev Device, amps float64) float64 {
	clamped, wasClamped := ClampCurrent(amps)
	if wasClamped {
		s.log.Warnw("current_clamped", "device", dev.Label,
			"requested_a", amps, "max_a", MaxCurrentA)
	}
	return clamped
}

// ensureOff is step 1 of the bring-up: command OFF unless already there.
func (s *Sequencer) ensureOff(ctx context.Context, dev Device) error {
	st, err := s.readState(ctx, dev)
	if err != nil {
		return err
	}
	if st == spectroctl.StateOff {
		s.log.Infow("pc_state", "device", dev.Label, "state", st)
		return nil
	}
	s.log.Infow("commanding_off_first", "device", dev.Label, "state", st)
	if err := s.client.SetParameter(ctx, dev.Param(FieldModePC), controls.String(spectroctl.StateOff)); err != nil {
		return err
	}
	return s.waitForState(ctx, dev, spectroctl.StateOff, dev.OffSettle)
}

// bringUp walks OFF -> ON_STANDBY -> IDLE.
func (s *Sequencer) bringUp(ctx context.Context, dev Device) error {
	if err := s.client.SetParameter(ctx, dev.Param(FieldModePC), controls.String(spectroctl.StateOnStandby)); err != nil {
		return err
	}
	if err := s.waitForState(ctx, dev, spectroctl.StateOnStandby, dev.StandbySettle); err != nil {
		return err
	}
	if err := s.client.SetParameter(ctx, dev.Param(FieldModePC), controls.String(spectroctl.StateIdle)); err != nil {
		return err
	}

	// Informational only; arming is verified separately.
	st, err := s.readState(ctx, dev)
	if err != nil {
		return err
	}
	s.log.Infow("pc_state", "device", dev.Label, "state", st)

	if dev.PreTrimSettle > 0 {
		if err := wait(ctx, dev.PreTrimSettle); err != nil {
			return err
		}
	}
	return nil
}

// arm writes the reference function and trims. The dipole sets the function
// type before its trims, the quadrupole after; read-backs are advisory and
// only logged.
func (s *Sequencer) arm(ctx context.Context, dev Device, trim TrimSettings) error {
	if dev.NeedsRamp {
		if err := s.setFuncType(ctx, dev); err != nil {
			return err
		}
		return s.writeTrims(ctx, dev, trim)
	}
	if err := s.writeTrims(ctx, dev, trim); err != nil {
		return err
	}
	return s.setFuncType(ctx, dev)
}

func (s *Sequencer) setFuncType(ctx context.Context, dev Device) error {
	if err := s.client.SetParameter(ctx, dev.Param(FieldFuncType), controls.String(dev.FuncType)); err != nil {
		return err
	}
	if err := wait(ctx, s.funcSettle); err != nil {
		return err
	}
	v, err := s.client.GetParameter(ctx, dev.Param(FieldFuncType))
	if err != nil {
		return err
	}
	s.log.Infow("func_type", "device", dev.Label, "value", v.Str)
	return nil
}

func (s *Sequencer) writeTrims(ctx context.Context, dev Device, trim TrimSettings) error {
	if dev.NeedsRamp {
		if err := s.client.SetParameter(ctx, dev.Param(FieldTrimDuration), controls.Float64(trim.RampDuration.Seconds())); err != nil {
			return err
		}
	}
	if err := s.client.SetParameter(ctx, dev.Param(dev.FinalField), controls.Float64(trim.CurrentA)); err != nil {
		return err
	}
	if err := wait(ctx, dev.TrimSettle); err != nil {
		return err
	}

	// Advisory read-back; mismatches are logged, never corrected.
	back, err := s.client.GetParameter(ctx, dev.Param(dev.FinalField))
	if err != nil {
		return err
	}
	if f, ok := back.AsFloat(); ok {
		s.log.Infow("trim_final", "device", dev.Label, "current_a", f)
	}
	if dev.NeedsRamp {
		back, err := s.client.GetParameter(ctx, dev.Param(FieldTrimDuration))
		if err != nil {
			return err
		}
		if f, ok := back.AsFloat(); ok {
			s.log.Infow("trim_duration", "device", dev.Label, "ramp_s", f)
		}
	}
	return nil
}

// triggerRun re-reads the state and fires REF.RUN only on ARMED. Any other
// state is a hard stop.
func (s *Sequencer) triggerRun(ctx context.Context, dev Device) error {
	st, err := s.readState(ctx, dev)
	if err != nil {
		return err
	}
	if st != spectroctl.StateArmed {
		return fmt.Errorf("%w: %s reports %s", ErrNotArmed, dev.Label, st)
	}

	if err := s.client.SetParameter(ctx, dev.Param(FieldRun), controls.Float64(1.0)); err != nil {
		return err
	}
	if err := wait(ctx, s.runSettle); err != nil {
		return err
	}
	st, err = s.readState(ctx, dev)
	if err != nil {
		return err
	}
	s.log.Infow("pc_state", "device", dev.Label, "state", st)
	return nil
}

// settleAndMeasure waits out the ramp (or the fixed settle for endpoint
// converters) and reads the measured current as the final observable.
func (s *Sequencer) settleAndMeasure(ctx context.Context, dev Device, trim TrimSettings) (float64, error) {
	settle := dev.PostRunSettle
	if dev.NeedsRamp {
		settle = trim.RampDuration
	}
	if err := wait(ctx, settle); err != nil {
		return 0, err
	}

	v, err := s.client.GetParameter(ctx, dev.Param(FieldMeasI))
	if err != nil {
		return 0, err
	}
	amps, ok := v.AsFloat()
	if !ok {
		return 0, fmt.Errorf("%s: non-numeric MEAS.I reading", dev.Label)
	}
	s.log.Infow("measured_current", "device", dev.Label, "current_a", amps)
	return amps, nil
}

func (s *Sequencer) readState(ctx context.Context, dev Device) (string, error) {
	v, err := s.client.GetParameter(ctx, dev.Param(FieldState))
	if err != nil {
		return "", err
	}
	return v.PCStatus(), nil
}

// waitForState polls STATE until it matches want or the window elapses.
func (s *Sequencer) waitForState(ctx context.Context, dev Device, want string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	last := spectroctl.StateUnknown
	for {
		st, err := s.readState(ctx, dev)
		if err != nil {
			return err
		}
		if st == want {
			return nil
		}
		last = st
		if !time.Now().Before(deadline) {
			return &StateTimeoutError{Device: dev.Label, Want: want, Last: last, Timeout: timeout}
		}
		if err := wait(ctx, s.poll); err != nil {
			return err
		}
	}
}

// wait blocks for d or until the context is canceled.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package magnet

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"spectroctl"
	"spectroctl/internal/controls"
	"spectroctl/internal/logger"
)

// paramOp records one client call, in order, across gets and sets.
type paramOp struct {
	kind  string // "get" | "set"
	name  string
	value controls.Value
}

// fakeGateway is an in-memory parameter gateway with just enough converter
// behavior for sequencing tests: MODE.PC writes move the state immediately,
// and writing both the final trim and the function type while IDLE arms the
// converter (unless autoArm is off).
type fakeGateway struct {
	state      string
	autoArm    bool
	stickState bool // ignore MODE.PC writes; state never moves
	measured   float64

	params   map[string]controls.Value
	ops      []paramOp
	funcSet  bool
	finalSet bool

	getErr error
	setErr error
}

func newFakeGateway(state string) *fakeGateway {
	return &fakeGateway{
		state:   state,
		autoArm: true,
		params:  map[string]controls.Value{},
	}
}

func (f *fakeGateway) GetParameter(ctx context.Context, name string) (controls.Value, error) {
	f.ops = append(f.ops, paramOp{kind: "get", name: name})
	if f.getErr != nil {
		return controls.Value{}, f.getErr
	}
	switch {
	case strings.HasSuffix(name, "/"+FieldState):
		return controls.Record(map[string]string{"PC": f.state}), nil
	case strings.HasSuffix(name, "/"+FieldMeasI):
		return controls.Float64(f.measured), nil
	}
	return f.params[name], nil
}

func (f *fakeGateway) SetParameter(ctx context.Context, name string, v controls.Value) error {
	f.ops = append(f.ops, paramOp{kind: "set", name: name, value: v})
	if f.setErr != nil {
		return f.setErr
	}
	f.params[name] = v
	switch {
	case strings.HasSuffix(name, "/"+FieldModePC):
		if !f.stickState {
			f.state = v.Str
		}
	case strings.HasSuffix(name, "/"+FieldFuncType):
		f.funcSet = true
	case strings.HasSuffix(name, "/"+FieldTrimFinal), strings.HasSuffix(name, "/"+FieldPlepFinal):
		f.finalSet = true
	case strings.HasSuffix(name, "/"+FieldRun):
		f.state = spectroctl.StateRunning
	}
	if f.autoArm && f.funcSet && f.finalSet && f.state == spectroctl.StateIdle {
		f.state = spectroctl.StateArmed
	}
	return nil
}

func (f *fakeGateway) Close() error { return nil }

func (f *fakeGateway) setOps() []paramOp {
	var out []paramOp
	for _, op := range f.ops {
		if op.kind == "set" {
			out = append(out, op)
		}
	}
	return out
}

type fakePoster struct {
	entries []string
	err     error
}

func (p *fakePoster) PostEntry(ctx context.Context, text string) error {
	p.entries = append(p.entries, text)
	return p.err
}

// fastDevice zeroes every settle window so sequences run instantly.
func fastDevice(dev Device) Device {
	dev.OffSettle = 0
	dev.StandbySettle = 0
	dev.PreTrimSettle = 0
	dev.TrimSettle = 0
	dev.PostRunSettle = 0
	return dev
}

func fastSequencer(gw *fakeGateway, book LogbookPoster) *Sequencer {
	s := NewSequencer(gw, book, logger.Get(logger.ErrorLevel))
	s.poll = 0
	s.funcSettle = 0
	s.runSettle = 0
	return s
}

func TestTurnOn_QuadrupoleHappyPath(t *testing.T) {
	gw := newFakeGateway(spectroctl.StateOff)
	gw.measured = 119.8
	s := fastSequencer(gw, nil)
	dev := fastDevice(Quadrupole())

	got, err := s.TurnOn(context.Background(), dev, TrimSettings{CurrentA: 120})
	if err != nil {
		t.Fatalf("TurnOn: %v", err)
	}
	if got != 119.8 {
		t.Fatalf("measured current = %v, want 119.8", got)
	}
	if gw.state != spectroctl.StateRunning {
		t.Fatalf("final state = %s, want RUNNING", gw.state)
	}

	final, ok := gw.params[dev.Param(FieldPlepFinal)]
	if !ok || final.Float != 120 {
		t.Fatalf("REF.PLEP.FINAL = %#v, want 120", final)
	}
	if ft := gw.params[dev.Param(FieldFuncType)]; ft.Str != spectroctl.FuncPLEP {
		t.Fatalf("REF.FUNC.TYPE = %q, want PLEP", ft.Str)
	}
}

func TestTurnOn_DipoleWritesRampAndFuncTypeFirst(t *testing.T) {
	gw := newFakeGateway(spectroctl.StateOff)
	gw.measured = 361.2
	s := fastSequencer(gw, nil)
	dev := fastDevice(Dipole())

	if _, err := s.TurnOn(context.Background(), dev, TrimSettings{CurrentA: 362, RampDuration: 0}); !errors.Is(err, ErrRampRequired) {
		t.Fatalf("missing ramp duration: err = %v, want ErrRampRequired", err)
	}
	if len(gw.ops) != 0 {
		t.Fatalf("expected zero device interactions before validation, got %d", len(gw.ops))
	}

	if _, err := s.TurnOn(context.Background(), dev, TrimSettings{CurrentA: 362, RampDuration: 20 * time.Millisecond}); err != nil {
		t.Fatalf("TurnOn: %v", err)
	}
	if d := gw.params[dev.Param(FieldTrimDuration)]; d.Float != 0.02 {
		t.Fatalf("REF.TRIM.DURATION = %v, want 0.02", d.Float)
	}

	// CTRIM is selected before the trims are written.
	sets := gw.setOps()
	funcIdx, finalIdx := -1, -1
	for i, op := range sets {
		switch op.name {
		case dev.Param(FieldFuncType):
			funcIdx = i
		case dev.Param(FieldTrimFinal):
			finalIdx = i
		}
	}
	if funcIdx == -1 || finalIdx == -1 || funcIdx > finalIdx {
		t.Fatalf("dipole must set REF.FUNC.TYPE before REF.TRIM.FINAL, got order %v", sets)
	}
}

func TestTurnOn_ClampsRequestedCurrent(t *testing.T) {
	gw := newFakeGateway(spectroctl.StateOff)
	s := fastSequencer(gw, nil)
	dev := fastDevice(Quadrupole())

	if _, err := s.TurnOn(context.Background(), dev, TrimSettings{CurrentA: 500}); err != nil {
		t.Fatalf("TurnOn: %v", err)
	}
	if final := gw.params[dev.Param(FieldPlepFinal)]; final.Float != MaxCurrentA {
		t.Fatalf("REF.PLEP.FINAL = %v, want clamped %v", final.Float, MaxCurrentA)
	}
}

func TestTurnOn_NeverRunsUnlessArmed(t *testing.T) {
	gw := newFakeGateway(spectroctl.StateOff)
	gw.autoArm = false // converter stays IDLE after trims
	s := fastSequencer(gw, nil)
	dev := fastDevice(Quadrupole())

	_, err := s.TurnOn(context.Background(), dev, TrimSettings{CurrentA: 50})
	if !errors.Is(err, ErrNotArmed) {
		t.Fatalf("err = %v, want ErrNotArmed", err)
	}
	for _, op := range gw.setOps() {
		if op.name == dev.Param(FieldRun) {
			t.Fatalf("REF.RUN written despite converter never reporting ARMED")
		}
	}
}

func TestTurnOn_RunPrecededByFreshStateRead(t *testing.T) {
	gw := newFakeGateway(spectroctl.StateOff)
	s := fastSequencer(gw, nil)
	dev := fastDevice(Quadrupole())

	if _, err := s.TurnOn(context.Background(), dev, TrimSettings{CurrentA: 50}); err != nil {
		t.Fatalf("TurnOn: %v", err)
	}
	runIdx := -1
	for i, op := range gw.ops {
		if op.kind == "set" && op.name == dev.Param(FieldRun) {
			runIdx = i
			break
		}
	}
	if runIdx <= 0 {
		t.Fatalf("REF.RUN never written")
	}
	prev := gw.ops[runIdx-1]
	if prev.kind != "get" || prev.name != dev.Param(FieldState) {
		t.Fatalf("op before REF.RUN = %+v, want a STATE read", prev)
	}
}

func TestTurnOn_StateTimeout(t *testing.T) {
	gw := newFakeGateway(spectroctl.StateIdle)
	gw.stickState = true // MODE.PC writes are ignored
	s := fastSequencer(gw, nil)
	dev := fastDevice(Quadrupole())

	_, err := s.TurnOn(context.Background(), dev, TrimSettings{CurrentA: 50})
	var timeoutErr *StateTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("err = %v, want StateTimeoutError", err)
	}
	if timeoutErr.Want != spectroctl.StateOff {
		t.Fatalf("timed out waiting for %s, want OFF (initial shutdown)", timeoutErr.Want)
	}
}

func TestTurnOn_RejectsNegativeCurrent(t *testing.T) {
	gw := newFakeGateway(spectroctl.StateOff)
	s := fastSequencer(gw, nil)

	_, err := s.TurnOn(context.Background(), fastDevice(Quadrupole()), TrimSettings{CurrentA: -1})
	if !errors.Is(err, ErrInvalidCurrent) {
		t.Fatalf("err = %v, want ErrInvalidCurrent", err)
	}
	if len(gw.ops) != 0 {
		t.Fatalf("expected zero device interactions, got %d", len(gw.ops))
	}
}

func TestTurnOff_AlreadyOffIsNoWrite(t *testing.T) {
	gw := newFakeGateway(spectroctl.StateOff)
	s := fastSequencer(gw, nil)

	if err := s.TurnOff(context.Background(), fastDevice(Dipole())); err != nil {
		t.Fatalf("TurnOff: %v", err)
	}
	if sets := gw.setOps(); len(sets) != 0 {
		t.Fatalf("expected zero writes on an already-off converter, got %v", sets)
	}
}

func TestTurnOff_CommandsOffAndWaits(t *testing.T) {
	gw := newFakeGateway(spectroctl.StateRunning)
	s := fastSequencer(gw, nil)
	dev := fastDevice(Dipole())

	if err := s.TurnOff(context.Background(), dev); err != nil {
		t.Fatalf("TurnOff: %v", err)
	}
	sets := gw.setOps()
	if len(sets) != 1 || sets[0].name != dev.Param(FieldModePC) || sets[0].value.Str != spectroctl.StateOff {
		t.Fatalf("writes = %v, want single MODE.PC=OFF", sets)
	}
}

func TestChangeSetpoint_DipoleRejected(t *testing.T) {
	gw := newFakeGateway(spectroctl.StateArmed)
	s := fastSequencer(gw, &fakePoster{})

	_, err := s.ChangeSetpoint(context.Background(), fastDevice(Dipole()), 100)
	if !errors.Is(err, ErrSetpointUnsupported) {
		t.Fatalf("err = %v, want ErrSetpointUnsupported", err)
	}
	if len(gw.ops) != 0 {
		t.Fatalf("expected zero device interactions, got %d", len(gw.ops))
	}
}

func TestChangeSetpoint_QuadrupoleSkipsBringUp(t *testing.T) {
	gw := newFakeGateway(spectroctl.StateArmed)
	gw.measured = 361.9
	book := &fakePoster{}
	s := fastSequencer(gw, book)
	dev := fastDevice(Quadrupole())

	got, err := s.ChangeSetpoint(context.Background(), dev, 500)
	if err != nil {
		t.Fatalf("ChangeSetpoint: %v", err)
	}
	if got != 361.9 {
		t.Fatalf("measured current = %v, want 361.9", got)
	}

	for _, op := range gw.setOps() {
		if op.name == dev.Param(FieldModePC) {
			t.Fatalf("setpoint change must not touch MODE.PC, got %v", op)
		}
	}
	// 500 A request is clamped before it reaches the device and the display.
	if final := gw.params[dev.Param(FieldPlepFinal)]; final.Float != MaxCurrentA {
		t.Fatalf("REF.PLEP.FINAL = %v, want %v", final.Float, MaxCurrentA)
	}
	if disp := gw.params[QuadDisplayParam]; disp.Float != MaxCurrentA {
		t.Fatalf("display setpoint = %v, want %v", disp.Float, MaxCurrentA)
	}
	if len(book.entries) != 1 || !strings.Contains(book.entries[0], "362.000 A") {
		t.Fatalf("logbook entries = %v, want one mentioning 362.000 A", book.entries)
	}
}

func TestSequencer_PropagatesGatewayErrors(t *testing.T) {
	gw := newFakeGateway(spectroctl.StateOff)
	gw.getErr = controls.ErrUnreachable
	s := fastSequencer(gw, nil)

	_, err := s.TurnOn(context.Background(), fastDevice(Quadrupole()), TrimSettings{CurrentA: 50})
	if !errors.Is(err, controls.ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
	if errors.Is(err, ErrNotArmed) {
		t.Fatalf("transport failure must not be reported as a precondition failure")
	}
}

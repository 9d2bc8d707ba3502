package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"spectroctl"
	"spectroctl/internal/controls"
	"spectroctl/internal/magnet"
	"spectroctl/internal/repository"
)

// Write/read rejections surfaced to clients as 4xx.
var (
	ErrUnknownDevice = errors.New("unknown device")
	ErrUnknownField  = errors.New("unknown parameter field")
	ErrInvalidWrite  = errors.New("invalid parameter write")
	ErrNotArmed      = errors.New("converter not armed: REF.RUN rejected")
)

// ParametersService implements the parameter surface over the persisted
// converter rows. Free-standing cells (display values and the like) that do
// not belong to a converter live in memory only.
type ParametersService struct {
	stateRepo repository.StateRepo
	eventRepo repository.EventRepo
	devices   map[string]bool

	mu    sync.Mutex
	cells map[string]controls.Value
}

func NewParametersService(stateRepo repository.StateRepo, eventRepo repository.EventRepo, devices []string) *ParametersService {
	known := make(map[string]bool, len(devices))
	for _, d := range devices {
		known[d] = true
	}
	return &ParametersService{
		stateRepo: stateRepo,
		eventRepo: eventRepo,
		devices:   known,
		cells:     map[string]controls.Value{},
	}
}

// EnsureDevices creates an OFF row for every configured converter that has
// no persisted state yet.
func (s *ParametersService) EnsureDevices(ctx context.Context) error {
	for device := range s.devices {
		st, err := s.stateRepo.Load(ctx, device)
		if err != nil {
			return fmt.Errorf("load %s: %w", device, err)
		}
		if st.Device != "" {
			continue
		}
		st = spectroctl.PCState{
			Device:    device,
			PC:        spectroctl.StateOff,
			UpdatedAt: time.Now().UTC(),
		}
		if err := s.stateRepo.Save(ctx, st); err != nil {
			return fmt.Errorf("bootstrap %s: %w", device, err)
		}
	}
	return nil
}

// Read resolves one named parameter.
func (s *ParametersService) Read(ctx context.Context, name string) (controls.Value, error) {
	device, field, ok := splitParam(name)
	if !ok {
		return controls.Value{}, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	if !s.devices[device] {
		return s.readCell(name)
	}

	st, err := s.stateRepo.Load(ctx, device)
	if err != nil {
		return controls.Value{}, err
	}
	if st.Device == "" {
		st.PC = spectroctl.StateOff
	}

	switch field {
	case magnet.FieldState:
		return controls.Record(map[string]string{"PC": st.PC}), nil
	case magnet.FieldMeasI:
		return controls.Float64(st.MeasuredA), nil
	case magnet.FieldFuncType:
		return controls.String(st.FuncType), nil
	case magnet.FieldTrimFinal, magnet.FieldPlepFinal:
		return controls.Float64(st.RefFinalA), nil
	case magnet.FieldTrimDuration:
		return controls.Float64(st.RefDurationS), nil
	}
	return controls.Value{}, fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// Write applies one named parameter write, moving the converter lifecycle
// where the field demands it.
func (s *ParametersService) Write(ctx context.Context, name string, v controls.Value) error {
	device, field, ok := splitParam(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	if !s.devices[device] {
		s.writeCell(name, v)
		return nil
	}

	st, err := s.stateRepo.Load(ctx, device)
	if err != nil {
		return err
	}
	if st.Device == "" {
		st = spectroctl.PCState{Device: device, PC: spectroctl.StateOff}
	}

	switch field {
	case magnet.FieldModePC:
		if err := applyModeWrite(&st, v.Str); err != nil {
			return err
		}
		s.appendEvent(ctx, device, "MODE.PC set to "+v.Str, map[string]any{"pc": st.PC})
	case magnet.FieldFuncType:
		if v.Str != spectroctl.FuncCTRIM && v.Str != spectroctl.FuncPLEP {
			return fmt.Errorf("%w: REF.FUNC.TYPE %q", ErrInvalidWrite, v.Str)
		}
		st.FuncType = v.Str
	case magnet.FieldTrimFinal, magnet.FieldPlepFinal:
		f, ok := v.AsFloat()
		if !ok || f < 0 {
			return fmt.Errorf("%w: %s must be a non-negative float", ErrInvalidWrite, field)
		}
		st.RefFinalA = f
	case magnet.FieldTrimDuration:
		f, ok := v.AsFloat()
		if !ok || f < 0 {
			return fmt.Errorf("%w: REF.TRIM.DURATION must be a non-negative float", ErrInvalidWrite)
		}
		st.RefDurationS = f
	case magnet.FieldRun:
		if st.PC != spectroctl.StateArmed {
			return fmt.Errorf("%w (state %s)", ErrNotArmed, st.PC)
		}
		st.PC = spectroctl.StateRunning
		s.appendEvent(ctx, device, "run triggered", map[string]any{
			"target_a": st.RefFinalA,
			"ramp_s":   st.RefDurationS,
		})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}

	// Writing the reference completes arming once the converter idles with a
	// function type and target selected.
	if st.PC == spectroctl.StateIdle && st.FuncType != "" && st.RefFinalA > 0 {
		st.PC = spectroctl.StateArmed
	}

	st.UpdatedAt = time.Now().UTC()
	return s.stateRepo.Save(ctx, st)
}

func applyModeWrite(st *spectroctl.PCState, mode string) error {
	switch mode {
	case spectroctl.StateOff:
		st.PC = spectroctl.StateOff
	case spectroctl.StateOnStandby:
		st.PC = spectroctl.StateOnStandby
	case spectroctl.StateIdle:
		st.PC = spectroctl.StateIdle
	default:
		return fmt.Errorf("%w: MODE.PC %q", ErrInvalidWrite, mode)
	}
	return nil
}

func (s *ParametersService) readCell(name string) (controls.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cells[name]
	if !ok {
		return controls.Value{}, fmt.Errorf("%w: %q", ErrUnknownDevice, name)
	}
	return v, nil
}

func (s *ParametersService) writeCell(name string, v controls.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cells[name] = v
}

// appendEvent records a machine transition; failures here never block the
// parameter write itself.
func (s *ParametersService) appendEvent(ctx context.Context, device, text string, meta map[string]any) {
	_ = s.eventRepo.Append(ctx, spectroctl.LogbookEvent{
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Author:     "gateway",
		Text:       device + ": " + text,
		Metadata:   meta,
	})
}

// splitParam splits "DEVICE/FIELD" on the first slash.
func splitParam(name string) (device, field string, ok bool) {
	i := strings.Index(name, "/")
	if i <= 0 || i == len(name)-1 {
		return "", "", false
	}
	return name[:i], name[i+1:], true
}

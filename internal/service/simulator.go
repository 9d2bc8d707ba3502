package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"spectroctl"
	"spectroctl/internal/magnet"
	"spectroctl/internal/repository"
)

// Converter physics constants for the bench model.
const (
	// Fallback ramp rate when a converter has no ramp duration (PLEP-style
	// endpoint moves).
	defaultRampAPerSec = 60.0
	// Decay toward zero current once the converter is commanded OFF.
	offDecayAPerSec = 40.0
	// Band within which the ramp is considered complete.
	settleBandA = 0.05
)

// SimulatorService advances measured currents between ticks: ramps while
// RUNNING, decays while OFF, re-arms once a ramp settles.
type SimulatorService struct {
	stateRepo repository.StateRepo
	eventRepo repository.EventRepo

	overcurrent map[string]bool // devices already flagged this excursion
}

func NewSimulatorService(stateRepo repository.StateRepo, eventRepo repository.EventRepo) *SimulatorService {
	return &SimulatorService{
		stateRepo:   stateRepo,
		eventRepo:   eventRepo,
		overcurrent: map[string]bool{},
	}
}

// Run ticks at the given interval until ctx is canceled.
func (s *SimulatorService) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			states, err := s.stateRepo.List(ctx)
			if err != nil {
				continue
			}
			for _, st := range states {
				elapsed := now.Sub(st.UpdatedAt).Seconds()
				if elapsed <= 0 {
					continue
				}
				if s.advance(ctx, &st, elapsed, now) {
					st.UpdatedAt = now.UTC()
					_ = s.stateRepo.Save(ctx, st)
				}
			}
		}
	}
}

// advance moves one converter forward by elapsed seconds. Returns true when
// the row changed.
func (s *SimulatorService) advance(ctx context.Context, st *spectroctl.PCState, elapsed float64, now time.Time) bool {
	changed := false

	switch st.PC {
	case spectroctl.StateRunning:
		if s.ramp(st, elapsed) {
			changed = true
		}
		// Ramp settled: converter holds current and reports ARMED again,
		// ready for the next trigger.
		if within(st.MeasuredA, st.RefFinalA, settleBandA) {
			st.MeasuredA = st.RefFinalA
			st.PC = spectroctl.StateArmed
			changed = true
		}
	case spectroctl.StateOff:
		if st.MeasuredA > 0 {
			st.MeasuredA = maxFloat(st.MeasuredA-offDecayAPerSec*elapsed, 0)
			changed = true
		}
	}

	s.flagOvercurrent(ctx, st, now)
	return changed
}

func (s *SimulatorService) ramp(st *spectroctl.PCState, elapsed float64) bool {
	rate := defaultRampAPerSec
	if st.RefDurationS > 0 {
		rate = absFloat(st.RefFinalA-st.MeasuredA) / st.RefDurationS
		if rate <= 0 {
			rate = defaultRampAPerSec
		}
	}
	step := rate * elapsed
	switch {
	case st.MeasuredA < st.RefFinalA:
		st.MeasuredA = minFloat(st.MeasuredA+step, st.RefFinalA)
	case st.MeasuredA > st.RefFinalA:
		st.MeasuredA = maxFloat(st.MeasuredA-step, st.RefFinalA)
	default:
		return false
	}
	return true
}

// flagOvercurrent appends one entry per excursion above the ceiling.
func (s *SimulatorService) flagOvercurrent(ctx context.Context, st *spectroctl.PCState, now time.Time) {
	if st.MeasuredA <= magnet.MaxCurrentA {
		delete(s.overcurrent, st.Device)
		return
	}
	if s.overcurrent[st.Device] {
		return
	}
	s.overcurrent[st.Device] = true
	_ = s.eventRepo.Append(ctx, spectroctl.LogbookEvent{
		EventID:    uuid.NewString(),
		OccurredAt: now.UTC(),
		Author:     "gateway",
		Text:       st.Device + ": measured current above ceiling",
		Metadata: map[string]any{
			"measured_a": st.MeasuredA,
			"max_a":      magnet.MaxCurrentA,
			"pc":         st.PC,
		},
	})
}

func within(a, b, band float64) bool { return absFloat(a-b) <= band }

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func maxFloat(a, b float64) float64 {
	if a >= b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a <= b {
		return a
	}
	return b
}

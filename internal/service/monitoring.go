package service

import (
	"context"
	"fmt"

	"spectroctl"
	"spectroctl/internal/repository"
)

type MonitoringService struct {
	stateRepo repository.StateRepo
}

func NewMonitoringService(stateRepo repository.StateRepo) *MonitoringService {
	return &MonitoringService{stateRepo: stateRepo}
}

// States returns the latest persisted snapshot of every converter.
func (s *MonitoringService) States(ctx context.Context) ([]spectroctl.PCState, error) {
	states, err := s.stateRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range states {
		states[i].UpdatedAt = states[i].UpdatedAt.UTC()
	}
	return states, nil
}

// Measured returns the present measured current of one converter.
func (s *MonitoringService) Measured(ctx context.Context, device string) (float64, error) {
	st, err := s.stateRepo.Load(ctx, device)
	if err != nil {
		return 0, err
	}
	if st.Device == "" {
		return 0, fmt.Errorf("%w: %q", ErrUnknownDevice, device)
	}
	return st.MeasuredA, nil
}

package service

import (
	"context"
	"time"

	"spectroctl"
	"spectroctl/internal/controls"
	"spectroctl/internal/repository"
)

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Parameters exposes the middleware-style parameter surface: named reads and
// writes with converter lifecycle rules behind the writes.
type Parameters interface {
	Read(ctx context.Context, name string) (controls.Value, error)
	Write(ctx context.Context, name string, v controls.Value) error
}

// Monitoring exposes read-only converter snapshots for dashboards and the
// measurement stream.
type Monitoring interface {
	States(ctx context.Context) ([]spectroctl.PCState, error)
	Measured(ctx context.Context, device string) (float64, error)
}

// Logbook is the append-only operator audit log.
type Logbook interface {
	Append(ctx context.Context, author, text string, meta any) error
	List(ctx context.Context, f LogFilter) ([]spectroctl.LogbookEvent, error)
}

// Simulator runs the background loop that ramps measured currents.
// Stop via context cancellation for graceful shutdown.
type Simulator interface {
	Run(ctx context.Context, tick time.Duration)
}

// LogFilter bounds logbook listings; zero times are open bounds.
type LogFilter struct {
	From time.Time
	To   time.Time
}

// Config carries the gateway's tunables out of viper.
type Config struct {
	Devices    []string // converter device names to bootstrap
	SigningKey string
	TokenTTL   time.Duration

	// Seed operator account, created at startup when missing. Empty
	// username disables seeding.
	OperatorUser string
	OperatorPass string
}

// Service aggregates all gateway sub-services.
type Service struct {
	Parameters
	Monitoring
	Logbook
	Simulator
	Authorization

	params *ParametersService
	auth   *AuthService
	cfg    Config
}

// NewService wires the repository layer into the concrete services.
func NewService(repos *repository.Repository, cfg Config) *Service {
	params := NewParametersService(repos.StateRepo, repos.EventRepo, cfg.Devices)
	auth := NewAuthService(repos.Auth, cfg.SigningKey, cfg.TokenTTL)
	return &Service{
		Parameters:    params,
		Monitoring:    NewMonitoringService(repos.StateRepo),
		Logbook:       NewLogbookService(repos.EventRepo),
		Simulator:     NewSimulatorService(repos.StateRepo, repos.EventRepo),
		Authorization: auth,
		params:        params,
		auth:          auth,
		cfg:           cfg,
	}
}

// Bootstrap seeds state rows for every configured converter so reads work
// before the first write, and creates the seed operator account when one is
// configured. Call once at startup.
func (s *Service) Bootstrap(ctx context.Context) error {
	if err := s.params.EnsureDevices(ctx); err != nil {
		return err
	}
	if s.cfg.OperatorUser != "" {
		return s.auth.EnsureOperator(s.cfg.OperatorUser, s.cfg.OperatorPass)
	}
	return nil
}

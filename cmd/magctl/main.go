package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"spectroctl/internal/controls"
	"spectroctl/internal/logger"
	"spectroctl/internal/magnet"
	"spectroctl/internal/sampler"
)

// Ramp duration the dipole falls back to when none is given.
const defaultRampSeconds = 15.0

// magctl drives the electron-spectrometer magnets: bring a converter up to a
// target current, shut it down, change the quadrupole setpoint while armed,
// or sample and plot the measured current.
func main() {
	var (
		magnetName   = pflag.String("magnet", "", "target magnet: dipole | quad")
		mode         = pflag.String("mode", "", "operation: on | off | plot | change")
		current      = pflag.Float64("current", 0, "target current in Amps")
		rampDuration = pflag.Float64("ramp_duration", 0, "ramp duration in seconds (dipole only, default 15)")
		energy       = pflag.Float64("energy", 0, "target energy in GeV (quadrupole only, alternative to --current)")
		plotOut      = pflag.String("out", "", "output PNG for plot mode (default <magnet>_current.png)")
		logLevel     = pflag.String("log", logger.InfoLevel, "log level: debug | info | warn | error")
	)
	pflag.Parse()

	log := logger.Get(*logLevel)

	dev, err := resolveMagnet(*magnetName)
	if err != nil {
		usage(err)
	}

	amps, err := resolveCurrent(dev, *current, *energy, log)
	if err != nil {
		usage(err)
	}
	ramp := *rampDuration
	if dev.NeedsRamp && *mode == "on" && ramp == 0 {
		ramp = defaultRampSeconds
	}
	if err := validateMode(dev, *mode, amps, ramp); err != nil {
		usage(err)
	}

	if err := loadConfig(); err != nil {
		log.Fatalw("error reading config", "err", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := controls.Dial(ctx, gatewayConfig())
	if err != nil {
		log.Fatalw("cannot open gateway session", "gateway", viper.GetString("gateway.url"), "err", err)
	}
	defer func() { _ = client.Close() }()

	if err := run(ctx, client, dev, *mode, amps, ramp, *plotOut, log); err != nil {
		reportFailure(dev, err, log)
	}
}

func usage(err error) {
	fmt.Fprintf(os.Stderr, "magctl: %v\n\n", err)
	pflag.Usage()
	os.Exit(2)
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	viper.SetEnvPrefix("MAGCTL")
	viper.AutomaticEnv()
	return viper.ReadInConfig()
}

func gatewayConfig() controls.Config {
	return controls.Config{
		BaseURL:  viper.GetString("gateway.url"),
		Username: viper.GetString("gateway.username"),
		Password: viper.GetString("gateway.password"),
		Timeout:  viper.GetDuration("gateway.timeout"),
	}
}

func resolveMagnet(name string) (magnet.Device, error) {
	switch name {
	case "dipole":
		return magnet.Dipole(), nil
	case "quad", "quadrupole":
		return magnet.Quadrupole(), nil
	case "":
		return magnet.Device{}, errors.New("--magnet is required")
	}
	return magnet.Device{}, fmt.Errorf("unknown magnet %q (want dipole or quad)", name)
}

// resolveCurrent settles the target current from --current or --energy.
// Energy input only applies to the quadrupole.
func resolveCurrent(dev magnet.Device, current, energy float64, log *logger.Logger) (float64, error) {
	if energy == 0 {
		return current, nil
	}
	if !dev.SupportsSetpoint {
		return 0, fmt.Errorf("--energy applies to the quadrupole only")
	}
	if current != 0 {
		return 0, errors.New("--current and --energy are mutually exclusive")
	}
	amps, clamped := magnet.EnergyToCurrent(energy)
	if clamped {
		log.Warnw("energy maps above the converter ceiling, clamped",
			"energy_gev", energy, "current_a", amps, "max_a", magnet.MaxCurrentA)
	} else {
		log.Infow("energy mapped to current", "energy_gev", energy, "current_a", amps)
	}
	return amps, nil
}

func validateMode(dev magnet.Device, mode string, amps, rampSeconds float64) error {
	switch mode {
	case "on":
		if amps <= 0 {
			return errors.New("--mode on requires --current or --energy")
		}
		if dev.NeedsRamp && rampSeconds <= 0 {
			return fmt.Errorf("--mode on for the %s requires --ramp_duration", dev.Label)
		}
	case "change":
		if !dev.SupportsSetpoint {
			return fmt.Errorf("--mode change is not supported by the %s", dev.Label)
		}
		if amps <= 0 {
			return errors.New("--mode change requires --current or --energy")
		}
	case "off", "plot":
		// no parameters beyond the magnet
	case "":
		return errors.New("--mode is required")
	default:
		return fmt.Errorf("unknown mode %q (want on, off, plot or change)", mode)
	}
	if rampSeconds > 0 && !dev.NeedsRamp {
		return fmt.Errorf("--ramp_duration applies to the dipole only")
	}
	return nil
}

func run(ctx context.Context, client *controls.HTTPClient, dev magnet.Device, mode string, amps, rampSeconds float64, plotOut string, log *logger.Logger) error {
	seq := magnet.NewSequencer(client, client, log)

	switch mode {
	case "on":
		trim := magnet.TrimSettings{
			CurrentA:     amps,
			RampDuration: time.Duration(rampSeconds * float64(time.Second)),
		}
		measured, err := seq.TurnOn(ctx, dev, trim)
		if err != nil {
			return err
		}
		log.Infow("converter on", "magnet", dev.Label, "measured_a", measured)

	case "off":
		if err := seq.TurnOff(ctx, dev); err != nil {
			return err
		}
		log.Infow("converter off", "magnet", dev.Label)

	case "change":
		measured, err := seq.ChangeSetpoint(ctx, dev, amps)
		if err != nil {
			return err
		}
		log.Infow("setpoint changed", "magnet", dev.Label, "measured_a", measured)

	case "plot":
		return plotCurrent(ctx, client, dev, plotOut, log)
	}
	return nil
}

// plotCurrent samples the measured current and writes the trace to a PNG.
// The quadrupole plot pins its y-axis to a narrow band around the mean so
// small excursions stay visible.
func plotCurrent(ctx context.Context, client controls.ParameterClient, dev magnet.Device, out string, log *logger.Logger) error {
	if out == "" {
		out = dev.Label + "_current.png"
	}

	series, err := sampler.New(client).Collect(ctx, dev.Param(magnet.FieldMeasI))
	if err != nil {
		return err
	}

	var yBand float64
	if dev.SupportsSetpoint {
		yBand = 2
	}
	if err := series.RenderPNG(out, yBand); err != nil {
		return fmt.Errorf("render plot: %w", err)
	}

	log.Infow("trace written", "magnet", dev.Label, "mean_a", series.Mean(), "samples", len(series.Readings), "out", out)
	return nil
}

// reportFailure maps sequencer errors onto operator-facing messages and
// exits non-zero.
func reportFailure(dev magnet.Device, err error, log *logger.Logger) {
	var timeout *magnet.StateTimeoutError

	switch {
	case errors.As(err, &timeout):
		log.Errorw("converter never reached the expected state",
			"magnet", dev.Label, "want", timeout.Want, "last", timeout.Last, "waited", timeout.Timeout)
	case errors.Is(err, magnet.ErrNotArmed):
		log.Errorw("converter is not armed, run not triggered", "magnet", dev.Label)
	case errors.Is(err, controls.ErrUnreachable):
		log.Errorw("control gateway unreachable", "magnet", dev.Label, "err", err)
	case errors.Is(err, controls.ErrUnauthorized):
		log.Errorw("control gateway rejected credentials", "err", err)
	default:
		log.Errorw("operation failed", "magnet", dev.Label, "err", err)
	}
	os.Exit(1)
}

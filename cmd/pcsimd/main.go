package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"spectroctl/internal/handlers"
	"spectroctl/internal/logger"
	"spectroctl/internal/repository"
	"spectroctl/internal/server"
	"spectroctl/internal/service"
)

const defaultSimTick = 1 * time.Second

// pcsimd is the bench gateway: it exposes the parameter interface of the
// spectrometer power converters over HTTP and simulates their ramps, so the
// operator tooling can be exercised without the machine.
func main() {
	if err := loadConfig(); err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	log := logger.Get(logLevel())

	db, err := openDB(log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	repos := repository.NewRepository(db)
	services := service.NewService(repos, serviceConfig())
	apiHandler := handlers.NewHandler(services, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := services.Bootstrap(ctx); err != nil {
		log.Fatalw("failed to seed converter states", "err", err)
	}

	go services.Simulator.Run(ctx, simTick())

	srv := &server.Server{}
	runHTTPServer(srv, viper.GetString("port"), apiHandler, log)
	log.Infow("gateway started", "port", viper.GetString("port"), "devices", viper.GetStringSlice("devices"))

	waitForShutdown(cancel, srv, log)
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	return viper.ReadInConfig()
}

func logLevel() string {
	if lvl := viper.GetString("log.level"); lvl != "" {
		return lvl
	}
	return logger.InfoLevel
}

// serviceConfig pulls the gateway tunables out of viper.
func serviceConfig() service.Config {
	return service.Config{
		Devices:      viper.GetStringSlice("devices"),
		SigningKey:   viper.GetString("auth.signing_key"),
		TokenTTL:     viper.GetDuration("auth.token_ttl"),
		OperatorUser: viper.GetString("auth.operator.username"),
		OperatorPass: viper.GetString("auth.operator.password"),
	}
}

func simTick() time.Duration {
	if tick := viper.GetDuration("sim.tick"); tick > 0 {
		return tick
	}
	return defaultSimTick
}

// openDB initializes the SQLite database using configuration.
func openDB(log *logger.Logger) (*sql.DB, error) {
	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", "pcsim.db")
		dbPath = "pcsim.db"
	}
	return repository.InitDB(dbPath)
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down gateway...")

	// stop the simulator
	cancel()

	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}

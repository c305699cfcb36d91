package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/apply"
	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/config"
	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/db"
	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/logger"
	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/mail"
	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/metrics"
	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/project"
	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/telemetry"
	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/user"
)

const (
	serviceName    = "ovp-projects"
	serviceVersion = "1.0.0"
)

type App struct {
	config        *config.Config
	router        *mux.Router
	server        *http.Server
	mailGateway   *mail.NATSGateway
	meterProvider *sdkmetric.MeterProvider
	logger        *slog.Logger
}

func New() *App {
	slogLogger := logger.NewWithServiceContext(serviceName, serviceVersion)

	// Set as default logger so slog.Info() uses JSON format
	slog.SetDefault(slogLogger)

	slogLogger.Info("initializing application")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	slogLogger.Info("config loaded", "env", cfg.Env)

	app := &App{
		config: cfg,
		router: mux.NewRouter(),
		logger: slogLogger,
	}

	ctx := context.Background()

	meterProvider, err := telemetry.InitMeterProvider(ctx, serviceName, serviceVersion, slogLogger)
	if err != nil {
		log.Fatal("failed to initialize telemetry:", err)
	}
	app.meterProvider = meterProvider

	m, err := metrics.New(otel.Meter(serviceName))
	if err != nil {
		log.Fatal("failed to initialize metrics:", err)
	}

	database := db.New(cfg.Database)
	if err := db.RunMigrations(ctx, database,
		(*user.User)(nil),
		(*project.Project)(nil),
		(*project.VolunteerRole)(nil),
		(*project.Work)(nil),
		(*project.Job)(nil),
		(*project.JobDate)(nil),
		(*apply.Apply)(nil),
	); err != nil {
		log.Fatal("failed to run migrations:", err)
	}

	mailGateway, err := mail.NewNATSGateway(cfg.NATS.URL, cfg.NATS.Subject, slogLogger)
	if err != nil {
		log.Fatal("failed to create NATS mail gateway:", err)
	}
	app.mailGateway = mailGateway
	mailer := mail.NewDispatcher(mailGateway, cfg.Platform.DefaultLocale, slogLogger, m)

	userRepo := user.NewRepository(database)
	projectRepo := project.NewRepository(database)
	projectService := project.NewService(projectRepo, userRepo, mailer, m, slogLogger, cfg.Platform)
	projectHandler := project.NewHandler(projectService, slogLogger)
	projectHandler.RegisterRoutes(app.router)

	applyRepo := apply.NewRepository(database)
	applyService := apply.NewService(applyRepo, projectRepo, userRepo, mailer, m, slogLogger, cfg.Platform)
	applyHandler := apply.NewHandler(applyService, slogLogger)
	applyHandler.RegisterRoutes(app.router)

	slogLogger.Info("application initialized successfully")

	return app
}

// RunCloseFinished executes the finished-project sweep once and returns. Meant
// for scheduled invocation (cron or a Kubernetes CronJob) alongside the
// long-running server; the sweep itself sends no notifications, so no NATS
// connection is made.
func RunCloseFinished(ctx context.Context) error {
	slogLogger := logger.NewWithServiceContext(serviceName, serviceVersion)
	slog.SetDefault(slogLogger)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	database := db.New(cfg.Database)
	defer database.Close()

	mailer := mail.NewDispatcher(mail.Discard{}, cfg.Platform.DefaultLocale, slogLogger, metrics.NewMock())
	userRepo := user.NewRepository(database)
	projectRepo := project.NewRepository(database)
	projectService := project.NewService(projectRepo, userRepo, mailer, metrics.NewMock(), slogLogger, cfg.Platform)

	closed, err := projectService.CloseFinishedProjects(ctx)
	if err != nil {
		return err
	}

	slogLogger.Info("finished-project sweep complete", "closed", closed)
	return nil
}

func (a *App) Run() error {
	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%s", a.config.Server.Port),
		Handler: a.router,
	}

	a.logger.Info("server starting", "port", a.config.Server.Port)
	return a.server.ListenAndServe()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down server")

	if err := a.server.Shutdown(ctx); err != nil {
		return err
	}

	if err := a.mailGateway.Close(); err != nil {
		a.logger.Error("NATS mail gateway close error", "error", err)
	}

	if a.meterProvider != nil {
		if err := telemetry.Shutdown(ctx, a.meterProvider, a.logger); err != nil {
			a.logger.Error("telemetry shutdown error", "error", err)
		}
	}

	return nil
}

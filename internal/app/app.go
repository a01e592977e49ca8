package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"interview-copilot-service/internal/config"
	apihttp "interview-copilot-service/internal/http"
	"interview-copilot-service/internal/observability"
	"interview-copilot-service/internal/observability/logging"
	"interview-copilot-service/internal/observability/metrics"
)

const serviceName = "interview-copilot-service"

// HealthService is the gRPC health service name of the copilot.
const HealthService = "interview.copilot.CopilotService"

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration
	Metrics     *metrics.Metrics
	Pipeline    *Pipeline
	Hub         *apihttp.Hub

	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool

	httpServer *http.Server
	httpLis    net.Listener
	grpcServer *grpc.Server
	grpcLis    net.Listener
	health     *health.Server
	obs        *observability.Server
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Configuration) (*Application, error) {
	a := &Application{
		Cfg:     cfg,
		Metrics: metrics.DefaultMetrics,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	if err := cfg.Validate(); err != nil {
		appLogger.Error().Err(err).Msg("Invalid configuration")
		return nil, err
	}

	a.ctx, a.cancel = context.WithCancel(context.Background())
	p, err := NewPipeline(a.ctx, cfg, a.Metrics)
	if err != nil {
		a.cancel()
		appLogger.Error().Err(err).Msg("Failed to build copilot pipeline")
		return nil, err
	}
	a.Pipeline = p

	a.Hub = apihttp.NewHub(p.Store, p.Session.Status, a.Metrics)
	p.Store.Subscribe(a.Hub.PublishChange)
	p.Session.OnStatus(a.Hub.PublishStatus)

	a.httpServer = &http.Server{
		Handler: apihttp.NewRouter(apihttp.Deps{
			Controller:     p.Session,
			Store:          p.Store,
			Hub:            a.Hub,
			BaseContext:    a.ctx,
			SampleRate:     cfg.Audio.SampleRateHz,
			AllowedOrigins: cfg.Service.AllowedOrigins,
			Ready:          a.Ready,
			Metrics:        a.Metrics,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.grpcServer = grpc.NewServer(
		grpc.UnaryInterceptor(observability.UnaryServerInterceptor(a.Metrics)),
		grpc.StreamInterceptor(observability.StreamServerInterceptor(a.Metrics)),
	)
	a.health = health.NewServer()
	grpc_health_v1.RegisterHealthServer(a.grpcServer, a.health)
	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(a.grpcServer)

	a.obs = observability.NewServer(":"+cfg.Service.MetricsPort, a.Ready)

	appLogger.Info().
		Str("mode", cfg.Copilot.Mode).
		Str("provider", cfg.AI.Provider).
		Bool("kafka", p.Publisher.Enabled()).
		Msg("Interview copilot application created")
	return a, nil
}

// setupLogger configures zerolog for the service.
func (a *Application) setupLogger() {
	level := a.Cfg.Observability.LogLevel
	if envLevel := os.Getenv("ZEROLOG_LOG_LEVEL"); envLevel != "" {
		level = strings.ToLower(envLevel)
	}
	format := a.Cfg.Observability.LogFormat
	if a.Cfg.Service.Env == "dev" {
		format = "console"
	}

	logging.Init(logging.Config{
		Level:      level,
		Format:     format,
		TimeFormat: time.RFC3339,
	})
	a.Logger = logging.Logger().With().
		Str("service", serviceName).
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("environment", a.Cfg.Service.Env).
		Msg("Logger setup completed")
}

// Ready reports whether the service accepts traffic.
func (a *Application) Ready() bool {
	return a.ready.Load()
}

// HTTPAddr returns the bound HTTP address once started.
func (a *Application) HTTPAddr() string {
	if a.httpLis == nil {
		return ""
	}
	return a.httpLis.Addr().String()
}

// GRPCAddr returns the bound gRPC address once started.
func (a *Application) GRPCAddr() string {
	if a.grpcLis == nil {
		return ""
	}
	return a.grpcLis.Addr().String()
}

// Start binds the listeners and serves traffic in the background.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()

	httpLis, err := net.Listen("tcp", ":"+a.Cfg.Service.HTTPPort)
	if err != nil {
		return err
	}
	grpcLis, err := net.Listen("tcp", ":"+a.Cfg.Service.GRPCPort)
	if err != nil {
		httpLis.Close()
		return err
	}
	a.httpLis, a.grpcLis = httpLis, grpcLis

	a.obs.Start()
	go func() {
		if err := a.grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			startLogger.Error().Err(err).Msg("gRPC serve failed")
		}
	}()
	go func() {
		if err := a.httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			startLogger.Error().Err(err).Msg("HTTP serve failed")
		}
	}()

	a.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	a.health.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_SERVING)
	a.ready.Store(true)

	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Str("httpAddr", a.HTTPAddr()).
		Str("grpcAddr", a.GRPCAddr()).
		Msg("Interview copilot service started")
	return nil
}

// Shutdown performs a best-effort cleanup before process exit. The current
// session is torn down before queued events are flushed.
func (a *Application) Shutdown(ctx context.Context) {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	shutdownLogger.Info().Msg("Interview copilot service shutting down")
	a.ready.Store(false)
	a.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	a.health.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	if err := a.Pipeline.Session.Stop(); err != nil {
		shutdownLogger.Warn().Err(err).Msg("Failed to stop session")
	}
	a.cancel()
	a.Hub.Close()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		shutdownLogger.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	a.grpcServer.GracefulStop()
	if err := a.Pipeline.Close(); err != nil {
		shutdownLogger.Warn().Err(err).Msg("Pipeline close reported errors")
	}
	if err := a.obs.Shutdown(ctx); err != nil {
		shutdownLogger.Warn().Err(err).Msg("Observability shutdown incomplete")
	}
	shutdownLogger.Info().Msg("Interview copilot service stopped")
}

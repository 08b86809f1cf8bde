// ABOUTME: Gateway orchestrator that wires the orchestration core and serves it
// ABOUTME: Manages store, backend client, HTTP API, gRPC health and background workers lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/2389/muse-gateway/internal/auth"
	"github.com/2389/muse-gateway/internal/backend"
	"github.com/2389/muse-gateway/internal/config"
	"github.com/2389/muse-gateway/internal/conversation"
	"github.com/2389/muse-gateway/internal/recall"
	"github.com/2389/muse-gateway/internal/router"
	"github.com/2389/muse-gateway/internal/store"
	"github.com/2389/muse-gateway/internal/telemetry"
	"github.com/2389/muse-gateway/internal/toolsession"
	"github.com/2389/muse-gateway/internal/worker"
	"github.com/2389/muse-gateway/internal/workflow"
)

// HealthService is the gRPC health service name reporting orchestrator readiness.
const HealthService = "muse.gateway.Orchestrator"

// Backend is every external collaborator the gateway drives. *backend.Client implements it.
type Backend interface {
	workflow.Planner
	workflow.ToolExecutor
	workflow.Summarizer
	workflow.Responder
	workflow.StreamResponder
	router.SecondaryPath
	recall.SignalClassifier
	toolsession.SessionOpener
	toolsession.ConnectionProvider
	worker.Runner
	worker.Notifier

	Ping(ctx context.Context) error
}

// Gateway owns the orchestration core and the servers exposing it.
type Gateway struct {
	config       *config.Config
	store        store.Store
	backend      Backend
	recall       *recall.Provider
	sessions     *toolsession.Manager
	router       *router.Router
	conversation *conversation.Service
	scheduler    *worker.Scheduler
	verifier     *auth.JWTVerifier

	grpcServer *grpc.Server
	health     *health.Server
	httpServer *http.Server
	logger     *slog.Logger
}

// initStore creates and returns a store based on config and environment.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("MUSE_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a Gateway backed by SQLite and the configured backend service.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	client, err := backend.New(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		Token:   cfg.Backend.Token,
		Timeout: cfg.Backend.Timeout,
	}, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	return newGateway(cfg, s, client, logger), nil
}

// newGateway assembles the core from its collaborators.
func newGateway(cfg *config.Config, s store.Store, be Backend, logger *slog.Logger) *Gateway {
	recorder := telemetry.NewRecorder(s, logger)

	provider := recall.New(s, be, recall.Options{
		CacheTTL:   cfg.Recall.CacheTTL,
		CacheSize:  cfg.Recall.CacheSize,
		FastLimit:  cfg.Recall.FastLimit,
		SmartLimit: cfg.Recall.SmartLimit,
	}, logger)

	sessions := toolsession.New(s, be, be, toolsession.Options{
		Expiry:     cfg.Sessions.Expiry,
		StaleAfter: cfg.Sessions.StaleAfter,
	}, logger)

	engine := workflow.New(workflow.Deps{
		Planner:         be,
		Executor:        be,
		Summarizer:      be,
		Responder:       be,
		StreamResponder: be,
		Sessions:        sessions,
		Telemetry:       recorder,
	}, workflow.Options{
		MaxIterations:    cfg.Routing.MaxIterations,
		MaxParallelTools: cfg.Workflow.MaxParallelTools,
		ToolOutputBudget: cfg.Workflow.ToolOutputBudget,
		SummaryBudget:    cfg.Workflow.SummaryBudget,
		PlanBudget:       cfg.Workflow.PlanBudget,
	}, logger)

	var secondary router.SecondaryPath
	if cfg.Routing.SecondaryEnabled {
		secondary = be
	}
	rt := router.New(provider, engine, secondary, router.Options{
		PrimaryEnabled:   cfg.Routing.PrimaryEnabled,
		SecondaryEnabled: cfg.Routing.SecondaryEnabled,
		MaxIterations:    cfg.Routing.MaxIterations,
	}, logger)

	events := conversation.NewEventBroadcaster(logger.With("component", "broadcaster"))
	conv := conversation.New(s, rt, events, logger)

	var scheduler *worker.Scheduler
	if cfg.Workers.Enabled {
		scheduler = worker.New(s, be, be, worker.Options{Schedule: cfg.Workers.Schedule}, logger)
	}

	gw := &Gateway{
		config:       cfg,
		store:        s,
		backend:      be,
		recall:       provider,
		sessions:     sessions,
		router:       rt,
		conversation: conv,
		scheduler:    scheduler,
		logger:       logger.With("component", "gateway"),
	}
	if cfg.Auth.JWTSecret != "" {
		gw.verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	}

	gw.grpcServer, gw.health = newHealthServer()

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return gw
}

// newHealthServer creates a gRPC server exposing only the standard health service.
func newHealthServer() (*grpc.Server, *health.Server) {
	server := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	hs := health.NewServer()
	hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(server, hs)
	return server, hs
}

// Handler returns the HTTP handler serving the API and health endpoints.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	api := http.NewServeMux()
	g.registerAPIRoutes(api)

	if g.verifier != nil {
		mux.Handle("/api/", auth.HTTPAuthMiddleware(g.verifier)(api))
		g.logger.Info("HTTP auth middleware enabled")
	} else {
		mux.Handle("/api/", api)
		g.logger.Warn("HTTP auth disabled - no jwt_secret configured, user_id taken from the request")
	}
	return mux
}

// setupListeners creates TCP listeners for HTTP and, when configured, gRPC.
func (g *Gateway) setupListeners() (grpcLn, httpLn net.Listener, err error) {
	g.logger.Info("starting gateway",
		"grpc_addr", g.config.Server.GRPCAddr,
		"http_addr", g.config.Server.HTTPAddr,
	)

	httpLn, err = net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	if g.config.Server.GRPCAddr == "" {
		return nil, httpLn, nil
	}
	grpcLn, err = net.Listen("tcp", g.config.Server.GRPCAddr)
	if err != nil {
		_ = httpLn.Close()
		return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
	}
	return grpcLn, httpLn, nil
}

// startServers starts gRPC and HTTP servers in goroutines, returning error channel.
func (g *Gateway) startServers(grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 2)

	if grpcLn != nil {
		go func() {
			g.logger.Info("gRPC health server listening", "addr", grpcLn.Addr().String())
			if err := g.grpcServer.Serve(grpcLn); err != nil {
				errCh <- fmt.Errorf("gRPC server: %w", err)
			}
		}()
	}

	go func() {
		g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := g.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		g.drainErrors(errCh)
		return err
	}
}

// drainErrors drains any remaining errors from the channel.
func (g *Gateway) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		g.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// Run starts the servers and the background worker lane and blocks until the
// context is canceled. Returns nil on graceful shutdown, or an error if a server fails.
func (g *Gateway) Run(ctx context.Context) error {
	grpcListener, httpListener, err := g.setupListeners()
	if err != nil {
		return err
	}

	if g.scheduler != nil {
		if err := g.scheduler.Start(); err != nil {
			_ = httpListener.Close()
			if grpcListener != nil {
				_ = grpcListener.Close()
			}
			return fmt.Errorf("starting background workers: %w", err)
		}
	}

	g.health.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)
	errCh := g.startServers(grpcListener, httpListener)

	serverErr := g.waitForShutdownSignal(ctx, errCh)
	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The original context is already canceled at this point.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (g *Gateway) shutdownGRPCServer(ctx context.Context) {
	stopped := make(chan struct{})
	go func() {
		g.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the servers and background workers and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")
	g.health.Shutdown()

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	g.shutdownGRPCServer(ctx)

	if g.scheduler != nil {
		errs = appendCloseError(errs, "worker shutdown", g.scheduler.Stop(ctx))
	}

	if events := g.conversation.Events(); events != nil {
		events.Close()
	}
	g.recall.Close()

	errs = appendCloseError(errs, "store close", g.store.Close())

	return errors.Join(errs...)
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK when a generation path is configured and the backend answers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	opts := g.router.Options()
	if !opts.PrimaryEnabled && !opts.SecondaryEnabled {
		g.health.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no generation path enabled"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := g.backend.Ping(ctx); err != nil {
		g.health.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "backend unavailable: %v", err)
		return
	}

	g.health.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Command archimedesd is the Archimedes server entrypoint, grounded in the
// teacher gateway's main.go: load config, build the logger, load the
// artifact and policy bundle, wire the pipeline, serve, and shut down
// gracefully on SIGTERM/SIGINT.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/archimedes-run/archimedes/archerr"
	"github.com/archimedes-run/archimedes/artifact"
	"github.com/archimedes-run/archimedes/authz"
	"github.com/archimedes-run/archimedes/config"
	"github.com/archimedes-run/archimedes/ffi"
	"github.com/archimedes-run/archimedes/inject"
	"github.com/archimedes-run/archimedes/invoke"
	"github.com/archimedes-run/archimedes/logging"
	"github.com/archimedes-run/archimedes/middleware"
	"github.com/archimedes-run/archimedes/resolver"
	"github.com/archimedes-run/archimedes/server"
	"github.com/archimedes-run/archimedes/tasks"
	"github.com/archimedes-run/archimedes/telemetry"
	"github.com/archimedes-run/archimedes/validate"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "archimedesd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return archerr.Wrap(archerr.KindConfiguration, err, "failed to load configuration")
	}
	logger := logging.New(cfg)

	if cfg.ArtifactPath == "" {
		return archerr.New(archerr.KindConfiguration, "ARCHIMEDES_ARTIFACT_PATH is required")
	}
	loadedArtifact, err := artifact.LoadFile(cfg.ArtifactPath)
	if err != nil {
		return err
	}
	logger.Info().Str("service", loadedArtifact.ServiceName).Int("operations", len(loadedArtifact.Operations)).Msg("contract artifact loaded")

	resolverInst, err := resolver.New(loadedArtifact)
	if err != nil {
		return err
	}

	validator, err := validate.New(loadedArtifact)
	if err != nil {
		return archerr.Wrap(archerr.KindArtifactLoad, err, "failed to compile contract schemas")
	}

	container := inject.New()
	spawner := tasks.NewSpawner(32)
	scheduler := tasks.NewScheduler(spawner)

	evaluator, authzCache := buildEvaluator(cfg)
	authorizer := authz.New(cfg.ServiceName, evaluator, authzCache)
	if cfg.EnableRemoteAuthzCache {
		remote, err := authz.NewRemoteCache(cfg.RedisURL, cfg.ServiceName, authzCache.TTL)
		if err != nil {
			return archerr.Wrap(archerr.KindConfiguration, err, "failed to configure remote authorization cache")
		}
		if err := remote.Ping(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("remote authorization cache unreachable at startup, continuing with local cache only")
		}
		authorizer.WithRemoteCache(remote)
	}

	recorder := telemetry.New(logger)

	requestMode := validate.ModeEnforce
	if cfg.RequestValidationMode == config.ValidationMonitor {
		requestMode = validate.ModeMonitor
	}

	stages := []middleware.Stage{
		middleware.RequestIDStage{TrustIncoming: true},
		middleware.NewTracingStage(cfg.ServiceName),
		middleware.IdentityStage{},
	}
	if cfg.EnableAuthorization {
		stages = append(stages, middleware.AuthorizationStage{Authorizer: authorizer, Service: cfg.ServiceName})
	}
	if cfg.EnableValidation {
		stages = append(stages, middleware.RequestValidationStage{
			Validator: validator, Artifact: loadedArtifact, Mode: requestMode,
			Logf: func(format string, args ...any) { logger.Warn().Msgf(format, args...) },
		})
	}

	lifecycle := server.NewLifecycle(logger, container, cfg.ShutdownTimeout(), cfg.MaxTotalConnections, cfg.MaxPerClientConnections)
	lifecycle.OnStartup(func(ctx context.Context) error {
		scheduler.Start()
		return nil
	})
	lifecycle.OnShutdown(func(ctx context.Context) error {
		<-scheduler.Stop().Done()
		return nil
	})

	// Post-handler stages unwind in the reverse of this append order (the
	// last stage appended sits closest to final and runs its post-logic
	// first): ResponseValidationStage, then TelemetryStage, then, last of
	// all, ErrorNormalizationStage. That way ResponseValidationStage
	// always sees the handler's raw output, never an error envelope that
	// ErrorNormalizationStage has already rewritten.
	postStages := []middleware.Stage{middleware.ErrorNormalizationStage{}, middleware.TelemetryStage{Recorder: recorder}}
	if cfg.EnableResponseValidation {
		postStages = append(postStages, middleware.ResponseValidationStage{
			Validator: validator, Artifact: loadedArtifact,
			Logf: func(format string, args ...any) { logger.Warn().Msgf(format, args...) },
		})
	}
	stages = append(stages, postStages...)

	// The handler stage itself is dispatched per-operation by a Dispatcher
	// keyed on req.Context.OperationID: native handlers registered via
	// invoke.Register/invoke.RegisterOperation, falling back to a foreign
	// handler registered through the binding ABI (ffi.GlobalRegistry), and
	// finally a 404 for anything neither claims.
	dispatcher := invoke.NewDispatcher(ffi.GlobalRegistry())
	registerOperations(dispatcher)
	pipeline := middleware.Build(stages, dispatcher.AsFinal(notFoundTerminal))

	ctx := context.Background()
	if err := lifecycle.RunStartup(ctx); err != nil {
		return archerr.Wrap(archerr.KindServerStart, err, "startup hooks failed")
	}

	httpServer := server.New(server.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.ListenAddr, cfg.ListenPort),
		Resolver:     resolverInst,
		Pipeline:     pipeline,
		Container:    container,
		Lifecycle:    lifecycle,
		Logger:       logger,
		MaxBodyBytes: int64(cfg.MaxBodySizeBytes),
	})

	ffi.GlobalRegistry().Freeze()
	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- httpServer.Serve() }()

	logger.Info().Str("addr", fmt.Sprintf("%s:%d", cfg.ListenAddr, cfg.ListenPort)).Msg("archimedes listening")

	shutdownCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		server.WaitForSignal(shutdownCtx)
		cancel()
	}()

	select {
	case err := <-serveErrCh:
		return err
	case <-shutdownCtx.Done():
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer drainCancel()
	if err := httpServer.Shutdown(drainCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown did not complete cleanly")
	}
	lifecycle.RunShutdown(drainCtx)
	return nil
}

// getUserRequest/getUserResponse, createUserRequest, and deleteUserRequest
// mirror the end-to-end scenarios this framework's own contract is built
// against; they exist to prove a contract-matched operation genuinely
// reaches a handler, not as a sample application.
type getUserRequest struct {
	UserID string `path:"userId"`
}

type getUserResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type createUserRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

type createUserResponse struct {
	ID string `json:"id"`
}

type deleteUserRequest struct {
	UserID string `path:"userId"`
}

type deleteUserResponse struct {
	Deleted bool `json:"deleted"`
}

func registerOperations(d *invoke.Dispatcher) {
	invoke.Register(d, "getUser", func(ctx *middleware.MiddlewareContext, req getUserRequest) (getUserResponse, error) {
		return getUserResponse{ID: req.UserID, Name: "User " + req.UserID}, nil
	})
	invoke.Register(d, "createUser", func(ctx *middleware.MiddlewareContext, req createUserRequest) (createUserResponse, error) {
		return createUserResponse{ID: req.Name}, nil
	})
	invoke.Register(d, "deleteUser", func(ctx *middleware.MiddlewareContext, req deleteUserRequest) (deleteUserResponse, error) {
		return deleteUserResponse{Deleted: true}, nil
	})
}

func notFoundTerminal(req *middleware.RequestView) *middleware.Response {
	status := 404
	resp := middleware.NewResponse(status)
	resp.Body = archerr.Render(status, "NOT_FOUND", "no handler registered for this operation", req.Context.RequestID)
	return resp
}

func buildEvaluator(cfg *config.Config) (authz.Evaluator, authz.CacheConfig) {
	cacheCfg := authz.CacheConfig{
		MaxEntries:  cfg.Cache.MaxEntries,
		TTL:         cfg.Cache.CacheTTL(),
		CacheDenies: cfg.Cache.CacheDenies,
	}

	if cfg.PolicyBundlePath == "" {
		return allowAllEvaluator{}, cacheCfg
	}

	f, err := os.Open(cfg.PolicyBundlePath)
	if err != nil {
		return denyAllEvaluator{reason: "policy bundle unavailable: " + err.Error()}, cacheCfg
	}
	defer f.Close()

	bundle, err := authz.ParseBundle(f)
	if err != nil {
		return denyAllEvaluator{reason: "policy bundle invalid: " + err.Error()}, cacheCfg
	}

	evaluator, err := authz.NewOPAEvaluator(context.Background(), bundle)
	if err != nil {
		return denyAllEvaluator{reason: "policy evaluator failed to start: " + err.Error()}, cacheCfg
	}
	return evaluator, cacheCfg
}

// allowAllEvaluator is the zero-config default: no policy bundle configured
// means every request is allowed. Used only when PolicyBundlePath is unset.
type allowAllEvaluator struct{}

func (allowAllEvaluator) Evaluate(_ context.Context, _ authz.Input) (authz.Decision, error) {
	return authz.Decision{Allowed: true, Reason: "no policy bundle configured"}, nil
}
func (allowAllEvaluator) Reload(_ context.Context, _ *authz.Bundle) error { return nil }

// denyAllEvaluator fails closed when a configured policy bundle could not
// be loaded or prepared.
type denyAllEvaluator struct{ reason string }

func (d denyAllEvaluator) Evaluate(_ context.Context, _ authz.Input) (authz.Decision, error) {
	return authz.Decision{Allowed: false, Reason: d.reason}, nil
}
func (denyAllEvaluator) Reload(_ context.Context, _ *authz.Bundle) error { return nil }

// Package server wires configuration, storage, token services and the HTTP
// transport into a runnable application.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/audit"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/httpapi"
	"github.com/dmitrijs2005/gophauth/internal/server/passwords"
	"github.com/dmitrijs2005/gophauth/internal/server/ratelimit"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/memory"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"github.com/redis/go-redis/v9"
)

const auditBuffer = 256

// Seams for tests.
var (
	logOutput    io.Writer = os.Stdout
	openPostgres           = func(ctx context.Context, dsn string) (repomanager.RepositoryManager, error) {
		return repomanager.OpenPostgres(ctx, dsn)
	}
	newS3Client = func(ctx context.Context, c audit.S3Config) (audit.PutObjectAPI, error) {
		return audit.NewS3Client(ctx, c)
	}
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	repos     repomanager.RepositoryManager
	limiter   *ratelimit.Limiter
	archive   *audit.Dispatcher
	service   *services.AuthService
	apiServer *httpapi.HTTPServer
}

// NewApp validates c and builds every component. On error nothing is left
// open.
func NewApp(ctx context.Context, c *config.Config) (_ *App, err error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.NewJSONLogger(logOutput, logging.ParseLevel(c.LogLevel))
	app := &App{config: c, logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	if app.repos, err = app.initRepositories(ctx); err != nil {
		return nil, err
	}

	codec, err := auth.NewCodec([]byte(c.SecretKey), c.SigningAlgorithm, auth.WithLeeway(c.ClockSkewLeeway))
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}
	hasher, err := passwords.NewBcrypt(0)
	if err != nil {
		return nil, err
	}

	sink, err := app.initAudit(ctx)
	if err != nil {
		return nil, err
	}

	opts := []services.Option{
		services.WithLogger(logger),
		services.WithAuditSink(sink),
	}
	if c.RedisAddr != "" {
		app.limiter = ratelimit.New(redis.NewClient(&redis.Options{Addr: c.RedisAddr}), ratelimit.Config{
			MaxLoginAttempts:      c.MaxLoginAttempts,
			LoginCooldownDuration: c.LoginCooldownDuration,
		})
		opts = append(opts, services.WithThrottle(app.limiter))
	}

	app.service, err = services.NewAuthService(app.repos, codec, hasher, services.SettingsFromConfig(c), opts...)
	if err != nil {
		return nil, err
	}

	app.apiServer = httpapi.NewHTTPServer(c.EndpointAddrHTTP, logger, app.service)
	return app, nil
}

func (app *App) initRepositories(ctx context.Context) (repomanager.RepositoryManager, error) {
	if app.config.UsesMemoryStore() {
		app.logger.Warn(ctx, "Using in-memory store, data is lost on exit")
		return memory.NewStore(), nil
	}

	rm, err := openPostgres(ctx, app.config.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := rm.RunMigrations(ctx); err != nil {
		_ = rm.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return rm, nil
}

// initAudit always logs security events and additionally archives them to
// S3 when a bucket is configured.
func (app *App) initAudit(ctx context.Context) (audit.Sink, error) {
	logSink := audit.NewLogSink(app.logger)
	if app.config.S3Bucket == "" {
		return logSink, nil
	}

	client, err := newS3Client(ctx, audit.S3Config{
		Region:       app.config.S3Region,
		AccessKey:    app.config.S3RootUser,
		SecretKey:    app.config.S3RootPassword,
		BaseEndpoint: app.config.S3BaseEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	app.archive = audit.NewDispatcher(audit.NewS3Sink(client, app.config.S3Bucket), auditBuffer, app.logger)
	return audit.Multi{logSink, app.archive}, nil
}

// Run serves HTTP until ctx is canceled, then releases all resources.
func (app *App) Run(ctx context.Context) error {
	app.logger.Info(ctx, "Starting app...")
	defer app.Close()

	if err := app.apiServer.Run(ctx); err != nil {
		app.logger.Error(ctx, "http server failed", "error", err)
		return err
	}
	app.logger.Info(ctx, "App stopped")
	return nil
}

// Close flushes pending audit events and closes the store and Redis client.
func (app *App) Close() error {
	var errs []error
	if app.archive != nil {
		app.archive.Close()
		app.archive = nil
	}
	if app.limiter != nil {
		errs = append(errs, app.limiter.Close())
		app.limiter = nil
	}
	if app.repos != nil {
		errs = append(errs, app.repos.Close())
		app.repos = nil
	}
	return errors.Join(errs...)
}

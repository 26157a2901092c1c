package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"spmagent/internal/generator"
	"spmagent/internal/handler"
	"spmagent/internal/httpserver"
	"spmagent/internal/repository"
	"spmagent/internal/service/auth"
	"spmagent/internal/service/project"
	"spmagent/pkg/mq"
	"spmagent/pkg/outbox"
	"spmagent/pkg/redis"
	"spmagent/pkg/util"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply the schema before serving")
	return cmd
}

func runServe(parent context.Context, flags *globalFlags, migrate bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init config, logger, DB
	cfg, log, pool, err := bootstrap(ctx, flags)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer pool.Close()

	if migrate {
		if err := repository.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	// Init Redis
	rdb, err := redis.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()

	// Init Repositories
	projects := repository.NewProjectRepository(pool)
	users := repository.NewUserRepository(pool)
	sessions := repository.NewSessionRepository(rdb)

	// Init Services
	tokens := util.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	authSvc := auth.NewService(users, sessions, tokens, log)

	gen := generator.NewAnthropicGenerator(cfg.Generator, log)
	claims := util.NewDeduper(rdb, cfg.Planner.IdempotencyTTL, log)
	projectSvc := project.NewService(projects, users, gen, claims, cfg.Planner, log)

	readyChecks := []httpserver.ReadyCheck{
		{Name: "db", Check: func(ctx context.Context) error { return pool.Ping(ctx) }},
		{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	}

	// Init Outbox Dispatcher
	if cfg.MQ.Enabled {
		publisher, err := mq.NewPublisher(cfg.MQ.URL, log)
		if err != nil {
			return fmt.Errorf("connect mq: %w", err)
		}
		defer publisher.Close()

		readyChecks = append(readyChecks, httpserver.ReadyCheck{
			Name: "mq",
			Check: func(context.Context) error {
				if !publisher.IsConnected() {
					return errors.New("connection closed")
				}
				return nil
			},
		})

		dispatcher := newDispatcher(cfg.Outbox.Interval, cfg.Outbox.BatchSize, cfg.Outbox.MaxRetries, outbox.NewRepository(pool), publisher, log)
		go dispatcher.Start(ctx)
	} else {
		log.Warn("MQ disabled, outbox events stay pending until dispatch-outbox runs")
	}

	// Init HTTP
	router := httpserver.NewRouter(httpserver.Deps{
		Auth:          handler.NewAuthHandler(authSvc, log),
		Projects:      handler.NewProjectHandler(projectSvc, log),
		Authenticator: authSvc,
		CreateLimiter: httpserver.NewOwnerLimiter(cfg.RateLimit.CreatePerMinute, cfg.RateLimit.Burst),
		ReadyChecks:   readyChecks,
		CORSOrigin:    cfg.Server.CORSOrigin,
		Logger:        log,
	})
	srv := router.Server(cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
		return err
	}
	log.Info("Server stopped")
	return nil
}

func newDispatcher(interval time.Duration, batch, retries int, store outbox.Store, pub outbox.Publisher, log *zap.Logger) *outbox.Dispatcher {
	d := outbox.NewDispatcher(store, pub, log)
	if interval > 0 {
		d = d.WithInterval(interval)
	}
	if batch > 0 {
		d = d.WithBatchSize(batch)
	}
	if retries > 0 {
		d = d.WithMaxRetries(retries)
	}
	return d
}

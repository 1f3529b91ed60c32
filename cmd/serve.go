package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spc/internal/counter"
	"github.com/desertthunder/spc/internal/repositories"
	"github.com/desertthunder/spc/internal/server"
	"github.com/desertthunder/spc/internal/services"
	"github.com/desertthunder/spc/internal/shared"
	"github.com/desertthunder/spc/internal/tasks"
	"github.com/desertthunder/spc/internal/workflow"
)

// stack is every component the cleanup service is built from, wired from one configuration.
type stack struct {
	db          *sql.DB
	vault       *repositories.SecretRepository
	counterRepo *repositories.CounterRepository
	counters    *counter.Registry
	instances   *repositories.InstanceRepository
	spotify     *services.SpotifyService
	refresher   *tasks.Refresher
	cleaner     *tasks.Cleaner
	host        *workflow.Host
}

func (r *Runner) buildStack() (*stack, error) {
	cfg := r.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rule, err := tasks.RuleByName(cfg.Cleanup.ContributorRule)
	if err != nil {
		return nil, err
	}

	spotify, err := services.NewSpotifyService(cfg.Credentials.Spotify.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to create Spotify service: %w", err)
	}
	spotify.SetHTTPClient(r.httpClient)

	db, err := shared.OpenDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	s := &stack{
		db:          db,
		vault:       repositories.NewSecretRepository(db, cfg.Vault.Name),
		counterRepo: repositories.NewCounterRepository(db),
		instances:   repositories.NewInstanceRepository(db),
		spotify:     spotify,
	}
	s.counters = counter.NewRegistry(s.counterRepo, shared.WithLogger(r.logger, "component", "counter"))

	diff := tasks.NewDiffEngine(tasks.DiffOpts{
		PageSize:          cfg.Cleanup.PageSize,
		MaxConcurrency:    cfg.Cleanup.MaxConcurrency,
		RequestsPerSecond: cfg.Cleanup.RequestsPerSecond,
		Rule:              rule,
	})
	s.refresher = tasks.NewRefresher(s.vault, spotify, tasks.RefreshOpts{
		Interval: cfg.Cleanup.Interval(),
		Slack:    cfg.Cleanup.TokenSlack,
		Lifetime: cfg.Cleanup.TokenLifetime,
	}, shared.WithLogger(r.logger, "component", "refresh"))
	s.cleaner = tasks.NewCleaner(s.vault, spotify, diff, s.counters, shared.WithLogger(r.logger, "component", "cleanup"))

	orchLogger := shared.WithLogger(r.logger, "component", "orchestrator")
	orch := workflow.NewOrchestrator(s.instances, workflow.TaskActivities{
		Refresher: s.refresher,
		Cleaner:   s.cleaner,
	}, workflow.OrchestratorOpts{
		Interval: cfg.Cleanup.Interval(),
		Retry:    workflow.PolicyFromConfig(cfg.Cleanup.Retry),
		Observer: workflow.NewLoggingObserver(orchLogger),
		Logger:   orchLogger,
	})
	s.host = workflow.NewHost(s.instances, orch, shared.WithLogger(r.logger, "component", "host"))

	return s, nil
}

// close stops the host, drains the counters and closes the database.
func (s *stack) close(ctx context.Context) error {
	var errs []error
	if err := s.host.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.counters.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// routes builds the service router: authorization, orchestration API and counters.
func (r *Runner) routes(s *stack) *server.BasicRouter {
	router := server.NewBasicRouter()
	router.Use(server.RequestLogger(r.logger), server.Recoverer(r.logger))

	router.Handler(server.NewLoginHandler(s.spotify))
	router.Handler(server.NewCallbackHandler(s.spotify, s.vault, server.CallbackOpts{
		RedirectURL: r.config.Server.RedirectURL,
		Lifetime:    r.config.Cleanup.TokenLifetime,
	}, shared.WithLogger(r.logger, "component", "callback")))

	server.NewAPIHandler(s.host, s.counters, s.counterRepo, r.logger).Register(router)
	return router
}

// Serve runs the cleanup service until interrupted.
//
// Instances left running by a previous process are resumed from their checkpoints before the
// listener starts. On shutdown they stay running in the database and resume on the next start.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := r.buildStack()
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.close(shutdownCtx); err != nil {
			r.logger.Error("shutdown incomplete", "error", err)
		}
	}()

	resumed, err := s.host.Recover(ctx)
	if err != nil {
		return fmt.Errorf("failed to resume instances: %w", err)
	}
	r.logger.Info("resumed instances", "count", resumed)

	srv := server.New(r.config.Server.Addr(), r.routes(s), r.logger)
	r.logger.Info("starting cleanup service",
		"addr", srv.Addr(),
		"interval", r.config.Cleanup.Interval(),
		"rule", r.config.Cleanup.ContributorRule,
		"vault", s.vault.Vault(),
	)
	return srv.Run(ctx)
}

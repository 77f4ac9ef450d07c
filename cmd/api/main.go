package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/monitorcore/internal/capacity"
	"github.com/hamed0406/monitorcore/internal/config"
	"github.com/hamed0406/monitorcore/internal/executor"
	"github.com/hamed0406/monitorcore/internal/httpapi"
	apimw "github.com/hamed0406/monitorcore/internal/httpapi/middleware"
	"github.com/hamed0406/monitorcore/internal/jobs"
	"github.com/hamed0406/monitorcore/internal/logging"
	"github.com/hamed0406/monitorcore/internal/notify"
	"github.com/hamed0406/monitorcore/internal/repo"
	"github.com/hamed0406/monitorcore/internal/repo/memory"
	"github.com/hamed0406/monitorcore/internal/repo/postgres"
	"github.com/hamed0406/monitorcore/internal/scheduler"
	"github.com/hamed0406/monitorcore/internal/validate"
)

func main() {
	cfg := config.FromEnv()
	logger, err := logging.New(logging.Options{Dir: cfg.LogDir, Level: cfg.LogLevel, Stdout: cfg.LogStdout})
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("api_exit", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if cfg.AllowInternalTargets {
		logger.Warn("internal_targets_allowed")
	}
	validator := validate.New(cfg.AllowInternalTargets)
	exec := executor.New(executor.Options{
		Validator: validator,
		Timeouts: executor.Timeouts{
			HTTP: cfg.HTTPTimeout,
			Ping: cfg.PingTimeout,
			Port: cfg.PortTimeout,
			SSL:  cfg.SSLTimeout,
		},
		MaxConnsPerHost: cfg.MaxConnsPerHost,
		MaxBodyBytes:    cfg.MaxResponseBytes,
		SSLWarningDays:  cfg.SSLWarningDays,
		SSLIntervalHrs:  cfg.SSLCheckIntervalHours,
		Logger:          logger,
	})

	pool := jobs.NewPool(cfg.Workers, cfg.QueuedCapacity, logger)
	gate := capacity.NewGate(pool, cfg.RunningCapacity, cfg.QueuedCapacity, logger)

	disp := notify.NewDispatcher(notifiers(cfg, logger), cfg.AlertBuffer, logger)
	dispCtx, stopDisp := context.WithCancel(context.Background())
	go disp.Run(dispCtx)

	rec := scheduler.NewReconciler(store, disp, cfg.SSLWarningDays, logger)
	runner := scheduler.NewRunner(store, exec, gate, pool, rec, logger)
	rep := jobs.NewRepeater(runner.Tick, logger)
	svc := scheduler.NewService(store, rep, validator, logger)

	if err := svc.Restore(ctx); err != nil {
		// partial restore still leaves the healthy monitors running
		logger.Error("scheduler_restore", zap.Error(err))
	}
	rep.Start()

	api := httpapi.NewServer(logger, svc, store, runner, gate)
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: api.Router(
			apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys},
			cfg.AllowedOrigins,
			cfg.PublicRPM, cfg.PublicBurst,
			cfg.AdminRPM, cfg.AdminBurst,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api_listen",
			zap.String("addr", cfg.Addr),
			zap.Int("running_capacity", cfg.RunningCapacity),
			zap.Int("queued_capacity", cfg.QueuedCapacity),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var errs error
	select {
	case <-ctx.Done():
		logger.Info("api_shutdown")
	case err := <-serveErr:
		errs = multierr.Append(errs, err)
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	errs = multierr.Append(errs, srv.Shutdown(shutCtx))
	rep.Stop()
	pool.Stop(shutCtx)

	// in-flight checks may have queued alerts; let the dispatcher drain them
	stopDisp()
	select {
	case <-disp.Done():
	case <-shutCtx.Done():
		errs = multierr.Append(errs, errors.New("alert dispatcher did not drain"))
	}
	closeStore()
	return errs
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Info("store_selected", zap.String("kind", "memory"))
		return memory.New(), func() {}, nil
	}
	pg, err := postgres.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	logger.Info("store_selected", zap.String("kind", "postgres"))
	return pg, pg.Close, nil
}

func notifiers(cfg config.Config, logger *zap.Logger) notify.Notifier {
	r := notify.Router{Channels: map[string]notify.Notifier{}, Log: notify.Log{Logger: logger}}
	if s := notify.NewSlack(cfg.SlackWebhook); s != nil {
		r.Channels["slack"] = s
	}
	if w := notify.NewWebhook(cfg.AlertWebhook); w != nil {
		r.Channels["webhook"] = w
	}
	return r
}

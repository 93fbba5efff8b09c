// Command consumer drains the ski_lift_rides queue into the configured
// store, acknowledging each message only after its record is written.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/okian/skilift/internal/adapters/http/api"
	"github.com/okian/skilift/internal/adapters/repository"
	service "github.com/okian/skilift/internal/app"
	"github.com/okian/skilift/internal/config"
	"github.com/okian/skilift/pkg/logger"
)

// errWorkersStopped reports that every worker exited while the process was
// still meant to be running, e.g. after the broker connection dropped.
var errWorkersStopped = errors.New("consumer workers stopped")

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "consumer stopped with error", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := repository.Open(ctx, storeSettings(cfg))
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn(ctx, "store close", logger.Error(err))
		}
	}()
	log.Info(ctx, "store ready", logger.String("backend", cfg.StoreBackend))

	svc := service.NewConsumer(cfg.AMQPURL,
		service.WithLogger(log.Named("consumer")),
		service.WithDialer(service.DialerFor(cfg.AMQPURL)),
		service.WithQueueName(cfg.QueueName),
		service.WithStore(store),
		service.WithWorkers(cfg.ConsumerWorkers),
		service.WithPrefetch(cfg.ConsumerPrefetch),
		service.WithPersistTimeout(cfg.PersistTimeout()),
	)
	return serve(ctx, cfg, svc, log)
}

func storeSettings(cfg *config.Config) repository.Settings {
	return repository.Settings{
		Backend:        cfg.StoreBackend,
		DynamoTable:    cfg.DynamoDBTable,
		DynamoRegion:   cfg.DynamoDBRegion,
		DynamoEndpoint: cfg.DynamoDBEndpoint,
		PostgresURL:    cfg.PostgresURL,
		RedisAddr:      cfg.RedisAddr,
		RedisPassword:  cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
	}
}

// serve runs the consumer and its metrics endpoint until ctx ends or the
// workers stop on their own, then drains in-flight messages.
func serve(ctx context.Context, cfg *config.Config, svc *service.Consumer, log logger.Logger) error {
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		service.RunSystemMetrics(gctx)
		return nil
	})
	g.Go(func() error {
		r := api.NewRouter()
		api.NewServer(nil, svc, api.WithLogger(log.Named("api"))).Register(r)
		return service.Serve(gctx, service.NewHTTPServer(cfg.MetricsAddr, r), log)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-svc.Done():
			return errors.Join(errWorkersStopped, svc.Err())
		}
	})
	runErr := g.Wait()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), service.ShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, svc.Stop(stopCtx))
}

// Command ingress accepts lift rides over HTTP and publishes them to the
// durable ski_lift_rides queue through a bounded channel pool.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/skilift/internal/adapters/http/api"
	"github.com/okian/skilift/internal/adapters/http/swagger"
	service "github.com/okian/skilift/internal/app"
	"github.com/okian/skilift/internal/config"
	"github.com/okian/skilift/pkg/logger"
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "ingress stopped with error", logger.Error(err))
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

	svc := service.NewIngress(cfg.AMQPURL,
		service.WithLogger(log.Named("ingress")),
		service.WithDialer(service.DialerFor(cfg.AMQPURL)),
		service.WithQueueName(cfg.QueueName),
		service.WithPoolSize(cfg.ChannelPoolSize),
		service.WithPublishTimeout(cfg.PublishTimeout()),
	)
	return serve(ctx, cfg, svc, log)
}

// serve starts svc, serves the API until ctx ends and stops svc afterwards.
// A broker that cannot be reached at startup is fatal.
func serve(ctx context.Context, cfg *config.Config, svc *service.Ingress, log logger.Logger) error {
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start ingress: %w", err)
	}
	defer func() {
		if err := svc.Stop(); err != nil {
			log.Warn(ctx, "ingress stop", logger.Error(err))
		}
	}()

	go service.RunSystemMetrics(ctx)

	r := api.NewRouter()
	api.NewServer(svc, svc, api.WithLogger(log.Named("api"))).Register(r)
	swagger.Register(r)

	return service.Serve(ctx, service.NewHTTPServer(cfg.Addr, r), log)
}

package main

import (
	"context"
	"errors"
	"os"
	"time"

	"tracker/internal/amqp"
	"tracker/internal/backend"
	"tracker/internal/cli"
	"tracker/internal/log"
	"tracker/internal/worker"
)

func main() {
	cfg, logger, err := cli.Bootstrap(".env", os.Stdout)
	if err != nil {
		log.New(log.DefaultConfig()).Error("Startup failed", log.FieldError, err.Error())
		os.Exit(1)
	}

	logger = logger.WithComponent(log.ComponentWorker)
	logger.Info("Starting tracker-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required to run the worker")
		os.Exit(1)
	}

	ctx, cancel := cli.GracefulShutdown(context.Background(), logger)
	defer cancel()

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	// The worker only consumes; it does not need a publisher of its own.
	bcfg.AMQPURL = ""

	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to open backend", log.FieldError, err.Error(), "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer res.Cleanup()

	eventWorker := worker.NewEventWorker(logger)
	if err := eventWorker.Seed(ctx, res.Backend); err != nil {
		// Totals catch up from events; keep going.
		logger.Error("Failed to seed worker from backend", log.FieldError, err.Error())
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer client.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := client.Consume(ctx, eventWorker.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Event consumption failed", log.FieldError, err.Error())
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down worker...")

	select {
	case <-done:
		logger.Info("Worker shutdown complete")
	case <-time.After(cfg.ShutdownTimeout):
		logger.Warn("Shutdown timeout reached")
	}
}

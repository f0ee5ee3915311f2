package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-deadletter/internal/archive"
	"go-deadletter/internal/config"
	"go-deadletter/internal/observability"
	"go-deadletter/internal/reconciler"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

type options struct {
	schedule string
	once     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.schedule, "schedule", "", "cron spec to run on, e.g. \"@every 5m\" (overrides SCHEDULE)")
	flag.BoolVar(&opts.once, "once", false, "run a single pass and exit even if a schedule is configured")
	flag.Parse()

	os.Exit(run(opts))
}

// run wires the job and returns the process exit code, so deferred cleanup
// has finished before main exits
func run(opts options) int {
	cfg := config.Load()
	if opts.schedule != "" {
		cfg.Schedule = opts.schedule
	}
	if opts.once {
		cfg.Schedule = ""
	}

	observability.InitLogger(cfg.Logging.Level)
	log := observability.GetLogger()

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Error("Invalid configuration")
		return 1
	}

	zl, err := zap.NewProduction()
	if err != nil {
		log.WithError(err).Error("Failed to create zap logger")
		return 1
	}
	defer zl.Sync()

	transport, err := buildTransport(cfg, zl)
	if err != nil {
		log.WithError(err).Error("Failed to create queue transport")
		return 1
	}

	store, closeArchive, err := buildArchive(cfg, archive.NewClientFactory())
	if err != nil {
		log.WithError(err).Error("Failed to create archive store")
		return 1
	}
	defer closeArchive()

	metrics := observability.NewPrometheusMetrics(cfg.Queue.Name)
	processor, err := reconciler.NewProcessor(reconciler.ProcessorConfig{
		Transport: transport,
		Archive:   store,
		Metrics:   metrics,
		Logger:    log,
		QueueName: cfg.Queue.Name,
	})
	if err != nil {
		log.WithError(err).Error("Failed to create processor")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pass := func() error {
		_, err := processor.Execute(ctx)
		if cfg.Metrics.PushgatewayURL != "" {
			pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if perr := metrics.Push(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.JobName); perr != nil {
				log.WithError(perr).Warn("Failed to push metrics")
			}
		}
		return err
	}

	if cfg.Schedule == "" {
		if err := pass(); err != nil {
			return 1
		}
		return 0
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(cfg.Schedule, func() { _ = pass() }); err != nil {
		log.WithError(err).WithField("schedule", cfg.Schedule).Error("Invalid schedule")
		return 1
	}

	log.WithFields(logrus.Fields{
		"schedule": cfg.Schedule,
		"queue":    cfg.Queue.Name,
	}).Info("Dead-letter reconciler scheduled")
	c.Start()

	<-ctx.Done()
	log.Info("Shutting down, waiting for the running pass to finish")
	<-c.Stop().Done()
	return 0
}

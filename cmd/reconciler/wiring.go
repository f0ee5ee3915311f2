package main

import (
	"fmt"

	"go-deadletter/internal/archive"
	"go-deadletter/internal/config"
	"go-deadletter/internal/jetstream"
	"go-deadletter/internal/kafka"
	"go-deadletter/internal/reconciler"

	"go.uber.org/zap"
)

// closer releases a process-wide resource on shutdown
type closer func()

func buildTransport(cfg *config.Config, zl *zap.Logger) (reconciler.Transport, error) {
	switch cfg.Queue.Driver {
	case config.DriverKafka:
		return kafka.NewTransport(kafka.TransportConfig{
			Brokers:          config.ParseBrokers(cfg.Queue.ConnectionString),
			GroupID:          cfg.Kafka.GroupID,
			DeadLetterSuffix: cfg.Kafka.DeadLetterSuffix,
			IdleTimeout:      cfg.Queue.ReceiveIdleTimeout,
			Logger:           zl,
		})
	case config.DriverNATS:
		return jetstream.NewTransport(jetstream.TransportConfig{
			URL:         cfg.Queue.ConnectionString,
			IdleTimeout: cfg.Queue.ReceiveIdleTimeout,
		})
	default:
		return nil, fmt.Errorf("unsupported queue driver %q", cfg.Queue.Driver)
	}
}

func buildArchive(cfg *config.Config, clients *archive.ClientFactory) (reconciler.ArchiveStore, closer, error) {
	switch cfg.Archive.Driver {
	case config.DriverS3:
		store, err := archive.NewS3Archive(clients, cfg.Archive.ConnectionString, cfg.Archive.ContainerName)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case config.DriverNATS:
		nc, err := jetstream.Dial(cfg.Archive.ConnectionString, "deadletter-archive")
		if err != nil {
			return nil, nil, err
		}
		store, err := jetstream.NewObjectArchive(nc, cfg.Archive.ContainerName)
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		return store, nc.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported archive driver %q", cfg.Archive.Driver)
	}
}

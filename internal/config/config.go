package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"go-deadletter/config/deadletter"

	"github.com/joho/godotenv"
)

const (
	DriverKafka = "kafka"
	DriverNATS  = "nats"
	DriverS3    = "s3"
)

type Config struct {
	Logging  LoggingConfig
	Queue    QueueConfig
	Kafka    KafkaConfig
	Archive  ArchiveConfig
	Metrics  MetricsConfig
	Schedule string
}

type LoggingConfig struct {
	Level string
}

type QueueConfig struct {
	Driver             string
	ConnectionString   string
	Name               string
	ReceiveIdleTimeout time.Duration
}

type KafkaConfig struct {
	GroupID          string
	DeadLetterSuffix string
}

type ArchiveConfig struct {
	Driver           string
	ConnectionString string
	ContainerName    string
}

type MetricsConfig struct {
	PushgatewayURL string
	JobName        string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment")
	}
	return &Config{
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Queue: QueueConfig{
			Driver:             strings.ToLower(getEnv("QUEUE_DRIVER", DriverKafka)),
			ConnectionString:   getEnv("QUEUE_CONNECTION_STRING", "localhost:9092"),
			Name:               getEnv("QUEUE_NAME", deadletter.QueueName),
			ReceiveIdleTimeout: getEnvDuration("RECEIVE_IDLE_TIMEOUT", deadletter.ReceiveIdleTimeout),
		},
		Kafka: KafkaConfig{
			GroupID:          getEnv("KAFKA_GROUP_ID", deadletter.QueueName+"-deadletter-reconciler"),
			DeadLetterSuffix: getEnv("KAFKA_DEADLETTER_SUFFIX", "-dlq"),
		},
		Archive: ArchiveConfig{
			Driver:           strings.ToLower(getEnv("ARCHIVE_DRIVER", DriverS3)),
			ConnectionString: getEnv("BLOB_CONNECTION_STRING", "region=us-east-1"),
			ContainerName:    getEnv("BLOB_CONTAINER_NAME", deadletter.BlobContainerName),
		},
		Metrics: MetricsConfig{
			PushgatewayURL: getEnv("PUSHGATEWAY_URL", ""),
			JobName:        getEnv("PUSHGATEWAY_JOB", "deadletter-reconciler"),
		},
		Schedule: getEnv("SCHEDULE", ""),
	}
}

func (c *Config) Validate() error {
	switch c.Queue.Driver {
	case DriverKafka, DriverNATS:
	default:
		return fmt.Errorf("unsupported queue driver %q", c.Queue.Driver)
	}
	switch c.Archive.Driver {
	case DriverS3, DriverNATS:
	default:
		return fmt.Errorf("unsupported archive driver %q", c.Archive.Driver)
	}
	if c.Queue.ConnectionString == "" {
		return fmt.Errorf("queue connection string cannot be empty")
	}
	if c.Queue.Name == "" {
		return fmt.Errorf("queue name cannot be empty")
	}
	if c.Archive.ConnectionString == "" {
		return fmt.Errorf("blob connection string cannot be empty")
	}
	if c.Archive.ContainerName == "" {
		return fmt.Errorf("blob container name cannot be empty")
	}
	if c.Queue.ReceiveIdleTimeout <= 0 {
		return fmt.Errorf("receive idle timeout must be greater than zero")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

// ParseBrokers splits a comma separated broker list
func ParseBrokers(brokers string) []string {
	parts := strings.Split(brokers, ",")
	result := make([]string, 0, len(parts))
	for _, broker := range parts {
		if trimmed := strings.TrimSpace(broker); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

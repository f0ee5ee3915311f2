package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strconv"
	"time"

	"go-deadletter/internal/config"
	"go-deadletter/internal/jetstream"
	"go-deadletter/internal/kafka"
	"go-deadletter/internal/reconciler"
	"go-deadletter/pkg/models"
	"go-deadletter/pkg/retry"

	"github.com/google/uuid"
)

// seeder fills the dead-letter sub-queue with sample order events so the
// reconciler can be exercised locally
func main() {
	count := flag.Int("count", 10, "number of dead-lettered messages to publish")
	invalidEvery := flag.Int("invalid-every", 3, "every n-th message exceeds the delivery limit (0 disables)")
	flag.Parse()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	var (
		transport reconciler.Transport
		target    string
		err       error
	)
	switch cfg.Queue.Driver {
	case config.DriverNATS:
		err = ensureStream(cfg.Queue.ConnectionString, cfg.Queue.Name)
		if err == nil {
			transport, err = jetstream.NewTransport(jetstream.TransportConfig{URL: cfg.Queue.ConnectionString, Name: "deadletter-seeder"})
		}
		target = jetstream.DeadLetterSubject(cfg.Queue.Name)
	default:
		transport, err = kafka.NewTransport(kafka.TransportConfig{
			Brokers: config.ParseBrokers(cfg.Queue.ConnectionString),
			GroupID: cfg.Kafka.GroupID,
		})
		target = kafka.DeadLetterTopic(cfg.Queue.Name, cfg.Kafka.DeadLetterSuffix)
	}
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := transport.Connect(ctx, retry.DefaultPolicy())
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	sender, err := conn.NewSender(ctx, target)
	if err != nil {
		log.Fatal(err)
	}
	defer sender.Close()

	msgs := make([]models.OutboundMessage, 0, *count)
	for i := 1; i <= *count; i++ {
		invalid := *invalidEvery > 0 && i%*invalidEvery == 0
		msg, err := sampleMessage(i, invalid)
		if err != nil {
			log.Fatal(err)
		}
		msgs = append(msgs, msg)
	}

	if err := sender.SendBatch(ctx, msgs); err != nil {
		log.Fatal(err)
	}
	log.Printf("Published %d dead-lettered messages to %s", len(msgs), target)
}

// ensureStream makes sure the queue's stream exists on a fresh server
func ensureStream(url, queue string) error {
	nc, err := jetstream.Dial(url, "deadletter-seeder")
	if err != nil {
		return err
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return jetstream.EnsureStream(ctx, nc, queue)
}

func sampleMessage(i int, invalid bool) (models.OutboundMessage, error) {
	body, err := json.Marshal(map[string]interface{}{
		"event_type":   "subscription_renewed",
		"timestamp":    time.Now().UTC().Format(time.RFC3339Nano),
		"order_id":     fmt.Sprintf("ORD-%06d", i),
		"customer_id":  fmt.Sprintf("CUST-%06d", 1000+i),
		"total_amount": "51890.00",
		"currency":     "THB",
		"status":       "pending",
	})
	if err != nil {
		return models.OutboundMessage{}, err
	}

	id := uuid.NewString()
	headers := map[string]string{
		models.HeaderMessageID:     id,
		models.HeaderDeliveryCount: "1",
	}
	if invalid {
		headers[models.HeaderDeadLetterReason] = "MaxDeliveryCountExceeded"
		headers[models.HeaderDeadLetterErrorDescription] = "Message could not be consumed after 10 delivery attempts."
		headers[models.HeaderDeliveryCount] = strconv.Itoa(10)
	}

	return models.OutboundMessage{
		MessageID: id,
		Key:       id,
		Body:      body,
		Headers:   headers,
	}, nil
}

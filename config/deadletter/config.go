package deadletter

import "time"

const (
	QueueName = "subscriptionoutbox"

	// BatchCap bounds the number of dead-lettered messages handled per run
	BatchCap = 200

	// InvalidDeliveryCount is the delivery count from which a message with a
	// dead-letter reason is treated as terminal
	InvalidDeliveryCount = 3

	ConnectMaxRetries     = 3
	ConnectInitialBackoff = 800 * time.Millisecond
	ConnectMaxBackoff     = 10 * time.Second

	ReceiveIdleTimeout = 5 * time.Second

	BlobContainerName = "deadletter-archive"
)

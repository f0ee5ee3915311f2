package reconciler

import (
	"go-deadletter/config/deadletter"
	"go-deadletter/pkg/models"
)

// ProcessingType is the classification outcome of a dead-lettered message
type ProcessingType int

const (
	Valid ProcessingType = iota
	Invalid
)

func (t ProcessingType) String() string {
	switch t {
	case Valid:
		return "Valid"
	case Invalid:
		return "Invalid"
	default:
		return "Unknown"
	}
}

// Classify marks a message Invalid when it carries a dead-letter reason and
// has been delivered at least InvalidDeliveryCount times. Everything else is
// a transient failure that deserves another attempt.
func Classify(msg *models.DeadLetteredMessage) ProcessingType {
	if msg.DeadLetterReason != "" && msg.DeliveryCount >= deadletter.InvalidDeliveryCount {
		return Invalid
	}
	return Valid
}

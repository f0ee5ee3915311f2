package models

import "time"

// DeadLetteredMessage represents a message received from a dead-letter sub-queue.
// Handle carries the transport's own message so it can be completed later.
type DeadLetteredMessage struct {
	MessageID                  string            `json:"message_id"`
	DeadLetterReason           string            `json:"dead_letter_reason,omitempty"`
	DeadLetterErrorDescription string            `json:"dead_letter_error_description,omitempty"`
	DeliveryCount              int               `json:"delivery_count"`
	Key                        string            `json:"key,omitempty"`
	Body                       []byte            `json:"body"`
	Headers                    map[string]string `json:"headers,omitempty"`
	EnqueuedAt                 time.Time         `json:"enqueued_at"`
	Handle                     interface{}       `json:"-"`
}

// OutboundMessage is a message submitted to the main queue
type OutboundMessage struct {
	MessageID string            `json:"message_id"`
	Key       string            `json:"key,omitempty"`
	Body      []byte            `json:"body"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// MessageHeader constants
const (
	HeaderMessageID                  = "message-id"
	HeaderDeadLetterReason           = "dead-letter-reason"
	HeaderDeadLetterErrorDescription = "dead-letter-error-description"
	HeaderDeliveryCount              = "delivery-count"
	HeaderRetryCount                 = "retry-count"
	HeaderFailureReason              = "failure-reason"
	HeaderResubmittedAt              = "resubmitted-at"
)

// IsDeadLetterHeader reports whether a header only describes the dead-letter
// state of a message and must not travel with a resubmitted copy.
func IsDeadLetterHeader(key string) bool {
	switch key {
	case HeaderDeadLetterReason, HeaderDeadLetterErrorDescription, HeaderDeliveryCount,
		HeaderRetryCount, HeaderFailureReason:
		return true
	}
	return false
}

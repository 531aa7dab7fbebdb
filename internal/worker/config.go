// Package worker applies push commands received over Pub/Sub to the local
// push client, so other services can drive a headless agent.
package worker

import (
	"time"
)

// ConsumerConfig holds configuration for the command consumer.
type ConsumerConfig struct {
	// ProjectID is the Google Cloud project of the subscription.
	ProjectID string

	// SubscriptionName is the Pub/Sub subscription to receive from.
	SubscriptionName string

	// MaxOutstandingMessages bounds the messages handled concurrently.
	// Default: 10
	MaxOutstandingMessages int

	// MaxExtension is how long a message lease is extended while it is handled.
	// Default: 10 minutes
	MaxExtension time.Duration

	// CommandTimeout bounds the wait for a command's vendor confirmation. A
	// command still pending when it expires stays queued locally and is acked.
	// Default: 30 seconds
	CommandTimeout time.Duration
}

// DefaultConsumerConfig returns the default consumer configuration.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		MaxOutstandingMessages: 10,
		MaxExtension:           10 * time.Minute,
		CommandTimeout:         30 * time.Second,
	}
}

// withDefaults fills zero values from DefaultConsumerConfig.
func (c ConsumerConfig) withDefaults() ConsumerConfig {
	defaults := DefaultConsumerConfig()
	if c.MaxOutstandingMessages <= 0 {
		c.MaxOutstandingMessages = defaults.MaxOutstandingMessages
	}
	if c.MaxExtension <= 0 {
		c.MaxExtension = defaults.MaxExtension
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = defaults.CommandTimeout
	}
	return c
}

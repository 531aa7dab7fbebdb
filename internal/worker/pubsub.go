package worker

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSubHandler receives push commands from a Pub/Sub subscription.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	Consumer   ConsumerConfig
	PushClient PushClient
	Logger     zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	consumer := cfg.Consumer.withDefaults()

	client, err := pubsub.NewClient(ctx, consumer.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(consumer.SubscriptionName)

	// Commands are cheap locally but may wait on the vendor.
	subscriber.ReceiveSettings.MaxOutstandingMessages = consumer.MaxOutstandingMessages
	subscriber.ReceiveSettings.MaxExtension = consumer.MaxExtension

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: consumer.SubscriptionName,
		dispatcher:       NewDispatcher(cfg.PushClient, consumer.CommandTimeout, cfg.Logger),
		logger:           cfg.Logger,
	}, nil
}

// Start receives and applies commands until ctx is cancelled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub command consumer")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Stats returns the dispatch counters.
func (h *PubSubHandler) Stats() DispatcherStats {
	return h.dispatcher.Stats()
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	outcome := h.dispatcher.Handle(ctx, msg.Data)

	logger.Debug().
		Str("outcome", outcome.String()).
		Dur("duration", time.Since(startTime)).
		Msg("pubsub message handled")

	if outcome == Nack {
		msg.Nack()
		return
	}
	msg.Ack()
}

// Package push registers a device with the push vendor and keeps the device's
// interest subscriptions in sync with it.
//
// A Client owns two single-worker queues. The deferred queue holds work that
// needs a vendor device id; it stays suspended until the first successful
// registration. The persistence queue serializes every store mutation, so
// concurrent Subscribe/Unsubscribe calls never race on the store. Vendor calls
// run on their own goroutines and hand their results back to the persistence
// queue before touching the store.
//
// Local state is the source of truth for callers: the interest set changes
// (and the delegate fires) immediately, and the vendor is reconciled later.
package push

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatking/chatking/internal/device"
	"github.com/chatking/chatking/internal/queue"
)

// Completion is called once an asynchronous operation finishes. err is nil on
// success, a *NetworkError when the vendor call failed, or another error for
// local failures.
type Completion func(err error)

// Feature flag keys consulted by the client.
const (
	FlagDeliveryTracking = "delivery_tracking_enabled"
	FlagSyncMetadata     = "sync_metadata_enabled"
)

// FlagSource reports whether a feature flag is on.
type FlagSource interface {
	IsEnabled(ctx context.Context, key string) bool
}

// Config holds configuration for a Client.
type Config struct {
	// Store is the durable device state. Required.
	Store *device.Store

	// Network is the vendor API. Required.
	Network Network

	// Logger receives structured logs.
	Logger zerolog.Logger

	// Metrics records client activity. Optional.
	Metrics Metrics

	// Flags gates delivery tracking and metadata sync. Optional; both default on.
	Flags FlagSource

	// Metadata is reported to the vendor on registration and start.
	Metadata Metadata

	// Delegate is told about every local interest set change. Optional.
	Delegate InterestsChangedDelegate

	// CallTimeout bounds each vendor call. Default: 30 seconds.
	CallTimeout time.Duration
}

// Client is the push notifications context object. Construct one per process
// (or per instance) and pass it to the code that needs it.
type Client struct {
	store       *device.Store
	network     Network
	logger      zerolog.Logger
	metrics     Metrics
	flags       FlagSource
	metadata    Metadata
	callTimeout time.Duration

	deferred    *queue.Queue
	persistence *queue.Queue

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	closed        bool
	deviceToken   string
	tokenProvider TokenProvider
	pendingUserID string
	delegate      InterestsChangedDelegate

	inflight  sync.WaitGroup
	inflightN atomic.Int64
	closeOnce sync.Once
}

// New creates a Client. The deferred queue starts suspended unless the store
// already holds a device id.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("push: store is required")
	}
	if cfg.Network == nil {
		return nil, fmt.Errorf("push: network is required")
	}

	deviceID, err := cfg.Store.DeviceID(ctx)
	if err != nil {
		return nil, fmt.Errorf("read device id: %w", err)
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	callTimeout := cfg.CallTimeout
	if callTimeout == 0 {
		callTimeout = 30 * time.Second
	}

	logger := cfg.Logger.With().Str("namespace", cfg.Store.Namespace()).Logger()
	rootCtx, cancel := context.WithCancel(context.Background())

	c := &Client{
		store:       cfg.Store,
		network:     cfg.Network,
		logger:      logger,
		metrics:     metrics,
		flags:       cfg.Flags,
		metadata:    cfg.Metadata,
		callTimeout: callTimeout,
		delegate:    cfg.Delegate,
		ctx:         rootCtx,
		cancel:      cancel,
	}

	c.deferred = queue.New(queue.Config{
		Name:          "deferred",
		Suspended:     deviceID == "",
		Logger:        logger,
		OnDepthChange: func(delta int64) { metrics.QueueDepth(rootCtx, "deferred", delta) },
	})
	c.persistence = queue.New(queue.Config{
		Name:          "persistence",
		Logger:        logger,
		OnDepthChange: func(delta int64) { metrics.QueueDepth(rootCtx, "persistence", delta) },
	})

	logger.Debug().
		Bool("registered", deviceID != "").
		Msg("push client created")

	return c, nil
}

// Start persists the instance id, remembers the token provider (nil keeps the
// current one) and runs a metadata sync and an interest reconciliation pass.
func (c *Client) Start(ctx context.Context, instanceID string, tokenProvider TokenProvider) error {
	if tokenProvider != nil {
		c.mu.Lock()
		c.tokenProvider = tokenProvider
		c.mu.Unlock()
	}

	if err := c.store.PersistInstanceID(ctx, instanceID); err != nil {
		return fmt.Errorf("persist instance id: %w", err)
	}

	c.logger.Info().Str("instance_id", instanceID).Msg("push client started")

	c.syncMetadata()
	c.SyncInterests(nil)
	return nil
}

// SetDelegate replaces the interests-changed delegate.
func (c *Client) SetDelegate(delegate InterestsChangedDelegate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate = delegate
}

// Identity returns the persisted device and instance ids.
func (c *Client) Identity(ctx context.Context) (device.Identity, error) {
	return c.store.Identity(ctx)
}

// QueueState returns the lifecycle state of the deferred queue.
func (c *Client) QueueState() queue.State {
	return c.deferred.State()
}

// Flush waits until both queues are idle and no vendor call is in flight.
// A suspended deferred queue is not waited on. Work hops between the queues
// and vendor goroutines, so idleness must be observed twice in a row.
func (c *Client) Flush(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	quiet := 0
	for quiet < 2 {
		if err := c.persistence.Flush(ctx); err != nil {
			return err
		}
		if c.deferred.State() == queue.Active {
			if err := c.deferred.Flush(ctx); err != nil {
				return err
			}
		}
		if c.idle() {
			quiet++
		} else {
			quiet = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (c *Client) idle() bool {
	if c.inflightN.Load() != 0 || c.persistence.Pending() != 0 {
		return false
	}
	return c.deferred.State() != queue.Active || c.deferred.Pending() == 0
}

// Close cancels in-flight vendor calls, waits for them, and stops both queues.
// It must not be called from a Completion or a delegate callback.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.cancel()
		c.inflight.Wait()
		c.deferred.Close()
		c.persistence.Close()
		c.logger.Debug().Msg("push client closed")
	})
}

// goNetwork runs fn on its own goroutine with a per-call timeout. Returns false
// if the client is closed.
func (c *Client) goNetwork(fn func(ctx context.Context)) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.inflight.Add(1)
	c.inflightN.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.inflight.Done()
		defer c.inflightN.Add(-1)

		ctx, cancel := context.WithTimeout(c.ctx, c.callTimeout)
		defer cancel()
		fn(ctx)
	}()
	return true
}

// persist runs fn on the persistence queue.
func (c *Client) persist(fn func(ctx context.Context)) bool {
	return c.persistence.Submit(func() { fn(c.ctx) })
}

func (c *Client) flagEnabled(key string) bool {
	if c.flags == nil {
		return true
	}
	return c.flags.IsEnabled(c.ctx, key)
}

func complete(done Completion, err error) {
	if done != nil {
		done(err)
	}
}

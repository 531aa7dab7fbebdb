package push

import (
	"context"
	"fmt"

	"github.com/chatking/chatking/internal/device"
)

// SyncInterests reconciles the vendor with the local interest set. If the hash
// of the local set differs from the last server-confirmed hash, the whole set
// is sent in one bulk call and its hash recorded on success. Otherwise nothing
// is sent.
//
// It runs on Start and after registration; it is not triggered by individual
// mutations. An unregistered device is skipped (done receives nil).
func (c *Client) SyncInterests(done Completion) {
	submitted := c.persist(func(ctx context.Context) {
		identity, err := c.store.Identity(ctx)
		if err != nil {
			complete(done, fmt.Errorf("read identity: %w", err))
			return
		}
		if !identity.Registered() || identity.InstanceID == "" {
			complete(done, nil)
			return
		}

		interests, err := c.store.Interests(ctx)
		if err != nil {
			complete(done, fmt.Errorf("read interests: %w", err))
			return
		}
		confirmed, err := c.store.ServerConfirmedHash(ctx)
		if err != nil {
			complete(done, fmt.Errorf("read confirmed hash: %w", err))
			return
		}

		hash := interests.Hash()
		if hash == confirmed {
			c.metrics.SyncSkipped(ctx)
			complete(done, nil)
			return
		}

		ref := DeviceRef{InstanceID: identity.InstanceID, DeviceID: identity.DeviceID}
		c.reconcile(ref, interests, hash, done)
	})
	if !submitted {
		complete(done, ErrClosed)
	}
}

// InSync reports whether the vendor has confirmed the current local interest
// set. It reads local state only.
func (c *Client) InSync(ctx context.Context) (bool, error) {
	interests, err := c.store.Interests(ctx)
	if err != nil {
		return false, fmt.Errorf("read interests: %w", err)
	}
	confirmed, err := c.store.ServerConfirmedHash(ctx)
	if err != nil {
		return false, fmt.Errorf("read confirmed hash: %w", err)
	}
	return confirmed != "" && interests.Hash() == confirmed, nil
}

func (c *Client) reconcile(ref DeviceRef, interests device.InterestSet, hash string, done Completion) {
	names := interests.Sorted()
	logger := c.logger.With().Str("device_id", ref.DeviceID).Int("interests", len(names)).Logger()

	started := c.goNetwork(func(ctx context.Context) {
		err := c.network.SetSubscriptions(ctx, ref, names)
		c.metrics.NetworkCall(ctx, "sync_interests", err)
		if err != nil {
			logger.Warn().Err(err).Msg("interest reconciliation failed")
			complete(done, err)
			return
		}

		if !c.persist(func(ctx context.Context) {
			if err := c.store.PersistServerConfirmedHash(ctx, hash); err != nil {
				logger.Error().Err(err).Msg("failed to persist confirmed interests hash")
				complete(done, err)
				return
			}
			logger.Info().Msg("interests reconciled")
			complete(done, nil)
		}) {
			complete(done, ErrClosed)
		}
	})
	if !started {
		complete(done, ErrClosed)
	}
}

// syncMetadata reports agent metadata for a registered device. Fire and forget.
func (c *Client) syncMetadata() {
	if !c.flagEnabled(FlagSyncMetadata) {
		return
	}

	identity, err := c.store.Identity(c.ctx)
	if err != nil || !identity.Registered() || identity.InstanceID == "" {
		return
	}

	ref := DeviceRef{InstanceID: identity.InstanceID, DeviceID: identity.DeviceID}
	metadata := c.metadata
	c.goNetwork(func(ctx context.Context) {
		err := c.network.SyncMetadata(ctx, ref, metadata)
		c.metrics.NetworkCall(ctx, "sync_metadata", err)
		if err != nil {
			c.logger.Warn().Err(err).Msg("metadata sync failed")
		}
	})
}

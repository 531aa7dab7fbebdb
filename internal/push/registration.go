package push

import (
	"context"
	"errors"
	"fmt"

	"github.com/chatking/chatking/internal/device"
)

// ErrInvalidUserID is returned by SetUserID for an empty user id.
var ErrInvalidUserID = errors.New("user id must not be empty")

// RegisterDeviceToken registers the device token with the vendor. It is a
// no-op if a device id is already persisted.
//
// On success the vendor's device id is persisted, the vendor's initial interest
// set seeds an empty local set, the deferred queue is resumed and, if the local
// set differs from what the vendor holds, a reconciliation pass runs before done
// is called. On failure the device stays unregistered and the deferred queue
// stays suspended; retrying is up to the caller. The transport bounds each
// attempt with a timeout and retries transient failures with backoff.
func (c *Client) RegisterDeviceToken(deviceToken string, done Completion) {
	c.mu.Lock()
	c.deviceToken = deviceToken
	c.mu.Unlock()

	identity, err := c.store.Identity(c.ctx)
	if err != nil {
		complete(done, fmt.Errorf("read identity: %w", err))
		return
	}
	if identity.InstanceID == "" {
		c.logger.Warn().Msg("device token supplied before Start, cannot register yet")
		complete(done, ErrMissingDeviceOrInstanceID)
		return
	}
	if identity.Registered() {
		complete(done, nil)
		return
	}

	metadata := c.metadata
	logger := c.logger.With().Str("instance_id", identity.InstanceID).Logger()

	started := c.goNetwork(func(ctx context.Context) {
		registration, err := c.network.Register(ctx, identity.InstanceID, deviceToken, metadata)
		c.metrics.NetworkCall(ctx, "register", err)
		if err != nil {
			logger.Error().Err(err).Msg("device registration failed")
			complete(done, err)
			return
		}
		if registration == nil || registration.DeviceID == "" {
			err := &NetworkError{Op: "register", Err: errors.New("vendor returned no device id")}
			logger.Error().Err(err).Msg("device registration failed")
			complete(done, err)
			return
		}

		if !c.persist(func(ctx context.Context) {
			c.completeRegistration(ctx, registration, done)
		}) {
			complete(done, ErrClosed)
		}
	})
	if !started {
		complete(done, ErrClosed)
	}
}

// completeRegistration runs on the persistence queue.
func (c *Client) completeRegistration(ctx context.Context, registration *DeviceRegistration, done Completion) {
	existing, err := c.store.DeviceID(ctx)
	if err != nil {
		complete(done, fmt.Errorf("read device id: %w", err))
		return
	}
	if existing != "" {
		// A concurrent registration got here first.
		complete(done, nil)
		return
	}

	if err := c.store.PersistDeviceID(ctx, registration.DeviceID); err != nil {
		complete(done, fmt.Errorf("persist device id: %w", err))
		return
	}

	initial := device.NewInterestSet(registration.InitialInterestSet)
	local, err := c.store.Interests(ctx)
	if err != nil {
		complete(done, fmt.Errorf("read interests: %w", err))
		return
	}
	if len(local) == 0 && len(initial) > 0 {
		changed, err := c.store.PersistInterests(ctx, initial.Sorted())
		if err != nil {
			complete(done, fmt.Errorf("seed initial interests: %w", err))
			return
		}
		if changed {
			c.interestsSetDidChange(ctx)
		}
		local = initial
	}

	// The vendor already holds the initial set for this device.
	if err := c.store.PersistServerConfirmedHash(ctx, initial.Hash()); err != nil {
		c.logger.Error().Err(err).Msg("failed to persist confirmed interests hash")
	}

	diverged := !local.Equal(initial)

	c.logger.Info().
		Str("device_id", registration.DeviceID).
		Int("initial_interests", len(initial)).
		Bool("diverged", diverged).
		Msg("device registered")

	// Queued after everything deferred so far, so it runs once they have drained.
	c.deferred.Submit(func() {
		if diverged {
			c.SyncInterests(done)
			return
		}
		complete(done, nil)
	})
	if err := c.deferred.Resume(); err != nil {
		c.logger.Error().Err(err).Msg("failed to resume deferred queue")
	}
}

// SetUserID binds userID to the device at the vendor, authenticated by a
// token from the TokenProvider given to Start. It waits for registration.
//
// Binding the already-bound id succeeds without a vendor call; binding a
// different id fails with ErrUserIDConflict until ClearAllState.
func (c *Client) SetUserID(userID string, done Completion) error {
	if userID == "" {
		return ErrInvalidUserID
	}

	c.mu.Lock()
	tokenProvider := c.tokenProvider
	c.mu.Unlock()
	if tokenProvider == nil {
		return ErrMissingTokenProvider
	}

	if !c.deferred.Submit(func() { c.setUserID(userID, tokenProvider, done) }) {
		return ErrClosed
	}
	return nil
}

// setUserID runs on the deferred queue.
func (c *Client) setUserID(userID string, tokenProvider TokenProvider, done Completion) {
	logger := c.logger.With().Str("user_id", userID).Logger()

	current, err := c.store.UserID(c.ctx)
	if err != nil {
		complete(done, fmt.Errorf("read user id: %w", err))
		return
	}
	if current == userID {
		complete(done, nil)
		return
	}
	if current != "" {
		complete(done, ErrUserIDConflict)
		return
	}

	c.mu.Lock()
	if c.pendingUserID != "" && c.pendingUserID != userID {
		c.mu.Unlock()
		complete(done, ErrUserIDConflict)
		return
	}
	c.pendingUserID = userID
	c.mu.Unlock()

	identity, err := c.store.Identity(c.ctx)
	if err != nil || !identity.Registered() || identity.InstanceID == "" {
		c.clearPendingUserID(userID)
		complete(done, ErrMissingDeviceOrInstanceID)
		return
	}
	ref := DeviceRef{InstanceID: identity.InstanceID, DeviceID: identity.DeviceID}

	started := c.goNetwork(func(ctx context.Context) {
		token, err := tokenProvider.FetchToken(ctx, userID)
		if err != nil {
			c.clearPendingUserID(userID)
			logger.Error().Err(err).Msg("failed to fetch user token")
			complete(done, fmt.Errorf("fetch token: %w", err))
			return
		}

		err = c.network.SetUserID(ctx, ref, userID, token)
		c.metrics.NetworkCall(ctx, "set_user_id", err)
		if err != nil {
			c.clearPendingUserID(userID)
			logger.Error().Err(err).Msg("failed to set user id")
			complete(done, err)
			return
		}

		if !c.persist(func(ctx context.Context) {
			defer c.clearPendingUserID(userID)
			if err := c.store.SetUserID(ctx, userID); err != nil {
				if errors.Is(err, device.ErrUserIDConflict) {
					err = ErrUserIDConflict
				}
				complete(done, err)
				return
			}
			logger.Info().Msg("user id set")
			complete(done, nil)
		}) {
			c.clearPendingUserID(userID)
			complete(done, ErrClosed)
		}
	})
	if !started {
		c.clearPendingUserID(userID)
		complete(done, ErrClosed)
	}
}

func (c *Client) clearPendingUserID(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingUserID == userID {
		c.pendingUserID = ""
	}
}

// ClearAllState deletes the device at the vendor, wipes local device state
// (device id, user id, interests, confirmed hash) and re-registers with the
// last device token, leaving a fresh device.
//
// The deferred queue goes Active -> Resetting -> Suspended and is resumed by the
// re-registration. A failed vendor delete is logged and the wipe goes ahead.
// Without a known device token done receives ErrMissingDeviceToken and the
// queue stays suspended until RegisterDeviceToken is called.
func (c *Client) ClearAllState(done Completion) {
	if !c.deferred.Submit(func() { c.clearAllState(done) }) {
		complete(done, ErrClosed)
	}
}

// clearAllState runs on the deferred queue.
func (c *Client) clearAllState(done Completion) {
	identity, err := c.store.Identity(c.ctx)
	if err != nil {
		complete(done, fmt.Errorf("read identity: %w", err))
		return
	}
	if !identity.Registered() || identity.InstanceID == "" {
		complete(done, ErrMissingDeviceOrInstanceID)
		return
	}
	if err := c.deferred.BeginReset(); err != nil {
		complete(done, err)
		return
	}

	ref := DeviceRef{InstanceID: identity.InstanceID, DeviceID: identity.DeviceID}
	logger := c.logger.With().Str("device_id", ref.DeviceID).Logger()

	started := c.goNetwork(func(ctx context.Context) {
		err := c.network.DeleteDevice(ctx, ref)
		c.metrics.NetworkCall(ctx, "delete_device", err)
		if err != nil {
			logger.Warn().Err(err).Msg("vendor device delete failed, wiping local state anyway")
		}

		if !c.persist(func(ctx context.Context) { c.wipe(ctx, done) }) {
			complete(done, ErrClosed)
		}
	})
	if !started {
		_ = c.deferred.FinishReset()
		complete(done, ErrClosed)
	}
}

// wipe runs on the persistence queue.
func (c *Client) wipe(ctx context.Context, done Completion) {
	before, err := c.store.Interests(ctx)
	if err != nil {
		before = device.InterestSet{}
	}

	if err := c.store.RemoveAll(ctx); err != nil {
		c.logger.Error().Err(err).Msg("failed to wipe device state")
		// The device id may still be there, so the queue must not stay parked.
		_ = c.deferred.FinishReset()
		_ = c.deferred.Resume()
		complete(done, fmt.Errorf("wipe device state: %w", err))
		return
	}
	if len(before) > 0 {
		c.interestsSetDidChange(ctx)
	}

	c.mu.Lock()
	c.pendingUserID = ""
	deviceToken := c.deviceToken
	c.mu.Unlock()

	if err := c.deferred.FinishReset(); err != nil {
		c.logger.Error().Err(err).Msg("failed to finish deferred queue reset")
	}
	c.logger.Info().Msg("device state cleared")

	if deviceToken == "" {
		complete(done, ErrMissingDeviceToken)
		return
	}
	c.RegisterDeviceToken(deviceToken, done)
}

package push

import (
	"context"
	"fmt"

	"github.com/chatking/chatking/internal/device"
)

// mutation is one local change to the interest set and the vendor call that
// mirrors it.
type mutation struct {
	op       string
	interest string

	// bulk marks a whole-set replacement rather than a single add/remove.
	bulk bool

	apply func(ctx context.Context) (changed bool, err error)
	send  func(ctx context.Context, ref DeviceRef, after device.InterestSet) error
}

// Subscribe adds interest to the local set and, when the device is registered
// and the set changed, subscribes the device at the vendor.
//
// An invalid name fails synchronously with *InvalidInterestError and changes
// nothing. Before registration the local change is kept and done runs once the
// deferred queue is resumed; the vendor learns about it from the reconciliation
// pass that follows registration.
func (c *Client) Subscribe(interest string, done Completion) error {
	if err := ValidateInterest(interest); err != nil {
		return err
	}
	return c.mutate(mutation{
		op:       "subscribe",
		interest: interest,
		apply: func(ctx context.Context) (bool, error) {
			return c.store.PersistInterest(ctx, interest)
		},
		send: func(ctx context.Context, ref DeviceRef, _ device.InterestSet) error {
			return c.network.Subscribe(ctx, ref, interest)
		},
	}, done)
}

// Unsubscribe removes interest from the local set. Mirrors Subscribe.
func (c *Client) Unsubscribe(interest string, done Completion) error {
	if err := ValidateInterest(interest); err != nil {
		return err
	}
	return c.mutate(mutation{
		op:       "unsubscribe",
		interest: interest,
		apply: func(ctx context.Context) (bool, error) {
			return c.store.RemoveInterest(ctx, interest)
		},
		send: func(ctx context.Context, ref DeviceRef, _ device.InterestSet) error {
			return c.network.Unsubscribe(ctx, ref, interest)
		},
	}, done)
}

// SetSubscriptions replaces the local set with interests and, when registered
// and the set changed, replaces the vendor's set in one bulk call.
//
// Validation is all-or-nothing: if any name is invalid the call fails with
// *MultipleInvalidInterestsError and nothing is applied.
func (c *Client) SetSubscriptions(interests []string, done Completion) error {
	if err := ValidateInterests(interests); err != nil {
		return err
	}
	names := append([]string(nil), interests...)
	return c.mutate(mutation{
		op:   "set_subscriptions",
		bulk: true,
		apply: func(ctx context.Context) (bool, error) {
			return c.store.PersistInterests(ctx, names)
		},
		send: func(ctx context.Context, ref DeviceRef, after device.InterestSet) error {
			return c.network.SetSubscriptions(ctx, ref, after.Sorted())
		},
	}, done)
}

// UnsubscribeAll is SetSubscriptions with an empty set.
func (c *Client) UnsubscribeAll(done Completion) error {
	return c.SetSubscriptions(nil, done)
}

// Interests returns the local interest set, sorted. Nothing stored yields an
// empty slice, not an error.
func (c *Client) Interests(ctx context.Context) ([]string, error) {
	set, err := c.store.Interests(ctx)
	if err != nil {
		return nil, err
	}
	return set.Sorted(), nil
}

func (c *Client) mutate(m mutation, done Completion) error {
	submitted := c.persist(func(ctx context.Context) {
		logger := c.logger.With().Str("op", m.op).Str("interest", m.interest).Logger()

		before, err := c.store.Interests(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("failed to read interests")
			complete(done, fmt.Errorf("read interests: %w", err))
			return
		}

		changed, err := m.apply(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("failed to persist interests")
			complete(done, fmt.Errorf("persist interests: %w", err))
			return
		}
		if changed {
			c.interestsSetDidChange(ctx)
		}

		identity, err := c.store.Identity(ctx)
		if err != nil {
			complete(done, fmt.Errorf("read identity: %w", err))
			return
		}

		if !identity.Registered() {
			logger.Debug().Bool("changed", changed).Msg("device not registered yet, deferring")
			if !c.deferred.Submit(func() { complete(done, nil) }) {
				complete(done, ErrClosed)
			}
			return
		}

		if !changed {
			complete(done, nil)
			return
		}
		if identity.InstanceID == "" {
			complete(done, ErrMissingDeviceOrInstanceID)
			return
		}

		after, err := c.store.Interests(ctx)
		if err != nil {
			complete(done, fmt.Errorf("read interests: %w", err))
			return
		}

		ref := DeviceRef{InstanceID: identity.InstanceID, DeviceID: identity.DeviceID}
		c.send(m, ref, before, after, done)
	})
	if !submitted {
		return ErrClosed
	}
	return nil
}

// send issues the vendor call for a mutation that changed the set and, on
// success, advances the confirmed hash if nothing else moved it meanwhile.
func (c *Client) send(m mutation, ref DeviceRef, before, after device.InterestSet, done Completion) {
	beforeHash, afterHash := before.Hash(), after.Hash()

	started := c.goNetwork(func(ctx context.Context) {
		err := m.send(ctx, ref, after)
		c.metrics.NetworkCall(ctx, m.op, err)
		if err != nil {
			c.logger.Warn().
				Err(err).
				Str("op", m.op).
				Str("interest", m.interest).
				Msg("interest change not confirmed by vendor")
			complete(done, err)
			return
		}

		if !c.persist(func(ctx context.Context) {
			c.confirm(ctx, m.bulk, beforeHash, afterHash)
			complete(done, nil)
		}) {
			complete(done, nil)
		}
	})
	if !started {
		complete(done, ErrClosed)
	}
}

// confirm records afterHash as server-confirmed. A single add/remove only moves
// the vendor from the confirmed set to the next one, so it counts only if the
// confirmed hash still equals the set it was applied to. A bulk replace counts
// if the local set has not moved on since it was sent.
func (c *Client) confirm(ctx context.Context, bulk bool, beforeHash, afterHash string) {
	if bulk {
		current, err := c.store.Interests(ctx)
		if err != nil || current.Hash() != afterHash {
			return
		}
	} else {
		confirmed, err := c.store.ServerConfirmedHash(ctx)
		if err != nil || confirmed != beforeHash {
			return
		}
	}

	if err := c.store.PersistServerConfirmedHash(ctx, afterHash); err != nil {
		c.logger.Error().Err(err).Msg("failed to persist confirmed interests hash")
	}
}

package push

import "context"

// InterestsChangedDelegate is told whenever the local interest set changes,
// before the vendor has confirmed anything.
type InterestsChangedDelegate interface {
	InterestsSetDidChange(interests []string)
}

// DelegateFunc adapts a function to InterestsChangedDelegate.
type DelegateFunc func(interests []string)

// InterestsSetDidChange calls f.
func (f DelegateFunc) InterestsSetDidChange(interests []string) {
	f(interests)
}

// interestsSetDidChange runs on the persistence queue after a mutation that
// changed the set.
func (c *Client) interestsSetDidChange(ctx context.Context) {
	c.metrics.InterestsChanged(ctx)

	c.mu.Lock()
	delegate := c.delegate
	c.mu.Unlock()
	if delegate == nil {
		return
	}

	interests, err := c.store.Interests(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to read interests for delegate")
		return
	}
	delegate.InterestsSetDidChange(interests.Sorted())
}

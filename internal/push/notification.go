package push

import (
	"context"
	"time"
)

// RemoteNotificationType tells the host what to do with a received notification.
type RemoteNotificationType int

const (
	// ShouldProcess notifications are meant for the application.
	ShouldProcess RemoteNotificationType = iota
	// ShouldIgnore notifications are internal to the vendor and must not be shown.
	ShouldIgnore
)

func (t RemoteNotificationType) String() string {
	if t == ShouldIgnore {
		return "ignore"
	}
	return "process"
}

// HandleNotification inspects a received notification payload and, when
// delivery tracking is enabled, reports a Delivery (or Open, if the user opened
// it) event to the vendor in the background.
//
// The payload is the decoded notification userInfo; vendor fields live under
// data.pusher.
func (c *Client) HandleNotification(payload map[string]any, opened bool) RemoteNotificationType {
	pusher := vendorSection(payload)
	kind := ShouldProcess
	if ignore, ok := pusher["userShouldIgnore"].(bool); ok && ignore {
		kind = ShouldIgnore
	}

	if !c.flagEnabled(FlagDeliveryTracking) {
		return kind
	}
	publishID, _ := pusher["publishId"].(string)
	if publishID == "" {
		return kind
	}

	identity, err := c.store.Identity(c.ctx)
	if err != nil || identity.InstanceID == "" || !identity.Registered() {
		return kind
	}
	userID, _ := c.store.UserID(c.ctx)

	event := Event{
		Event:     EventDelivery,
		PublishID: publishID,
		DeviceID:  identity.DeviceID,
		UserID:    userID,
		Timestamp: time.Now(),
	}
	if opened {
		event.Event = EventOpen
	}

	instanceID := identity.InstanceID
	c.goNetwork(func(ctx context.Context) {
		err := c.network.Track(ctx, instanceID, event)
		c.metrics.NetworkCall(ctx, "track", err)
		if err != nil {
			c.logger.Debug().Err(err).Str("publish_id", publishID).Msg("delivery tracking failed")
		}
	})
	return kind
}

func vendorSection(payload map[string]any) map[string]any {
	data, _ := payload["data"].(map[string]any)
	pusher, _ := data["pusher"].(map[string]any)
	return pusher
}

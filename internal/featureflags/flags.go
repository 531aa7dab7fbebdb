// Package featureflags provides runtime switches for the push agent, backed by
// memory or by the shared Postgres database.
package featureflags

import (
	"time"
)

// Well-known feature flag keys.
const (
	// FlagDeliveryTracking reports delivery and open events to the vendor.
	FlagDeliveryTracking = "delivery_tracking_enabled"

	// FlagSyncMetadata reports agent metadata to the vendor on start.
	FlagSyncMetadata = "sync_metadata_enabled"
)

// Flag is a feature flag with its current value.
type Flag struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BoolValue returns the flag value as a boolean.
// Returns defaultValue if the flag is nil or not a boolean.
func (f *Flag) BoolValue(defaultValue bool) bool {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case bool:
		return v
	case float64:
		// JSON numbers
		return v != 0
	case string:
		switch v {
		case "true", "on", "1":
			return true
		case "false", "off", "0":
			return false
		}
	}
	return defaultValue
}

// DefaultFlags returns the flag values used when nothing is stored.
func DefaultFlags() map[string]*Flag {
	now := time.Now()
	return map[string]*Flag{
		FlagDeliveryTracking: {Key: FlagDeliveryTracking, Value: true, UpdatedAt: now},
		FlagSyncMetadata:     {Key: FlagSyncMetadata, Value: true, UpdatedAt: now},
	}
}

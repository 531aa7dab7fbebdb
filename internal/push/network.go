package push

import (
	"context"
	"time"
)

// DeviceRef addresses one registered device of one instance.
type DeviceRef struct {
	InstanceID string
	DeviceID   string
}

// DeviceRegistration is the vendor's answer to a register call.
type DeviceRegistration struct {
	DeviceID string

	// InitialInterestSet is the set the vendor already holds for this token, if any.
	InitialInterestSet []string
}

// Metadata describes the agent to the vendor.
type Metadata struct {
	SDKVersion string `json:"sdkVersion"`
	OSName     string `json:"osName,omitempty"`
	OSVersion  string `json:"osVersion,omitempty"`
	AppVersion string `json:"appVersion,omitempty"`
}

// EventType is a delivery telemetry event kind.
type EventType string

// Delivery telemetry events.
const (
	EventDelivery EventType = "Delivery"
	EventOpen     EventType = "Open"
)

// Event is one delivery telemetry record.
type Event struct {
	Event     EventType `json:"event"`
	PublishID string    `json:"publishId"`
	DeviceID  string    `json:"deviceId"`
	UserID    string    `json:"userId,omitempty"`
	Timestamp time.Time `json:"-"`
}

// Network is the vendor API the client drives. Every call is a single
// request/response; implementations return *NetworkError on failure.
type Network interface {
	Register(ctx context.Context, instanceID, deviceToken string, metadata Metadata) (*DeviceRegistration, error)
	SetUserID(ctx context.Context, ref DeviceRef, userID, authToken string) error
	Subscribe(ctx context.Context, ref DeviceRef, interest string) error
	SetSubscriptions(ctx context.Context, ref DeviceRef, interests []string) error
	Unsubscribe(ctx context.Context, ref DeviceRef, interest string) error
	DeleteDevice(ctx context.Context, ref DeviceRef) error
	Track(ctx context.Context, instanceID string, event Event) error
	SyncMetadata(ctx context.Context, ref DeviceRef, metadata Metadata) error
}

// TokenProvider fetches an auth token proving the caller may bind userID.
type TokenProvider interface {
	FetchToken(ctx context.Context, userID string) (string, error)
}

// TokenProviderFunc adapts a function to TokenProvider.
type TokenProviderFunc func(ctx context.Context, userID string) (string, error)

// FetchToken calls f.
func (f TokenProviderFunc) FetchToken(ctx context.Context, userID string) (string, error) {
	return f(ctx, userID)
}

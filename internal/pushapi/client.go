// Package pushapi is the HTTP client for the push vendor's device and
// reporting APIs. It implements push.Network.
package pushapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chatking/chatking/internal/provider/resilience"
	"github.com/chatking/chatking/internal/push"
)

const (
	// ProviderName identifies the vendor client in the resilience registry.
	ProviderName = "push-vendor"

	// DefaultHostPattern builds the per-instance vendor host.
	DefaultHostPattern = "https://%s.pushnotifications.pusher.com"

	// Platform is the device platform path segment.
	Platform = "apns"

	maxErrorBody = 4 << 10
)

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the vendor client.
type ClientConfig struct {
	// BaseURL overrides the per-instance vendor host (tests, proxies).
	BaseURL string

	// BundleIdentifier is reported with every registration.
	BundleIdentifier string

	// HTTPClient sends requests. If nil, a resilience client is created.
	HTTPClient HTTPDoer

	// Timeout for individual requests when HTTPClient is nil (default: 10s).
	Timeout time.Duration

	// Logger receives request logs.
	Logger zerolog.Logger
}

// Client is the push vendor API client.
type Client struct {
	baseURL          string
	bundleIdentifier string
	httpClient       HTTPDoer
	logger           zerolog.Logger
}

// NewClient creates a vendor client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultConfig(ProviderName)
		if cfg.Timeout != 0 {
			rc.Timeout = cfg.Timeout
		}
		rc.Logger = cfg.Logger
		httpClient = resilience.NewClient(rc)
	}

	return &Client{
		baseURL:          strings.TrimSuffix(cfg.BaseURL, "/"),
		bundleIdentifier: cfg.BundleIdentifier,
		httpClient:       httpClient,
		logger:           cfg.Logger.With().Str("provider", ProviderName).Logger(),
	}
}

// API request and response bodies.

type registerRequest struct {
	Token            string        `json:"token"`
	BundleIdentifier string        `json:"bundleIdentifier,omitempty"`
	Metadata         push.Metadata `json:"metadata"`
}

type registerResponse struct {
	ID                 string   `json:"id"`
	InitialInterestSet []string `json:"initialInterestSet"`
}

type interestsRequest struct {
	Interests []string `json:"interests"`
}

type eventRequest struct {
	PublishID     string `json:"publishId"`
	Event         string `json:"event"`
	DeviceID      string `json:"deviceId"`
	UserID        string `json:"userId,omitempty"`
	TimestampSecs int64  `json:"timestampSecs"`
}

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"description"`
}

// Register registers a device token and returns the vendor device id.
func (c *Client) Register(ctx context.Context, instanceID, deviceToken string, metadata push.Metadata) (*push.DeviceRegistration, error) {
	body := registerRequest{
		Token:            deviceToken,
		BundleIdentifier: c.bundleIdentifier,
		Metadata:         metadata,
	}

	var out registerResponse
	if err := c.call(ctx, "register", http.MethodPost, c.devicesURL(instanceID), "", body, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, &push.NetworkError{Op: "register", Err: errors.New("response has no device id")}
	}

	return &push.DeviceRegistration{
		DeviceID:           out.ID,
		InitialInterestSet: out.InitialInterestSet,
	}, nil
}

// SetUserID binds userID to the device, authorized by the chat server's token.
func (c *Client) SetUserID(ctx context.Context, ref push.DeviceRef, userID, authToken string) error {
	c.logger.Debug().Str("device_id", ref.DeviceID).Str("user_id", userID).Msg("setting user id")
	return c.call(ctx, "set_user_id", http.MethodPut, c.deviceURL(ref)+"/user", authToken, nil, nil)
}

// Subscribe adds one interest to the device.
func (c *Client) Subscribe(ctx context.Context, ref push.DeviceRef, interest string) error {
	return c.call(ctx, "subscribe", http.MethodPost, c.interestURL(ref, interest), "", nil, nil)
}

// SetSubscriptions replaces the device's interests.
func (c *Client) SetSubscriptions(ctx context.Context, ref push.DeviceRef, interests []string) error {
	if interests == nil {
		interests = []string{}
	}
	return c.call(ctx, "set_subscriptions", http.MethodPut, c.deviceURL(ref)+"/interests", "", interestsRequest{Interests: interests}, nil)
}

// Unsubscribe removes one interest from the device.
func (c *Client) Unsubscribe(ctx context.Context, ref push.DeviceRef, interest string) error {
	return c.call(ctx, "unsubscribe", http.MethodDelete, c.interestURL(ref, interest), "", nil, nil)
}

// DeleteDevice deletes the device at the vendor.
func (c *Client) DeleteDevice(ctx context.Context, ref push.DeviceRef) error {
	return c.call(ctx, "delete_device", http.MethodDelete, c.deviceURL(ref), "", nil, nil)
}

// Track reports a delivery or open event.
func (c *Client) Track(ctx context.Context, instanceID string, event push.Event) error {
	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	body := eventRequest{
		PublishID:     event.PublishID,
		Event:         string(event.Event),
		DeviceID:      event.DeviceID,
		UserID:        event.UserID,
		TimestampSecs: timestamp.Unix(),
	}
	u := c.base(instanceID) + "/reporting_api/v2/instances/" + url.PathEscape(instanceID) + "/events"
	return c.call(ctx, "track", http.MethodPost, u, "", body, nil)
}

// SyncMetadata reports agent metadata for the device.
func (c *Client) SyncMetadata(ctx context.Context, ref push.DeviceRef, metadata push.Metadata) error {
	return c.call(ctx, "sync_metadata", http.MethodPut, c.deviceURL(ref)+"/metadata", "", metadata, nil)
}

func (c *Client) base(instanceID string) string {
	if c.baseURL != "" {
		return c.baseURL
	}
	return fmt.Sprintf(DefaultHostPattern, instanceID)
}

func (c *Client) devicesURL(instanceID string) string {
	return c.base(instanceID) + "/device_api/v1/instances/" + url.PathEscape(instanceID) + "/devices/" + Platform
}

func (c *Client) deviceURL(ref push.DeviceRef) string {
	return c.devicesURL(ref.InstanceID) + "/" + url.PathEscape(ref.DeviceID)
}

func (c *Client) interestURL(ref push.DeviceRef, interest string) string {
	return c.deviceURL(ref) + "/interests/" + url.PathEscape(interest)
}

// call sends one request tagged with a fresh X-Request-Id. A non-nil in is sent as JSON; a non-nil out is
// decoded from a 2xx response. Failures come back as *push.NetworkError.
func (c *Client) call(ctx context.Context, op, method, u, bearer string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &push.NetworkError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return &push.NetworkError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &push.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("request_id", requestID).
		Str("op", op).
		Str("method", method).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("vendor call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &push.NetworkError{Op: op, StatusCode: resp.StatusCode, Err: decodeError(resp.Body)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &push.NetworkError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// decodeError extracts the vendor's error description, or nil if there is none.
func decodeError(r io.Reader) error {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(data) == 0 {
		return nil
	}

	var vendorErr errorResponse
	if json.Unmarshal(data, &vendorErr) == nil && (vendorErr.Error != "" || vendorErr.Description != "") {
		if vendorErr.Description == "" {
			return errors.New(vendorErr.Error)
		}
		return fmt.Errorf("%s: %s", vendorErr.Error, vendorErr.Description)
	}
	return nil
}

var _ push.Network = (*Client)(nil)

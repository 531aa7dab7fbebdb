package models

// Health represents the liveness of the agent.
type Health struct {
	Status  HealthStatus   `json:"status"`
	Time    Timestamp      `json:"time"`
	Details map[string]any `json:"details,omitempty"`
}

// SystemStatus reports the device, its queues and the upstream providers.
type SystemStatus struct {
	Status    HealthStatus     `json:"status"`
	Time      Timestamp        `json:"time"`
	Device    DeviceStatus     `json:"device"`
	Providers []ProviderStatus `json:"providers"`
}

// DeviceStatus is the local view of the registered device.
type DeviceStatus struct {
	InstanceID string `json:"instanceId,omitempty"`
	DeviceID   string `json:"deviceId,omitempty"`
	Registered bool   `json:"registered"`
	QueueState string `json:"queueState"`
}

// ProviderStatus represents the status of an upstream provider's circuit.
type ProviderStatus struct {
	Provider      string       `json:"provider"`
	Status        HealthStatus `json:"status"`
	CircuitState  string       `json:"circuitState"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	Message       *string      `json:"message,omitempty"`
}

// FeatureFlag is one feature flag as exposed over the API.
type FeatureFlag struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	Enabled   bool      `json:"enabled"`
	UpdatedAt Timestamp `json:"updatedAt"`
}

// FeatureFlagList is the response of GET /v1/ops/flags.
type FeatureFlagList struct {
	Flags []FeatureFlag `json:"flags"`
}

// FeatureFlagUpdateRequest is the request body of PUT /v1/ops/flags/{key}.
type FeatureFlagUpdateRequest struct {
	Value any `json:"value"`
}

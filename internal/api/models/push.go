package models

// InterestsRequest is the request body of PUT /v1/interests.
type InterestsRequest struct {
	Interests []string `json:"interests"`
}

// InterestsResponse lists the local interest set.
//
// Confirmed is false when the vendor has not acknowledged the change yet: the
// device is not registered, or the call is still running when the response is
// written. The local set is authoritative either way.
type InterestsResponse struct {
	Interests []string `json:"interests"`
	Confirmed bool     `json:"confirmed"`
}

// DeviceTokenRequest is the request body of POST /v1/device/token.
type DeviceTokenRequest struct {
	Token string `json:"token"`
}

// UserRequest is the request body of POST /v1/user. An empty UserID falls back
// to the subject of the caller's bearer token.
type UserRequest struct {
	UserID string `json:"userId"`
}

// DeviceResponse describes the device after a registration change.
type DeviceResponse struct {
	InstanceID string `json:"instanceId,omitempty"`
	DeviceID   string `json:"deviceId,omitempty"`
	Registered bool   `json:"registered"`
	UserID     string `json:"userId,omitempty"`
	Confirmed  bool   `json:"confirmed"`
}

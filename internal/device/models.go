// Package device provides durable local state for a push notifications device:
// the vendor-assigned device id, the host instance id, the bound user id, the
// locally visible interest set and the hash of the last server-confirmed set.
package device

import (
	"errors"
	"sort"
)

// Store errors.
var (
	// ErrDeviceIDConflict is returned when a different device id is already persisted.
	// Device ids are assigned once by the vendor and never change afterwards.
	ErrDeviceIDConflict = errors.New("a different device id is already persisted")

	// ErrInstanceIDConflict is returned when a different instance id is already persisted.
	ErrInstanceIDConflict = errors.New("a different instance id is already persisted")

	// ErrUserIDConflict is returned when a different user id is already bound to the device.
	ErrUserIDConflict = errors.New("a different user id is already bound to this device")
)

// Persisted keys, relative to the store namespace.
const (
	KeyDeviceID            = "device_id"
	KeyInstanceID          = "instance_id"
	KeyUserID              = "user_id"
	KeyInterests           = "interests"
	KeyServerConfirmedHash = "server_confirmed_interests_hash"
)

// Identity is the vendor and host identity of this device.
type Identity struct {
	DeviceID   string
	InstanceID string
}

// Registered reports whether the vendor has assigned a device id.
func (i Identity) Registered() bool {
	return i.DeviceID != ""
}

// InterestSet is a set of interest names.
type InterestSet map[string]struct{}

// NewInterestSet builds a set from a list, dropping duplicates.
func NewInterestSet(interests []string) InterestSet {
	set := make(InterestSet, len(interests))
	for _, interest := range interests {
		set[interest] = struct{}{}
	}
	return set
}

// Contains reports whether the interest is in the set.
func (s InterestSet) Contains(interest string) bool {
	_, ok := s[interest]
	return ok
}

// Equal reports whether both sets hold the same names.
func (s InterestSet) Equal(other InterestSet) bool {
	if len(s) != len(other) {
		return false
	}
	for interest := range s {
		if !other.Contains(interest) {
			return false
		}
	}
	return true
}

// Sorted returns the interests in lexical order. Never nil.
func (s InterestSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for interest := range s {
		out = append(out, interest)
	}
	sort.Strings(out)
	return out
}

package device

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store is the typed view over a Repository for one namespace.
//
// Store does no locking of its own. Read-modify-write operations on the interest
// set must be serialized by the caller; the push client runs all of them on its
// persistence queue.
type Store struct {
	repo      Repository
	namespace string
}

// NewStore creates a Store whose keys are prefixed with namespace, so several
// instances can share one Repository without colliding.
func NewStore(repo Repository, namespace string) *Store {
	if namespace == "" {
		namespace = "default"
	}
	return &Store{repo: repo, namespace: namespace}
}

// Namespace returns the key prefix of this store.
func (s *Store) Namespace() string {
	return s.namespace
}

func (s *Store) key(name string) string {
	return s.namespace + ":" + name
}

func (s *Store) getString(ctx context.Context, name string) (string, error) {
	value, ok, err := s.repo.Get(ctx, s.key(name))
	if err != nil {
		return "", fmt.Errorf("get %s: %w", name, err)
	}
	if !ok {
		return "", nil
	}
	return value, nil
}

func (s *Store) setString(ctx context.Context, name, value string) error {
	if err := s.repo.Set(ctx, s.key(name), value); err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	return nil
}

// DeviceID returns the persisted device id, or "" if the device is not registered.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	return s.getString(ctx, KeyDeviceID)
}

// PersistDeviceID stores the vendor-assigned device id.
// Persisting the same id twice is a no-op; a different id fails with ErrDeviceIDConflict.
func (s *Store) PersistDeviceID(ctx context.Context, deviceID string) error {
	current, err := s.DeviceID(ctx)
	if err != nil {
		return err
	}
	switch current {
	case deviceID:
		return nil
	case "":
		return s.setString(ctx, KeyDeviceID, deviceID)
	default:
		return ErrDeviceIDConflict
	}
}

// InstanceID returns the persisted instance id, or "".
func (s *Store) InstanceID(ctx context.Context) (string, error) {
	return s.getString(ctx, KeyInstanceID)
}

// PersistInstanceID stores the host application's instance id.
func (s *Store) PersistInstanceID(ctx context.Context, instanceID string) error {
	current, err := s.InstanceID(ctx)
	if err != nil {
		return err
	}
	switch current {
	case instanceID:
		return nil
	case "":
		return s.setString(ctx, KeyInstanceID, instanceID)
	default:
		return ErrInstanceIDConflict
	}
}

// Identity returns the device and instance ids together.
func (s *Store) Identity(ctx context.Context) (Identity, error) {
	deviceID, err := s.DeviceID(ctx)
	if err != nil {
		return Identity{}, err
	}
	instanceID, err := s.InstanceID(ctx)
	if err != nil {
		return Identity{}, err
	}
	return Identity{DeviceID: deviceID, InstanceID: instanceID}, nil
}

// UserID returns the bound user id, or "".
func (s *Store) UserID(ctx context.Context) (string, error) {
	return s.getString(ctx, KeyUserID)
}

// SetUserID binds a user id to the device. Rebinding the same id is a no-op;
// a different id fails with ErrUserIDConflict.
func (s *Store) SetUserID(ctx context.Context, userID string) error {
	current, err := s.UserID(ctx)
	if err != nil {
		return err
	}
	switch current {
	case userID:
		return nil
	case "":
		return s.setString(ctx, KeyUserID, userID)
	default:
		return ErrUserIDConflict
	}
}

// Interests returns the locally stored interest set. Never nil.
func (s *Store) Interests(ctx context.Context) (InterestSet, error) {
	raw, err := s.getString(ctx, KeyInterests)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return InterestSet{}, nil
	}

	var interests []string
	if err := json.Unmarshal([]byte(raw), &interests); err != nil {
		return nil, fmt.Errorf("decode interests: %w", err)
	}
	return NewInterestSet(interests), nil
}

func (s *Store) writeInterests(ctx context.Context, set InterestSet) error {
	data, err := json.Marshal(set.Sorted())
	if err != nil {
		return fmt.Errorf("encode interests: %w", err)
	}
	return s.setString(ctx, KeyInterests, string(data))
}

// PersistInterest adds one interest. Reports whether the set changed.
func (s *Store) PersistInterest(ctx context.Context, interest string) (bool, error) {
	set, err := s.Interests(ctx)
	if err != nil {
		return false, err
	}
	if set.Contains(interest) {
		return false, nil
	}
	set[interest] = struct{}{}
	if err := s.writeInterests(ctx, set); err != nil {
		return false, err
	}
	return true, nil
}

// PersistInterests replaces the whole set. Reports whether the set changed.
func (s *Store) PersistInterests(ctx context.Context, interests []string) (bool, error) {
	current, err := s.Interests(ctx)
	if err != nil {
		return false, err
	}
	next := NewInterestSet(interests)
	if current.Equal(next) {
		return false, nil
	}
	if err := s.writeInterests(ctx, next); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveInterest removes one interest. Reports whether the set changed.
func (s *Store) RemoveInterest(ctx context.Context, interest string) (bool, error) {
	set, err := s.Interests(ctx)
	if err != nil {
		return false, err
	}
	if !set.Contains(interest) {
		return false, nil
	}
	delete(set, interest)
	if err := s.writeInterests(ctx, set); err != nil {
		return false, err
	}
	return true, nil
}

// ServerConfirmedHash returns the hash of the last interest set acknowledged by the server.
func (s *Store) ServerConfirmedHash(ctx context.Context) (string, error) {
	return s.getString(ctx, KeyServerConfirmedHash)
}

// PersistServerConfirmedHash records the hash of a server-acknowledged interest set.
func (s *Store) PersistServerConfirmedHash(ctx context.Context, hash string) error {
	return s.setString(ctx, KeyServerConfirmedHash, hash)
}

// RemoveAll wipes device id, user id, interests and the confirmed hash.
// The instance id is kept: it belongs to the host application, not to the device.
func (s *Store) RemoveAll(ctx context.Context) error {
	for _, name := range []string{KeyDeviceID, KeyUserID, KeyInterests, KeyServerConfirmedHash} {
		if err := s.repo.Delete(ctx, s.key(name)); err != nil {
			return fmt.Errorf("delete %s: %w", name, err)
		}
	}
	return nil
}

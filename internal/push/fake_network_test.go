package push_test

import (
	"context"
	"sync"

	"github.com/chatking/chatking/internal/push"
)

type call struct {
	op        string
	ref       push.DeviceRef
	interest  string
	interests []string
	userID    string
	token     string
	event     push.Event
}

// fakeNetwork records vendor calls and fails the ops listed in errs.
type fakeNetwork struct {
	mu           sync.Mutex
	calls        []call
	errs         map[string]error
	registration *push.DeviceRegistration
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		errs:         make(map[string]error),
		registration: &push.DeviceRegistration{DeviceID: "dev-1"},
	}
}

func (f *fakeNetwork) setRegistration(reg push.DeviceRegistration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registration = &reg
}

func (f *fakeNetwork) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.errs[c.op]
}

func (f *fakeNetwork) failOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

func (f *fakeNetwork) callsFor(op string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeNetwork) Register(_ context.Context, instanceID, deviceToken string, _ push.Metadata) (*push.DeviceRegistration, error) {
	if err := f.record(call{op: "register", ref: push.DeviceRef{InstanceID: instanceID}, token: deviceToken}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	reg := *f.registration
	return &reg, nil
}

func (f *fakeNetwork) SetUserID(_ context.Context, ref push.DeviceRef, userID, authToken string) error {
	return f.record(call{op: "set_user_id", ref: ref, userID: userID, token: authToken})
}

func (f *fakeNetwork) Subscribe(_ context.Context, ref push.DeviceRef, interest string) error {
	return f.record(call{op: "subscribe", ref: ref, interest: interest})
}

func (f *fakeNetwork) SetSubscriptions(_ context.Context, ref push.DeviceRef, interests []string) error {
	return f.record(call{op: "set_subscriptions", ref: ref, interests: append([]string(nil), interests...)})
}

func (f *fakeNetwork) Unsubscribe(_ context.Context, ref push.DeviceRef, interest string) error {
	return f.record(call{op: "unsubscribe", ref: ref, interest: interest})
}

func (f *fakeNetwork) DeleteDevice(_ context.Context, ref push.DeviceRef) error {
	return f.record(call{op: "delete_device", ref: ref})
}

func (f *fakeNetwork) Track(_ context.Context, instanceID string, event push.Event) error {
	return f.record(call{op: "track", ref: push.DeviceRef{InstanceID: instanceID, DeviceID: event.DeviceID}, event: event})
}

func (f *fakeNetwork) SyncMetadata(_ context.Context, ref push.DeviceRef, _ push.Metadata) error {
	return f.record(call{op: "sync_metadata", ref: ref})
}

var _ push.Network = (*fakeNetwork)(nil)

package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatking/chatking/internal/push"
	"github.com/chatking/chatking/internal/worker"
)

// recordingClient records calls and completes them with result, or never
// completes them when hold is set.
type recordingClient struct {
	mu     sync.Mutex
	calls  []string
	result error
	hold   bool
}

func (c *recordingClient) call(name string, done push.Completion) {
	c.mu.Lock()
	c.calls = append(c.calls, name)
	result, hold := c.result, c.hold
	c.mu.Unlock()
	if !hold {
		done(result)
	}
}

func (c *recordingClient) Subscribe(interest string, done push.Completion) error {
	if err := push.ValidateInterest(interest); err != nil {
		return err
	}
	c.call("subscribe:"+interest, done)
	return nil
}

func (c *recordingClient) Unsubscribe(interest string, done push.Completion) error {
	c.call("unsubscribe:"+interest, done)
	return nil
}

func (c *recordingClient) SetSubscriptions(interests []string, done push.Completion) error {
	if err := push.ValidateInterests(interests); err != nil {
		return err
	}
	c.call("set_subscriptions", done)
	return nil
}

func (c *recordingClient) UnsubscribeAll(done push.Completion) error {
	c.call("unsubscribe_all", done)
	return nil
}

func (c *recordingClient) RegisterDeviceToken(token string, done push.Completion) {
	c.call("register_token:"+token, done)
}

func (c *recordingClient) SetUserID(userID string, done push.Completion) error {
	c.call("set_user_id:"+userID, done)
	return nil
}

func (c *recordingClient) ClearAllState(done push.Completion) {
	c.call("clear_all_state", done)
}

func (c *recordingClient) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    worker.Command
		wantErr bool
	}{
		{
			name: "subscribe",
			data: `{"command":"subscribe","interest":"sports"}`,
			want: worker.Command{Command: worker.CommandSubscribe, Interest: "sports"},
		},
		{
			name: "set subscriptions to empty",
			data: `{"command":"set_subscriptions","interests":[]}`,
			want: worker.Command{Command: worker.CommandSetSubscriptions, Interests: []string{}},
		},
		{
			name: "set user id",
			data: `{"command":"set_user_id","user_id":"alice"}`,
			want: worker.Command{Command: worker.CommandSetUserID, UserID: "alice"},
		},
		{
			name: "clear all state",
			data: `{"command":"clear_all_state"}`,
			want: worker.Command{Command: worker.CommandClearAllState},
		},
		{name: "malformed json", data: `{"command":`, wantErr: true},
		{name: "unknown command", data: `{"command":"reboot"}`, wantErr: true},
		{name: "subscribe without interest", data: `{"command":"subscribe"}`, wantErr: true},
		{name: "set subscriptions without interests", data: `{"command":"set_subscriptions"}`, wantErr: true},
		{name: "register without token", data: `{"command":"register_token"}`, wantErr: true},
		{name: "set user without id", data: `{"command":"set_user_id"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := worker.DecodeCommand([]byte(tt.data))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, worker.ErrInvalidCommand)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd)
		})
	}
}

func TestOutcomeFor(t *testing.T) {
	assert.Equal(t, worker.Ack, worker.OutcomeFor(nil))
	assert.Equal(t, worker.Ack, worker.OutcomeFor(&push.InvalidInterestError{Name: "a b"}))
	assert.Equal(t, worker.Ack, worker.OutcomeFor(push.ErrUserIDConflict))
	assert.Equal(t, worker.Nack, worker.OutcomeFor(&push.NetworkError{Op: "subscribe", StatusCode: 502}))
	assert.Equal(t, "nack", worker.Nack.String())
}

func TestDispatcher_Handle(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		result    error
		wantCall  string
		wantOut   worker.Outcome
		wantCalls int
	}{
		{"subscribe", `{"command":"subscribe","interest":"news"}`, nil, "subscribe:news", worker.Ack, 1},
		{"unsubscribe", `{"command":"unsubscribe","interest":"news"}`, nil, "unsubscribe:news", worker.Ack, 1},
		{"set subscriptions", `{"command":"set_subscriptions","interests":["a","b"]}`, nil, "set_subscriptions", worker.Ack, 1},
		{"unsubscribe all", `{"command":"unsubscribe_all"}`, nil, "unsubscribe_all", worker.Ack, 1},
		{"register token", `{"command":"register_token","token":"ab12"}`, nil, "register_token:ab12", worker.Ack, 1},
		{"set user id", `{"command":"set_user_id","user_id":"alice"}`, nil, "set_user_id:alice", worker.Ack, 1},
		{"clear all state", `{"command":"clear_all_state"}`, nil, "clear_all_state", worker.Ack, 1},
		{"vendor failure is redelivered", `{"command":"subscribe","interest":"news"}`, &push.NetworkError{Op: "subscribe", StatusCode: 503}, "subscribe:news", worker.Nack, 1},
		{"state error is dropped", `{"command":"set_user_id","user_id":"bob"}`, push.ErrUserIDConflict, "set_user_id:bob", worker.Ack, 1},
		{"invalid interest is dropped", `{"command":"subscribe","interest":"bad name"}`, nil, "", worker.Ack, 0},
		{"garbage is dropped", `not json`, nil, "", worker.Ack, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &recordingClient{result: tt.result}
			d := worker.NewDispatcher(client, time.Second, zerolog.Nop())

			outcome := d.Handle(context.Background(), []byte(tt.data))

			assert.Equal(t, tt.wantOut, outcome)
			calls := client.Calls()
			require.Len(t, calls, tt.wantCalls)
			if tt.wantCalls > 0 {
				assert.Equal(t, tt.wantCall, calls[0])
			}
		})
	}
}

func TestDispatcher_PendingCommandIsAcked(t *testing.T) {
	client := &recordingClient{hold: true}
	d := worker.NewDispatcher(client, 20*time.Millisecond, zerolog.Nop())

	outcome := d.Handle(context.Background(), []byte(`{"command":"subscribe","interest":"news"}`))

	assert.Equal(t, worker.Ack, outcome)
	stats := d.Stats()
	assert.Equal(t, int64(1), stats.Processed)
	assert.Equal(t, int64(1), stats.Acked)
	assert.Equal(t, int64(1), stats.Pending)
	assert.False(t, stats.LastAt.IsZero())
}

func TestDispatcher_Apply(t *testing.T) {
	client := &recordingClient{}
	d := worker.NewDispatcher(client, time.Second, zerolog.Nop())

	confirmed, err := d.Apply(context.Background(), worker.Command{Command: worker.CommandUnsubscribeAll})
	require.NoError(t, err)
	assert.True(t, confirmed)

	client.result = errors.New("boom")
	confirmed, err = d.Apply(context.Background(), worker.Command{Command: worker.CommandClearAllState})
	assert.EqualError(t, err, "boom")
	assert.False(t, confirmed)

	_, err = d.Apply(context.Background(), worker.Command{Command: "nope"})
	assert.ErrorIs(t, err, worker.ErrInvalidCommand)
}

func TestDispatcher_Stats(t *testing.T) {
	client := &recordingClient{result: &push.NetworkError{Op: "subscribe", StatusCode: 500}}
	d := worker.NewDispatcher(client, time.Second, zerolog.Nop())

	d.Handle(context.Background(), []byte(`{"command":"subscribe","interest":"a"}`))
	d.Handle(context.Background(), []byte(`{"command":"bogus"}`))

	stats := d.Stats()
	assert.Equal(t, int64(2), stats.Processed)
	assert.Equal(t, int64(1), stats.Nacked)
	assert.Equal(t, int64(1), stats.Acked)
	assert.Zero(t, stats.Pending)
}

func TestDefaultConsumerConfig(t *testing.T) {
	cfg := worker.DefaultConsumerConfig()

	assert.Equal(t, 10, cfg.MaxOutstandingMessages)
	assert.Equal(t, 10*time.Minute, cfg.MaxExtension)
	assert.Equal(t, 30*time.Second, cfg.CommandTimeout)
}

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatking/chatking/internal/push"
)

// CommandType names a push client operation.
type CommandType string

// Supported commands.
const (
	CommandSubscribe        CommandType = "subscribe"
	CommandUnsubscribe      CommandType = "unsubscribe"
	CommandSetSubscriptions CommandType = "set_subscriptions"
	CommandUnsubscribeAll   CommandType = "unsubscribe_all"
	CommandRegisterToken    CommandType = "register_token"
	CommandSetUserID        CommandType = "set_user_id"
	CommandClearAllState    CommandType = "clear_all_state"
)

// ErrInvalidCommand is returned for a command that can never succeed, such as
// an unknown type or a missing argument. Such messages are acked.
var ErrInvalidCommand = errors.New("invalid command")

// Command is the JSON body of a command message.
type Command struct {
	Command   CommandType `json:"command"`
	Interest  string      `json:"interest,omitempty"`
	Interests []string    `json:"interests,omitempty"`
	UserID    string      `json:"user_id,omitempty"`
	Token     string      `json:"token,omitempty"`
}

// DecodeCommand parses and checks a command message body.
func DecodeCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

// Validate checks that the command carries the arguments it needs.
func (c Command) Validate() error {
	switch c.Command {
	case CommandSubscribe, CommandUnsubscribe:
		if c.Interest == "" {
			return fmt.Errorf("%w: %s requires interest", ErrInvalidCommand, c.Command)
		}
	case CommandSetSubscriptions:
		if c.Interests == nil {
			return fmt.Errorf("%w: %s requires interests", ErrInvalidCommand, c.Command)
		}
	case CommandRegisterToken:
		if c.Token == "" {
			return fmt.Errorf("%w: %s requires token", ErrInvalidCommand, c.Command)
		}
	case CommandSetUserID:
		if c.UserID == "" {
			return fmt.Errorf("%w: %s requires user_id", ErrInvalidCommand, c.Command)
		}
	case CommandUnsubscribeAll, CommandClearAllState:
	default:
		return fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, c.Command)
	}
	return nil
}

// PushClient is the part of *push.Client the dispatcher drives.
type PushClient interface {
	Subscribe(interest string, done push.Completion) error
	Unsubscribe(interest string, done push.Completion) error
	SetSubscriptions(interests []string, done push.Completion) error
	UnsubscribeAll(done push.Completion) error
	RegisterDeviceToken(deviceToken string, done push.Completion)
	SetUserID(userID string, done push.Completion) error
	ClearAllState(done push.Completion)
}

// Outcome is what a consumer does with a message after dispatch.
type Outcome int

const (
	// Ack removes the message: it was applied, or can never be applied.
	Ack Outcome = iota
	// Nack asks for redelivery: the vendor could not be reached.
	Nack
)

func (o Outcome) String() string {
	if o == Nack {
		return "nack"
	}
	return "ack"
}

// OutcomeFor maps a dispatch error to an Outcome. Only vendor failures are
// worth retrying; validation and state errors would fail the same way again.
func OutcomeFor(err error) Outcome {
	if err != nil && push.IsNetworkError(err) {
		return Nack
	}
	return Ack
}

// DispatcherStats counts dispatched commands.
type DispatcherStats struct {
	Processed int64
	Acked     int64
	Nacked    int64
	Pending   int64
	LastAt    time.Time
}

// Dispatcher applies commands to a push client and waits for their completion.
type Dispatcher struct {
	client  PushClient
	timeout time.Duration
	logger  zerolog.Logger

	mu    sync.Mutex
	stats DispatcherStats
}

// NewDispatcher creates a Dispatcher. A zero timeout uses the default
// CommandTimeout.
func NewDispatcher(client PushClient, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultConsumerConfig().CommandTimeout
	}
	return &Dispatcher{client: client, timeout: timeout, logger: logger}
}

// Handle decodes and applies one message body and reports what to do with the
// message.
func (d *Dispatcher) Handle(ctx context.Context, data []byte) Outcome {
	cmd, err := DecodeCommand(data)
	if err != nil {
		d.logger.Warn().Err(err).Msg("dropping invalid command")
		d.record(Ack, false)
		return Ack
	}

	logger := d.logger.With().Str("command", string(cmd.Command)).Logger()

	confirmed, err := d.Apply(ctx, cmd)
	outcome := OutcomeFor(err)
	switch {
	case err != nil && outcome == Nack:
		logger.Warn().Err(err).Msg("command failed at vendor, requesting redelivery")
	case err != nil:
		logger.Warn().Err(err).Msg("command rejected")
	case !confirmed:
		logger.Info().Msg("command queued, vendor confirmation pending")
	default:
		logger.Debug().Msg("command applied")
	}

	d.record(outcome, err == nil && !confirmed)
	return outcome
}

// Apply runs cmd and waits up to the dispatcher timeout for its completion.
// confirmed is false when the wait ran out; the operation stays queued in the
// client and is not an error.
func (d *Dispatcher) Apply(ctx context.Context, cmd Command) (confirmed bool, err error) {
	if err := cmd.Validate(); err != nil {
		return false, err
	}

	ch := make(chan error, 1)
	done := func(err error) { ch <- err }

	switch cmd.Command {
	case CommandSubscribe:
		err = d.client.Subscribe(cmd.Interest, done)
	case CommandUnsubscribe:
		err = d.client.Unsubscribe(cmd.Interest, done)
	case CommandSetSubscriptions:
		err = d.client.SetSubscriptions(cmd.Interests, done)
	case CommandUnsubscribeAll:
		err = d.client.UnsubscribeAll(done)
	case CommandRegisterToken:
		d.client.RegisterDeviceToken(cmd.Token, done)
	case CommandSetUserID:
		err = d.client.SetUserID(cmd.UserID, done)
	case CommandClearAllState:
		d.client.ClearAllState(done)
	}
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	select {
	case err := <-ch:
		return err == nil, err
	case <-ctx.Done():
		return false, nil
	}
}

func (d *Dispatcher) record(outcome Outcome, pending bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stats.Processed++
	if outcome == Nack {
		d.stats.Nacked++
	} else {
		d.stats.Acked++
	}
	if pending {
		d.stats.Pending++
	}
	d.stats.LastAt = time.Now()
}

// Stats returns a copy of the dispatch counters.
func (d *Dispatcher) Stats() DispatcherStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Package handler provides HTTP handlers for the push agent's control API.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatking/chatking/internal/api/models"
	"github.com/chatking/chatking/internal/api/response"
	"github.com/chatking/chatking/internal/device"
	"github.com/chatking/chatking/internal/push"
	"github.com/chatking/chatking/internal/queue"
)

// DefaultWait is how long a mutating request waits for the vendor before
// answering 202 Accepted with the local result.
const DefaultWait = 5 * time.Second

// PushClient is the part of *push.Client the handlers drive.
type PushClient interface {
	Subscribe(interest string, done push.Completion) error
	Unsubscribe(interest string, done push.Completion) error
	SetSubscriptions(interests []string, done push.Completion) error
	UnsubscribeAll(done push.Completion) error
	Interests(ctx context.Context) ([]string, error)
	InSync(ctx context.Context) (bool, error)
	RegisterDeviceToken(deviceToken string, done push.Completion)
	SetUserID(userID string, done push.Completion) error
	ClearAllState(done push.Completion)
	Identity(ctx context.Context) (device.Identity, error)
	QueueState() queue.State
}

// PushHandler handles interest and device endpoints.
type PushHandler struct {
	client PushClient
	wait   time.Duration
	logger zerolog.Logger
}

// NewPushHandler creates a PushHandler. A zero wait uses DefaultWait.
func NewPushHandler(client PushClient, wait time.Duration, logger zerolog.Logger) *PushHandler {
	if wait <= 0 {
		wait = DefaultWait
	}
	return &PushHandler{client: client, wait: wait, logger: logger}
}

// completion returns a Completion and the channel it reports on. The channel
// is buffered so a late completion never blocks the client.
func completion() (push.Completion, <-chan error) {
	ch := make(chan error, 1)
	return func(err error) { ch <- err }, ch
}

// await waits for an operation to complete. finished is false when the wait
// budget or the request context ran out first; the operation carries on.
func (h *PushHandler) await(ctx context.Context, done <-chan error) (finished bool, err error) {
	timer := time.NewTimer(h.wait)
	defer timer.Stop()

	select {
	case err := <-done:
		return true, err
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, nil
	}
}

// writeError maps push client errors to problems.
func (h *PushHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalid  *push.InvalidInterestError
		multiple *push.MultipleInvalidInterestsError
		netErr   *push.NetworkError
	)

	switch {
	case errors.As(err, &invalid):
		response.BadRequest(w, r, "invalid interest name", []models.FieldError{
			{Field: "interest", Message: invalid.Error(), Code: "INVALID_INTEREST"},
		})
	case errors.As(err, &multiple):
		fields := make([]models.FieldError, 0, len(multiple.Names))
		for _, name := range multiple.Names {
			fields = append(fields, models.FieldError{
				Field:   "interests",
				Message: "invalid interest name " + name,
				Code:    "INVALID_INTEREST",
			})
		}
		response.BadRequest(w, r, "invalid interest names", fields)
	case errors.Is(err, push.ErrInvalidUserID):
		response.BadRequest(w, r, "userId is required", []models.FieldError{
			{Field: "userId", Message: "required", Code: "REQUIRED"},
		})
	case errors.Is(err, push.ErrUserIDConflict):
		response.Conflict(w, r, "a different user id is already bound to this device; clear the device first")
	case errors.Is(err, push.ErrMissingDeviceOrInstanceID):
		response.Conflict(w, r, "the device is not registered")
	case errors.Is(err, push.ErrMissingDeviceToken):
		response.Conflict(w, r, "state was cleared but no device token is known to re-register")
	case errors.Is(err, push.ErrMissingTokenProvider):
		response.ServiceUnavailable(w, r, "no token provider is configured")
	case errors.Is(err, push.ErrClosed):
		response.ServiceUnavailable(w, r, "push client is shutting down")
	case errors.As(err, &netErr):
		response.BadGateway(w, r, netErr.Error())
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("push operation failed")
		response.InternalError(w, r, "push operation failed")
	}
}
